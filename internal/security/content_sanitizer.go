// Package security はアプリケーションのセキュリティ機能を提供する。
//
// 入力検証（メールアドレス・表示名）、インジェクションパターンの検出、
// クライアントアドレス単位のレート制限、ボディサイズ上限、固定のセキュリティヘッダー、
// およびニュースレター本文のHTMLサニタイズを扱う。
package security

import (
	"net/url"

	"github.com/microcosm-cc/bluemonday"
)

// HTMLSanitizer はニュースレター本文のサニタイズ機能を定義する。
type HTMLSanitizer interface {
	// Sanitize はHTMLを許可リストに従ってサニタイズする。
	// script, iframe, style およびon*イベント属性は除去される。
	// 同一入力に対して常に同一出力を返す。
	Sanitize(rawHTML string) string
}

type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はニュースレター配信用のサニタイザーを生成する。
// ポリシーの内容:
//   - 許可タグ: h1-h4, p, br, hr, ul, ol, li, blockquote, pre, code, strong, em, b, i, a, img
//   - aのhref: https と mailto のみ
//   - imgのsrc: https のみ
//   - aタグには rel="noopener noreferrer" と target="_blank" を付与
func NewContentSanitizer() HTMLSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"h1", "h2", "h3", "h4",
		"p", "br", "hr", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em", "b", "i",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	p.AllowAttrs("src", "alt").OnElements("img")
	p.AllowURLSchemeWithCustomPolicy("https", func(u *url.URL) bool {
		return u.Host != ""
	})
	p.AllowURLSchemes("mailto")

	return &contentSanitizer{policy: p}
}

// Sanitize はHTMLコンテンツをサニタイズして安全なHTMLを返す。
func (s *contentSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}
