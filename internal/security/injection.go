package security

import "regexp"

// injectionPatterns はSQLインジェクションを疑う文字列パターンの一覧。
// ヒューリスティックな多層防御であり、永続化層は常にプレースホルダ付きクエリを使う。
var injectionPatterns = []*regexp.Regexp{
	// UNION SELECT による結果の結合
	regexp.MustCompile(`(?i)\bUNION\b\s+(ALL\s+)?SELECT\b`),
	// 文の連結による追加クエリ
	regexp.MustCompile(`(?i);\s*(SELECT|INSERT|UPDATE|DELETE|DROP|CREATE|ALTER|TRUNCATE|EXEC)\b`),
	// コメント・文区切り・拡張ストアドプロシージャ
	regexp.MustCompile(`(--|;|/\*|\*/|\bxp_|\bsp_)`),
	// 常に真となる条件（OR '1'='1, AND 1=1 など）
	regexp.MustCompile(`(?i)\b(OR|AND)\b\s*(['"]?[0-9a-z]*['"]?)\s*=\s*(['"]?[0-9a-z]*['"]?)`),
	regexp.MustCompile(`(?i)\b(OR|AND)\b\s+(TRUE|FALSE)\b`),
	// 時間遅延・ブロッキング関数
	regexp.MustCompile(`(?i)\b(SLEEP|PG_SLEEP|BENCHMARK)\s*\(`),
	regexp.MustCompile(`(?i)\bWAITFOR\s+DELAY\b`),
	regexp.MustCompile(`(?i)\bDBMS_LOCK\b`),
	// 文字列操作・ファイル読み出し関数
	regexp.MustCompile(`(?i)\b(CAST|CONVERT|CONCAT|SUBSTRING|LOAD_FILE|CHAR)\s*\(`),
}

// ContainsInjectionPattern は s がインジェクションを疑うパターンに一致するかを返す。
// 副作用を持たない純粋関数。
func ContainsInjectionPattern(s string) bool {
	for _, p := range injectionPatterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}
