package security

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hitoshi/newsletter/internal/model"
)

const (
	emailMinLength      = 5
	emailMaxLength      = 254
	emailLocalMaxLength = 64
	nameMaxLength       = 256
	nameMaxSpecialChars = 5
)

// emailPattern はRFC 5322を実用的に簡略化したメールアドレス形式。
var emailPattern = regexp.MustCompile(
	"^[a-zA-Z0-9.!#$%&'*+/=?^_`{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$",
)

// ValidateEmail はメールアドレスを検証し、前後の空白を除去した値を返す。
// インジェクションを疑うパターンは形式チェックより先に判定し、
// model.ReasonPossibleInjection として区別して返す。
func ValidateEmail(raw string) (string, error) {
	const field = "email"
	email := strings.TrimSpace(raw)

	switch {
	case email == "":
		return "", model.NewValidationError(field, model.ReasonEmpty, "")
	case len(email) < emailMinLength:
		return "", model.NewValidationError(field, model.ReasonTooShort, fmt.Sprintf("length %d", len(email)))
	case len(email) > emailMaxLength:
		return "", model.NewValidationError(field, model.ReasonTooLong, fmt.Sprintf("length %d", len(email)))
	case strings.ContainsRune(email, 0):
		return "", model.NewValidationError(field, model.ReasonSuspiciousContent, "null byte")
	}

	if ContainsInjectionPattern(email) {
		return "", model.NewValidationError(field, model.ReasonPossibleInjection, "matched injection pattern")
	}

	if strings.Count(email, "@") != 1 {
		return "", model.NewValidationError(field, model.ReasonInvalidFormat, "expected exactly one @")
	}
	local := email[:strings.IndexByte(email, '@')]
	if len(local) > emailLocalMaxLength {
		return "", model.NewValidationError(field, model.ReasonTooLong, fmt.Sprintf("local part length %d", len(local)))
	}
	if !emailPattern.MatchString(email) {
		return "", model.NewValidationError(field, model.ReasonInvalidFormat, "pattern mismatch")
	}

	return email, nil
}

// ValidateName は表示名を検証し、前後の空白を除去した値を返す。
func ValidateName(raw string) (string, error) {
	const field = "name"
	name := strings.TrimSpace(raw)

	if name == "" {
		return "", model.NewValidationError(field, model.ReasonEmpty, "")
	}
	if n := utf8.RuneCountInString(name); n > nameMaxLength {
		return "", model.NewValidationError(field, model.ReasonTooLong, fmt.Sprintf("length %d", n))
	}
	if !utf8.ValidString(name) {
		return "", model.NewValidationError(field, model.ReasonInvalidFormat, "invalid utf-8")
	}
	for _, r := range name {
		if r == 0 || unicode.IsControl(r) {
			return "", model.NewValidationError(field, model.ReasonSuspiciousContent, "control character")
		}
	}

	if ContainsInjectionPattern(name) {
		return "", model.NewValidationError(field, model.ReasonPossibleInjection, "matched injection pattern")
	}

	if n := countSpecialChars(name); n > nameMaxSpecialChars {
		return "", model.NewValidationError(field, model.ReasonSuspiciousContent, fmt.Sprintf("%d special characters", n))
	}

	return name, nil
}

// countSpecialChars は英数字・空白・名前に使われる記号（- . _ '）以外の文字数を数える。
func countSpecialChars(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			continue
		}
		switch r {
		case '-', '.', '_', '\'':
			continue
		}
		n++
	}
	return n
}
