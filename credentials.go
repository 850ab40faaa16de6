package accounts

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MinPasswordLength is the shortest password IsValidPassword accepts.
const MinPasswordLength = 8

// PasswordSymbols is the punctuation set a password must draw at least one
// character from.
const PasswordSymbols = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

// local-part@domain where the local part is dot separated atoms or a quoted
// string and the domain is dotted labels or a bracketed IPv4 literal.
var emailRegex = regexp.MustCompile(`^(([^<>()\[\]\\.,;:\s@"]+(\.[^<>()\[\]\\.,;:\s@"]+)*)|("[^"\r\n]+"))@((\[[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}\])|(([a-zA-Z\-0-9]+\.)+[a-zA-Z]{2,}))$`)

// IsValidEmail reports whether s looks like a deliverable email address.
func IsValidEmail(s string) bool {
	return emailRegex.MatchString(s)
}

// PasswordRule is a single condition of the password policy.
type PasswordRule struct {
	Name  string
	Check func(string) bool
}

// PasswordRules make up the password policy. A password is valid when every
// rule passes.
var PasswordRules = []PasswordRule{
	{Name: "length", Check: HasMinLength},
	{Name: "digit", Check: HasDigit},
	{Name: "lowercase", Check: HasLower},
	{Name: "uppercase", Check: HasUpper},
	{Name: "symbol", Check: HasSymbol},
}

// HasMinLength requires at least MinPasswordLength characters and no line breaks.
func HasMinLength(s string) bool {
	if strings.ContainsAny(s, "\n\r\u2028\u2029") {
		return false
	}
	return utf8.RuneCountInString(s) >= MinPasswordLength
}

func HasDigit(s string) bool {
	return strings.ContainsFunc(s, func(r rune) bool { return r >= '0' && r <= '9' })
}

func HasLower(s string) bool {
	return strings.ContainsFunc(s, func(r rune) bool { return r >= 'a' && r <= 'z' })
}

func HasUpper(s string) bool {
	return strings.ContainsFunc(s, func(r rune) bool { return r >= 'A' && r <= 'Z' })
}

func HasSymbol(s string) bool {
	return strings.ContainsAny(s, PasswordSymbols)
}

// FailedPasswordRules returns the names of the rules s does not satisfy.
func FailedPasswordRules(s string) []string {
	var failed []string
	for _, rule := range PasswordRules {
		if !rule.Check(s) {
			failed = append(failed, rule.Name)
		}
	}
	return failed
}

// IsValidPassword reports whether s satisfies every PasswordRules entry.
func IsValidPassword(s string) bool {
	return len(FailedPasswordRules(s)) == 0
}

// IsValidUsername accepts any display name with at least one non-space character.
func IsValidUsername(s string) bool {
	return strings.TrimFunc(s, unicode.IsSpace) != ""
}
