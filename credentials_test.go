package accounts

import (
	"reflect"
	"strings"
	"testing"
)

func TestIsValidEmail(t *testing.T) {
	tests := []struct {
		email string
		want  bool
	}{
		{"alice@example.com", true},
		{"first.last@sub.example.co.uk", true},
		{"\"quoted name\"@example.com", true},
		{"user@[192.168.0.1]", true},
		{"plus+tag@example.io", true},
		{"", false},
		{"no-at-sign", false},
		{"two@@example.com", false},
		{"trailing.dot.@example.com", false},
		{"user@localhost", false},
		{"user@example.c", false},
		{"spaces in@example.com", false},
		{"user@exa_mple.com", false},
		{"\"a\rBcc: x@evil.com\"@x.com", false},
		{"\"a\nBcc: x@evil.com\"@x.com", false},
		{"\"\"@example.com", false},
	}
	for _, tc := range tests {
		t.Run(tc.email, func(t *testing.T) {
			if got := IsValidEmail(tc.email); got != tc.want {
				t.Errorf("IsValidEmail(%q) = %v, want %v", tc.email, got, tc.want)
			}
		})
	}
}

func TestFailedPasswordRules(t *testing.T) {
	tests := []struct {
		password string
		failed   []string
	}{
		{"Str0ng!pass", nil},
		{"Ab1!Ab1!", nil},
		{"short1!", []string{"length", "uppercase"}},
		{"alllowercase", []string{"digit", "uppercase", "symbol"}},
		{"ALLUPPER123!", []string{"lowercase"}},
		{"NoDigits!here", []string{"digit"}},
		{"NoSymbol123x", []string{"symbol"}},
		{"Line\nBreak1!", []string{"length"}},
		{"", []string{"length", "digit", "lowercase", "uppercase", "symbol"}},
	}
	for _, tc := range tests {
		t.Run(tc.password, func(t *testing.T) {
			got := FailedPasswordRules(tc.password)
			if !reflect.DeepEqual(got, tc.failed) {
				t.Errorf("FailedPasswordRules(%q) = %v, want %v", tc.password, got, tc.failed)
			}
			if IsValidPassword(tc.password) != (len(tc.failed) == 0) {
				t.Errorf("IsValidPassword(%q) disagrees with the rule list", tc.password)
			}
		})
	}
}

func TestPasswordLengthCountsRunes(t *testing.T) {
	// Seven characters, more than eight bytes
	if HasMinLength("Ünïcødé") {
		t.Error("expected seven runes to be too short")
	}
	if !HasMinLength("Ünïcødé!") {
		t.Error("expected eight runes to be long enough")
	}
}

func TestIsValidUsername(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"Alice", true},
		{"  padded  ", true},
		{"", false},
		{"   ", false},
		{"\t\n", false},
	}
	for _, tc := range tests {
		if got := IsValidUsername(tc.name); got != tc.want {
			t.Errorf("IsValidUsername(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestPasswordRulesMessage(t *testing.T) {
	msg := passwordRulesMessage("abc")
	for _, rule := range []string{"length", "digit", "uppercase", "symbol"} {
		if !strings.Contains(msg, rule) {
			t.Errorf("expected %q in %q", rule, msg)
		}
	}
}
