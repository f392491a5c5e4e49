// Package security reports weak, reused and stale passwords in a vault.
package security

import (
	"strings"
	"unicode/utf8"

	"github.com/forest6511/vaultsync/pkg/vault"
)

// PasswordStrength is the strength level of a password or token.
type PasswordStrength int

const (
	// PasswordWeak is below 8 characters for passwords or 16 for tokens.
	PasswordWeak PasswordStrength = iota
	PasswordFair
	PasswordGood
	PasswordStrong
)

// String returns a human-readable representation of the password strength.
func (s PasswordStrength) String() string {
	switch s {
	case PasswordWeak:
		return "Weak"
	case PasswordFair:
		return "Fair"
	case PasswordGood:
		return "Good"
	case PasswordStrong:
		return "Strong"
	default:
		return "Unknown"
	}
}

// Points returns the contribution to the strength component: Weak=0, Fair=8, Good=17, Strong=25.
func (s PasswordStrength) Points() int {
	switch s {
	case PasswordStrong:
		return 25
	case PasswordGood:
		return 17
	case PasswordFair:
		return 8
	default:
		return 0
	}
}

// SecretKind separates human-chosen passwords from machine-generated tokens.
type SecretKind int

const (
	KindNone SecretKind = iota
	KindPassword
	KindToken
)

var (
	passwordNames = []string{"password", "passwd", "pwd", "pass", "secret", "credential"}
	tokenNames    = []string{"token", "api_key", "apikey", "api key", "otp"}
)

// ClassifyProperty decides whether an entry property holds a secret.
// Title and username are never secrets.
func ClassifyProperty(key string, t vault.ValueType) SecretKind {
	switch key {
	case vault.PropertyTitle, vault.PropertyUsername:
		return KindNone
	}
	if t == vault.ValueTypeOTP {
		return KindToken
	}
	lower := strings.ToLower(key)
	for _, name := range tokenNames {
		if strings.Contains(lower, name) {
			return KindToken
		}
	}
	if t == vault.ValueTypePassword {
		return KindPassword
	}
	for _, name := range passwordNames {
		if strings.Contains(lower, name) {
			return KindPassword
		}
	}
	return KindNone
}

// CalculateStrength rates a value of the given kind.
//
// Passwords are rated on length alone, following NIST SP 800-63B which
// discourages composition rules. Tokens are random, so length tracks entropy.
func CalculateStrength(value string, kind SecretKind) PasswordStrength {
	n := utf8.RuneCountInString(value)
	if kind == KindToken {
		switch {
		case n >= 32:
			return PasswordStrong
		case n >= 20:
			return PasswordGood
		case n >= 16:
			return PasswordFair
		default:
			return PasswordWeak
		}
	}
	switch {
	case n >= 20:
		return PasswordStrong
	case n >= 14:
		return PasswordGood
	case n >= 8:
		return PasswordFair
	default:
		return PasswordWeak
	}
}
