package security

import (
	"testing"

	"github.com/forest6511/vaultsync/pkg/vault"
)

func TestPasswordStrength_String(t *testing.T) {
	tests := []struct {
		strength PasswordStrength
		want     string
	}{
		{PasswordWeak, "Weak"},
		{PasswordFair, "Fair"},
		{PasswordGood, "Good"},
		{PasswordStrong, "Strong"},
		{PasswordStrength(99), "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.strength.String(); got != tt.want {
				t.Errorf("String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPasswordStrength_Points(t *testing.T) {
	tests := []struct {
		strength PasswordStrength
		want     int
	}{
		{PasswordWeak, 0},
		{PasswordFair, 8},
		{PasswordGood, 17},
		{PasswordStrong, 25},
		{PasswordStrength(99), 0},
	}

	for _, tt := range tests {
		t.Run(tt.strength.String(), func(t *testing.T) {
			if got := tt.strength.Points(); got != tt.want {
				t.Errorf("Points() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCalculateStrength(t *testing.T) {
	tests := []struct {
		name  string
		value string
		kind  SecretKind
		want  PasswordStrength
	}{
		{"empty", "", KindPassword, PasswordWeak},
		{"7_chars", "1234567", KindPassword, PasswordWeak},
		{"8_chars", "12345678", KindPassword, PasswordFair},
		{"13_chars", "1234567890abc", KindPassword, PasswordFair},
		{"14_chars", "1234567890abcd", KindPassword, PasswordGood},
		{"20_chars", "1234567890abcdefghij", KindPassword, PasswordStrong},
		{"multibyte_counts_runes", "ééééééé", KindPassword, PasswordWeak},
		{"token_15", "123456789012345", KindToken, PasswordWeak},
		{"token_16", "1234567890123456", KindToken, PasswordFair},
		{"token_20", "12345678901234567890", KindToken, PasswordGood},
		{"token_32", "12345678901234567890123456789012", KindToken, PasswordStrong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CalculateStrength(tt.value, tt.kind); got != tt.want {
				t.Errorf("CalculateStrength(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestClassifyProperty(t *testing.T) {
	tests := []struct {
		key  string
		vt   vault.ValueType
		want SecretKind
	}{
		{vault.PropertyPassword, vault.ValueTypeText, KindPassword},
		{"Backup Password", vault.ValueTypeText, KindPassword},
		{"db_passwd", vault.ValueTypeText, KindPassword},
		{"recovery", vault.ValueTypePassword, KindPassword},
		{"API Key", vault.ValueTypeText, KindToken},
		{"github_token", vault.ValueTypePassword, KindToken},
		{"2fa", vault.ValueTypeOTP, KindToken},
		{vault.PropertyTitle, vault.ValueTypePassword, KindNone},
		{vault.PropertyUsername, vault.ValueTypeText, KindNone},
		{"url", vault.ValueTypeText, KindNone},
		{"notes", vault.ValueTypeNote, KindNone},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := ClassifyProperty(tt.key, tt.vt); got != tt.want {
				t.Errorf("ClassifyProperty(%q, %q) = %v, want %v", tt.key, tt.vt, got, tt.want)
			}
		})
	}
}
