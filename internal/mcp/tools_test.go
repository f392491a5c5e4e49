package mcp

import (
	"testing"
)

func TestMaskValue(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected string
	}{
		// Length 0
		{
			name:     "empty value",
			value:    "",
			expected: "",
		},
		// Length 1-4: all asterisks
		{
			name:     "1 character",
			value:    "a",
			expected: "*",
		},
		{
			name:     "2 characters",
			value:    "ab",
			expected: "**",
		},
		{
			name:     "3 characters",
			value:    "abc",
			expected: "***",
		},
		{
			name:     "4 characters",
			value:    "abcd",
			expected: "****",
		},
		// Length 5-8: show last 2
		{
			name:     "5 characters",
			value:    "abcde",
			expected: "***de",
		},
		{
			name:     "6 characters",
			value:    "abcdef",
			expected: "****ef",
		},
		{
			name:     "7 characters",
			value:    "abcdefg",
			expected: "*****fg",
		},
		{
			name:     "8 characters",
			value:    "abcdefgh",
			expected: "******gh",
		},
		// Length 9+: show last 4
		{
			name:     "9 characters",
			value:    "abcdefghi",
			expected: "*****fghi",
		},
		{
			name:     "10 characters",
			value:    "abcdefghij",
			expected: "******ghij",
		},
		{
			name:     "long value",
			value:    "sk-proj-1234567890abcdef",
			expected: "********************cdef",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := maskValue(tt.value)
			if result != tt.expected {
				t.Errorf("maskValue(%q) = %q, want %q", tt.value, result, tt.expected)
			}
		})
	}
}
