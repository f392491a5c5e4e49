package main

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/spf13/cobra"
)

// Character sets
const (
	charsetLowercase = "abcdefghijklmnopqrstuvwxyz"
	charsetUppercase = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	charsetDigits    = "0123456789"
	charsetSymbols   = "!@#$%^&*()_+-=[]{}|;:,.<>?"

	minPasswordLength     = 8
	maxPasswordLength     = 256
	defaultPasswordLength = 24
	maxPasswordCount      = 100
	maxExcludeLength      = 256
)

// generatorOptions controls password generation.
type generatorOptions struct {
	length      int
	noSymbols   bool
	noNumbers   bool
	noUppercase bool
	noLowercase bool
	exclude     string
}

func defaultGeneratorOptions() generatorOptions {
	return generatorOptions{length: defaultPasswordLength}
}

// Generate command flags
var (
	generateOpts  = defaultGeneratorOptions()
	generateCount int
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate secure random passwords",
	Long: `Generate cryptographically secure random passwords.

Examples:
  # Generate a 24-character password (default)
  vaultsync generate

  # Generate 5 passwords of 32 characters without symbols
  vaultsync generate -l 32 -n 5 --no-symbols

  # Exclude ambiguous characters
  vaultsync generate --exclude "0O1lI"`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if generateCount < 1 || generateCount > maxPasswordCount {
			return fmt.Errorf("count must be between 1 and %d", maxPasswordCount)
		}
		for i := 0; i < generateCount; i++ {
			password, err := generateOpts.generate()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), password)
		}
		return nil
	},
}

func (o generatorOptions) validate() error {
	if o.length < minPasswordLength {
		return fmt.Errorf("password length must be at least %d characters", minPasswordLength)
	}
	if o.length > maxPasswordLength {
		return fmt.Errorf("password length must be at most %d characters", maxPasswordLength)
	}
	if len(o.exclude) > maxExcludeLength {
		return fmt.Errorf("exclude string must be at most %d characters", maxExcludeLength)
	}
	return nil
}

// charset builds the alphabet the options allow.
func (o generatorOptions) charset() (string, error) {
	var charset strings.Builder
	if !o.noLowercase {
		charset.WriteString(charsetLowercase)
	}
	if !o.noUppercase {
		charset.WriteString(charsetUppercase)
	}
	if !o.noNumbers {
		charset.WriteString(charsetDigits)
	}
	if !o.noSymbols {
		charset.WriteString(charsetSymbols)
	}

	result := charset.String()
	if o.exclude != "" {
		result = removeChars(result, o.exclude)
	}
	if result == "" {
		return "", fmt.Errorf("character set is empty: adjust flags to include at least one character type")
	}
	return result, nil
}

func (o generatorOptions) generate() (string, error) {
	if err := o.validate(); err != nil {
		return "", err
	}
	charset, err := o.charset()
	if err != nil {
		return "", err
	}
	return generatePassword(charset, o.length)
}

func removeChars(s, chars string) string {
	exclude := make(map[rune]bool)
	for _, c := range chars {
		exclude[c] = true
	}
	var result strings.Builder
	for _, c := range s {
		if !exclude[c] {
			result.WriteRune(c)
		}
	}
	return result.String()
}

// generatePassword draws length characters from charset with crypto/rand.
func generatePassword(charset string, length int) (string, error) {
	n := big.NewInt(int64(len(charset)))
	password := make([]byte, length)
	for i := range password {
		idx, err := rand.Int(rand.Reader, n)
		if err != nil {
			return "", fmt.Errorf("failed to generate random number: %w", err)
		}
		password[i] = charset[idx.Int64()]
	}
	return string(password), nil
}

// addGeneratorFlags registers the generator options on cmd.
func addGeneratorFlags(cmd *cobra.Command, o *generatorOptions) {
	cmd.Flags().IntVarP(&o.length, "length", "l", defaultPasswordLength, "password length (8-256)")
	cmd.Flags().BoolVar(&o.noSymbols, "no-symbols", false, "exclude symbols")
	cmd.Flags().BoolVar(&o.noNumbers, "no-numbers", false, "exclude numbers")
	cmd.Flags().BoolVar(&o.noUppercase, "no-uppercase", false, "exclude uppercase letters")
	cmd.Flags().BoolVar(&o.noLowercase, "no-lowercase", false, "exclude lowercase letters")
	cmd.Flags().StringVar(&o.exclude, "exclude", "", "characters to exclude")
}

func init() {
	rootCmd.AddCommand(generateCmd)
	addGeneratorFlags(generateCmd, &generateOpts)
	generateCmd.Flags().IntVarP(&generateCount, "count", "n", 1, "number of passwords to generate (1-100)")
}
