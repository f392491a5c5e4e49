// Package importer reads exports of other password managers and turns them
// into vault groups and entries.
// Supports 1Password CSV, Bitwarden JSON and LastPass CSV.
package importer

import (
	"bytes"
	"fmt"
	"html"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/forest6511/vaultsync/pkg/search"
	"github.com/forest6511/vaultsync/pkg/vault"
)

// Source names the password manager an export came from.
type Source string

const (
	Source1Password Source = "1password"
	SourceBitwarden Source = "bitwarden"
	SourceLastPass  Source = "lastpass"
)

// Property is an imported property value and its presentation type.
type Property struct {
	Value string
	Type  vault.ValueType
}

// ImportedEntry is a foreign item translated to vault terms.
type ImportedEntry struct {
	// Title is never empty. Items without a name get a fallback title.
	Title string

	// OriginalName is the item name as exported.
	OriginalName string

	// Group is the folder path below the import target, outermost first.
	Group []string

	Type       vault.EntryType
	Properties map[string]Property
	Tags       []string
}

// Result is the outcome of parsing one export.
type Result struct {
	Entries  []*ImportedEntry
	Warnings []string
	Skipped  []SkippedItem
}

// SkippedItem is an item that carried nothing worth importing.
type SkippedItem struct {
	OriginalName string
	Reason       string
}

// Parser reads one export format.
type Parser interface {
	Parse(data []byte) (*Result, error)
	Source() Source
}

func newResult() *Result {
	return &Result{
		Entries:  make([]*ImportedEntry, 0),
		Warnings: make([]string, 0),
		Skipped:  make([]SkippedItem, 0),
	}
}

func newEntry(name string, t vault.EntryType) *ImportedEntry {
	return &ImportedEntry{
		Title:        strings.TrimSpace(norm.NFC.String(name)),
		OriginalName: name,
		Type:         t,
		Properties:   make(map[string]Property),
	}
}

// set stores a non-empty value.
func (e *ImportedEntry) set(key, value string, t vault.ValueType) {
	if value == "" {
		return
	}
	e.Properties[key] = Property{Value: value, Type: t}
}

// hasContent reports whether the entry holds anything besides its URL.
func (e *ImportedEntry) hasContent() bool {
	for key := range e.Properties {
		if key != vault.PropertyTitle && !strings.HasPrefix(key, "url") {
			return true
		}
	}
	return false
}

// ensureTitle applies the fallback title when the export has no name.
func (e *ImportedEntry) ensureTitle(counter *int) {
	if e.Title != "" {
		return
	}
	e.Title = FallbackTitle(e.Properties["url"].Value, *counter)
	*counter++
}

var propertyNameRegex = regexp.MustCompile(`[^\p{L}\p{N}_ -]`)

// NormalizePropertyName cleans a custom field name for use as a property key.
// Names are NFC-normalised, lowercased and stripped of punctuation.
func NormalizePropertyName(name string) string {
	name = norm.NFC.String(strings.TrimSpace(name))
	name = propertyNameRegex.ReplaceAllString(name, "")
	return strings.ToLower(strings.TrimSpace(name))
}

var (
	tagCleanRegex = regexp.MustCompile(`[^a-z0-9_-]+`)
	dashRunRegex  = regexp.MustCompile(`-{2,}`)
)

// SanitizeTag turns a foreign tag or folder name into a valid vault tag.
// It returns "" when nothing usable remains.
func SanitizeTag(tag string) string {
	tag = vault.NormalizeTag(tag)
	tag = strings.Join(strings.Fields(tag), "-")
	tag = tagCleanRegex.ReplaceAllString(tag, "")
	tag = dashRunRegex.ReplaceAllString(tag, "-")
	return strings.Trim(tag, "-")
}

// FallbackTitle names an item that has no name: the URL host, else "Imported item N".
func FallbackTitle(url string, counter int) string {
	if host := hostname(url); host != "" {
		return host
	}
	return fmt.Sprintf("Imported item %d", counter)
}

func hostname(url string) string {
	host := search.ExtractDomain(url)
	if i := strings.LastIndex(host, ":"); i != -1 {
		host = host[:i]
	}
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}

// DecodeHTMLEntities decodes the entities LastPass leaves in its exports.
func DecodeHTMLEntities(s string) string {
	return html.UnescapeString(s)
}

// IsEmptyOrWhitespace checks if a string is empty or contains only whitespace.
func IsEmptyOrWhitespace(s string) bool {
	for _, r := range s {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

// splitPath splits a folder name on sep, dropping empty segments.
func splitPath(folder, sep string) []string {
	var path []string
	for _, part := range strings.Split(folder, sep) {
		if part = strings.TrimSpace(part); part != "" {
			path = append(path, part)
		}
	}
	return path
}

func stripBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
}

// GetParser returns a parser for the given source.
func GetParser(source Source) (Parser, error) {
	switch source {
	case Source1Password:
		return &OnePasswordParser{}, nil
	case SourceBitwarden:
		return &BitwardenParser{}, nil
	case SourceLastPass:
		return &LastPassParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported import source: %s", source)
	}
}

// ValidSources returns a list of valid source names.
func ValidSources() []string {
	return []string{
		string(Source1Password),
		string(SourceBitwarden),
		string(SourceLastPass),
	}
}
