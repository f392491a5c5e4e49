package importer

import (
	"fmt"
	"strings"

	"github.com/forest6511/vaultsync/pkg/vault"
)

// OnePasswordParser parses 1Password CSV exports:
// Title,Website,Username,Password,OTPAuth,Favorite,Archived,Tags,Notes
type OnePasswordParser struct{}

// Source returns the source type for this parser.
func (p *OnePasswordParser) Source() Source {
	return Source1Password
}

// Parse parses 1Password CSV data. The export carries no folders, so
// every entry lands directly in the import target.
func (p *OnePasswordParser) Parse(data []byte) (*Result, error) {
	result := newResult()
	counter := 1
	err := readCSV(data, "Title", false, result, func(get csvRow, rowNum int) {
		title := get("Title")
		e := newEntry(title, vault.EntryTypeLogin)
		e.set(vault.PropertyUsername, get("Username"), vault.ValueTypeText)
		e.set(vault.PropertyPassword, get("Password"), vault.ValueTypePassword)
		e.set("otp", get("OTPAuth"), vault.ValueTypeOTP)
		e.set("notes", get("Notes"), vault.ValueTypeNote)
		e.set("url", get("Website"), vault.ValueTypeText)

		if !e.hasContent() {
			result.Warnings = append(result.Warnings, fmt.Sprintf("row %d: skipped: no useful data", rowNum))
			result.Skipped = append(result.Skipped, SkippedItem{OriginalName: title, Reason: "no useful data"})
			return
		}
		e.ensureTitle(&counter)

		for _, t := range strings.Split(get("Tags"), ",") {
			if t = strings.TrimSpace(t); t != "" {
				e.Tags = append(e.Tags, t)
			}
		}
		if strings.EqualFold(get("Favorite"), "true") {
			e.Tags = append(e.Tags, "favorite")
		}
		if strings.EqualFold(get("Archived"), "true") {
			e.Tags = append(e.Tags, "archived")
		}
		result.Entries = append(result.Entries, e)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
