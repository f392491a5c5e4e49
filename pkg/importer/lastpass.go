package importer

import (
	"fmt"

	"github.com/forest6511/vaultsync/pkg/vault"
)

// LastPassParser parses LastPass CSV exports:
// url,username,password,totp,extra,name,grouping,fav
type LastPassParser struct{}

// secureNoteURL is the placeholder URL LastPass writes for secure notes.
const secureNoteURL = "http://sn"

// Source returns the source type for this parser.
func (p *LastPassParser) Source() Source {
	return SourceLastPass
}

// Parse parses LastPass CSV data. Groupings become nested groups, split on backslashes.
func (p *LastPassParser) Parse(data []byte) (*Result, error) {
	result := newResult()
	counter := 1
	err := readCSV(data, "name", true, result, func(get csvRow, rowNum int) {
		value := func(col string) string { return DecodeHTMLEntities(get(col)) }

		name := value("name")
		url := value("url")
		entryType := vault.EntryTypeLogin
		if url == secureNoteURL {
			url = ""
			entryType = vault.EntryTypeNote
		}

		e := newEntry(name, entryType)
		e.set(vault.PropertyUsername, value("username"), vault.ValueTypeText)
		e.set(vault.PropertyPassword, value("password"), vault.ValueTypePassword)
		e.set("otp", value("totp"), vault.ValueTypeOTP)
		e.set("notes", value("extra"), vault.ValueTypeNote)
		e.set("url", url, vault.ValueTypeText)

		if !e.hasContent() {
			result.Warnings = append(result.Warnings, fmt.Sprintf("row %d: skipped: no useful data", rowNum))
			result.Skipped = append(result.Skipped, SkippedItem{OriginalName: name, Reason: "no useful data"})
			return
		}
		e.ensureTitle(&counter)
		e.Group = splitPath(value("grouping"), `\`)
		if value("fav") == "1" {
			e.Tags = append(e.Tags, "favorite")
		}
		result.Entries = append(result.Entries, e)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
