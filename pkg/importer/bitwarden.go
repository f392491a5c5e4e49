package importer

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/forest6511/vaultsync/pkg/vault"
)

// BitwardenParser parses unencrypted Bitwarden JSON exports.
type BitwardenParser struct{}

// Bitwarden item types.
const (
	bitwardenTypeLogin      = 1
	bitwardenTypeSecureNote = 2
	bitwardenTypeCard       = 3
	bitwardenTypeIdentity   = 4
)

// Bitwarden custom field types.
const (
	bitwardenFieldText    = 0
	bitwardenFieldHidden  = 1
	bitwardenFieldBoolean = 2
)

type bitwardenExport struct {
	Encrypted   bool              `json:"encrypted"`
	Items       []bitwardenItem   `json:"items"`
	Folders     []bitwardenFolder `json:"folders"`
	Collections []bitwardenFolder `json:"collections"`
}

type bitwardenFolder struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type bitwardenItem struct {
	Type          int                    `json:"type"`
	Name          string                 `json:"name"`
	Notes         string                 `json:"notes"`
	Favorite      bool                   `json:"favorite"`
	FolderID      *string                `json:"folderId"`
	CollectionIDs []string               `json:"collectionIds"`
	Login         *bitwardenLogin        `json:"login"`
	Card          *bitwardenCard         `json:"card"`
	Identity      *bitwardenIdentity     `json:"identity"`
	Fields        []bitwardenCustomField `json:"fields"`
}

type bitwardenLogin struct {
	URIs     []bitwardenURI `json:"uris"`
	Username string         `json:"username"`
	Password string         `json:"password"`
	TOTP     string         `json:"totp"`
}

type bitwardenURI struct {
	URI string `json:"uri"`
}

type bitwardenCard struct {
	CardholderName string `json:"cardholderName"`
	Number         string `json:"number"`
	ExpMonth       string `json:"expMonth"`
	ExpYear        string `json:"expYear"`
	Code           string `json:"code"`
	Brand          string `json:"brand"`
}

type bitwardenIdentity struct {
	Title          string `json:"title"`
	FirstName      string `json:"firstName"`
	MiddleName     string `json:"middleName"`
	LastName       string `json:"lastName"`
	Username       string `json:"username"`
	Company        string `json:"company"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	Address1       string `json:"address1"`
	Address2       string `json:"address2"`
	Address3       string `json:"address3"`
	City           string `json:"city"`
	State          string `json:"state"`
	PostalCode     string `json:"postalCode"`
	Country        string `json:"country"`
	SSN            string `json:"ssn"`
	PassportNumber string `json:"passportNumber"`
	LicenseNumber  string `json:"licenseNumber"`
}

type bitwardenCustomField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Type  int    `json:"type"`
}

// Source returns the source type for this parser.
func (p *BitwardenParser) Source() Source {
	return SourceBitwarden
}

// Parse parses Bitwarden JSON data. Folders named "a/b" become nested
// groups; collections become tags.
func (p *BitwardenParser) Parse(data []byte) (*Result, error) {
	var export bitwardenExport
	if err := json.Unmarshal(stripBOM(data), &export); err != nil {
		return nil, fmt.Errorf("failed to parse Bitwarden JSON: %w", err)
	}
	if export.Encrypted {
		return nil, fmt.Errorf("encrypted Bitwarden exports are not supported: export as unencrypted JSON")
	}

	folders := make(map[string]string, len(export.Folders))
	for _, f := range export.Folders {
		folders[f.ID] = f.Name
	}
	collections := make(map[string]string, len(export.Collections))
	for _, c := range export.Collections {
		collections[c.ID] = c.Name
	}

	result := newResult()
	counter := 1
	for i := range export.Items {
		item := &export.Items[i]
		e, warning := p.parseItem(item)
		if warning != "" {
			result.Warnings = append(result.Warnings, fmt.Sprintf("item %d (%s): %s", i+1, item.Name, warning))
		}
		if e == nil {
			if warning == "" {
				result.Skipped = append(result.Skipped, SkippedItem{OriginalName: item.Name, Reason: "no useful data"})
			}
			continue
		}
		e.ensureTitle(&counter)
		if item.FolderID != nil {
			e.Group = splitPath(folders[*item.FolderID], "/")
		}
		for _, id := range item.CollectionIDs {
			if name := collections[id]; name != "" {
				e.Tags = append(e.Tags, name)
			}
		}
		if item.Favorite {
			e.Tags = append(e.Tags, "favorite")
		}
		result.Entries = append(result.Entries, e)
	}
	return result, nil
}

func (p *BitwardenParser) parseItem(item *bitwardenItem) (*ImportedEntry, string) {
	var e *ImportedEntry
	switch item.Type {
	case bitwardenTypeLogin:
		e = p.parseLogin(item)
	case bitwardenTypeSecureNote:
		e = newEntry(item.Name, vault.EntryTypeNote)
	case bitwardenTypeCard:
		e = p.parseCard(item)
	case bitwardenTypeIdentity:
		e = p.parseIdentity(item)
	default:
		return nil, fmt.Sprintf("unsupported item type: %d", item.Type)
	}
	e.set("notes", item.Notes, vault.ValueTypeNote)

	for _, cf := range item.Fields {
		name := NormalizePropertyName(cf.Name)
		if name == "" {
			name = "custom field"
		}
		if _, taken := e.Properties[name]; taken {
			name += " " + strconv.Itoa(len(e.Properties))
		}
		t := vault.ValueTypeText
		if cf.Type == bitwardenFieldHidden {
			t = vault.ValueTypePassword
		}
		e.set(name, cf.Value, t)
	}

	if !e.hasContent() {
		return nil, ""
	}
	return e, ""
}

func (p *BitwardenParser) parseLogin(item *bitwardenItem) *ImportedEntry {
	e := newEntry(item.Name, vault.EntryTypeLogin)
	login := item.Login
	if login == nil {
		return e
	}
	e.set(vault.PropertyUsername, login.Username, vault.ValueTypeText)
	e.set(vault.PropertyPassword, login.Password, vault.ValueTypePassword)
	e.set("otp", login.TOTP, vault.ValueTypeOTP)

	n := 1
	for _, uri := range login.URIs {
		if uri.URI == "" {
			continue
		}
		key := "url"
		if n > 1 {
			key = fmt.Sprintf("url %d", n)
		}
		e.set(key, uri.URI, vault.ValueTypeText)
		n++
	}
	return e
}

func (p *BitwardenParser) parseCard(item *bitwardenItem) *ImportedEntry {
	e := newEntry(item.Name, vault.EntryTypeCreditCard)
	card := item.Card
	if card == nil {
		return e
	}
	e.set("cardholder", card.CardholderName, vault.ValueTypeText)
	e.set("number", card.Number, vault.ValueTypePassword)
	if card.ExpMonth != "" || card.ExpYear != "" {
		e.set("expiry", card.ExpMonth+"/"+card.ExpYear, vault.ValueTypeText)
	}
	e.set("cvv", card.Code, vault.ValueTypePassword)
	e.set("brand", card.Brand, vault.ValueTypeText)
	return e
}

// parseIdentity keeps identity items as logins. Government IDs are secret.
func (p *BitwardenParser) parseIdentity(item *bitwardenItem) *ImportedEntry {
	e := newEntry(item.Name, vault.EntryTypeLogin)
	id := item.Identity
	if id == nil {
		return e
	}
	for _, f := range []struct {
		key, value string
		secret     bool
	}{
		{"honorific", id.Title, false},
		{vault.PropertyUsername, id.Username, false},
		{"first name", id.FirstName, false},
		{"middle name", id.MiddleName, false},
		{"last name", id.LastName, false},
		{"company", id.Company, false},
		{"email", id.Email, false},
		{"phone", id.Phone, false},
		{"address 1", id.Address1, false},
		{"address 2", id.Address2, false},
		{"address 3", id.Address3, false},
		{"city", id.City, false},
		{"state", id.State, false},
		{"postal code", id.PostalCode, false},
		{"country", id.Country, false},
		{"ssn", id.SSN, true},
		{"passport", id.PassportNumber, true},
		{"license", id.LicenseNumber, true},
	} {
		t := vault.ValueTypeText
		if f.secret {
			t = vault.ValueTypePassword
		}
		e.set(f.key, f.value, t)
	}
	return e
}
