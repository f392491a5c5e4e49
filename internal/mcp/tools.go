package mcp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/forest6511/vaultsync/pkg/search"
	"github.com/forest6511/vaultsync/pkg/security"
	"github.com/forest6511/vaultsync/pkg/vault"
)

// maxResults caps the entries returned by the search tools.
const maxResults = 50

// EntryInfo is the agent-visible view of an entry.
type EntryInfo struct {
	ID       string   `json:"id"`
	GroupID  string   `json:"group_id"`
	Type     string   `json:"type"`
	Title    string   `json:"title"`
	Username string   `json:"username,omitempty"`
	URLs     []string `json:"urls,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	// Properties lists the other property names; values are never returned.
	Properties []string `json:"properties,omitempty"`
	// SecretProperties lists properties that hold secrets.
	SecretProperties []string `json:"secret_properties,omitempty"`
}

// EntrySearchInput is the input of entry_search.
type EntrySearchInput struct {
	Term string `json:"term"`
}

// EntrySearchURLInput is the input of entry_search_url.
type EntrySearchURLInput struct {
	URL string `json:"url"`
}

// EntryListOutput is returned by the search tools.
type EntryListOutput struct {
	Entries   []EntryInfo `json:"entries"`
	Truncated bool        `json:"truncated"`
}

// EntryGetInput is the input of entry_get.
type EntryGetInput struct {
	ID string `json:"id"`
}

// EntryGetOutput is the output of entry_get.
type EntryGetOutput struct {
	Exists  bool       `json:"exists"`
	Entry   *EntryInfo `json:"entry,omitempty"`
	InTrash bool       `json:"in_trash"`
}

// EntryGetMaskedInput is the input of entry_get_masked.
type EntryGetMaskedInput struct {
	ID       string `json:"id"`
	Property string `json:"property"`
}

// EntryGetMaskedOutput is the output of entry_get_masked.
type EntryGetMaskedOutput struct {
	ID          string `json:"id"`
	Property    string `json:"property"`
	MaskedValue string `json:"masked_value"`
	ValueLength int    `json:"value_length"`
}

// GroupListInput is the (empty) input of group_list.
type GroupListInput struct{}

// GroupInfo describes a group.
type GroupInfo struct {
	ID       string `json:"id"`
	ParentID string `json:"parent_id"`
	Title    string `json:"title"`
	Entries  int    `json:"entries"`
	IsTrash  bool   `json:"is_trash"`
}

// GroupListOutput is the output of group_list.
type GroupListOutput struct {
	Groups []GroupInfo `json:"groups"`
}

// EntryRecordUseInput is the input of entry_record_use.
type EntryRecordUseInput struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// EntryRecordUseOutput is the output of entry_record_use.
type EntryRecordUseOutput struct {
	Recorded bool   `json:"recorded"`
	Domain   string `json:"domain,omitempty"`
}

func isSecret(e *vault.Entry, property string) bool {
	return security.ClassifyProperty(property, e.PropertyValueType(property)) != security.KindNone
}

// entryInfo builds the agent view. Callers hold s.mu.
func (s *Server) entryInfo(e *vault.Entry) EntryInfo {
	props := e.Properties()
	info := EntryInfo{
		ID:       e.ID(),
		GroupID:  e.GroupID(),
		Type:     string(e.Type()),
		Title:    props[vault.PropertyTitle],
		Username: props[vault.PropertyUsername],
		URLs:     e.URLs(),
		Tags:     e.Tags(),
	}
	urls := make(map[string]struct{}, len(info.URLs))
	for _, u := range info.URLs {
		urls[u] = struct{}{}
	}
	for key, value := range props {
		switch {
		case key == vault.PropertyTitle || key == vault.PropertyUsername:
		case isSecret(e, key):
			info.SecretProperties = append(info.SecretProperties, key)
		default:
			if _, isURL := urls[value]; !isURL {
				info.Properties = append(info.Properties, key)
			}
		}
	}
	sort.Strings(info.Properties)
	sort.Strings(info.SecretProperties)
	return info
}

func (s *Server) toOutput(results []search.Result) EntryListOutput {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := EntryListOutput{Entries: make([]EntryInfo, 0, min(len(results), maxResults))}
	for _, r := range results {
		if len(out.Entries) == maxResults {
			out.Truncated = true
			break
		}
		if e := s.v.FindEntryByID(r.ID); e != nil {
			out.Entries = append(out.Entries, s.entryInfo(e))
		}
	}
	return out
}

func (s *Server) handleEntrySearch(_ context.Context, _ *mcp.CallToolRequest, input EntrySearchInput) (*mcp.CallToolResult, EntryListOutput, error) {
	if strings.TrimSpace(input.Term) == "" {
		return nil, EntryListOutput{}, errors.New("term is required")
	}
	results, err := s.index.SearchByTerm(input.Term)
	if err != nil {
		return nil, EntryListOutput{}, fmt.Errorf("search failed: %w", err)
	}
	return nil, s.toOutput(results), nil
}

func (s *Server) handleEntrySearchURL(_ context.Context, _ *mcp.CallToolRequest, input EntrySearchURLInput) (*mcp.CallToolResult, EntryListOutput, error) {
	if search.ExtractDomain(input.URL) == "" {
		return nil, EntryListOutput{}, errors.New("url is required")
	}
	return nil, s.toOutput(s.index.SearchByURL(input.URL)), nil
}

func (s *Server) handleEntryGet(_ context.Context, _ *mcp.CallToolRequest, input EntryGetInput) (*mcp.CallToolResult, EntryGetOutput, error) {
	if input.ID == "" {
		return nil, EntryGetOutput{}, errors.New("id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.v.FindEntryByID(input.ID)
	if e == nil {
		return nil, EntryGetOutput{Exists: false}, nil
	}
	info := s.entryInfo(e)
	return nil, EntryGetOutput{Exists: true, Entry: &info, InTrash: s.v.IsInTrash(e.ID())}, nil
}

func (s *Server) handleEntryGetMasked(_ context.Context, _ *mcp.CallToolRequest, input EntryGetMaskedInput) (*mcp.CallToolResult, EntryGetMaskedOutput, error) {
	if input.ID == "" || input.Property == "" {
		return nil, EntryGetMaskedOutput{}, errors.New("id and property are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.v.FindEntryByID(input.ID)
	if e == nil {
		return nil, EntryGetMaskedOutput{}, vault.ErrEntryNotFound
	}
	value, ok := e.Property(input.Property)
	if !ok {
		return nil, EntryGetMaskedOutput{}, fmt.Errorf("property %q not found", input.Property)
	}
	return nil, EntryGetMaskedOutput{
		ID:          input.ID,
		Property:    input.Property,
		MaskedValue: maskValue(value),
		ValueLength: len([]rune(value)),
	}, nil
}

func (s *Server) handleGroupList(_ context.Context, _ *mcp.CallToolRequest, _ GroupListInput) (*mcp.CallToolResult, GroupListOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	groups := s.v.Groups()
	out := GroupListOutput{Groups: make([]GroupInfo, 0, len(groups))}
	for _, g := range groups {
		out.Groups = append(out.Groups, GroupInfo{
			ID:       g.ID(),
			ParentID: g.ParentID(),
			Title:    g.Title(),
			Entries:  len(s.v.EntriesIn(g.ID())),
			IsTrash:  g.IsTrash(),
		})
	}
	return nil, out, nil
}

func (s *Server) handleEntryRecordUse(ctx context.Context, _ *mcp.CallToolRequest, input EntryRecordUseInput) (*mcp.CallToolResult, EntryRecordUseOutput, error) {
	if input.ID == "" {
		return nil, EntryRecordUseOutput{}, errors.New("id is required")
	}
	domain := search.ExtractDomain(input.URL)
	if domain == "" {
		return nil, EntryRecordUseOutput{}, errors.New("url is required")
	}
	s.mu.Lock()
	found := s.v.FindEntryByID(input.ID) != nil
	vaultID := s.v.ID()
	s.mu.Unlock()
	if !found {
		return nil, EntryRecordUseOutput{}, vault.ErrEntryNotFound
	}

	if err := s.index.IncrementScore(ctx, vaultID, input.ID, input.URL); err != nil {
		return nil, EntryRecordUseOutput{}, err
	}
	if err := s.index.Prepare(ctx); err != nil {
		return nil, EntryRecordUseOutput{}, err
	}
	s.logger.Debug().Str("entry_id", input.ID).Str("domain", domain).Msg("recorded entry use")
	return nil, EntryRecordUseOutput{Recorded: true, Domain: domain}, nil
}

// maskValue hides all but the tail of a value:
// 1-4 runes are fully masked, 5-8 show the last 2, longer values show the last 4.
func maskValue(value string) string {
	runes := []rune(value)
	n := len(runes)
	switch {
	case n == 0:
		return ""
	case n <= 4:
		return strings.Repeat("*", n)
	case n <= 8:
		return strings.Repeat("*", n-2) + string(runes[n-2:])
	default:
		return strings.Repeat("*", n-4) + string(runes[n-4:])
	}
}
