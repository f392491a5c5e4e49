// Package search builds a fuzzy, tag-aware index over vault entries and
// ranks entries by URL using learned per-domain usage scores.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/forest6511/vaultsync/pkg/storage"
	"github.com/forest6511/vaultsync/pkg/vault"
)

// ScoreKeyPrefix prefixes the storage key holding a vault's domain scores.
const ScoreKeyPrefix = "bcup_search_"

// DefaultThreshold is the maximum error rate accepted by term search.
const DefaultThreshold = 0.5

// ErrNotPrepared is returned when searching before Prepare.
var ErrNotPrepared = errors.New("search: index not prepared")

var domainRegex = regexp.MustCompile(`(?i)^((https?|ftp)://)?([^/]+)`)

// Result is a flattened, searchable entry.
type Result struct {
	EntryType  vault.EntryType   `json:"entryType"`
	GroupID    string            `json:"groupID"`
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
	Tags       []string          `json:"tags"`
	URLs       []string          `json:"urls"`
	VaultID    string            `json:"vaultID"`
}

// DomainScores maps a domain to how often an entry was picked for it.
type DomainScores map[string]int

// EntryFetcher flattens the searchable entries of a vault.
type EntryFetcher func(ctx context.Context, v *vault.Vault) ([]Result, error)

// FetchEntries is the default EntryFetcher. Entries in the trash are skipped.
func FetchEntries(_ context.Context, v *vault.Vault) ([]Result, error) {
	var out []Result
	for _, e := range v.Entries() {
		if v.IsInTrash(e.ID()) {
			continue
		}
		out = append(out, Result{
			EntryType:  e.Type(),
			GroupID:    e.GroupID(),
			ID:         e.ID(),
			Properties: e.Properties(),
			Tags:       e.Tags(),
			URLs:       e.URLs(),
			VaultID:    v.ID(),
		})
	}
	return out, nil
}

type indexedEntry struct {
	Result
	domainScores DomainScores
}

// Index searches entries across one or more vaults.
type Index struct {
	targets   []*vault.Vault
	store     storage.Interface
	fetch     EntryFetcher
	threshold float64
	logger    zerolog.Logger

	mu       sync.RWMutex
	prepared bool
	entries  []indexedEntry
	results  []Result
}

// Option configures an Index.
type Option func(*Index)

// WithEntryFetcher replaces the default entry flattening.
func WithEntryFetcher(f EntryFetcher) Option {
	return func(idx *Index) {
		if f != nil {
			idx.fetch = f
		}
	}
}

// WithThreshold sets the maximum error rate for term matches, between 0 and 1.
func WithThreshold(t float64) Option {
	return func(idx *Index) {
		if t > 0 && t <= 1 {
			idx.threshold = t
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(idx *Index) {
		idx.logger = l
	}
}

// NewIndex creates an index over targets. Scores are kept in store.
func NewIndex(targets []*vault.Vault, store storage.Interface, opts ...Option) *Index {
	if store == nil {
		store = storage.NewMemory()
	}
	idx := &Index{
		targets:   targets,
		store:     store,
		fetch:     FetchEntries,
		threshold: DefaultThreshold,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Prepare loads domain scores and flattens the entries of every target.
func (idx *Index) Prepare(ctx context.Context) error {
	var entries []indexedEntry
	for _, target := range idx.targets {
		scores, err := idx.loadScores(ctx, target.ID())
		if err != nil {
			return err
		}
		results, err := idx.fetch(ctx, target)
		if err != nil {
			return fmt.Errorf("search: failed to fetch entries of vault %s: %w", target.ID(), err)
		}
		for _, r := range results {
			ds := scores[r.ID]
			if ds == nil {
				ds = DomainScores{}
			}
			entries = append(entries, indexedEntry{Result: r, domainScores: ds})
		}
	}

	idx.mu.Lock()
	idx.entries = entries
	idx.prepared = true
	idx.mu.Unlock()

	idx.logger.Debug().Int("targets", len(idx.targets)).Int("entries", len(entries)).Msg("search index prepared")
	return nil
}

// loadScores reads the score document of a vault. Corrupt documents are ignored.
func (idx *Index) loadScores(ctx context.Context, vaultID string) (map[string]DomainScores, error) {
	raw, err := idx.store.GetValue(ctx, ScoreKeyPrefix+vaultID)
	if errors.Is(err, storage.ErrNotFound) || raw == "" {
		return map[string]DomainScores{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("search: failed to load scores: %w", err)
	}
	scores := map[string]DomainScores{}
	if err := json.Unmarshal([]byte(raw), &scores); err != nil {
		idx.logger.Warn().Err(err).Str("vault_id", vaultID).Msg("ignoring corrupt search scores")
		return map[string]DomainScores{}, nil
	}
	return scores, nil
}

// IncrementScore records that entryID was chosen for the domain of url.
func (idx *Index) IncrementScore(ctx context.Context, vaultID, entryID, url string) error {
	domain := ExtractDomain(url)
	if domain == "" {
		return nil
	}
	scores, err := idx.loadScores(ctx, vaultID)
	if err != nil {
		return err
	}
	if scores[entryID] == nil {
		scores[entryID] = DomainScores{}
	}
	scores[entryID][domain]++

	raw, err := json.Marshal(scores)
	if err != nil {
		return fmt.Errorf("search: failed to encode scores: %w", err)
	}
	if err := idx.store.SetValue(ctx, ScoreKeyPrefix+vaultID, string(raw)); err != nil {
		return fmt.Errorf("search: failed to save scores: %w", err)
	}
	return nil
}

// Results returns the results of the last search.
func (idx *Index) Results() []Result {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return append([]Result(nil), idx.results...)
}

// SearchByTerm runs a fuzzy search. "#tag" tokens restrict the candidates to
// entries carrying every given tag. With tags only, the restricted set is
// returned in index order.
func (idx *Index) SearchByTerm(term string) ([]Result, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if !idx.prepared {
		return nil, ErrNotPrepared
	}

	tags, text := ExtractTags(term)
	candidates := idx.entries
	if len(tags) > 0 {
		candidates = nil
		for _, e := range idx.entries {
			if hasAllTags(e.Tags, tags) {
				candidates = append(candidates, e)
			}
		}
		if text == "" {
			idx.results = toResults(candidates)
			return append([]Result(nil), idx.results...), nil
		}
	}

	idx.results = rank(candidates, text, idx.threshold)
	return append([]Result(nil), idx.results...), nil
}

// SearchByURL ranks entries holding a URL on a related domain.
// Entries with higher usage scores come first, then closer URLs.
func (idx *Index) SearchByURL(url string) []Result {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	incoming := ExtractDomain(url)
	if incoming == "" {
		idx.results = []Result{}
		return []Result{}
	}

	dmp := diffmatchpatch.New()
	type match struct {
		entry       indexedEntry
		distance    int
		domainScore int
	}
	var matches []match
	for _, e := range idx.entries {
		best, bestURL := -1, ""
		for _, candidate := range e.URLs {
			d := ExtractDomain(candidate)
			if d == "" || !DomainsRelated(d, incoming) {
				continue
			}
			dist := dmp.DiffLevenshtein(dmp.DiffMain(candidate, url, false))
			if best == -1 || dist < best {
				best, bestURL = dist, candidate
			}
		}
		if best == -1 {
			continue
		}
		matches = append(matches, match{
			entry:       e,
			distance:    best,
			domainScore: max(e.domainScores[incoming], e.domainScores[ExtractDomain(bestURL)]),
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].domainScore != matches[j].domainScore {
			return matches[i].domainScore > matches[j].domainScore
		}
		return matches[i].distance < matches[j].distance
	})

	idx.results = make([]Result, 0, len(matches))
	for _, m := range matches {
		idx.results = append(idx.results, m.entry.Result)
	}
	return append([]Result(nil), idx.results...)
}

// ExtractDomain returns the host part of a URL-like string, or "".
func ExtractDomain(s string) string {
	m := domainRegex.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return ""
	}
	return m[3]
}

// DomainsRelated reports whether one domain is a suffix of the other.
func DomainsRelated(a, b string) bool {
	if len(a) < len(b) {
		a, b = b, a
	}
	return strings.HasSuffix(a, b)
}

func hasAllTags(have, want []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, t := range have {
		set[t] = struct{}{}
	}
	for _, t := range want {
		if _, ok := set[t]; !ok {
			return false
		}
	}
	return true
}

func toResults(entries []indexedEntry) []Result {
	out := make([]Result, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Result)
	}
	return out
}
