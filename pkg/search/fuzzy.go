package search

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
	"golang.org/x/text/unicode/norm"

	"github.com/forest6511/vaultsync/pkg/vault"
)

// Penalties added to matches outside the title, so titles rank first.
const (
	usernamePenalty = 0.1
	urlPenalty      = 0.2
)

// ExtractTags splits "#tag" tokens from free text. Tags are normalised.
func ExtractTags(term string) (tags []string, text string) {
	var words []string
	for _, tok := range strings.Fields(term) {
		if len(tok) > 1 && tok[0] == '#' {
			tags = append(tags, vault.NormalizeTag(tok[1:]))
			continue
		}
		words = append(words, tok)
	}
	return tags, strings.Join(words, " ")
}

type scored struct {
	entry indexedEntry
	score float64
	norm  int
}

// rank orders entries by their best field match against text.
func rank(entries []indexedEntry, text string, threshold float64) []Result {
	pattern := normalise(text)
	if pattern == "" {
		return []Result{}
	}

	m := newMatcher(threshold)
	var hits []scored
	for _, e := range entries {
		best, ok := scored{entry: e}, false
		consider := func(field string, penalty float64) {
			s, hit := m.score(normalise(field), pattern)
			if !hit {
				return
			}
			s += penalty
			fl := utf8.RuneCountInString(field)
			if !ok || s < best.score || (s == best.score && fl < best.norm) {
				best.score, best.norm, ok = s, fl, true
			}
		}
		consider(e.Properties[vault.PropertyTitle], 0)
		consider(e.Properties[vault.PropertyUsername], usernamePenalty)
		for _, u := range e.URLs {
			consider(u, urlPenalty)
		}
		if ok {
			hits = append(hits, best)
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score < hits[j].score
		}
		return hits[i].norm < hits[j].norm
	})
	out := make([]Result, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.entry.Result)
	}
	return out
}

func normalise(s string) string {
	return norm.NFC.String(strings.ToLower(strings.TrimSpace(s)))
}

// matcher locates a pattern with Bitap and scores it by edit distance.
type matcher struct {
	dmp       *diffmatchpatch.DiffMatchPatch
	threshold float64
}

func newMatcher(threshold float64) *matcher {
	dmp := diffmatchpatch.New()
	dmp.MatchThreshold = threshold
	return &matcher{dmp: dmp, threshold: threshold}
}

// score returns the error rate of the best occurrence of pattern in field.
func (m *matcher) score(field, pattern string) (float64, bool) {
	if field == "" {
		return 0, false
	}
	if strings.Contains(field, pattern) {
		return 0, true
	}

	// Bitap works on at most MatchMaxBits characters.
	probe := pattern
	if len(probe) > m.dmp.MatchMaxBits {
		probe = truncateBytes(probe, m.dmp.MatchMaxBits)
	}
	loc := m.dmp.MatchMain(field, probe, 0)
	if loc < 0 {
		return 0, false
	}

	end := min(loc+len(pattern), len(field))
	window := field[loc:end]
	if !utf8.ValidString(window) {
		window = strings.ToValidUTF8(window, "")
	}
	dist := m.dmp.DiffLevenshtein(m.dmp.DiffMain(window, pattern, false))
	rate := float64(dist) / float64(utf8.RuneCountInString(pattern))
	if rate > m.threshold {
		return 0, false
	}
	return rate, true
}

// truncateBytes cuts s to at most n bytes on a rune boundary.
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
