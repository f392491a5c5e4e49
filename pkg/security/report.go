package security

import (
	"fmt"
	"time"

	"github.com/forest6511/vaultsync/pkg/crypto"
	"github.com/forest6511/vaultsync/pkg/vault"
)

// DefaultMaxAge is the password age after which a stale issue is raised.
const DefaultMaxAge = 365 * 24 * time.Hour

// Report is the security assessment of a vault.
type Report struct {
	// Overall is the sum of the components (0-100).
	Overall     int             `json:"overall"`
	Components  ScoreComponents `json:"components"`
	Issues      []SecurityIssue `json:"issues"`
	Suggestions []string        `json:"suggestions"`
	// Limited is set when issues were dropped by the limit.
	Limited bool `json:"limited"`
}

// ScoreComponents contribute up to 25 points each.
type ScoreComponents struct {
	StrengthScore   int `json:"strength"`
	UniquenessScore int `json:"uniqueness"`
	FreshnessScore  int `json:"freshness"`
	CoverageScore   int `json:"coverage"`
}

// IssueType identifies the type of security issue.
type IssueType string

const (
	IssueWeakPassword      IssueType = "weak"
	IssueDuplicatePassword IssueType = "duplicate"
	IssueStalePassword     IssueType = "stale"
	IssueMissingPassword   IssueType = "missing_password"
)

// Severity indicates the urgency of a security issue.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// SecurityIssue is a detected problem. Entry IDs are only filled in when
// the Calculator was created WithEntryIDs.
type SecurityIssue struct {
	Type        IssueType `json:"type"`
	Severity    Severity  `json:"severity"`
	EntryID     string    `json:"entry_id,omitempty"`
	EntryIDs    []string  `json:"entry_ids,omitempty"`
	Property    string    `json:"property,omitempty"`
	Description string    `json:"description"`
	Suggestion  string    `json:"suggestion,omitempty"`
}

// Calculator computes security reports for a vault.
type Calculator struct {
	vault      *vault.Vault
	hmacKey    []byte
	includeIDs bool
	limit      int
	maxAge     time.Duration
	clock      func() time.Time
}

// Option configures a Calculator.
type Option func(*Calculator)

// WithEntryIDs includes entry IDs and property names in issues.
func WithEntryIDs(include bool) Option {
	return func(c *Calculator) { c.includeIDs = include }
}

// WithLimit caps the weak and the duplicate issues to n each. Zero means unlimited.
func WithLimit(n int) Option {
	return func(c *Calculator) { c.limit = n }
}

// WithMaxAge sets the age after which a password is reported as stale.
func WithMaxAge(d time.Duration) Option {
	return func(c *Calculator) {
		if d > 0 {
			c.maxAge = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(c *Calculator) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// NewCalculator creates a Calculator with a fresh session key.
func NewCalculator(v *vault.Vault, opts ...Option) (*Calculator, error) {
	key, err := crypto.RandomBytes(32)
	if err != nil {
		return nil, fmt.Errorf("security: failed to generate session key: %w", err)
	}
	c := &Calculator{
		vault:   v,
		hmacKey: key,
		maxAge:  DefaultMaxAge,
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Report computes the full assessment.
func (c *Calculator) Report() *Report {
	secrets := collectSecrets(c.vault)

	strength, weak := c.strengthScore(secrets)
	uniqueness, dups := c.uniquenessScore(secrets)
	freshness, stale := c.freshnessScore(secrets)
	coverage, missing := c.coverageScore()

	issues := make([]SecurityIssue, 0, len(weak)+len(dups)+len(stale)+len(missing))
	issues = append(issues, weak...)
	issues = append(issues, dups...)
	issues = append(issues, stale...)
	issues = append(issues, missing...)

	limited := false
	if c.limit > 0 {
		issues, limited = c.applyLimit(issues)
	}

	return &Report{
		Overall: strength + uniqueness + freshness + coverage,
		Components: ScoreComponents{
			StrengthScore:   strength,
			UniquenessScore: uniqueness,
			FreshnessScore:  freshness,
			CoverageScore:   coverage,
		},
		Issues:      issues,
		Suggestions: suggestions(issues),
		Limited:     limited,
	}
}

func (c *Calculator) entryIssue(issue SecurityIssue, f secretField) SecurityIssue {
	if c.includeIDs {
		issue.EntryID = f.entryID
		issue.Property = f.property
	}
	return issue
}

// FindWeakPasswords returns an issue per weak secret property.
func (c *Calculator) FindWeakPasswords() []SecurityIssue {
	_, issues := c.strengthScore(collectSecrets(c.vault))
	return issues
}

func (c *Calculator) strengthScore(secrets []secretField) (int, []SecurityIssue) {
	if len(secrets) == 0 {
		return 25, nil
	}
	var issues []SecurityIssue
	total := 0
	for _, f := range secrets {
		s := CalculateStrength(f.value, f.kind)
		total += s.Points()
		if s == PasswordWeak {
			suggestion := "Use a longer password (14+ characters recommended)"
			if f.kind == KindToken {
				suggestion = "Use a longer token (32+ characters recommended)"
			}
			issues = append(issues, c.entryIssue(SecurityIssue{
				Type:        IssueWeakPassword,
				Severity:    SeverityWarning,
				Description: fmt.Sprintf("Password has insufficient strength (%s)", formatLength(len([]rune(f.value)))),
				Suggestion:  suggestion,
			}, f))
		}
	}
	return min(total/len(secrets), 25), issues
}

func (c *Calculator) uniquenessScore(secrets []secretField) (int, []SecurityIssue) {
	if len(secrets) == 0 {
		return 25, nil
	}
	unique := make(map[string]struct{}, len(secrets))
	for _, f := range secrets {
		unique[c.hash(f.value)] = struct{}{}
	}
	var issues []SecurityIssue
	for _, dup := range c.FindDuplicates() {
		issues = append(issues, SecurityIssue{
			Type:        IssueDuplicatePassword,
			Severity:    SeverityWarning,
			EntryIDs:    dup.EntryIDs,
			Description: fmt.Sprintf("%d entries share the same password", dup.Count),
			Suggestion:  "Use unique passwords for each entry",
		})
	}
	return len(unique) * 25 / len(secrets), issues
}

func (c *Calculator) freshnessScore(secrets []secretField) (int, []SecurityIssue) {
	if len(secrets) == 0 {
		return 25, nil
	}
	cutoff := c.clock().Add(-c.maxAge).UnixMilli()
	var issues []SecurityIssue
	fresh := 0
	for _, f := range secrets {
		if f.updated >= cutoff {
			fresh++
			continue
		}
		days := (c.clock().UnixMilli() - f.updated) / int64(24*time.Hour/time.Millisecond)
		issues = append(issues, c.entryIssue(SecurityIssue{
			Type:        IssueStalePassword,
			Severity:    SeverityInfo,
			Description: fmt.Sprintf("Password unchanged for %d days", days),
			Suggestion:  "Rotate passwords that have not changed in over a year",
		}, f))
	}
	return fresh * 25 / len(secrets), issues
}

// coverageScore rates how many login and website entries carry a password.
func (c *Calculator) coverageScore() (int, []SecurityIssue) {
	var issues []SecurityIssue
	total, covered := 0, 0
	for _, e := range c.vault.Entries() {
		if c.vault.IsInTrash(e.ID()) {
			continue
		}
		if t := e.Type(); t != vault.EntryTypeLogin && t != vault.EntryTypeWebsite {
			continue
		}
		total++
		if pw, ok := e.Property(vault.PropertyPassword); ok && normalizeValue(pw) != "" {
			covered++
			continue
		}
		issue := SecurityIssue{
			Type:        IssueMissingPassword,
			Severity:    SeverityInfo,
			Description: "Login entry has no password",
		}
		if c.includeIDs {
			issue.EntryID = e.ID()
			issue.Property = vault.PropertyPassword
		}
		issues = append(issues, issue)
	}
	if total == 0 {
		return 25, nil
	}
	return covered * 25 / total, issues
}

func (c *Calculator) applyLimit(issues []SecurityIssue) ([]SecurityIssue, bool) {
	limited := false
	counts := make(map[IssueType]int)
	out := make([]SecurityIssue, 0, len(issues))
	for _, issue := range issues {
		if issue.Type == IssueWeakPassword || issue.Type == IssueDuplicatePassword {
			if counts[issue.Type] >= c.limit {
				limited = true
				continue
			}
			counts[issue.Type]++
		}
		out = append(out, issue)
	}
	return out, limited
}

func suggestions(issues []SecurityIssue) []string {
	seen := make(map[IssueType]bool)
	for _, issue := range issues {
		seen[issue.Type] = true
	}
	out := []string{}
	if seen[IssueWeakPassword] {
		out = append(out, "Update weak passwords with stronger alternatives (14+ characters)")
	}
	if seen[IssueDuplicatePassword] {
		out = append(out, "Replace duplicate passwords with unique values")
	}
	if seen[IssueStalePassword] {
		out = append(out, "Rotate old passwords")
	}
	if seen[IssueMissingPassword] {
		out = append(out, "Add passwords to login entries or change their type")
	}
	return out
}

func formatLength(n int) string {
	if n == 1 {
		return "1 character"
	}
	return fmt.Sprintf("%d characters", n)
}
