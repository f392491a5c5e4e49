package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/forest6511/vaultsync/pkg/security"
	"github.com/forest6511/vaultsync/pkg/vault"
)

// Security command flags
var (
	securityVerbose bool
	securityJSON    bool
	securityDays    int
	securityLimit   int
)

var securityCmd = &cobra.Command{
	Use:   "security",
	Short: "Analyze vault security health",
	Long: `Analyze the security health of your vault and get recommendations.

The security score is calculated from:
  - Password Strength (0-25): Average strength of secret properties
  - Uniqueness (0-25): Percentage of unique secrets
  - Freshness (0-25): Percentage of secrets changed within --days
  - Coverage (0-25): Login entries that carry a password

Example:
  vaultsync security              # Show security score and top issues
  vaultsync security --suggestions  # Include suggestions
  vaultsync security --json       # Output in JSON format`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := ensureUnlocked(cmd)
		if err != nil {
			return err
		}
		calc, err := newSecurityCalculator(v)
		if err != nil {
			return err
		}
		report := calc.Report()
		if securityJSON {
			return writeJSON(cmd.OutOrStdout(), report)
		}
		printSecurityReport(cmd.OutOrStdout(), v, report, securityVerbose)
		return nil
	},
}

var securityDuplicatesCmd = &cobra.Command{
	Use:   "duplicates",
	Short: "List secrets shared by several entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := ensureUnlocked(cmd)
		if err != nil {
			return err
		}
		calc, err := newSecurityCalculator(v)
		if err != nil {
			return err
		}
		groups := calc.FindDuplicates()

		out := cmd.OutOrStdout()
		if securityJSON {
			return writeJSON(out, groups)
		}
		if len(groups) == 0 {
			fmt.Fprintln(out, "No duplicate passwords found!")
			return nil
		}
		fmt.Fprintf(out, "Duplicate Passwords (%d groups found)\n\n", len(groups))
		for i, g := range groups {
			fmt.Fprintf(out, "%d. %d properties share the same value:\n", i+1, g.Count)
			for j, id := range g.EntryIDs {
				fmt.Fprintf(out, "   - %s / %s\n", describeEntry(v, id), g.Properties[j])
			}
			fmt.Fprintln(out)
		}
		return nil
	},
}

var securityWeakCmd = &cobra.Command{
	Use:   "weak",
	Short: "List weak passwords",
	Long: `Show secret properties that are too short:
  - Passwords: Less than 8 characters
  - Tokens and API keys: Less than 16 characters`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := ensureUnlocked(cmd)
		if err != nil {
			return err
		}
		calc, err := newSecurityCalculator(v)
		if err != nil {
			return err
		}
		issues := calc.FindWeakPasswords()

		out := cmd.OutOrStdout()
		if securityJSON {
			return writeJSON(out, issues)
		}
		if len(issues) == 0 {
			fmt.Fprintln(out, "No weak passwords found!")
			return nil
		}
		fmt.Fprintf(out, "Weak Passwords (%d found)\n\n", len(issues))
		for i, issue := range issues {
			fmt.Fprintf(out, "%d. %s / %s\n", i+1, describeEntry(v, issue.EntryID), issue.Property)
			fmt.Fprintf(out, "   %s\n\n", issue.Description)
		}
		return nil
	},
}

func newSecurityCalculator(v *vault.Vault) (*security.Calculator, error) {
	return security.NewCalculator(v,
		security.WithEntryIDs(true),
		security.WithLimit(securityLimit),
		security.WithMaxAge(time.Duration(securityDays)*24*time.Hour),
	)
}

func describeEntry(v *vault.Vault, id string) string {
	e := v.FindEntryByID(id)
	if e == nil {
		return id
	}
	return fmt.Sprintf("%s (%s)", entryTitle(e), groupPath(v, e.GroupID()))
}

func printSecurityReport(out io.Writer, v *vault.Vault, report *security.Report, verbose bool) {
	var rating string
	switch {
	case report.Overall >= 90:
		rating = "Excellent"
	case report.Overall >= 70:
		rating = "Good"
	case report.Overall >= 50:
		rating = "Fair"
	default:
		rating = "Needs Attention"
	}
	fmt.Fprintf(out, "Security Score: %d/100 (%s)\n\n", report.Overall, rating)

	c := report.Components
	fmt.Fprintln(out, "Components:")
	fmt.Fprintf(out, "  Password Strength: %2d/25 %s\n", c.StrengthScore, progressBar(c.StrengthScore, 25))
	fmt.Fprintf(out, "  Uniqueness:        %2d/25 %s\n", c.UniquenessScore, progressBar(c.UniquenessScore, 25))
	fmt.Fprintf(out, "  Freshness:         %2d/25 %s\n", c.FreshnessScore, progressBar(c.FreshnessScore, 25))
	fmt.Fprintf(out, "  Coverage:          %2d/25 %s\n", c.CoverageScore, progressBar(c.CoverageScore, 25))
	fmt.Fprintln(out)

	if len(report.Issues) > 0 {
		fmt.Fprintf(out, "Issues (%d):\n", len(report.Issues))
		for i, issue := range report.Issues {
			subject := ""
			switch {
			case issue.EntryID != "":
				subject = " " + describeEntry(v, issue.EntryID)
			case len(issue.EntryIDs) > 0:
				names := make([]string, 0, len(issue.EntryIDs))
				for _, id := range issue.EntryIDs {
					names = append(names, describeEntry(v, id))
				}
				subject = " " + strings.Join(names, ", ")
			}
			fmt.Fprintf(out, "  %d. [%s]%s: %s\n", i+1, strings.ToUpper(string(issue.Type)), subject, issue.Description)
		}
		fmt.Fprintln(out)
	}

	if verbose && len(report.Suggestions) > 0 {
		fmt.Fprintln(out, "Suggestions:")
		for _, s := range report.Suggestions {
			fmt.Fprintf(out, "  - %s\n", s)
		}
		fmt.Fprintln(out)
	}
	if report.Limited {
		fmt.Fprintf(out, "Showing at most %d weak and %d duplicate issues (use --limit 0 for all).\n", securityLimit, securityLimit)
	}
}

// progressBar renders value out of maxVal as a fixed-width bar.
func progressBar(value, maxVal int) string {
	const width = 20
	filled := value * width / maxVal
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}

func init() {
	rootCmd.AddCommand(securityCmd)
	securityCmd.AddCommand(securityDuplicatesCmd, securityWeakCmd)

	securityCmd.Flags().BoolVar(&securityVerbose, "suggestions", false, "show suggestions")
	securityCmd.PersistentFlags().BoolVar(&securityJSON, "json", false, "output in JSON format")
	securityCmd.PersistentFlags().IntVar(&securityDays, "days", int(security.DefaultMaxAge/(24*time.Hour)), "age in days after which a password is stale")
	securityCmd.PersistentFlags().IntVar(&securityLimit, "limit", 10, "maximum weak and duplicate issues to show (0 for all)")
}
