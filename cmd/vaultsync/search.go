package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forest6511/vaultsync/pkg/search"
	"github.com/forest6511/vaultsync/pkg/vault"
)

// Search command flags
var (
	searchJSON  bool
	searchLimit int
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search entries",
}

var searchTermCmd = &cobra.Command{
	Use:   "term <words>...",
	Short: "Fuzzy search by title, username and URL",
	Long: `Fuzzy search entries by title, username and URL.
Words starting with # filter by tag.

Examples:
  vaultsync search term github
  vaultsync search term "#work" mail`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, index, err := openIndex(cmd)
		if err != nil {
			return err
		}
		results, err := index.SearchByTerm(strings.Join(args, " "))
		if err != nil {
			return err
		}
		return printResults(cmd, v, results)
	},
}

var searchURLCmd = &cobra.Command{
	Use:   "url <url>",
	Short: "Find entries for a website",
	Long: `Find entries whose URLs belong to the domain of <url>.
Entries recorded with 'search record' rank first.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, index, err := openIndex(cmd)
		if err != nil {
			return err
		}
		return printResults(cmd, v, index.SearchByURL(args[0]))
	},
}

var searchRecordCmd = &cobra.Command{
	Use:   "record <entry> <url>",
	Short: "Record that an entry was used for a website",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, index, err := openIndex(cmd)
		if err != nil {
			return err
		}
		e, err := resolveEntry(v, args[0])
		if err != nil {
			return err
		}
		domain := search.ExtractDomain(args[1])
		if domain == "" {
			return fmt.Errorf("invalid url: %s", args[1])
		}
		if err := index.IncrementScore(cmd.Context(), v.ID(), e.ID(), args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Recorded '%s' for %s\n", entryTitle(e), domain)
		return nil
	},
}

// openIndex unlocks the vault and prepares an index that keeps scores in the vault store.
func openIndex(cmd *cobra.Command) (*vault.Vault, *search.Index, error) {
	v, err := ensureUnlocked(cmd)
	if err != nil {
		return nil, nil, err
	}
	index := search.NewIndex([]*vault.Vault{v}, app.store,
		search.WithThreshold(app.cfg.SearchThreshold),
		search.WithLogger(app.logger),
	)
	if err := index.Prepare(cmd.Context()); err != nil {
		return nil, nil, err
	}
	return v, index, nil
}

func printResults(cmd *cobra.Command, v *vault.Vault, results []search.Result) error {
	if searchLimit > 0 && len(results) > searchLimit {
		results = results[:searchLimit]
	}
	listed := make([]entrySummary, 0, len(results))
	for _, r := range results {
		listed = append(listed, entrySummary{
			ID:       r.ID,
			Title:    r.Properties[vault.PropertyTitle],
			Username: r.Properties[vault.PropertyUsername],
			Group:    groupPath(v, r.GroupID),
			Tags:     r.Tags,
		})
	}

	out := cmd.OutOrStdout()
	if searchJSON {
		return writeJSON(out, listed)
	}
	if len(listed) == 0 {
		fmt.Fprintln(out, "No matches")
		return nil
	}
	for i, s := range listed {
		line := fmt.Sprintf("%d. %s", i+1, s.Title)
		if s.Username != "" {
			line += " <" + s.Username + ">"
		}
		fmt.Fprintf(out, "%s  (%s)  [%s]\n", line, s.Group, s.ID)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.AddCommand(searchTermCmd, searchURLCmd, searchRecordCmd)

	searchCmd.PersistentFlags().BoolVar(&searchJSON, "json", false, "output in JSON format")
	searchCmd.PersistentFlags().IntVarP(&searchLimit, "limit", "n", 20, "maximum number of results (0 for all)")
}
