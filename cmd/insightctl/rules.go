package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"research-backend/internal/classify"
	"research-backend/internal/textprep"
)

var (
	rulesPath     string
	rulesTitle    string
	rulesAbstract string
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect classification rule tables",
}

var rulesCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Compile a rule table and optionally explain a sample",
	Long: "Compile the rule table at --path (or the embedded table) and print pattern counts. " +
		"With --title or --abstract, score the sample and print every pattern hit.",
	Args: cobra.NoArgs,
	RunE: runRulesCheck,
}

func init() {
	rulesCheckCmd.Flags().StringVar(&rulesPath, "path", "", "Rule table YAML (defaults to the embedded table)")
	rulesCheckCmd.Flags().StringVar(&rulesTitle, "title", "", "Sample title to explain")
	rulesCheckCmd.Flags().StringVar(&rulesAbstract, "abstract", "", "Sample abstract to explain")
	rulesCmd.AddCommand(rulesCheckCmd)
	rootCmd.AddCommand(rulesCmd)
}

func runRulesCheck(cmd *cobra.Command, args []string) error {
	table, err := loadRules(rulesPath)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "rules v%s pattern_cap=%d cross_tier_bonus=%.1f\n", table.Version, table.PatternCap, table.CrossTierBonus)
	for _, dim := range table.Dimensions() {
		fmt.Fprintf(out, "%s (default %s)\n", dim.Name, dim.Default)
		for _, cat := range dim.Categories {
			fmt.Fprintf(out, "  %-22s patterns=%d\n", cat.Name, cat.PatternCount())
		}
	}

	if rulesTitle == "" && rulesAbstract == "" {
		return nil
	}
	view := textprep.Prepare(textprep.Source{Title: rulesTitle, Abstract: rulesAbstract})
	exp, err := classify.NewScorer(table).Explain(view)
	if err != nil {
		return err
	}
	fmt.Fprintln(out)
	fmt.Fprint(out, exp.Summary())
	return nil
}

func loadRules(path string) (*classify.Table, error) {
	if path == "" {
		return classify.DefaultTable()
	}
	return classify.LoadTableFile(path)
}
