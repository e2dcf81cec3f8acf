package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"research-backend/internal/tags"
)

var (
	tagsCategory string
	tagsFormat   string
)

var tagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "Inspect the tag vocabulary",
}

var tagsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tags, optionally for one category",
	Args:  cobra.NoArgs,
	RunE:  runTagsList,
}

func init() {
	tagsListCmd.Flags().StringVar(&tagsCategory, "category", "", "Tag category (domain, concept, methodology, innovation-marker, application)")
	tagsListCmd.Flags().StringVar(&tagsFormat, "format", "human", "Output format (json, human)")
	tagsCmd.AddCommand(tagsListCmd)
	rootCmd.AddCommand(tagsCmd)
}

func runTagsList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	app, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	list, err := app.TagsService.List(ctx, tagsCategory)
	if err != nil {
		return err
	}
	return printTags(cmd, list)
}

func printTags(cmd *cobra.Command, list []tags.Tag) error {
	if tagsFormat == "json" {
		out := make([]tags.TagResponse, 0, len(list))
		for _, t := range list {
			out = append(out, tags.ToResponse(t))
		}
		return writeJSON(cmd.OutOrStdout(), out)
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCATEGORY\tNAME")
	for _, t := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\n", t.ID, t.Category, t.Name)
	}
	return w.Flush()
}
