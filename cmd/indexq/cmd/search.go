package cmd

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/indexq/internal/daemon"
	"github.com/Aman-CERP/indexq/internal/output"
)

func newSearchCmd() *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject()
			if err != nil {
				return err
			}

			results, err := p.client().Search(cmd.Context(), daemon.SearchParams{
				Query: strings.Join(args, " "),
				Limit: limit,
			})
			if err != nil {
				return err
			}

			if jsonOutput {
				if results == nil {
					results = []daemon.SearchResult{}
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}

			out := output.New(cmd.OutOrStdout())
			if len(results) == 0 {
				out.Status("", "No results")
				return nil
			}
			for i, r := range results {
				out.Hit(i+1, r.Ref, r.Title, r.Score)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	return cmd
}
