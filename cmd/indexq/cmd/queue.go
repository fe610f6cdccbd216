package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/indexq/internal/daemon"
	"github.com/Aman-CERP/indexq/internal/output"
)

func newQueueCmd() *cobra.Command {
	var (
		priority string
		remove   bool
	)

	cmd := &cobra.Command{
		Use:   "queue <ref>...",
		Short: "Queue documents for indexing",
		Long: `Queue index jobs in the running service.

A ref names a wiki, space, document, translation or attachment:

  main                     every document of wiki main
  main:Dev                 space Dev
  main:Dev.Install         document Install
  main:Dev.Install@de      its German translation
  main:Dev.Install/a.png   an attachment

Scope refs are expanded into one job per document by the service.
The command blocks while the queue is full.`,
		Example: `  indexq queue main:Dev.Install
  indexq queue --priority high main:Dev.Install main:Dev.Upgrade
  indexq queue --delete main:Old`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject()
			if err != nil {
				return err
			}

			params := daemon.QueueParams{Refs: args, Priority: priority}
			client := p.client()
			var res *daemon.QueueResult
			if remove {
				res, err = client.QueueDelete(cmd.Context(), params)
			} else {
				res, err = client.Queue(cmd.Context(), params)
			}
			if err != nil {
				return err
			}

			verb := "index"
			if remove {
				verb = "delete"
			}
			output.New(cmd.OutOrStdout()).Successf("Queued %d %s job(s)", len(res.Queued), verb)
			return nil
		},
	}

	cmd.Flags().StringVarP(&priority, "priority", "p", "", "Priority: highest, high, default, low, lowest or a number")
	cmd.Flags().BoolVar(&remove, "delete", false, "Remove the refs from the index instead")
	return cmd
}
