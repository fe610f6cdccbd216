package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/indexq/internal/daemon"
	"github.com/Aman-CERP/indexq/internal/job"
	"github.com/Aman-CERP/indexq/internal/ui"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show service and queue status",
		Long: `Show whether the service is running, the queue occupancy by priority,
blocked producers and the worker's counters.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := loadProject()
			if err != nil {
				return err
			}

			info := ui.StatusInfo{}
			client := p.client()
			if client.IsRunning() {
				res, err := client.Status(cmd.Context())
				if err != nil {
					return err
				}
				info = statusInfo(res)
			}

			r := ui.NewStatusRenderer(cmd.OutOrStdout(), ui.DetectNoColor() || !ui.IsTTY(cmd.OutOrStdout()))
			if jsonOutput {
				return r.RenderJSON(info)
			}
			return r.Render(info)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

// statusInfo flattens a status response for display.
func statusInfo(res *daemon.StatusResult) ui.StatusInfo {
	svc := res.Service
	w := svc.Worker
	return ui.StatusInfo{
		Running:          res.Running,
		PID:              res.PID,
		Uptime:           res.Uptime,
		Backend:          svc.Backend,
		Documents:        svc.Documents,
		QueueSize:        svc.Queue.Size,
		QueueCapacity:    svc.Queue.Capacity,
		Pending:          priorityCounts(svc.Queue.Pending),
		WaitingProducers: priorityCounts(svc.Queue.WaitingProducers),
		WorkerStatus:     w.Status,
		CurrentJob:       w.CurrentJob,
		Processed:        w.Processed,
		Indexed:          w.Indexed,
		Deleted:          w.Deleted,
		Skipped:          w.Skipped,
		Failed:           w.Failed,
		LastError:        w.LastError,
		LastErrorJob:     w.LastErrorJob,
	}
}

func priorityCounts(counts map[job.Priority]int) map[string]int {
	if len(counts) == 0 {
		return nil
	}
	out := make(map[string]int, len(counts))
	for p, n := range counts {
		out[p.String()] = n
	}
	return out
}
