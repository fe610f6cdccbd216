package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/indexq/internal/daemon"
	"github.com/Aman-CERP/indexq/internal/indexer"
	"github.com/Aman-CERP/indexq/internal/output"
	"github.com/Aman-CERP/indexq/internal/ui"
)

// pollInterval is how often `reindex --wait` samples the service.
const pollInterval = 250 * time.Millisecond

func newReindexCmd() *cobra.Command {
	var (
		priority string
		wait     bool
		plain    bool
	)

	cmd := &cobra.Command{
		Use:   "reindex [scope]",
		Short: "Rebuild the index for a scope, or for every wiki",
		Long: `Queue a rebuild in the running service.

The rebuild runs at low priority so changes made while it runs are indexed
first. With --wait the command follows the queue until it drains; leaving
early does not cancel the rebuild.`,
		Example: `  indexq reindex
  indexq reindex main:Dev --wait`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject()
			if err != nil {
				return err
			}
			var scope string
			if len(args) == 1 {
				scope = args[0]
			}
			client := p.client()

			// Counters are cumulative, so the drain is measured from here.
			var base indexer.ProgressSnapshot
			if wait {
				st, err := client.Status(cmd.Context())
				if err != nil {
					return err
				}
				base = st.Service.Worker
			}

			res, err := client.Rebuild(cmd.Context(), daemon.RebuildParams{Scope: scope, Priority: priority})
			if err != nil {
				return err
			}

			if !wait {
				output.New(cmd.OutOrStdout()).Successf("Rebuild queued: %s", strings.Join(res.Scopes, ", "))
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			title := scope
			if title == "" {
				title = "all wikis"
			}
			renderer := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
				ui.WithForcePlain(plain),
				ui.WithTitle(title)))
			if err := renderer.Start(ctx); err != nil {
				return err
			}
			defer func() { _ = renderer.Stop() }()

			renderer.UpdateProgress(ui.ProgressEvent{
				Stage:   ui.StageSubmitting,
				Message: fmt.Sprintf("Rebuild queued: %s", strings.Join(res.Scopes, ", ")),
			})
			stats, err := waitForDrain(ctx, client, renderer, base, pollInterval)
			if errors.Is(err, errStoppedWaiting) {
				return nil
			}
			if err != nil {
				if ctx.Err() != nil {
					output.New(cmd.OutOrStdout()).Status("", "Stopped waiting; the rebuild continues in the background.")
					return nil
				}
				return err
			}
			stats.Scopes = res.Scopes
			renderer.Complete(stats)
			return nil
		},
	}

	cmd.Flags().StringVarP(&priority, "priority", "p", "", "Priority of the rebuild (default low)")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Follow progress until the queue drains")
	cmd.Flags().BoolVar(&plain, "plain", false, "Plain text progress even on a terminal")
	return cmd
}

// errStoppedWaiting means the user closed the progress display.
var errStoppedWaiting = errors.New("stopped waiting")

// statusSource is the part of the client waitForDrain needs.
type statusSource interface {
	Status(ctx context.Context) (*daemon.StatusResult, error)
}

// waitForDrain polls status until the queue is empty and the worker has no
// job in hand, feeding the renderer. Counts are relative to base.
func waitForDrain(ctx context.Context, src statusSource, r ui.Renderer, base indexer.ProgressSnapshot, interval time.Duration) (ui.CompletionStats, error) {
	start := time.Now()
	lastError := base.LastError + base.LastErrorJob

	var quit <-chan struct{}
	if d, ok := r.(interface{ Done() <-chan struct{} }); ok {
		quit = d.Done()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		st, err := src.Status(ctx)
		if err != nil {
			return ui.CompletionStats{}, err
		}
		w := st.Service.Worker
		delta := func(now, then uint64) int {
			if now < then {
				return 0
			}
			return int(now - then)
		}

		if w.LastError != "" && w.LastError+w.LastErrorJob != lastError {
			lastError = w.LastError + w.LastErrorJob
			r.AddError(ui.ErrorEvent{Job: w.LastErrorJob, Err: fmt.Errorf("%s", w.LastError)})
		}

		if st.Service.Queue.Size == 0 && w.CurrentJob == "" {
			return ui.CompletionStats{
				Processed: delta(w.Processed, base.Processed),
				Indexed:   delta(w.Indexed, base.Indexed),
				Deleted:   delta(w.Deleted, base.Deleted),
				Skipped:   delta(w.Skipped, base.Skipped),
				Failed:    delta(w.Failed, base.Failed),
				Duration:  time.Since(start),
			}, nil
		}

		r.UpdateProgress(ui.ProgressEvent{
			Stage:      ui.StageDraining,
			Processed:  delta(w.Processed, base.Processed),
			Remaining:  st.Service.Queue.Size,
			Failed:     delta(w.Failed, base.Failed),
			CurrentJob: w.CurrentJob,
		})

		select {
		case <-ctx.Done():
			return ui.CompletionStats{}, ctx.Err()
		case <-quit:
			return ui.CompletionStats{}, errStoppedWaiting
		case <-ticker.C:
		}
	}
}
