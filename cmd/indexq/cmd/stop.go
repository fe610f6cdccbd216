package cmd

import (
	"fmt"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/indexq/internal/daemon"
	"github.com/Aman-CERP/indexq/internal/output"
)

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running service",
		Long: `Stop the running service.

Sends SIGTERM; the service drains its queue for up to index.drain_timeout
before exiting. This command waits for that, plus a short grace period.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := loadProject()
			if err != nil {
				return err
			}
			return runStop(cmd, p, p.cfg.Index.DrainTimeout+5*time.Second)
		},
	}
}

func runStop(cmd *cobra.Command, p *project, wait time.Duration) error {
	out := output.New(cmd.OutOrStdout())
	pidFile := daemon.NewPIDFile(p.daemon.PIDPath)

	if !pidFile.IsRunning() {
		if removed, _ := pidFile.RemoveStale(); removed {
			out.Status("", "Removed stale PID file")
		}
		out.Status("", "indexq is not running")
		return nil
	}

	pid, err := pidFile.Read()
	if err != nil {
		return fmt.Errorf("failed to read PID: %w", err)
	}
	if err := pidFile.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to stop service: %w", err)
	}

	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		time.Sleep(100 * time.Millisecond)
		if !pidFile.IsRunning() {
			out.Successf("indexq stopped (was pid %d)", pid)
			return nil
		}
	}
	return fmt.Errorf("service (pid %d) did not stop within %s", pid, wait)
}
