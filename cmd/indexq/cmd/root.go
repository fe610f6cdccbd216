// Package cmd provides the CLI commands for indexq.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/indexq/internal/config"
	"github.com/Aman-CERP/indexq/internal/daemon"
	ixerrors "github.com/Aman-CERP/indexq/internal/errors"
	"github.com/Aman-CERP/indexq/internal/logging"
	"github.com/Aman-CERP/indexq/pkg/version"
)

// Persistent flags
var (
	debugMode  bool
	configPath string
	projectDir string

	loggingCleanup func()
)

// NewRootCmd creates the root command for the indexq CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "indexq",
		Short: "Priority indexing queue for a wiki search index",
		Long: `indexq keeps a full-text search index in sync with a content repository.

'indexq run' starts the service: it watches the repository, queues a job for
every change and indexes jobs in priority order. The other commands talk to
the running service over its control socket.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("indexq version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Use this config file instead of the user and project files")
	cmd.PersistentFlags().StringVarP(&projectDir, "dir", "C", ".", "Project directory")

	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newStopCmd())
	cmd.AddCommand(newQueueCmd())
	cmd.AddCommand(newReindexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startLogging sets up CLI logging. `run` replaces it with the service log.
func startLogging(_ *cobra.Command, _ []string) error {
	cfg := logging.CLIConfig()
	if debugMode {
		cfg.Level = "debug"
	}
	cleanup, err := logging.SetupDefault(cfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	loggingCleanup = cleanup
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command and prints failures.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		fmt.Fprint(os.Stderr, ixerrors.FormatForCLI(err))
		slog.Debug("command_failed", ixerrors.LogAttrs(err)...)
	}
	return err
}

// project is the resolved configuration of the project a command runs in.
type project struct {
	root    string
	cfg     *config.Config
	dataDir string
	daemon  daemon.Config
}

func loadProject() (*project, error) {
	root, err := config.FindProjectRoot(projectDir)
	if err != nil {
		return nil, err
	}

	var cfg *config.Config
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load(root)
	}
	if err != nil {
		return nil, err
	}

	dataDir := config.Resolve(root, cfg.Index.DataDir)
	dc := daemon.DefaultConfig(dataDir)
	dc.SocketPath = config.Resolve(root, cfg.Daemon.Socket)

	return &project{
		root:    root,
		cfg:     cfg,
		dataDir: dataDir,
		daemon:  dc,
	}, nil
}

func (p *project) client() *daemon.Client {
	return daemon.NewClient(p.daemon)
}
