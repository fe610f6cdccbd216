package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/indexq/internal/config"
	"github.com/Aman-CERP/indexq/internal/content"
	"github.com/Aman-CERP/indexq/internal/daemon"
	ixerrors "github.com/Aman-CERP/indexq/internal/errors"
	"github.com/Aman-CERP/indexq/internal/index"
	"github.com/Aman-CERP/indexq/internal/indexer"
	"github.com/Aman-CERP/indexq/internal/lifecycle"
	"github.com/Aman-CERP/indexq/internal/logging"
	"github.com/Aman-CERP/indexq/internal/metrics"
	"github.com/Aman-CERP/indexq/internal/output"
	"github.com/Aman-CERP/indexq/internal/profiling"
	"github.com/Aman-CERP/indexq/internal/queue"
	"github.com/Aman-CERP/indexq/internal/store"
	"github.com/Aman-CERP/indexq/internal/watcher"
)

func newRunCmd() *cobra.Command {
	var (
		noWatch bool
		profile profiling.Options
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the indexing service in the foreground",
		Long: `Run the indexing service until interrupted.

The service owns the data directory: the search index, the index state and
the control socket. It watches the content repository unless --no-watch is
given or watch.enabled is false.

On SIGINT or SIGTERM it stops accepting file changes, waits up to
index.drain_timeout for the queue to empty, then exits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := loadProject()
			if err != nil {
				return err
			}
			if noWatch {
				disabled := false
				p.cfg.Watch.Enabled = &disabled
			}

			logCfg := logging.DefaultConfig()
			logCfg.Level = p.cfg.Logging.Level
			if debugMode {
				logCfg.Level = "debug"
			}
			logger, cleanup, err := logging.Setup(logCfg)
			if err != nil {
				return fmt.Errorf("failed to setup logging: %w", err)
			}
			defer cleanup()
			slog.SetDefault(logger)

			if profile.Enabled() {
				session, err := profiling.Start(profile)
				if err != nil {
					return err
				}
				defer func() {
					if err := session.Stop(); err != nil {
						logger.Warn("profile_write_failed", slog.String("error", err.Error()))
					}
				}()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runService(ctx, p, output.New(cmd.OutOrStdout()), logger)
		},
	}

	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "Do not watch the content repository")
	cmd.Flags().StringVar(&profile.CPU, "profile-cpu", "", "Write a CPU profile to this file")
	cmd.Flags().StringVar(&profile.Heap, "profile-mem", "", "Write a heap profile to this file on exit")
	cmd.Flags().StringVar(&profile.Trace, "profile-trace", "", "Write an execution trace to this file")
	return cmd
}

// service is everything `run` opens, in opening order.
type service struct {
	lock    *lifecycle.DataDirLock
	pidFile *daemon.PIDFile
	engine  store.Engine
	state   *store.StateStore
	repo    *content.Repository
	queue   *queue.Queue
	worker  *indexer.Worker
	svc     *index.Service
	metrics *metrics.Metrics
	server  *daemon.Server
}

// openService takes the data directory lock and opens every component. On
// error, whatever was opened is closed again.
func openService(p *project, logger *slog.Logger) (s *service, err error) {
	s = &service{}
	defer func() {
		if err != nil {
			s.close(logger)
			s = nil
		}
	}()

	s.lock = lifecycle.NewDataDirLock(p.dataDir)
	if err := s.lock.Acquire(); err != nil {
		return s, err
	}

	if err := p.daemon.EnsureDir(); err != nil {
		return s, err
	}
	s.pidFile = daemon.NewPIDFile(p.daemon.PIDPath)
	if removed, err := s.pidFile.RemoveStale(); err != nil {
		return s, err
	} else if removed {
		logger.Info("stale_pid_file_removed", slog.String("path", s.pidFile.Path()))
	}
	if err := s.pidFile.Write(); err != nil {
		return s, err
	}

	if s.engine, err = store.NewEngine(p.dataDir, store.Backend(p.cfg.Index.Backend)); err != nil {
		return s, err
	}
	if s.state, err = store.OpenState(p.dataDir); err != nil {
		return s, err
	}
	var repoOpts []content.Option
	if langs := p.cfg.Content.Languages; len(langs) > 0 {
		repoOpts = append(repoOpts, content.WithLanguages(langs...))
	}
	if s.repo, err = content.NewRepository(config.Resolve(p.root, p.cfg.Content.Root), p.cfg.Content.CacheSize, repoOpts...); err != nil {
		return s, err
	}
	if s.queue, err = queue.New(p.cfg.Queue.Capacity, p.cfg.Queue.MaxWait, queue.WithLogger(logger)); err != nil {
		return s, err
	}

	s.metrics = metrics.New(s.queue, s.state)

	retry := ixerrors.DefaultRetryConfig()
	retry.MaxRetries = p.cfg.Index.RetryAttempts
	s.worker = indexer.New(s.queue, s.repo, s.engine, s.state,
		indexer.WithLogger(logger),
		indexer.WithRetry(retry),
		indexer.WithCircuitBreaker(ixerrors.NewCircuitBreaker("engine",
			ixerrors.WithStateChange(func(name string, from, to ixerrors.State) {
				logger.Warn("circuit_breaker_state",
					slog.String("breaker", name),
					slog.String("from", from.String()),
					slog.String("to", to.String()))
			}))),
		indexer.WithObserver(s.metrics.Observe),
	)

	s.svc = index.NewService(index.ServiceConfig{
		Queue:    s.queue,
		Engine:   s.engine,
		Wikis:    s.repo,
		Progress: s.worker.Progress(),
		Logger:   logger,
	})

	s.server, err = daemon.NewServer(p.daemon.SocketPath, daemon.NewServiceHandler(s.svc),
		daemon.WithServerLogger(logger),
		daemon.WithRequestTimeout(p.daemon.Timeout))
	return s, err
}

// close releases what openService opened, in reverse order.
func (s *service) close(logger *slog.Logger) {
	if s.state != nil {
		if err := s.state.Close(); err != nil {
			logger.Warn("state_close_failed", slog.String("error", err.Error()))
		}
	}
	if s.engine != nil {
		if err := s.engine.Close(); err != nil {
			logger.Warn("engine_close_failed", slog.String("error", err.Error()))
		}
	}
	if s.pidFile != nil {
		_ = s.pidFile.Remove()
	}
	if s.lock != nil {
		_ = s.lock.Release()
	}
}

// runService serves until ctx is done, then drains the queue and shuts down.
func runService(ctx context.Context, p *project, out *output.Writer, logger *slog.Logger) error {
	s, err := openService(p, logger)
	if err != nil {
		return err
	}
	defer s.close(logger)

	// serveCtx outlives ctx so the control socket answers during the drain.
	serveCtx, stopServing := context.WithCancel(context.Background())
	defer stopServing()
	g, gctx := errgroup.WithContext(serveCtx)

	s.worker.Start(gctx)

	g.Go(func() error {
		return ignoreCanceled(s.server.ListenAndServe(gctx))
	})

	if addr := p.cfg.Daemon.MetricsAddr; addr != "" {
		g.Go(func() error {
			return s.metrics.Serve(gctx, addr, logger)
		})
	}

	watchCtx, stopWatching := context.WithCancel(gctx)
	defer stopWatching()
	if p.cfg.WatchEnabled() {
		if err := startWatching(watchCtx, g, p, s, logger); err != nil {
			stopServing()
			_ = g.Wait()
			s.worker.Stop()
			return err
		}
	}

	g.Go(func() error {
		select {
		case <-ctx.Done():
		case <-gctx.Done():
			return nil
		}
		stopWatching()
		s.drain(p.cfg.Index.DrainTimeout, logger)
		s.worker.Stop()
		stopServing()
		return nil
	})

	select {
	case <-s.server.Ready():
		out.Successf("indexq running (pid %d)", os.Getpid())
		out.KeyValue("Content", s.repo.Root())
		out.KeyValue("Backend", s.engine.Backend())
		out.KeyValue("Socket", p.daemon.SocketPath)
		if addr := p.cfg.Daemon.MetricsAddr; addr != "" {
			out.KeyValue("Metrics", "http://"+addr+"/metrics")
		}
	case <-gctx.Done():
	}

	err = g.Wait()
	s.worker.Stop()
	if err != nil {
		return err
	}
	logger.Info("service_stopped")
	return nil
}

// drain waits for the queue to empty, bounded by timeout.
func (s *service) drain(timeout time.Duration, logger *slog.Logger) {
	pending := s.queue.Size()
	logger.Info("draining", slog.Int("pending", pending), slog.Duration("timeout", timeout))
	if pending == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.svc.AwaitEmpty(ctx); err != nil {
		logger.Warn("drain_incomplete",
			slog.Int("pending", s.queue.Size()),
			slog.String("error", err.Error()))
	}
}

// startWatching runs the file watcher and the listener that turns its
// batches into jobs.
func startWatching(ctx context.Context, g *errgroup.Group, p *project, s *service, logger *slog.Logger) error {
	w, err := watcher.NewHybridWatcher(watcher.Options{
		DebounceWindow: p.cfg.Watch.Debounce,
		PollInterval:   p.cfg.Watch.PollInterval,
		Exclude:        p.cfg.Watch.Exclude,
		IgnoreDirs:     []string{p.dataDir},
	})
	if err != nil {
		return ixerrors.ConfigError("invalid watch settings", err)
	}

	listener := index.NewListener(s.queue, s.repo, p.cfg.WatchPriority(), logger)
	g.Go(func() error {
		listener.Run(ctx, w.Events())
		return nil
	})
	g.Go(func() error {
		for err := range w.Errors() {
			logger.Warn("watcher_error", slog.String("error", err.Error()))
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("watching", slog.String("root", s.repo.Root()), slog.String("mode", w.WatcherType()))
		err := w.Start(ctx, s.repo.Root())
		_ = w.Stop()
		if err = ignoreCanceled(err); err != nil {
			// Explicit queue and reindex requests still work without it.
			logger.Error("watch_failed", slog.String("root", s.repo.Root()), slog.String("error", err.Error()))
		}
		return nil
	})
	return nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
