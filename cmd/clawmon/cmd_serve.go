package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/user/clawmon/internal/config"
	"github.com/user/clawmon/internal/delivery"
	"github.com/user/clawmon/internal/digest"
	"github.com/user/clawmon/internal/feed"
	"github.com/user/clawmon/internal/gateway"
	"github.com/user/clawmon/internal/monitor"
	"github.com/user/clawmon/internal/scheduler"
	"github.com/user/clawmon/internal/state"
	"github.com/user/clawmon/internal/telegram"
	"github.com/user/clawmon/internal/webhook"
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("replay", "", "replay a JSONL capture into the tables at startup")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the clawmon daemon",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func writePIDFile(cfg *config.Config) (string, error) {
	pidPath := cfg.PIDPath()
	pid := os.Getpid()
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return pidPath, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	replayPath, _ := cmd.Flags().GetString("replay")

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	pidPath, err := writePIDFile(cfg)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	// Tables and the single writer
	store := state.NewStore(nil)
	disp := gateway.New(monitor.New(store), cfg.Feed.QueueSize)
	if p := cfg.CapturePath(); p != "" {
		disp.SetRecorder(feed.NewRecorder(p))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	disp.Start(ctx)
	defer disp.Stop()

	// Digest is optional: the tokenizer may be unavailable offline.
	dg, err := digest.New(cfg.Digest.Model, cfg.Digest.MaxTokens)
	if err != nil {
		slog.Warn("digest disabled", "error", err)
		dg = nil
	}


	// Alerts
	deliveryReg := delivery.NewRegistry()
	if cfg.Telegram.Token != "" {
		notifier, err := telegram.New(cfg.Telegram.Token)
		if err != nil {
			return fmt.Errorf("create telegram notifier: %w", err)
		}
		deliveryReg.Register(telegram.TargetPrefix, notifier.SendTo)
	} else {
		slog.Warn("telegram notifier disabled (no token)")
	}

	var watcher *delivery.Watcher
	if cfg.Telegram.AlertTarget != "" {
		watcher = delivery.NewWatcher(store.Actions, deliveryReg, delivery.WatcherConfig{
			Target: cfg.Telegram.AlertTarget,
			Digest: dg,
		})
		watcher.Start(ctx)
	}
	defer func() {
		cancel()
		if watcher != nil {
			watcher.Wait()
		}
	}()

	// Scheduler
	jobs := state.NewJobStore(cfg.JobsPath())
	sched := scheduler.New(jobs, scheduler.DispatchRunner(disp, nil, 0))
	if err := sched.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	slog.Info("clawmon started",
		"data_dir", cfg.DataDir,
		"log_level", cfg.LogLevel,
		"queue_size", cfg.Feed.QueueSize,
		"capture", cfg.CapturePath(),
		"alert_target", cfg.Telegram.AlertTarget,
		"pid_file", pidPath,
	)

	g, gctx := errgroup.WithContext(ctx)

	if replayPath != "" {
		g.Go(func() error {
			return replayFile(gctx, disp, replayPath, cfg.Feed.Strict)
		})
	}

	if cfg.HTTP.Enabled {
		httpServer := &http.Server{
			Addr:              cfg.HTTP.Listen,
			Handler:           webhook.NewServer(store, disp, dg),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			slog.Info("http server started", "listen", cfg.HTTP.Listen)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			return httpServer.Shutdown(shutdownCtx)
		})
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	for {
		select {
		case <-gctx.Done():
			// A component failed; the group error says which.
			cancel()
			return g.Wait()
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				slog.Info("received SIGHUP, restarting")
				execPath, err := os.Executable()
				if err != nil {
					slog.Error("failed to get executable path", "error", err)
					continue
				}
				// Clean up PID file before re-exec
				os.Remove(pidPath)
				if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
					slog.Error("failed to re-exec", "error", err)
					// Re-write PID file since we failed to re-exec
					if _, writeErr := writePIDFile(cfg); writeErr != nil {
						slog.Error("failed to re-write PID file", "error", writeErr)
					}
					continue
				}
			}
			// SIGINT or SIGTERM
			slog.Info("shutting down", "signal", sig)
			cancel()
			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			if watcher != nil {
				sent, failed, dropped := watcher.Stats()
				slog.Info("alerts", "sent", sent, "failed", failed, "dropped", dropped)
			}
			return nil
		}
	}
}

func replayFile(ctx context.Context, disp *gateway.Dispatcher, path string, strict bool) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open capture: %w", err)
	}
	defer f.Close()

	if _, err := disp.Replay(ctx, f, strict); err != nil {
		return fmt.Errorf("replay %s: %w", path, err)
	}
	return nil
}
