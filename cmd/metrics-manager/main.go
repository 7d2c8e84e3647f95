// Command metrics-manager runs component E: the single-threaded
// periodic reconciler that rebuilds routing sets, expiration/
// resolution hashes and zero-fill sets once per minute (spec §5 "The
// metrics manager runs in its own single-threaded loop once per
// minute.").
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vstats-analyzer/internal/config"
	"vstats-analyzer/internal/manager"
	"vstats-analyzer/internal/store"
	"vstats-analyzer/internal/telemetry"
)

func main() {
	root := &cobra.Command{
		Use:   "metrics-manager",
		Short: "Run the metrics-manager reconciliation loop once or continuously",
	}
	var once bool
	var check bool
	root.Flags().BoolVar(&once, "once", false, "run a single reconciliation tick, then exit")
	root.Flags().BoolVar(&check, "check", false, "load config and exit, reporting any fault")
	root.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.FromEnv()
		if err != nil {
			return fmt.Errorf("metrics-manager: %w", err)
		}
		if check {
			fmt.Printf("metrics-manager: config OK, tick_interval=%s alerts_file=%s\n", cfg.ManagerTickInterval, cfg.AlertsFile)
			return nil
		}
		return run(cfg, once)
	}

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, once bool) error {
	logger, err := telemetry.NewLogger(false)
	if err != nil {
		return fmt.Errorf("metrics-manager: build logger: %w", err)
	}
	defer logger.Sync()

	redisStore := store.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer redisStore.Close()

	mgr := manager.New(redisStore, managerConfig(cfg), logger)
	wrapper := &statusWrapper{}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	statusSrv := telemetry.NewServer(cfg.StatusAddr, wrapper, logger)
	go func() {
		if err := statusSrv.Run(ctx, logger); err != nil {
			logger.Warn("metrics-manager: status server exited", zap.Error(err))
		}
	}()

	runOne := func() {
		tickCtx, cancel := context.WithTimeout(ctx, cfg.ManagerTickDeadline)
		defer cancel()
		result := mgr.RunTick(tickCtx)
		wrapper.store(result)
		logger.Info("metrics-manager: tick complete",
			zap.String("run_id", result.RunID),
			zap.Bool("skipped", result.Skipped),
			zap.Bool("rebuilt", result.Rebuilt),
			zap.Int("unique_base_names", result.UniqueBaseNames))
	}

	if once {
		runOne()
		return nil
	}

	ticker := time.NewTicker(cfg.ManagerTickInterval)
	defer ticker.Stop()
	logger.Info("metrics-manager: starting", zap.Duration("interval", cfg.ManagerTickInterval))

	runOne()
	for {
		select {
		case <-ctx.Done():
			logger.Info("metrics-manager: shutting down")
			return nil
		case <-ticker.C:
			runOne()
		}
	}
}

func managerConfig(cfg *config.Config) manager.Config {
	return manager.Config{
		FullNamespace:                 cfg.FullNamespace,
		AlertsFile:                    cfg.AlertsFile,
		ExternalAlertsFile:            cfg.ExternalAlertsFile,
		FluxZeroFillNamespaces:        cfg.FluxZeroFillNamespaces,
		ZeroFillTickInterval:          cfg.ZeroFillTickInterval,
		LivenessGuardTTL:              cfg.ManagerTickDeadline,
		MiragePeriodicCheck:           cfg.MiragePeriodicCheck,
		MiragePeriodicCheckInterval:   cfg.MiragePeriodicCheckInterval,
		MiragePeriodicCheckNamespaces: cfg.MiragePeriodicCheckNamespaces,
	}
}

// statusWrapper adapts the last TickResult to telemetry.StatusProvider
// without internal/manager needing to import gin.
type statusWrapper struct {
	mu     sync.Mutex
	latest manager.TickResult
}

func (w *statusWrapper) store(r manager.TickResult) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.latest = r
}

func (w *statusWrapper) Status() gin.H {
	w.mu.Lock()
	defer w.mu.Unlock()
	return gin.H{
		"run_id":             w.latest.RunID,
		"final_state":        w.latest.FinalState.String(),
		"skipped":            w.latest.Skipped,
		"rebuilt":            w.latest.Rebuilt,
		"unique_base_names":  w.latest.UniqueBaseNames,
		"smtp_alerter_count": w.latest.SMTPAlerterCount,
		"mirage_count":       w.latest.MirageCount,
	}
}
