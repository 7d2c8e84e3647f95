// Command analyzer runs the component C/B worker pool: parallel
// workers that pull metrics from the live universe and evaluate the
// detector battery and consensus ensemble against each one
// (spec §5 "Scheduling model").
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vstats-analyzer/internal/codec"
	"vstats-analyzer/internal/config"
	"vstats-analyzer/internal/detectors"
	"vstats-analyzer/internal/ensemble"
	"vstats-analyzer/internal/metrics"
	"vstats-analyzer/internal/secondorder"
	"vstats-analyzer/internal/store"
	"vstats-analyzer/internal/telemetry"
	"vstats-analyzer/internal/timeseries"
)

// perMetricBudget bounds a single worker's evaluation of one metric
// (spec §5 "a much smaller per-metric bound for workers").
const perMetricBudget = 10 * time.Second

func main() {
	root := &cobra.Command{
		Use:   "analyzer",
		Short: "Run the anomaly-detection worker pool once or continuously",
	}
	var once bool
	var check bool
	root.Flags().BoolVar(&once, "once", false, "evaluate the current universe once, then exit")
	root.Flags().BoolVar(&check, "check", false, "load config and exit, reporting any fault")
	root.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.FromEnv()
		if err != nil {
			return fmt.Errorf("analyzer: %w", err)
		}
		if check {
			fmt.Printf("analyzer: config OK, %d algorithms, consensus=%d\n", len(cfg.Algorithms), cfg.Consensus)
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
		return fmt.Errorf("analyzer: build logger: %w", err)
	}
	defer logger.Sync()

	battery, err := detectors.Resolve(cfg.Algorithms)
	if err != nil {
		return fmt.Errorf("analyzer: %w", err)
	}

	redisStore := store.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer redisStore.Close()

	var secondOrder secondorder.Filter = secondorder.PassThrough{}
	if cfg.EnableSecondOrder {
		secondOrder = secondorder.HistoryGated{Store: redisStore}
	}

	pool := &workerPool{
		store:       redisStore,
		battery:     battery,
		secondOrder: secondOrder,
		sink:        metrics.New(),
		cfg:         cfg,
		logger:      logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	statusSrv := telemetry.NewServer(cfg.StatusAddr, pool, logger)
	go func() {
		if err := statusSrv.Run(ctx, logger); err != nil {
			logger.Warn("analyzer: status server exited", zap.Error(err))
		}
	}()

	if once {
		pool.runCycle(ctx)
		return nil
	}

	workers := runtimeNumWorkers()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	logger.Info("analyzer: starting", zap.Int("workers", workers), zap.Int("consensus", cfg.Consensus))

	pool.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			logger.Info("analyzer: shutting down")
			return nil
		case <-ticker.C:
			pool.runCycle(ctx)
		}
	}
}

// workerPool evaluates the live universe once per cycle across a
// fixed number of goroutines pulling from a shared work queue (spec
// §5: "Parallel workers ... one per CPU core is sufficient").
type workerPool struct {
	store       store.Store
	battery     []detectors.Named
	secondOrder secondorder.Filter
	sink        *metrics.Sink
	cfg         *config.Config
	logger      *zap.Logger

	lastCycleAt       atomic.Int64
	lastCycleDuration atomic.Int64
	lastCycleEvaluated atomic.Int64
	lastCycleAnomalous atomic.Int64
}

// Status implements telemetry.StatusProvider.
func (p *workerPool) Status() gin.H {
	stats, _ := p.sink.Drain()
	detectorStats := make([]gin.H, 0, len(stats))
	for _, s := range stats {
		detectorStats = append(detectorStats, gin.H{
			"name":        s.Name,
			"invocations": s.Invocations,
			"total_time":  s.TotalTime.String(),
		})
	}
	return gin.H{
		"last_cycle_unix":    p.lastCycleAt.Load(),
		"last_cycle_duration": time.Duration(p.lastCycleDuration.Load()).String(),
		"last_cycle_evaluated": p.lastCycleEvaluated.Load(),
		"last_cycle_anomalous": p.lastCycleAnomalous.Load(),
		"detectors":           detectorStats,
	}
}

func runtimeNumWorkers() int {
	n := runtime.NumCPU()
	if n < 1 {
		return 1
	}
	return n
}

// runCycle evaluates every metric in the live universe exactly once,
// fanning the work out across a fixed worker pool (spec §5).
func (p *workerPool) runCycle(ctx context.Context) {
	cycleID := uuid.NewString()
	start := time.Now()
	log := p.logger.With(zap.String("cycle_id", cycleID))

	members, err := p.store.SMembers(ctx, p.cfg.FullNamespace+"unique_metrics")
	if err != nil {
		log.Error("analyzer: failed to load metric universe", zap.Error(err))
		return
	}

	work := make(chan string, len(members))
	for _, m := range members {
		work <- m
	}
	close(work)

	var evaluated, anomalous int64
	var wg sync.WaitGroup
	workers := runtimeNumWorkers()
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for fullName := range work {
				select {
				case <-ctx.Done():
					return
				default:
				}
				triggered, err := p.evaluateOne(ctx, fullName)
				if err != nil {
					continue
				}
				atomic.AddInt64(&evaluated, 1)
				if triggered {
					atomic.AddInt64(&anomalous, 1)
				}
			}
		}()
	}
	wg.Wait()

	p.lastCycleAt.Store(time.Now().Unix())
	p.lastCycleDuration.Store(int64(time.Since(start)))
	p.lastCycleEvaluated.Store(evaluated)
	p.lastCycleAnomalous.Store(anomalous)
	log.Info("analyzer: cycle complete",
		zap.Int("universe", len(members)),
		zap.Int64("evaluated", evaluated),
		zap.Int64("anomalous", anomalous),
		zap.Duration("elapsed", time.Since(start)))
}

// evaluateOne runs the full per-metric pipeline: decode, pre-filter,
// ensemble, second-order -- within a bounded wall-clock window (spec
// §5 "Cancellation").
func (p *workerPool) evaluateOne(ctx context.Context, fullName string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, perMetricBudget)
	defer cancel()

	baseName := strings.TrimPrefix(fullName, p.cfg.FullNamespace)

	raw, found, err := p.store.Get(ctx, fullName)
	if err != nil || !found {
		return false, err
	}

	view, err := timeseries.New(raw)
	if err != nil {
		return false, err
	}

	now := time.Now().Unix()
	evalCtx := detectors.Context{Now: now, FullDuration: p.cfg.FullDuration}
	ensembleCfg := ensemble.Config{
		Consensus:    p.cfg.Consensus,
		RunOptimized: p.cfg.RunOptimized,
		PreFilter: detectors.PreFilterConfig{
			MinTolerableLength:  p.cfg.MinTolerableLength,
			MaxTolerableBoredom: p.cfg.MaxTolerableBoredom,
			BoredomSetSize:      p.cfg.BoredomSetSize,
			StalePeriod:         p.cfg.StalePeriod,
			AlertOnStalePeriod:  p.cfg.AlertOnStalePeriod,
			AlertOnStale:        p.cfg.AlertOnStaleMetrics,
		},
	}

	result, staleSoft, err := ensemble.Evaluate(view, p.battery, ensembleCfg, evalCtx, p.sink, baseName)
	if staleSoft {
		if err := p.store.SAdd(ctx, "analyzer.alert_on_stale_metrics", baseName); err != nil {
			p.logger.Warn("analyzer: failed to record stale-soft metric", zap.String("metric", baseName), zap.Error(err))
		}
	}
	if err != nil {
		// Reject: not a failure, just nothing to report for this cycle.
		return false, nil
	}
	if !result.Final {
		return false, nil
	}

	surfaced, err := p.secondOrder.IsAnomalouslyAnomalous(ctx, baseName, result.TailValue, now)
	if err != nil {
		p.logger.Warn("analyzer: second-order filter failed, surfacing anyway", zap.String("metric", baseName), zap.Error(err))
		surfaced = true
	}
	if !surfaced {
		return false, nil
	}

	if err := p.publishTrigger(ctx, baseName, result, now); err != nil {
		p.logger.Warn("analyzer: failed to publish trigger", zap.String("metric", baseName), zap.Error(err))
	}
	return true, nil
}

// publishTrigger records a surfaced anomaly's per-detector vote
// breakdown under analyzer.anomaly_breakdown.<metric>, encoded with the
// same codec used for samples: T is the detector's position in the
// battery and V is 1 for an anomalous vote, 0 otherwise. Alerting
// itself (smtp/non-smtp/mirage) is left to the downstream
// collaborators spec §1 names as out-of-scope.
func (p *workerPool) publishTrigger(ctx context.Context, baseName string, result ensemble.Result, now int64) error {
	votes := make([]codec.Sample, 0, len(result.Votes))
	for i, v := range result.Votes {
		verdict := 0.0
		if v.Vote == detectors.Anomalous {
			verdict = 1.0
		}
		votes = append(votes, codec.Sample{T: int64(i), V: verdict})
	}
	encoded, err := codec.EncodeSamples(votes)
	if err != nil {
		return err
	}
	return p.store.Set(ctx, "analyzer.anomaly_breakdown."+baseName, encoded)
}
