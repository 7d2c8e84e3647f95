// Package manager implements component E: the periodic reconciler
// that rebuilds routing sets, expiration/resolution hashes and
// zero-fill sets from the live metric universe and the current alert
// configuration (spec §4.E).
package manager

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"vstats-analyzer/internal/alertrules"
	"vstats-analyzer/internal/store"
)

// State is the manager's per-tick state machine (spec §4.E "State
// machine per tick").
type State int

const (
	StateIdle State = iota
	StateLoading
	StateSkipped
	StateClassifying
	StatePublishing
	StateReconcilingHashes
	StateZeroFill
	StateLowPriority
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateSkipped:
		return "skipped"
	case StateClassifying:
		return "classifying"
	case StatePublishing:
		return "publishing"
	case StateReconcilingHashes:
		return "reconciling-hashes"
	case StateZeroFill:
		return "zero-fill"
	case StateLowPriority:
		return "low-priority"
	default:
		return "idle"
	}
}

// Config bundles the manager's tunables, all sourced from spec §6's
// environment surface via internal/config.
type Config struct {
	FullNamespace          string
	AlertsFile             string
	ExternalAlertsFile     string
	FluxZeroFillNamespaces []string
	ZeroFillTickInterval   time.Duration
	LivenessGuardTTL       time.Duration

	MiragePeriodicCheck           bool
	MiragePeriodicCheckInterval  time.Duration
	MiragePeriodicCheckNamespaces []string
}

// Manager runs one reconciliation tick at a time; RunTick is not
// reentrant-safe by itself -- the liveness guard key is what prevents
// overlapping ticks across process restarts/replicas (spec §4.E
// step 1), not a Go-level mutex, since the guard must also survive a
// killed process.
type Manager struct {
	store  store.Store
	cfg    Config
	logger *zap.Logger
}

// New builds a Manager.
func New(s store.Store, cfg Config, logger *zap.Logger) *Manager {
	return &Manager{store: s, cfg: cfg, logger: logger}
}

// TickResult summarizes one completed (or skipped) tick for the
// status surface and for tests.
type TickResult struct {
	RunID              string
	FinalState         State
	Skipped            bool
	Rebuilt            bool
	UniqueBaseNames    int
	SMTPAlerterCount   int
	NonSMTPAlerterCount int
	MirageCount        int
}

// RunTick runs one full spec §4.E cycle: idle -> loading -> (skipped
// | classifying -> publishing -> reconciling-hashes -> zero-fill ->
// low-priority -> idle). Any error inside a stage from publishing
// onwards aborts that stage only; subsequent stages proceed with
// stale-but-consistent data (spec §4.E, last paragraph). A failure to
// load the metric universe or the alert config ends the tick before
// classification.
func (m *Manager) RunTick(ctx context.Context) TickResult {
	runID := uuid.NewString()
	log := m.logger.With(zap.String("run_id", runID))
	result := TickResult{RunID: runID, FinalState: StateLoading}

	guardValue := []byte(strconv.FormatInt(time.Now().Unix(), 10))
	acquired, err := m.store.SetNX(ctx, keyManagerLivenessGuard, guardValue, m.cfg.LivenessGuardTTL)
	if err != nil {
		log.Error("manager: liveness guard check failed", zap.Error(err))
		result.FinalState = StateLoading
		return result
	}
	if !acquired {
		log.Debug("manager: skipping tick, another run is in progress")
		result.Skipped = true
		result.FinalState = StateSkipped
		return result
	}
	defer func() {
		if err := m.store.Delete(ctx, keyManagerLivenessGuard); err != nil {
			log.Warn("manager: failed to release liveness guard", zap.Error(err))
		}
	}()

	fullNames, err := m.store.SMembers(ctx, m.cfg.FullNamespace+"unique_metrics")
	if err != nil {
		log.Error("manager: failed to load metric universe", zap.Error(err))
		return result
	}
	baseNames := make([]string, 0, len(fullNames))
	baseNameSet := make(map[string]string, len(fullNames)) // base -> full
	for _, full := range fullNames {
		base := strings.TrimPrefix(full, m.cfg.FullNamespace)
		baseNames = append(baseNames, base)
		baseNameSet[base] = full
	}
	result.UniqueBaseNames = len(baseNames)

	rules, err := alertrules.Load(m.cfg.AlertsFile, m.cfg.ExternalAlertsFile)
	if err != nil {
		log.Error("manager: failed to load alert config, falling back to last known snapshot", zap.Error(err))
		// Config fault (spec §7): fall back to whatever was last
		// published; a nil rule set here would wrongly empty every
		// routing set, so the tick aborts instead of rebuilding on
		// bad input.
		return result
	}
	if len(rules) == 0 {
		log.Warn("manager: merged alert list is empty, tick will publish empty routing sets")
	}

	rebuild, err := m.needsRebuild(ctx, rules, baseNames)
	if err != nil {
		log.Error("manager: change detection failed, forcing rebuild", zap.Error(err))
		rebuild = true
	}
	result.Rebuilt = rebuild

	if !rebuild {
		result.FinalState = StateIdle
		return result
	}

	smtp, nonSMTP, mirageFull, expirations, resolutions := classify(rules, baseNames, baseNameSet)
	result.SMTPAlerterCount = len(smtp)
	result.NonSMTPAlerterCount = len(nonSMTP)
	result.MirageCount = len(mirageFull)

	if err := m.publish(ctx, log, rules, smtp, nonSMTP, mirageFull, expirations, resolutions); err != nil {
		log.Error("manager: publish stage failed", zap.Error(err))
	}

	if err := m.maintainZeroFill(ctx, baseNames); err != nil {
		log.Error("manager: zero-fill maintenance failed", zap.Error(err))
	}

	if err := m.cleanupLowPriority(ctx, baseNames); err != nil {
		log.Error("manager: low-priority hash cleanup failed", zap.Error(err))
	}

	if m.cfg.MiragePeriodicCheck {
		if err := m.reconcilePeriodicChecks(ctx, mirageFull); err != nil {
			log.Error("manager: mirage periodic check reconciliation failed", zap.Error(err))
		}
	}

	result.FinalState = StateIdle
	return result
}

// needsRebuild implements spec §4.E step 4: a changed alert snapshot
// forces a rebuild; otherwise a mismatch between unique_base_names and
// the union of the two alerter sets forces one too.
func (m *Manager) needsRebuild(ctx context.Context, rules []alertrules.Rule, baseNames []string) (bool, error) {
	snapshot, err := alertrules.Snapshot(rules)
	if err != nil {
		return true, err
	}

	raw, found, err := m.store.Get(ctx, keyLastAllAlerts)
	if err != nil {
		return true, err
	}
	if err := m.store.Set(ctx, keyLastAllAlerts, []byte(snapshot)); err != nil {
		return true, err
	}
	if !found || string(raw) != snapshot {
		return true, nil
	}

	smtp, err := m.store.SMembers(ctx, keySMTPAlerterMetrics)
	if err != nil {
		return true, err
	}
	nonSMTP, err := m.store.SMembers(ctx, keyNonSMTPAlerterMetrics)
	if err != nil {
		return true, err
	}
	known := toSet(append(append([]string{}, smtp...), nonSMTP...))
	current := toSet(baseNames)
	if len(known) != len(current) {
		return true, nil
	}
	for k := range current {
		if _, ok := known[k]; !ok {
			return true, nil
		}
	}
	return false, nil
}

// classify implements spec §4.E step 5.
func classify(rules []alertrules.Rule, baseNames []string, baseNameSet map[string]string) (smtp, nonSMTP, mirageFull []string, expirations, resolutions map[string]string) {
	expirations = make(map[string]string)
	resolutions = make(map[string]string)

	smtpSet := make(map[string]struct{})
	for _, base := range baseNames {
		rule, ok := alertrules.FirstSMTPMatch(rules, base)
		if !ok {
			continue
		}
		smtpSet[base] = struct{}{}
		if rule.IsMirage() {
			mirageFull = append(mirageFull, baseNameSet[base])
			if rule.ExpirationSeconds > 0 {
				expirations[base] = strconv.Itoa(rule.ExpirationSeconds)
			}
			resolutions[base] = strconv.Itoa(rule.SecondOrderHours)
		}
	}

	for _, base := range baseNames {
		if _, ok := smtpSet[base]; ok {
			smtp = append(smtp, base)
		} else {
			nonSMTP = append(nonSMTP, base)
		}
	}
	return smtp, nonSMTP, mirageFull, expirations, resolutions
}

// publish implements spec §4.E steps 6-8: the rename-based publish of
// every routing set, the cross-publish union-stores, and the hash
// reconciliations.
func (m *Manager) publish(ctx context.Context, log *zap.Logger, rules []alertrules.Rule, smtp, nonSMTP, mirageFull []string, expirations, resolutions map[string]string) error {
	if err := publishSet(ctx, m.store, keySMTPAlerterMetrics, smtp); err != nil {
		return err
	}
	if err := publishSet(ctx, m.store, keyNonSMTPAlerterMetrics, nonSMTP); err != nil {
		return err
	}
	if err := publishSet(ctx, m.store, keyMirageUniqueMetrics, mirageFull); err != nil {
		return err
	}

	if err := m.store.SUnionStore(ctx, keyAETSMTPAlerterMetrics, keySMTPAlerterMetrics); err != nil {
		log.Warn("manager: cross-publish smtp set failed", zap.Error(err))
	}
	if err := m.store.SUnionStore(ctx, keyAETNonSMTPAlerterMetrics, keyNonSMTPAlerterMetrics); err != nil {
		log.Warn("manager: cross-publish non-smtp set failed", zap.Error(err))
	}

	if err := reconcileHash(ctx, m.store, keyMirageExpirationTimes, expirations); err != nil {
		return err
	}
	if err := reconcileHash(ctx, m.store, keyMirageResolutions, resolutions); err != nil {
		return err
	}

	log.Info("manager: routing sets rebuilt",
		zap.Int("smtp", len(smtp)),
		zap.Int("non_smtp", len(nonSMTP)),
		zap.Int("mirage", len(mirageFull)))
	return nil
}

// maintainZeroFill implements spec §4.E step 9, guarded by its own
// 300s cadence key so it doesn't have to run on every tick.
func (m *Manager) maintainZeroFill(ctx context.Context, baseNames []string) error {
	guardValue := []byte(strconv.FormatInt(time.Now().Unix(), 10))
	acquired, err := m.store.SetNX(ctx, keyZeroFillLivenessGuard, guardValue, m.cfg.ZeroFillTickInterval)
	if err != nil {
		return fmt.Errorf("manager: zero-fill guard: %w", err)
	}
	if !acquired {
		return nil
	}

	globs := make([]glob.Glob, 0, len(m.cfg.FluxZeroFillNamespaces))
	for _, pattern := range m.cfg.FluxZeroFillNamespaces {
		g, err := glob.Compile(pattern)
		if err != nil {
			continue
		}
		globs = append(globs, g)
	}

	var matched []string
	for _, base := range baseNames {
		for _, g := range globs {
			if g.Match(base) {
				matched = append(matched, base)
				break
			}
		}
	}

	if err := publishSet(ctx, m.store, keyAnalyzerZeroFillMetrics, matched); err != nil {
		return err
	}
	return m.store.SUnionStore(ctx, keyFluxZeroFillMetrics, keyAnalyzerZeroFillMetrics)
}

// cleanupLowPriority implements spec §4.E step 10.
func (m *Manager) cleanupLowPriority(ctx context.Context, baseNames []string) error {
	current, err := m.store.HGetAll(ctx, keyLowPriorityLastAnalyzed)
	if err != nil {
		return err
	}
	live := toSet(baseNames)
	var stale []string
	for k := range current {
		if _, ok := live[k]; !ok {
			stale = append(stale, k)
		}
	}
	if len(stale) == 0 {
		return nil
	}
	return m.store.HDel(ctx, keyLowPriorityLastAnalyzed, stale...)
}

// reconcilePeriodicChecks implements the supplemented "mirage periodic
// check" feature (SPEC_FULL.md): any mirage metric whose last periodic
// check is older than MiragePeriodicCheckInterval, or that has none
// recorded yet, is stamped so the extended-window analyzer picks it
// back up at least once per interval even without a fresh trigger.
func (m *Manager) reconcilePeriodicChecks(ctx context.Context, mirageFullNames []string) error {
	existing, err := m.store.HGetAll(ctx, keyMiragePeriodicCheckTimes)
	if err != nil {
		return err
	}
	now := time.Now().Unix()
	for _, full := range mirageFullNames {
		if !matchesAny(full, m.cfg.MiragePeriodicCheckNamespaces) {
			continue
		}
		last, ok := existing[full]
		if !ok {
			if err := m.store.HSet(ctx, keyMiragePeriodicCheckTimes, full, strconv.FormatInt(now, 10)); err != nil {
				return err
			}
			continue
		}
		lastTS, err := strconv.ParseInt(last, 10, 64)
		if err != nil {
			lastTS = 0
		}
		if time.Duration(now-lastTS)*time.Second >= m.cfg.MiragePeriodicCheckInterval {
			if err := m.store.HSet(ctx, keyMiragePeriodicCheckTimes, full, strconv.FormatInt(now, 10)); err != nil {
				return err
			}
		}
	}
	return nil
}

func matchesAny(name string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			continue
		}
		if g.Match(name) {
			return true
		}
	}
	return false
}
