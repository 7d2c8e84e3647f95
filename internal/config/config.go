// Package config loads the environment-variable surface described in
// spec §6 into a single immutable struct, the way agent-go/config.go
// loads VSTATS_AGENT_* variables: required fields win from the
// environment, everything else falls back to a documented default.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every knob spec §6 names as recognized environment
// options. It is built once at process start and never mutated after
// that -- see design note in spec §9 about reifying global module
// state as an explicit context instead of package-level variables.
type Config struct {
	FullDuration time.Duration
	StalePeriod  time.Duration

	MinTolerableLength  int
	MaxTolerableBoredom int
	BoredomSetSize      int

	Consensus  int
	Algorithms []string

	EnableSecondOrder bool
	RunOptimized      bool

	AlertOnStaleMetrics bool
	AlertOnStalePeriod  time.Duration

	FluxZeroFillNamespaces []string

	AlertsFile         string
	ExternalAlertsFile string

	MiragePeriodicCheck           bool
	MiragePeriodicCheckInterval  time.Duration
	MiragePeriodicCheckNamespaces []string

	FullNamespace string

	ManagerTickInterval  time.Duration
	ManagerTickDeadline  time.Duration
	ZeroFillTickInterval time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	StatusAddr string
}

const envPrefix = "VSTATS_ANALYZER_"

// FromEnv loads Config from the process environment, the way
// agent-go.LoadConfigFromEnv does: read what's set, default what
// isn't, fail only on a value that was set but unparsable.
func FromEnv() (*Config, error) {
	var errs []error
	getBool := func(name string, def bool) bool {
		v, err := parseBool(name, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	getInt := func(name string, def int) int {
		v, err := parseInt(name, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	getDuration := func(name string, def time.Duration) time.Duration {
		v, err := parseDuration(name, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	c := &Config{
		FullDuration:         getDuration("FULL_DURATION", 86400*time.Second),
		StalePeriod:          getDuration("STALE_PERIOD", 86400*time.Second),
		MinTolerableLength:   getInt("MIN_TOLERABLE_LENGTH", 1),
		MaxTolerableBoredom:  getInt("MAX_TOLERABLE_BOREDOM", 100),
		BoredomSetSize:       getInt("BOREDOM_SET_SIZE", 1),
		Consensus:            getInt("CONSENSUS", 6),
		Algorithms:           getList("ALGORITHMS", defaultAlgorithms),
		EnableSecondOrder:    getBool("ENABLE_SECOND_ORDER", true),
		RunOptimized:         getBool("RUN_OPTIMIZED_WORKFLOW", true),
		AlertOnStaleMetrics:  getBool("ALERT_ON_STALE_METRICS", false),
		AlertOnStalePeriod:   getDuration("ALERT_ON_STALE_PERIOD", 300*time.Second),
		FluxZeroFillNamespaces: getList("FLUX_ZERO_FILL_NAMESPACES", nil),
		AlertsFile:           getString("ALERTS_FILE", "alerts.yaml"),
		ExternalAlertsFile:   getString("EXTERNAL_ALERTS_FILE", ""),
		MiragePeriodicCheck:  getBool("MIRAGE_PERIODIC_CHECK", false),
		MiragePeriodicCheckInterval:  getDuration("MIRAGE_PERIODIC_CHECK_INTERVAL", time.Hour),
		MiragePeriodicCheckNamespaces: getList("MIRAGE_PERIODIC_CHECK_NAMESPACES", nil),
		FullNamespace:        getString("FULL_NAMESPACE", "metrics."),
		ManagerTickInterval:  getDuration("MANAGER_TICK_INTERVAL", time.Minute),
		ManagerTickDeadline:  getDuration("MANAGER_TICK_DEADLINE", 300*time.Second),
		ZeroFillTickInterval: getDuration("ZERO_FILL_TICK_INTERVAL", 300*time.Second),
		RedisAddr:            getString("REDIS_ADDR", "localhost:6379"),
		RedisPassword:        getString("REDIS_PASSWORD", ""),
		RedisDB:              getInt("REDIS_DB", 0),
		StatusAddr:           getString("STATUS_ADDR", ":8700"),
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if c.Consensus < 1 || c.Consensus > len(c.Algorithms) {
		return nil, fmt.Errorf("config: CONSENSUS %d must be within [1, %d] (len(ALGORITHMS))", c.Consensus, len(c.Algorithms))
	}

	return c, nil
}

var defaultAlgorithms = []string{
	"median_absolute_deviation",
	"grubbs",
	"first_hour_average",
	"stddev_from_average",
	"stddev_from_moving_average",
	"mean_subtraction_cumulation",
	"least_squares",
	"histogram_bins",
	"ks_test",
}

func getString(name, def string) string {
	if v := os.Getenv(envPrefix + name); v != "" {
		return v
	}
	return def
}

// parseBool reads name and parses it, returning def unset and an error
// when it was set but didn't parse -- a set-but-invalid value must
// fail config load rather than silently fall back (spec §7 treats a
// malformed env value as a startup config fault, not a default).
func parseBool(name string, def bool) (bool, error) {
	v := os.Getenv(envPrefix + name)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("config: %s%s=%q: %w", envPrefix, name, v, err)
	}
	return b, nil
}

func parseInt(name string, def int) (int, error) {
	v := os.Getenv(envPrefix + name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("config: %s%s=%q: %w", envPrefix, name, v, err)
	}
	return n, nil
}

func parseDuration(name string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(envPrefix + name)
	if v == "" {
		return def, nil
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("config: %s%s=%q: %w", envPrefix, name, v, err)
	}
	return time.Duration(secs) * time.Second, nil
}

func getList(name string, def []string) []string {
	v := os.Getenv(envPrefix + name)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
