package manager

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"vstats-analyzer/internal/store"
)

func writeAlertsFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	return path
}

func baseConfig(alertsFile string) Config {
	return Config{
		FullNamespace:        "metrics.",
		AlertsFile:           alertsFile,
		ZeroFillTickInterval: time.Minute,
		LivenessGuardTTL:     300 * time.Second,
	}
}

func TestRunTickPartitionInvariant(t *testing.T) {
	dir := t.TempDir()
	alertsFile := writeAlertsFile(t, dir, "alerts.yaml", `
alerts:
  - pattern: "server1.cpu"
    channel: smtp
    expiration_seconds: 3600
    second_order_hours: 1
`)
	mem := store.NewMemory()
	ctx := context.Background()
	mem.SAdd(ctx, "metrics.unique_metrics", "metrics.server1.cpu", "metrics.server2.cpu", "metrics.server3.mem")

	mgr := New(mem, baseConfig(alertsFile), zap.NewNop())
	result := mgr.RunTick(ctx)
	if result.Skipped {
		t.Fatal("expected the first tick to run, not be skipped")
	}

	smtp, _ := mem.SMembers(ctx, keySMTPAlerterMetrics)
	nonSMTP, _ := mem.SMembers(ctx, keyNonSMTPAlerterMetrics)
	if len(smtp)+len(nonSMTP) != 3 {
		t.Fatalf("got %d+%d routed metrics, want 3 total", len(smtp), len(nonSMTP))
	}
	seen := make(map[string]bool)
	for _, m := range append(append([]string{}, smtp...), nonSMTP...) {
		if seen[m] {
			t.Errorf("metric %q routed to both sets", m)
		}
		seen[m] = true
	}
	if !seen["server1.cpu"] || !seen["server2.cpu"] || !seen["server3.mem"] {
		t.Errorf("missing expected base names in routing sets: smtp=%v non_smtp=%v", smtp, nonSMTP)
	}
}

func TestRunTickIdempotence(t *testing.T) {
	dir := t.TempDir()
	alertsFile := writeAlertsFile(t, dir, "alerts.yaml", `
alerts:
  - pattern: "server1.cpu"
    channel: smtp
    expiration_seconds: 3600
    second_order_hours: 1
`)
	mem := store.NewMemory()
	ctx := context.Background()
	mem.SAdd(ctx, "metrics.unique_metrics", "metrics.server1.cpu", "metrics.server2.cpu")

	mgr := New(mem, baseConfig(alertsFile), zap.NewNop())
	first := mgr.RunTick(ctx)
	if !first.Rebuilt {
		t.Fatal("expected the first tick to rebuild")
	}

	smtpBefore, _ := mem.SMembers(ctx, keySMTPAlerterMetrics)
	nonSMTPBefore, _ := mem.SMembers(ctx, keyNonSMTPAlerterMetrics)

	second := mgr.RunTick(ctx)
	if second.Rebuilt {
		t.Error("a second tick with no universe or config change must not rebuild")
	}

	smtpAfter, _ := mem.SMembers(ctx, keySMTPAlerterMetrics)
	nonSMTPAfter, _ := mem.SMembers(ctx, keyNonSMTPAlerterMetrics)
	if !sameSet(smtpBefore, smtpAfter) || !sameSet(nonSMTPBefore, nonSMTPAfter) {
		t.Error("routing sets changed across idempotent ticks")
	}
}

func TestRunTickSkipsWhenGuardHeld(t *testing.T) {
	dir := t.TempDir()
	alertsFile := writeAlertsFile(t, dir, "alerts.yaml", "alerts: []\n")
	mem := store.NewMemory()
	ctx := context.Background()

	mem.SetNX(ctx, keyManagerLivenessGuard, []byte("1"), time.Hour)

	mgr := New(mem, baseConfig(alertsFile), zap.NewNop())
	result := mgr.RunTick(ctx)
	if !result.Skipped {
		t.Error("expected the tick to be skipped while the liveness guard is held")
	}
}

func TestRunTickMirageRouting(t *testing.T) {
	dir := t.TempDir()
	alertsFile := writeAlertsFile(t, dir, "alerts.yaml", `
alerts:
  - pattern: "server1.cpu"
    channel: smtp
    expiration_seconds: 3600
    second_order_hours: 48
`)
	mem := store.NewMemory()
	ctx := context.Background()
	mem.SAdd(ctx, "metrics.unique_metrics", "metrics.server1.cpu")

	mgr := New(mem, baseConfig(alertsFile), zap.NewNop())
	mgr.RunTick(ctx)

	mirage, _ := mem.SMembers(ctx, keyMirageUniqueMetrics)
	if len(mirage) != 1 || mirage[0] != "metrics.server1.cpu" {
		t.Fatalf("got mirage=%v, want [metrics.server1.cpu]", mirage)
	}
	expirations, _ := mem.HGetAll(ctx, keyMirageExpirationTimes)
	if expirations["server1.cpu"] != "3600" {
		t.Errorf("got expiration %q, want 3600", expirations["server1.cpu"])
	}
}

func TestRunTickClassifiesInDeclaredOrder(t *testing.T) {
	dir := t.TempDir()
	// The glob rule is declared first with second_order_hours=1 (not
	// mirage); the more specific literal rule is declared second with
	// second_order_hours=48 (mirage). Sorting by pattern would put the
	// literal rule first since "server1.cpu" < "server?.cpu"; classify
	// must still pick the first-declared match, so this metric must
	// land in smtp, not mirage.
	alertsFile := writeAlertsFile(t, dir, "alerts.yaml", `
alerts:
  - pattern: "server?.cpu"
    channel: smtp
    expiration_seconds: 1800
    second_order_hours: 1
  - pattern: "server1.cpu"
    channel: smtp
    expiration_seconds: 3600
    second_order_hours: 48
`)
	mem := store.NewMemory()
	ctx := context.Background()
	mem.SAdd(ctx, "metrics.unique_metrics", "metrics.server1.cpu")

	mgr := New(mem, baseConfig(alertsFile), zap.NewNop())
	mgr.RunTick(ctx)

	mirage, _ := mem.SMembers(ctx, keyMirageUniqueMetrics)
	if len(mirage) != 0 {
		t.Fatalf("got mirage=%v, want none: the first-declared rule is not mirage", mirage)
	}
	smtp, _ := mem.SMembers(ctx, keySMTPAlerterMetrics)
	if len(smtp) != 1 || smtp[0] != "server1.cpu" {
		t.Fatalf("got smtp=%v, want [server1.cpu]", smtp)
	}
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, v := range a {
		set[v] = true
	}
	for _, v := range b {
		if !set[v] {
			return false
		}
	}
	return true
}
