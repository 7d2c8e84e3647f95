// Package alertrules parses and matches the AlertRule list spec §3
// describes: (pattern, channel, expiration_seconds, second_order_hours)
// tuples, loaded from YAML (the teacher's config format of choice,
// gopkg.in/yaml.v3) and merged from a primary and an optional external
// file the way the original's settings.ALERTS + EXTERNAL_ALERTS merge
// (spec §4.E step 3).
package alertrules

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"
)

// PatternKind distinguishes how a rule's pattern should be matched.
// Spec §3: "pattern is a literal base-name or a
// regular-expression/glob matched against metric base-names."
type PatternKind int

const (
	KindLiteral PatternKind = iota
	KindRegex
	KindGlob
)

// Rule is spec §3's AlertRule, plus the resolved kind/matcher built
// once at load time instead of re-parsed on every metric.
type Rule struct {
	Pattern          string `yaml:"pattern"`
	Channel          string `yaml:"channel"`
	ExpirationSeconds int    `yaml:"expiration_seconds"`
	SecondOrderHours  int    `yaml:"second_order_hours"`

	kind   PatternKind
	re     *regexp.Regexp
	gl     glob.Glob
}

// IsMirage reports whether a rule's second_order_hours requests
// extended-window analysis (spec §3: "> 24 designates the metric as
// ... mirage").
func (r Rule) IsMirage() bool {
	return r.SecondOrderHours > 24
}

// Matches reports whether baseName satisfies the rule's pattern.
func (r Rule) Matches(baseName string) bool {
	switch r.kind {
	case KindRegex:
		return r.re.MatchString(baseName)
	case KindGlob:
		return r.gl.Match(baseName)
	default:
		return r.Pattern == baseName
	}
}

// fileConfig is the on-disk shape of an alerts YAML file.
type fileConfig struct {
	Alerts []Rule `yaml:"alerts"`
}

// Load reads and compiles a primary alerts file and, if externalPath
// is non-empty, merges in a second file the way
// settings.ALERTS + EXTERNAL_ALERTS merge in the original (spec §4.E
// step 3). Rules are returned in declared (primary-then-external) file
// order, matching all_alerts in metrics_manager.py:376-427 -- callers
// that classify base names against the list (spec §4.E step 5) must
// see the first declared match, not the first match by sort order.
// Sort is only applied internally by Snapshot, for deterministic
// change-detection comparison (spec §4.E step 4).
func Load(primaryPath, externalPath string) ([]Rule, error) {
	rules, err := loadFile(primaryPath)
	if err != nil {
		return nil, err
	}
	if externalPath != "" {
		external, err := loadFile(externalPath)
		if err != nil {
			return nil, fmt.Errorf("alertrules: load external config: %w", err)
		}
		rules = append(rules, external...)
	}
	for i := range rules {
		if err := compile(&rules[i]); err != nil {
			return nil, err
		}
	}
	return rules, nil
}

func loadFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("alertrules: read %s: %w", path, err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("alertrules: parse %s: %w", path, err)
	}
	return cfg.Alerts, nil
}

// compile determines a rule's PatternKind and builds its matcher.
// A pattern is treated as a regex if it's wrapped in slashes
// ("/.../"), as a glob if it contains any of the glob metacharacters,
// and as a literal base-name otherwise.
func compile(r *Rule) error {
	p := r.Pattern
	switch {
	case strings.HasPrefix(p, "/") && strings.HasSuffix(p, "/") && len(p) > 1:
		re, err := regexp.Compile(p[1 : len(p)-1])
		if err != nil {
			return fmt.Errorf("alertrules: compile regex %q: %w", p, err)
		}
		r.kind = KindRegex
		r.re = re
	case strings.ContainsAny(p, "*?[]{}"):
		g, err := glob.Compile(p)
		if err != nil {
			return fmt.Errorf("alertrules: compile glob %q: %w", p, err)
		}
		r.kind = KindGlob
		r.gl = g
	default:
		r.kind = KindLiteral
	}
	return nil
}

// Sort orders rules deterministically by pattern, then channel, so
// two merges of the same logical rule set produce byte-identical
// snapshots (spec §8 "Manager idempotence").
func Sort(rules []Rule) {
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Pattern != rules[j].Pattern {
			return rules[i].Pattern < rules[j].Pattern
		}
		return rules[i].Channel < rules[j].Channel
	})
}

// Snapshot serializes the rule list deterministically for comparison
// against analyzer.last_all_alerts (spec §4.E step 4). It sorts a copy
// so the caller's declared order (which classification depends on) is
// never disturbed.
func Snapshot(rules []Rule) (string, error) {
	sorted := append([]Rule(nil), rules...)
	Sort(sorted)
	out, err := yaml.Marshal(fileConfig{Alerts: sorted})
	if err != nil {
		return "", fmt.Errorf("alertrules: snapshot: %w", err)
	}
	return string(out), nil
}

// FirstSMTPMatch scans rules in declared order and returns the first
// smtp-channel rule whose pattern matches baseName (spec §4.E step 5).
func FirstSMTPMatch(rules []Rule, baseName string) (Rule, bool) {
	for _, r := range rules {
		if r.Channel == "smtp" && r.Matches(baseName) {
			return r, true
		}
	}
	return Rule{}, false
}
