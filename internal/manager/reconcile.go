package manager

import (
	"context"
	"fmt"

	"vstats-analyzer/internal/store"
)

// reconcileHash implements spec §4.E step 8: compute the keys to
// remove and add by set difference against the hash's current
// contents, update any key present in both whose value changed, and
// leave everything else untouched -- so a reconciliation that finds
// no actual difference performs zero writes (spec §8 "Manager
// idempotence").
func reconcileHash(ctx context.Context, s store.Store, key string, desired map[string]string) error {
	current, err := s.HGetAll(ctx, key)
	if err != nil {
		return fmt.Errorf("manager: load hash %s: %w", key, err)
	}

	var toRemove []string
	for k := range current {
		if _, ok := desired[k]; !ok {
			toRemove = append(toRemove, k)
		}
	}
	if len(toRemove) > 0 {
		if err := s.HDel(ctx, key, toRemove...); err != nil {
			return fmt.Errorf("manager: remove stale fields from %s: %w", key, err)
		}
	}

	for k, v := range desired {
		if existing, ok := current[k]; ok && existing == v {
			continue
		}
		if err := s.HSet(ctx, key, k, v); err != nil {
			return fmt.Errorf("manager: set field %s in %s: %w", k, key, err)
		}
	}
	return nil
}

func toSet(items []string) map[string]struct{} {
	s := make(map[string]struct{}, len(items))
	for _, i := range items {
		s[i] = struct{}{}
	}
	return s
}
