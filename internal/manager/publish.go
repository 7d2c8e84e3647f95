package manager

import (
	"context"
	"fmt"

	"vstats-analyzer/internal/store"
)

// publishSet implements spec §4.E step 6's bounded rename sequence:
// stage the new contents under new_<key>, drop any stale <key>.old,
// shift the live key to <key>.old, promote the staging key to <key>,
// then drop <key>.old. A reader can only ever observe the fully-old
// or fully-new set, never a partially populated one.
func publishSet(ctx context.Context, s store.Store, key string, members []string) error {
	stagingKey := newPrefix + key
	oldKey := key + oldSuffix

	if err := s.Delete(ctx, stagingKey); err != nil {
		return fmt.Errorf("manager: clear staging key %s: %w", stagingKey, err)
	}
	if len(members) > 0 {
		if err := s.SAdd(ctx, stagingKey, members...); err != nil {
			return fmt.Errorf("manager: stage %s: %w", key, err)
		}
	}

	if err := s.Delete(ctx, oldKey); err != nil {
		return fmt.Errorf("manager: clear stale %s: %w", oldKey, err)
	}
	if err := s.Rename(ctx, key, oldKey); err != nil {
		return fmt.Errorf("manager: shift %s -> %s: %w", key, oldKey, err)
	}
	if err := s.Rename(ctx, stagingKey, key); err != nil {
		return fmt.Errorf("manager: promote %s -> %s: %w", stagingKey, key, err)
	}
	if err := s.Delete(ctx, oldKey); err != nil {
		return fmt.Errorf("manager: drop %s: %w", oldKey, err)
	}
	return nil
}
