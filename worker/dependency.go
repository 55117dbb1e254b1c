package worker

import (
	"context"
	"sort"
	"time"

	"github.com/hupe1980/researchmesh/core"
)

// waitForDependencies blocks until every key exists in the session's shared
// memory, polling at the given interval. The first check is immediate so a
// worker whose dependencies are already satisfied does not pay a full tick.
// It returns a DependencyTimeoutError naming the still-missing keys when the
// timeout elapses, or ctx.Err when the context is cancelled.
func waitForDependencies(ctx context.Context, store core.MemoryStore, sessionID, workerID string, keys []string, interval, timeout time.Duration) error {
	if len(keys) == 0 {
		return nil
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		missing, err := missingKeys(ctx, store, sessionID, keys)
		if err != nil {
			return err
		}
		if len(missing) == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			sort.Strings(missing)
			return &core.DependencyTimeoutError{
				WorkerID: workerID,
				Missing:  missing,
				Timeout:  timeout,
			}
		case <-ticker.C:
		}
	}
}

func missingKeys(ctx context.Context, store core.MemoryStore, sessionID string, keys []string) ([]string, error) {
	var missing []string
	for _, key := range keys {
		_, ok, err := store.Get(ctx, sessionID, key)
		if err != nil {
			return nil, err
		}
		if !ok {
			missing = append(missing, key)
		}
	}
	return missing, nil
}
