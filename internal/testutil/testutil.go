// Package testutil provides canned worker definitions shared across tests.
package testutil

import (
	"context"
	"errors"

	"github.com/hupe1980/researchmesh/worker"
)

// EchoWorker returns a definition that copies its "input" config value into
// shared memory under the given key.
func EchoWorker(typ, key string) *worker.Definition {
	return &worker.Definition{
		Type: typ,
		PerformWork: func(ctx context.Context, wc *worker.Context) error {
			wc.UpdateProgress(50, "echoing")
			return wc.StoreShared(ctx, key, wc.ConfigString("input", "echo"))
		},
	}
}

// FailingWorker returns a definition whose PerformWork always fails with the
// given message.
func FailingWorker(typ, msg string) *worker.Definition {
	return &worker.Definition{
		Type: typ,
		PerformWork: func(context.Context, *worker.Context) error {
			return errors.New(msg)
		},
	}
}

// BlockedWorker returns a definition whose PerformWork blocks until the
// release channel is closed.
func BlockedWorker(typ string, release <-chan struct{}) *worker.Definition {
	return &worker.Definition{
		Type: typ,
		PerformWork: func(ctx context.Context, _ *worker.Context) error {
			select {
			case <-release:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}
}
