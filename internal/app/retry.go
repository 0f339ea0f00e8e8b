package app

import (
	"context"
	"time"
)

const retryBackoff = 500 * time.Millisecond

// retry runs fn and, on failure, retries once after a short backoff. Store
// I/O goes through this; a second failure surfaces to the caller.
func (a *App) retry(ctx context.Context, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return err
	case <-time.After(retryBackoff):
	}
	return fn()
}
