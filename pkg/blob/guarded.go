package blob

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/resilience"
)

// Guarded wraps store so every call gets its own timeout and, when cb is not
// nil, passes through the circuit breaker. An open circuit fails fast with
// ErrStorage so the query path degrades instead of queueing on a dead store.
// Missing objects do not count as breaker failures.
func Guarded(store Store, timeout time.Duration, cb *resilience.CircuitBreaker) Store {
	return &guardedStore{inner: store, timeout: timeout, cb: cb}
}

type guardedStore struct {
	inner   Store
	timeout time.Duration
	cb      *resilience.CircuitBreaker
}

func (g *guardedStore) Upload(ctx context.Context, name, localPath string) error {
	return g.run(func() error {
		return resilience.WithTimeout(ctx, g.timeout, "upload "+name, func(ctx context.Context) error {
			return g.inner.Upload(ctx, name, localPath)
		})
	}, "uploading "+name)
}

func (g *guardedStore) Download(ctx context.Context, name string) ([]byte, error) {
	var data []byte
	err := g.run(func() error {
		var err error
		data, err = resilience.Fetch(ctx, g.timeout, "download "+name, func(ctx context.Context) ([]byte, error) {
			return g.inner.Download(ctx, name)
		})
		return err
	}, "downloading "+name)
	return data, err
}

func (g *guardedStore) run(fn func() error, op string) error {
	var err error
	if g.cb == nil {
		err = fn()
	} else {
		err = g.cb.Execute(fn)
	}
	if err == nil || errors.Is(err, apperrors.ErrStorage) || errors.Is(err, apperrors.ErrFilesystem) {
		return err
	}
	// timeouts and open circuits surface as storage failures
	return apperrors.Storage(op, err)
}

// BreakerFailure classifies errors for a breaker guarding a Store: missing
// objects and caller cancellation are not failures of the store.
func BreakerFailure(err error) bool {
	if err == nil || IsNotFound(err) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}
