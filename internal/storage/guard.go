package storage

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/sony/gobreaker/v2"
)

type BreakerSettings struct {
	MinRequests  uint32
	FailureRatio float64
	OpenTimeout  time.Duration
	// OnStateChange is optional.
	OnStateChange func(name string, from, to gobreaker.State)
}

// Guarded routes every backend call through a circuit breaker. Missing
// objects and caller cancellation do not count as failures.
type Guarded struct {
	next    Backend
	breaker *gobreaker.CircuitBreaker[any]
}

func Guard(next Backend, settings BreakerSettings) *Guarded {
	if settings.MinRequests == 0 {
		settings.MinRequests = 5
	}
	if settings.FailureRatio <= 0 {
		settings.FailureRatio = 0.6
	}
	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "storage:" + string(next.Kind()),
		MaxRequests: 1,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < settings.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= settings.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrObjectNotFound) ||
				errors.Is(err, ErrInvalidKey) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: settings.OnStateChange,
	})
	return &Guarded{next: next, breaker: breaker}
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func (g *Guarded) Kind() Kind { return g.next.Kind() }

func (g *Guarded) Write(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error) {
	out, err := g.breaker.Execute(func() (any, error) {
		return g.next.Write(ctx, name, r, size, contentType)
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

func (g *Guarded) Open(ctx context.Context, key string) (Blob, error) {
	out, err := g.breaker.Execute(func() (any, error) {
		return g.next.Open(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	return out.(Blob), nil
}

func (g *Guarded) Exists(ctx context.Context, key string) (bool, error) {
	out, err := g.breaker.Execute(func() (any, error) {
		return g.next.Exists(ctx, key)
	})
	if err != nil {
		return false, err
	}
	return out.(bool), nil
}

func (g *Guarded) Delete(ctx context.Context, key string) error {
	_, err := g.breaker.Execute(func() (any, error) {
		return nil, g.next.Delete(ctx, key)
	})
	return err
}

func (g *Guarded) URL(ctx context.Context, key string) (string, error) {
	return g.next.URL(ctx, key)
}

// Observer receives one call per backend operation.
type Observer func(kind Kind, op string, err error)

type observed struct {
	next    Backend
	observe Observer
}

// Observe reports each operation's outcome to fn.
func Observe(next Backend, fn Observer) Backend {
	if fn == nil {
		return next
	}
	return &observed{next: next, observe: fn}
}

func (o *observed) Kind() Kind { return o.next.Kind() }

func (o *observed) Write(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error) {
	key, err := o.next.Write(ctx, name, r, size, contentType)
	o.observe(o.next.Kind(), "write", err)
	return key, err
}

func (o *observed) Open(ctx context.Context, key string) (Blob, error) {
	blob, err := o.next.Open(ctx, key)
	o.observe(o.next.Kind(), "open", err)
	return blob, err
}

func (o *observed) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := o.next.Exists(ctx, key)
	o.observe(o.next.Kind(), "exists", err)
	return ok, err
}

func (o *observed) Delete(ctx context.Context, key string) error {
	err := o.next.Delete(ctx, key)
	o.observe(o.next.Kind(), "delete", err)
	return err
}

func (o *observed) URL(ctx context.Context, key string) (string, error) {
	return o.next.URL(ctx, key)
}
