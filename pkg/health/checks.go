package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
)

// Pinger is anything with a context-aware Ping, such as *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck wraps p as a CheckFunc.
func PingCheck(p Pinger) CheckFunc {
	return p.Ping
}

// GoroutineCheck fails when more than limit goroutines are running.
func GoroutineCheck(limit int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > limit {
			return errors.Errorf("%d goroutines, limit %d", n, limit)
		}
		return nil
	}
}
