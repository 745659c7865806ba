// Package health serves liveness and readiness probes backed by periodic
// dependency checks.
//
// A check flips to failing only after FailAfter consecutive errors and back
// to passing after one success, so a single slow ping does not pull the
// instance out of rotation.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
)

// CheckFunc returns nil when the checked dependency is usable.
type CheckFunc func(ctx context.Context) error

// Kind selects the probe a check contributes to.
type Kind int

const (
	Liveness Kind = iota
	Readiness
)

// Check describes one registered check.
type Check struct {
	Name    string
	Kind    Kind
	Timeout time.Duration
	// FailAfter is the number of consecutive errors before the check fails.
	// Zero means 3.
	FailAfter int
	Func      CheckFunc
}

type result struct {
	err     error
	latency time.Duration
	at      time.Time
}

type probe struct {
	Check

	passing atomic.Bool
	last    atomic.Pointer[result]
	fails   int // owned by the polling goroutine
}

func (p *probe) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	start := time.Now()
	err := p.Func(ctx)
	p.last.Store(&result{err: err, latency: time.Since(start), at: start})

	if err == nil {
		p.fails = 0
		p.passing.Store(true)
		return
	}
	p.fails++
	if p.fails >= p.FailAfter {
		p.passing.Store(false)
	}
}

// Service runs registered checks and serves their state.
type Service struct {
	ready atomic.Bool

	mu     sync.RWMutex
	probes []*probe
	cancel context.CancelFunc
}

// New returns a Service that reports not-ready until SetReady(true).
func New() *Service {
	return &Service{}
}

// Register adds a check. Checks start as passing.
func (s *Service) Register(c Check) {
	if c.Timeout <= 0 {
		c.Timeout = time.Second
	}
	if c.FailAfter <= 0 {
		c.FailAfter = 3
	}
	p := &probe{Check: c}
	p.passing.Store(true)

	s.mu.Lock()
	s.probes = append(s.probes, p)
	s.mu.Unlock()
}

// Start polls every check at interval until ctx is done or Stop is called.
func (s *Service) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.cancel = cancel
	probes := append([]*probe(nil), s.probes...)
	s.mu.Unlock()

	for _, p := range probes {
		go poll(ctx, p, interval)
	}
}

func poll(ctx context.Context, p *probe, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		p.run(ctx)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// Stop halts polling.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// SetReady toggles the manual readiness gate, closed during startup and
// shutdown.
func (s *Service) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Ready reports whether the gate is open and every readiness check passes.
func (s *Service) Ready() bool {
	if !s.ready.Load() {
		return false
	}
	for _, p := range s.snapshot(Readiness) {
		if !p.passing.Load() {
			return false
		}
	}
	return true
}

func (s *Service) snapshot(kind Kind) []*probe {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*probe
	for _, p := range s.probes {
		if p.Kind == kind {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// LiveHandler serves /livez.
func (s *Service) LiveHandler(w http.ResponseWriter, _ *http.Request) {
	write(w, true, s.snapshot(Liveness))
}

// ReadyHandler serves /readyz.
func (s *Service) ReadyHandler(w http.ResponseWriter, _ *http.Request) {
	write(w, s.ready.Load(), s.snapshot(Readiness))
}

func write(w http.ResponseWriter, gate bool, probes []*probe) {
	ok := gate
	for _, p := range probes {
		if !p.passing.Load() {
			ok = false
		}
	}

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("status", func(e *jx.Encoder) {
			if ok {
				e.Str("ok")
			} else {
				e.Str("unhealthy")
			}
		})
		if !gate {
			e.Field("gate", func(e *jx.Encoder) { e.Str("closed") })
		}
		e.Field("checks", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				for _, p := range probes {
					e.Field(p.Name, func(e *jx.Encoder) { encodeProbe(e, p) })
				}
			})
		})
	})

	w.Header().Set("Content-Type", "application/json")
	if ok {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_, _ = w.Write(e.Bytes())
}

func encodeProbe(e *jx.Encoder, p *probe) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("passing", func(e *jx.Encoder) { e.Bool(p.passing.Load()) })
		r := p.last.Load()
		if r == nil {
			return
		}
		e.Field("latency_ms", func(e *jx.Encoder) { e.Int64(r.latency.Milliseconds()) })
		if r.err != nil {
			e.Field("error", func(e *jx.Encoder) { e.Str(r.err.Error()) })
		}
	})
}
