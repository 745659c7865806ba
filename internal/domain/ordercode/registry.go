package ordercode

import (
	"context"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
)

const (
	// The code space is 16*16*900 codes; the filter is sized well above it so
	// the false positive rate stays near the target for the service lifetime.
	filterCapacity = 500_000
	filterFPR      = 0.001

	defaultMaxAttempts = 8
)

// ErrCodeSpaceExhausted is returned when every attempt produced a code that
// already belongs to an order.
var ErrCodeSpaceExhausted = errors.New("no free order code after retries")

// Store reports whether an order with the given code already exists.
type Store interface {
	CodeExists(ctx context.Context, code string) (bool, error)
	ListCodes(ctx context.Context) ([]string, error)
}

// Registry issues codes that do not collide with existing orders. A bloom
// filter screens candidates so the store is only consulted on a probable hit.
// Issued codes are reserved until the caller commits them once the order is
// stored, or releases them when it never is.
type Registry struct {
	gen         *Generator
	store       Store
	maxAttempts int

	mu       sync.Mutex
	filter   *bloom.BloomFilter
	reserved map[string]struct{}
}

// NewRegistry creates a Registry drawing codes from gen.
func NewRegistry(gen *Generator, store Store) *Registry {
	return &Registry{
		gen:         gen,
		store:       store,
		maxAttempts: defaultMaxAttempts,
		filter:      bloom.NewWithEstimates(filterCapacity, filterFPR),
		reserved:    make(map[string]struct{}),
	}
}

// Warm loads every persisted code into the filter. It returns the number of
// codes loaded.
func (r *Registry) Warm(ctx context.Context) (int, error) {
	codes, err := r.store.ListCodes(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "list codes")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range codes {
		r.filter.AddString(c)
	}
	return len(codes), nil
}

// Issue returns a code not used by any stored order or outstanding
// reservation, and reserves it.
func (r *Registry) Issue(ctx context.Context) (string, error) {
	for range r.maxAttempts {
		code := r.gen.Generate()

		r.mu.Lock()
		_, held := r.reserved[code]
		seen := r.filter.TestString(code)
		r.mu.Unlock()
		if held {
			continue
		}

		if seen {
			exists, err := r.store.CodeExists(ctx, code)
			if err != nil {
				return "", errors.Wrap(err, "check code")
			}
			if exists {
				continue
			}
		}

		if r.reserve(code) {
			return code, nil
		}
	}
	return "", ErrCodeSpaceExhausted
}

func (r *Registry) reserve(code string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, held := r.reserved[code]; held {
		return false
	}
	r.reserved[code] = struct{}{}
	return true
}

// Commit records that code now belongs to a stored order.
func (r *Registry) Commit(code string) {
	r.mu.Lock()
	delete(r.reserved, code)
	r.filter.AddString(code)
	r.mu.Unlock()
}

// Release returns a reserved code that never reached the store.
func (r *Registry) Release(code string) {
	r.mu.Lock()
	delete(r.reserved, code)
	r.mu.Unlock()
}
