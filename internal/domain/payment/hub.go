package payment

import (
	"sync"

	"github.com/go-faster/errors"
)

// Hub routes asynchronous provider outcomes to the flow waiting on them.
type Hub struct {
	mu      sync.Mutex
	pending map[string]chan Outcome
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{pending: make(map[string]chan Outcome)}
}

// Register opens a slot for reference and returns the channel its outcome is
// delivered on. Registering the same reference twice replaces the slot.
func (h *Hub) Register(reference string) <-chan Outcome {
	ch := make(chan Outcome, 1)
	h.mu.Lock()
	h.pending[reference] = ch
	h.mu.Unlock()
	return ch
}

// Resolve delivers o to the flow registered for reference. Each flow
// resolves at most once; later calls return ErrUnknownReference.
func (h *Hub) Resolve(reference string, o Outcome) error {
	h.mu.Lock()
	ch, ok := h.pending[reference]
	delete(h.pending, reference)
	h.mu.Unlock()
	if !ok {
		return errors.Wrapf(ErrUnknownReference, "%q", reference)
	}
	ch <- o
	close(ch)
	return nil
}

// Forget drops the slot for reference without resolving it.
func (h *Hub) Forget(reference string) {
	h.mu.Lock()
	delete(h.pending, reference)
	h.mu.Unlock()
}

// Pending returns the number of open flows.
func (h *Hub) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pending)
}
