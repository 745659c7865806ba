package order

import "fmt"

// InvalidTransitionError indicates a status change the kitchen workflow
// does not allow.
type InvalidTransitionError struct {
	Code string
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order %s cannot move from %s to %s", e.Code, e.From, e.To)
}

// next maps each stage to the one after it.
var next = map[Status]Status{
	StatusPending: StatusMixing,
	StatusMixing:  StatusReady,
	StatusReady:   StatusCompleted,
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Next returns the stage after s.
func (s Status) Next() (Status, bool) {
	n, ok := next[s]
	return n, ok
}

// CanTransitionTo reports whether the workflow allows s -> to. Any
// non-terminal order may be cancelled. A held order enters the kitchen
// workflow at pending once paid.
func (s Status) CanTransitionTo(to Status) bool {
	if to == StatusCancelled {
		return !s.IsTerminal()
	}
	if s == StatusAwaitingPayment {
		return to == StatusPending
	}
	n, ok := next[s]
	return ok && n == to
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusAwaitingPayment, StatusPending, StatusMixing, StatusReady, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// ActiveStatuses are the stages shown on the kitchen board.
var ActiveStatuses = []Status{StatusPending, StatusMixing, StatusReady}
