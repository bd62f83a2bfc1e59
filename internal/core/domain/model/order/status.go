package order

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when a requested status change is not an
// edge of the lifecycle state machine. Callers treat it as a rejection: the
// order is left unchanged.
var ErrInvalidTransition = errors.New("status transition is not permitted")

// Status represents the lifecycle state of an order. It implements a closed
// state machine: every mutation goes through TransitionTo, which consults an
// explicit transition table rather than ad hoc equality checks.
//
// State transitions:
//
//	Placed ──> Assigning ──> Accepted ──> PickedUp ──> OutForDelivery ──> Delivered
//	              │  ▲  ▲        │
//	              │  │  └────────┘ (agent-initiated cancel re-enters dispatch)
//	              │  └── NoAgentAvailable (customer-triggered retry)
//	              │
//	              └──> NoAgentAvailable
//	Placed|Assigning|Accepted ──> Cancelled
//
// Delivered and Cancelled are terminal. NoAgentAvailable is recoverable via
// retry only.
type Status int

const (
	// Unknown represents an invalid or undefined status. This value (0)
	// helps catch uninitialized Status values.
	Unknown Status = iota

	// Placed is the initial status, set when the order enters the system
	// and before dispatch takes over.
	Placed

	// Assigning means an offer round is open: candidate agents have been
	// selected and the order is waiting for an accept.
	Assigning

	// Accepted means exactly one agent claimed the offer and is bound to
	// the order.
	Accepted

	// PickedUp means the assigned agent collected the order.
	PickedUp

	// OutForDelivery means the order is on its way to the customer.
	OutForDelivery

	// Delivered is a terminal status: the order reached the customer.
	Delivered

	// Cancelled is a terminal status: the order was withdrawn before
	// delivery.
	Cancelled

	// NoAgentAvailable means an offer round expired with no accept and no
	// further candidates. Recoverable: a customer-triggered retry re-enters
	// Assigning.
	NoAgentAvailable
)

// transitions is the closed edge set of the lifecycle state machine.
// Accepted -> Assigning is the agent-initiated cancellation edge: the order
// re-enters dispatch excluding the cancelling agent.
var transitions = map[Status][]Status{
	Placed:           {Assigning, Cancelled},
	Assigning:        {Accepted, NoAgentAvailable, Cancelled},
	Accepted:         {PickedUp, Cancelled, Assigning},
	PickedUp:         {OutForDelivery},
	OutForDelivery:   {Delivered},
	NoAgentAvailable: {Assigning},
}

func statusStrings() map[Status]string {
	return map[Status]string{
		Unknown:          "Unknown",
		Placed:           "Placed",
		Assigning:        "Assigning",
		Accepted:         "Accepted",
		PickedUp:         "PickedUp",
		OutForDelivery:   "OutForDelivery",
		Delivered:        "Delivered",
		Cancelled:        "Cancelled",
		NoAgentAvailable: "NoAgentAvailable",
	}
}

// Validate checks that the Status is one of the declared lifecycle states.
// Unknown and out-of-range values are invalid.
func (s Status) Validate() error {
	if s == Unknown {
		return fmt.Errorf("%w: %d is not a valid status", ErrInvalidTransition, s)
	}
	if _, ok := statusStrings()[s]; !ok {
		return fmt.Errorf("%w: %d is not a valid status", ErrInvalidTransition, s)
	}
	return nil
}

// String returns the human-readable name of the status. Implements
// fmt.Stringer and is safe on any value, including invalid ones.
func (s Status) String() string {
	if str, ok := statusStrings()[s]; ok {
		return str
	}
	return "Unknown"
}

// CanTransitionTo reports whether next is a declared edge from s.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TransitionTo returns next if the edge s -> next is declared, or
// ErrInvalidTransition (wrapped with both states) otherwise. The receiver is
// never mutated; a rejected transition leaves the caller's state unchanged.
func (s Status) TransitionTo(next Status) (Status, error) {
	if err := next.Validate(); err != nil {
		return 0, err
	}
	if !s.CanTransitionTo(next) {
		return 0, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, next)
	}
	return next, nil
}

// IsTerminal reports whether the status ends the lifecycle. Terminal orders
// are read-only to the dispatch core.
func (s Status) IsTerminal() bool {
	return s == Delivered || s == Cancelled
}

// IsLive reports whether location and route relay is permitted: an agent is
// bound and the delivery is in progress.
func (s Status) IsLive() bool {
	return s == Accepted || s == PickedUp || s == OutForDelivery
}

// CanCustomerCancel reports whether a customer-initiated cancellation is
// permitted. Customers may cancel before pickup only.
func (s Status) CanCustomerCancel() bool {
	return s == Placed || s == Assigning || s == Accepted
}

// RequiresAgent reports whether the status implies a bound agent. Used to
// validate consistency between status and assignment when restoring an
// order from persistence.
func (s Status) RequiresAgent() bool {
	return s == Accepted || s == PickedUp || s == OutForDelivery || s == Delivered
}
