package agent

import (
	"errors"
	"time"

	"dispatch/internal/core/domain/model/kernel"
	"dispatch/internal/pkg/errs"
	"dispatch/internal/pkg/guard"
)

const (
	// initialAcceptanceRate is the score a fresh agent starts with.
	initialAcceptanceRate = 1.0
	// cancellationPenalty is subtracted from the acceptance rate each time
	// the agent cancels an order it had accepted.
	cancellationPenalty = 0.05
)

// Domain errors for agent operations.
var (
	// ErrNameIsRequired is returned when creating an agent without a name.
	ErrNameIsRequired = errs.NewValueIsRequiredError("name")
	// ErrServiceAreaIsRequired is returned when creating an agent with no zones.
	ErrServiceAreaIsRequired = errs.NewValueIsRequiredError("serviceArea")
	// ErrAgentIsNotConstructed is returned when using an improperly initialized Agent.
	ErrAgentIsNotConstructed = errors.New("Agent must be created via NewAgent constructor")
	// ErrAgentBusy is returned when binding an order to an agent that already
	// holds one. Exclusivity: at most one non-terminal order per agent.
	ErrAgentBusy = errors.New("agent already has an active order")
	// ErrOrderNotHeld is returned when releasing an order the agent does not hold.
	ErrOrderNotHeld = errors.New("agent does not hold this order")
)

// Agent represents a delivery agent in the dispatch core. It is an aggregate
// root tracking presence, last-known position, the service area the agent
// covers, and the single order the agent may be working on.
//
// Business rules:
//   - An agent holds at most one non-terminal order at a time
//   - Going offline does not release the active order; a transient
//     disconnect must not revoke an assignment
//   - The acceptance rate is penalized when the agent cancels after accepting
type Agent struct {
	id          kernel.UUID
	name        string
	online      bool
	location    *kernel.GeoPoint
	locatedAt   time.Time
	serviceArea []kernel.Zone
	activeOrder *kernel.UUID
	acceptance  float64
	guard       guard.ConstructorGuard
}

// NewAgent creates an offline agent with no position and a full acceptance
// rate. The service area must contain at least one valid zone.
func NewAgent(id kernel.UUID, name string, serviceArea []kernel.Zone) (*Agent, error) {
	a := &Agent{
		acceptance: initialAcceptanceRate,
		guard:      guard.NewConstructorGuard(),
	}

	if err := errors.Join(
		a.setID(id),
		a.setName(name),
		a.setServiceArea(serviceArea),
	); err != nil {
		return nil, err
	}

	return a, nil
}

// Validate ensures the Agent was built through NewAgent.
func (a *Agent) Validate() error {
	if a == nil || a.guard.Validate(ErrAgentIsNotConstructed) != nil {
		return ErrAgentIsNotConstructed
	}
	return nil
}

// ID returns the agent identity.
func (a *Agent) ID() kernel.UUID {
	return a.id
}

// Name returns the agent's display name.
func (a *Agent) Name() string {
	return a.name
}

// IsOnline reports whether the agent currently has a live connection.
func (a *Agent) IsOnline() bool {
	return a.online
}

// SetOnline marks the agent as connected.
func (a *Agent) SetOnline() {
	a.online = true
}

// SetOffline marks the agent as disconnected. The active order, if any, is
// deliberately preserved: a transient disconnect does not revoke an
// assignment.
func (a *Agent) SetOffline() {
	a.online = false
}

// UpdateLocation records the agent's last-known position and its timestamp.
func (a *Agent) UpdateLocation(location kernel.GeoPoint, at time.Time) error {
	if err := location.Validate(); err != nil {
		return err
	}

	a.location = &location
	a.locatedAt = at
	return nil
}

// Location returns the last-known position and its timestamp. The boolean is
// false when the agent has not reported a position yet.
func (a *Agent) Location() (kernel.GeoPoint, time.Time, bool) {
	if a.location == nil {
		return kernel.GeoPoint{}, time.Time{}, false
	}
	return *a.location, a.locatedAt, true
}

// ServiceArea returns the zones the agent covers.
func (a *Agent) ServiceArea() []kernel.Zone {
	area := make([]kernel.Zone, len(a.serviceArea))
	copy(area, a.serviceArea)
	return area
}

// ServesZone reports whether the agent covers the given zone.
func (a *Agent) ServesZone(zone kernel.Zone) bool {
	for _, z := range a.serviceArea {
		if z.IsEqual(zone) {
			return true
		}
	}
	return false
}

// ActiveOrderID returns the order the agent currently holds, or nil.
func (a *Agent) ActiveOrderID() *kernel.UUID {
	return a.activeOrder
}

// IsAvailable reports whether the agent can be offered a new order: online
// with no active order.
func (a *Agent) IsAvailable() bool {
	return a.online && a.activeOrder == nil
}

// TakeOrder binds an order to the agent. Fails with ErrAgentBusy if the
// agent already holds one.
func (a *Agent) TakeOrder(orderID kernel.UUID) error {
	if err := orderID.Validate(); err != nil {
		return err
	}
	if a.activeOrder != nil {
		return ErrAgentBusy
	}

	a.activeOrder = &orderID
	return nil
}

// ReleaseOrder clears the agent's active order. Fails with ErrOrderNotHeld
// when the agent holds a different order or none at all.
func (a *Agent) ReleaseOrder(orderID kernel.UUID) error {
	if a.activeOrder == nil || !a.activeOrder.IsEqual(orderID) {
		return ErrOrderNotHeld
	}

	a.activeOrder = nil
	return nil
}

// AcceptanceRate returns the agent's current acceptance score in [0, 1].
func (a *Agent) AcceptanceRate() float64 {
	return a.acceptance
}

// PenalizeAcceptance lowers the acceptance score after an agent-initiated
// cancellation. The score never drops below zero.
func (a *Agent) PenalizeAcceptance() {
	a.acceptance -= cancellationPenalty
	if a.acceptance < 0 {
		a.acceptance = 0
	}
}

// Clone returns an independent copy of the agent. The registry hands clones
// to readers that run outside its lock, so the live record can keep mutating
// without racing them.
func (a *Agent) Clone() *Agent {
	clone := *a
	if a.location != nil {
		location := *a.location
		clone.location = &location
	}
	if a.activeOrder != nil {
		activeOrder := *a.activeOrder
		clone.activeOrder = &activeOrder
	}
	clone.serviceArea = make([]kernel.Zone, len(a.serviceArea))
	copy(clone.serviceArea, a.serviceArea)
	return &clone
}

func (a *Agent) setID(id kernel.UUID) error {
	if err := id.Validate(); err != nil {
		return err
	}
	a.id = id
	return nil
}

func (a *Agent) setName(name string) error {
	if name == "" {
		return ErrNameIsRequired
	}
	a.name = name
	return nil
}

func (a *Agent) setServiceArea(serviceArea []kernel.Zone) error {
	if len(serviceArea) == 0 {
		return ErrServiceAreaIsRequired
	}
	for _, zone := range serviceArea {
		if err := zone.Validate(); err != nil {
			return err
		}
	}

	a.serviceArea = make([]kernel.Zone, len(serviceArea))
	copy(a.serviceArea, serviceArea)
	return nil
}
