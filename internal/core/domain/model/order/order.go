package order

import (
	"errors"

	"dispatch/internal/core/domain/model/kernel"
	"dispatch/internal/pkg/errs"
	"dispatch/internal/pkg/guard"
)

var (
	// ErrOrderIsNotConstructed is returned when an Order instance was not
	// created through NewOrder or RestoreOrder.
	ErrOrderIsNotConstructed = errors.New("Order must be created via NewOrder or RestoreOrder constructor")

	// ErrAgentAlreadyAssigned is returned when assigning an agent to an
	// order that already has one bound. Exclusivity: at most one agent per
	// order at any instant.
	ErrAgentAlreadyAssigned = errors.New("order already has an assigned agent")

	// ErrPaymentOnTerminalOrder is returned when setting the payment status
	// of a Delivered or Cancelled order.
	ErrPaymentOnTerminalOrder = errors.New("payment status cannot change on a terminal order")
)

// Order is the aggregate root for a delivery order inside the dispatch core.
// The dispatch coordinator owns the order while it is non-terminal; once the
// status is terminal the aggregate is read-only to the core.
//
// Invariants:
//   - identity, customer, shipping location, and zone are valid at construction
//   - at most one agent is assigned at any instant
//   - status only changes along declared state machine edges
//   - payment status changes only while non-terminal and never moves the lifecycle
type Order struct {
	id               kernel.UUID
	customerID       kernel.UUID
	agentID          *kernel.UUID
	shippingLocation kernel.GeoPoint
	zone             kernel.Zone
	status           Status
	paymentStatus    PaymentStatus
	guard            guard.ConstructorGuard
}

// NewOrder creates an order in Placed status with pending payment.
// All parameters are validated; errors are aggregated.
func NewOrder(id, customerID kernel.UUID, shippingLocation kernel.GeoPoint, zone kernel.Zone) (*Order, error) {
	o := &Order{
		status:        Placed,
		paymentStatus: PaymentPending,
		guard:         guard.NewConstructorGuard(),
	}

	if err := errors.Join(
		o.setID(id),
		o.setCustomerID(customerID),
		o.setShippingLocation(shippingLocation),
		o.setZone(zone),
	); err != nil {
		return nil, err
	}

	return o, nil
}

// RestoreOrder reconstructs an order from persistence in an arbitrary valid
// state. Unlike NewOrder it accepts the status, payment status, and agent
// binding as stored, validating consistency between status and assignment.
func RestoreOrder(
	id, customerID kernel.UUID,
	shippingLocation kernel.GeoPoint,
	zone kernel.Zone,
	status Status,
	paymentStatus PaymentStatus,
	agentID *kernel.UUID,
) (*Order, error) {
	o := &Order{
		guard: guard.NewConstructorGuard(),
	}

	if err := errors.Join(
		o.setID(id),
		o.setCustomerID(customerID),
		o.setShippingLocation(shippingLocation),
		o.setZone(zone),
		o.setStatus(status),
		o.setPaymentStatus(paymentStatus),
		o.setAgentID(agentID),
	); err != nil {
		return nil, err
	}

	if o.status.RequiresAgent() && o.agentID == nil {
		return nil, errs.NewValueIsRequiredError("agentID")
	}
	if !o.status.RequiresAgent() && o.agentID != nil {
		return nil, errs.NewValueIsInvalidError("agentID")
	}

	return o, nil
}

// Validate ensures the Order was built through a constructor.
func (o *Order) Validate() error {
	if o == nil || o.guard.Validate(ErrOrderIsNotConstructed) != nil {
		return ErrOrderIsNotConstructed
	}
	return nil
}

// IsEqual compares two orders by identity.
func (o *Order) IsEqual(other *Order) bool {
	return other != nil && o.id.IsEqual(other.id)
}

// ID returns the order identity.
func (o *Order) ID() kernel.UUID {
	return o.id
}

// CustomerID returns the identity of the customer who placed the order.
func (o *Order) CustomerID() kernel.UUID {
	return o.customerID
}

// AgentID returns the assigned agent's identity, or nil while unassigned.
func (o *Order) AgentID() *kernel.UUID {
	return o.agentID
}

// ShippingLocation returns the delivery destination.
func (o *Order) ShippingLocation() kernel.GeoPoint {
	return o.shippingLocation
}

// Zone returns the service-area zone the shipping location belongs to.
func (o *Order) Zone() kernel.Zone {
	return o.zone
}

// Status returns the current lifecycle status.
func (o *Order) Status() Status {
	return o.status
}

// PaymentStatus returns the payment side channel value.
func (o *Order) PaymentStatus() PaymentStatus {
	return o.paymentStatus
}

// StartAssigning opens the order for dispatch: Placed -> Assigning, or
// NoAgentAvailable -> Assigning on a customer-triggered retry.
func (o *Order) StartAssigning() error {
	next, err := o.status.TransitionTo(Assigning)
	if err != nil {
		return err
	}

	o.status = next
	return nil
}

// Assign binds an agent and moves the order to Accepted. The order must be
// in Assigning with no agent bound; a second assignment attempt fails with
// ErrAgentAlreadyAssigned without touching state.
func (o *Order) Assign(agentID kernel.UUID) error {
	if err := agentID.Validate(); err != nil {
		return err
	}
	if o.agentID != nil {
		return ErrAgentAlreadyAssigned
	}

	next, err := o.status.TransitionTo(Accepted)
	if err != nil {
		return err
	}

	o.status = next
	o.agentID = &agentID
	return nil
}

// Unassign releases the bound agent and re-enters Assigning. This is the
// agent-initiated cancellation edge: Accepted -> Assigning.
func (o *Order) Unassign() error {
	next, err := o.status.TransitionTo(Assigning)
	if err != nil {
		return err
	}

	o.status = next
	o.agentID = nil
	return nil
}

// MarkPickedUp records that the assigned agent collected the order.
func (o *Order) MarkPickedUp() error {
	next, err := o.status.TransitionTo(PickedUp)
	if err != nil {
		return err
	}

	o.status = next
	return nil
}

// MarkOutForDelivery records that the order left for the customer.
func (o *Order) MarkOutForDelivery() error {
	next, err := o.status.TransitionTo(OutForDelivery)
	if err != nil {
		return err
	}

	o.status = next
	return nil
}

// MarkDelivered completes the lifecycle. Terminal.
func (o *Order) MarkDelivered() error {
	next, err := o.status.TransitionTo(Delivered)
	if err != nil {
		return err
	}

	o.status = next
	return nil
}

// Cancel withdraws the order. Terminal. Permitted from Placed, Assigning,
// and Accepted; the bound agent, if any, is released.
func (o *Order) Cancel() error {
	next, err := o.status.TransitionTo(Cancelled)
	if err != nil {
		return err
	}

	o.status = next
	o.agentID = nil
	return nil
}

// MarkNoAgentAvailable records that the offer round expired with no
// candidates left: Assigning -> NoAgentAvailable.
func (o *Order) MarkNoAgentAvailable() error {
	next, err := o.status.TransitionTo(NoAgentAvailable)
	if err != nil {
		return err
	}

	o.status = next
	return nil
}

// SetPaymentStatus updates the payment side channel. Rejected on terminal
// orders; never moves the lifecycle.
func (o *Order) SetPaymentStatus(paymentStatus PaymentStatus) error {
	if err := paymentStatus.Validate(); err != nil {
		return err
	}
	if o.status.IsTerminal() {
		return ErrPaymentOnTerminalOrder
	}

	o.paymentStatus = paymentStatus
	return nil
}

func (o *Order) setID(id kernel.UUID) error {
	if err := id.Validate(); err != nil {
		return err
	}
	o.id = id
	return nil
}

func (o *Order) setCustomerID(customerID kernel.UUID) error {
	if err := customerID.Validate(); err != nil {
		return errs.NewValueIsRequiredErrorWithCause("customerID", err)
	}
	o.customerID = customerID
	return nil
}

func (o *Order) setShippingLocation(location kernel.GeoPoint) error {
	if err := location.Validate(); err != nil {
		return err
	}
	o.shippingLocation = location
	return nil
}

func (o *Order) setZone(zone kernel.Zone) error {
	if err := zone.Validate(); err != nil {
		return err
	}
	o.zone = zone
	return nil
}

func (o *Order) setStatus(status Status) error {
	if err := status.Validate(); err != nil {
		return err
	}
	o.status = status
	return nil
}

func (o *Order) setPaymentStatus(paymentStatus PaymentStatus) error {
	if err := paymentStatus.Validate(); err != nil {
		return err
	}
	o.paymentStatus = paymentStatus
	return nil
}

func (o *Order) setAgentID(agentID *kernel.UUID) error {
	if agentID == nil {
		return nil
	}
	if err := agentID.Validate(); err != nil {
		return err
	}
	o.agentID = agentID
	return nil
}
