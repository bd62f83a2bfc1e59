package ports

import (
	"time"

	"dispatch/internal/core/domain/model/kernel"
	"dispatch/internal/core/domain/model/order"
)

// OrderOffer carries the order details broadcast to candidate agents during
// a dispatch round. Generation identifies the offer window the broadcast
// belongs to; an accept for a different generation is stale.
type OrderOffer struct {
	OrderID          kernel.UUID
	CustomerID       kernel.UUID
	ShippingLocation kernel.GeoPoint
	Zone             kernel.Zone
	Generation       uint64
	ExpiresAt        time.Time
}

// AgentInfo is the agent summary attached to customer-facing status events
// once an order has an assignee.
type AgentInfo struct {
	ID   kernel.UUID
	Name string
}

// Notifier is the outbound event contract implemented by the session gateway.
// All sends are fire-and-forget: a notification to an identity with no live
// connection is silently dropped, and no method blocks on delivery.
type Notifier interface {
	// Agent-facing events.

	// NotifyNewOrderOffer broadcasts an order offer to a candidate agent.
	NotifyNewOrderOffer(agentID kernel.UUID, offer OrderOffer)

	// NotifyOfferWithdrawn tells an agent a previously broadcast offer is
	// no longer claimable.
	NotifyOfferWithdrawn(agentID kernel.UUID, orderID kernel.UUID)

	// NotifyOrderCancelled tells the assigned agent the customer cancelled
	// the order.
	NotifyOrderCancelled(agentID kernel.UUID, orderID kernel.UUID)

	// NotifyUserLocation relays the customer's live position to the
	// assigned agent.
	NotifyUserLocation(agentID kernel.UUID, orderID kernel.UUID, location kernel.GeoPoint)

	// NotifyAgentMessage delivers a customer chat message to the agent.
	NotifyAgentMessage(agentID kernel.UUID, orderID kernel.UUID, text string, sentAt time.Time)

	// Customer-facing events.

	// NotifyOrderStatusChanged reports a lifecycle transition to the
	// customer. The agent summary is present once the order has an
	// assignee.
	NotifyOrderStatusChanged(customerID kernel.UUID, orderID kernel.UUID, status order.Status, agent *AgentInfo)

	// NotifyOrderCancelledByAgent tells the customer the assigned agent
	// backed out and the order re-entered dispatch.
	NotifyOrderCancelledByAgent(customerID kernel.UUID, orderID kernel.UUID, status order.Status, reason string)

	// NotifyPaymentStatusChanged reports a payment status flip to the
	// customer.
	NotifyPaymentStatusChanged(customerID kernel.UUID, orderID kernel.UUID, paymentStatus order.PaymentStatus)

	// NotifyRouteUpdate relays the agent's route polyline to the customer.
	// A nil route clears any previously shown route.
	NotifyRouteUpdate(customerID kernel.UUID, orderID kernel.UUID, route *string)

	// NotifyLiveLocation relays the agent's live position to the customer.
	NotifyLiveLocation(customerID kernel.UUID, orderID kernel.UUID, location kernel.GeoPoint)

	// NotifyUserMessage delivers an agent chat message to the customer.
	NotifyUserMessage(customerID kernel.UUID, orderID kernel.UUID, text string, sentAt time.Time)

	// NotifyNoAgentAvailable tells the customer dispatch exhausted all
	// candidate tiers without an accept.
	NotifyNoAgentAvailable(customerID kernel.UUID, orderID kernel.UUID)
}
