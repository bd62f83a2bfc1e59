package ws

import (
	"log/slog"
	"time"

	"dispatch/internal/core/application/presence"
	"dispatch/internal/core/domain/model/kernel"
	"dispatch/internal/core/domain/model/order"
	"dispatch/internal/core/ports"
)

// Notifier delivers outbound core events over the identities' live websocket
// sessions. An identity without a session simply misses the event; the core
// treats every send as fire-and-forget.
type Notifier struct {
	registry *presence.Registry
	logger   *slog.Logger
}

// NewNotifier creates a websocket-backed notifier.
func NewNotifier(registry *presence.Registry, logger *slog.Logger) *Notifier {
	return &Notifier{
		registry: registry,
		logger:   logger.With("component", "ws-notifier"),
	}
}

var _ ports.Notifier = (*Notifier)(nil)

func (n *Notifier) NotifyNewOrderOffer(agentID kernel.UUID, offer ports.OrderOffer) {
	n.send(agentID, newOrderOfferEvent{
		Type:       typeNewOrderOffer,
		OrderID:    offer.OrderID.String(),
		CustomerID: offer.CustomerID.String(),
		ShippingLocation: geoPointPayload{
			Latitude:  offer.ShippingLocation.Latitude(),
			Longitude: offer.ShippingLocation.Longitude(),
		},
		Zone:       offer.Zone.Name(),
		Generation: offer.Generation,
		ExpiresAt:  offer.ExpiresAt,
	})
}

func (n *Notifier) NotifyOfferWithdrawn(agentID kernel.UUID, orderID kernel.UUID) {
	n.send(agentID, orderRefEvent{Type: typeOfferWithdrawn, OrderID: orderID.String()})
}

func (n *Notifier) NotifyOrderCancelled(agentID kernel.UUID, orderID kernel.UUID) {
	n.send(agentID, orderRefEvent{Type: typeOrderCancelled, OrderID: orderID.String()})
}

func (n *Notifier) NotifyUserLocation(agentID kernel.UUID, orderID kernel.UUID, location kernel.GeoPoint) {
	n.send(agentID, locationEvent{
		Type:      typeUserLocationUpdate,
		OrderID:   orderID.String(),
		Latitude:  location.Latitude(),
		Longitude: location.Longitude(),
	})
}

func (n *Notifier) NotifyAgentMessage(agentID kernel.UUID, orderID kernel.UUID, text string, sentAt time.Time) {
	n.send(agentID, chatEvent{
		Type:    typeAgentMessage,
		OrderID: orderID.String(),
		Text:    text,
		SentAt:  sentAt,
	})
}

func (n *Notifier) NotifyOrderStatusChanged(customerID kernel.UUID, orderID kernel.UUID, status order.Status, agentInfo *ports.AgentInfo) {
	event := orderStatusChangedEvent{
		Type:    typeOrderStatusChanged,
		OrderID: orderID.String(),
		Status:  status.String(),
	}
	if agentInfo != nil {
		event.Agent = &agentPayload{ID: agentInfo.ID.String(), Name: agentInfo.Name}
	}
	n.send(customerID, event)
}

func (n *Notifier) NotifyOrderCancelledByAgent(customerID kernel.UUID, orderID kernel.UUID, status order.Status, reason string) {
	n.send(customerID, orderCancelledByAgentEvent{
		Type:    typeOrderCancelledByAgent,
		OrderID: orderID.String(),
		Status:  status.String(),
		Reason:  reason,
	})
}

func (n *Notifier) NotifyPaymentStatusChanged(customerID kernel.UUID, orderID kernel.UUID, paymentStatus order.PaymentStatus) {
	n.send(customerID, paymentStatusChangedEvent{
		Type:          typePaymentStatusChanged,
		OrderID:       orderID.String(),
		PaymentStatus: paymentStatus.String(),
	})
}

func (n *Notifier) NotifyRouteUpdate(customerID kernel.UUID, orderID kernel.UUID, route *string) {
	n.send(customerID, routeUpdateEvent{
		Type:    typeRouteUpdate,
		OrderID: orderID.String(),
		Route:   route,
	})
}

func (n *Notifier) NotifyLiveLocation(customerID kernel.UUID, orderID kernel.UUID, location kernel.GeoPoint) {
	n.send(customerID, locationEvent{
		Type:      typeLiveLocationUpdate,
		OrderID:   orderID.String(),
		Latitude:  location.Latitude(),
		Longitude: location.Longitude(),
	})
}

func (n *Notifier) NotifyUserMessage(customerID kernel.UUID, orderID kernel.UUID, text string, sentAt time.Time) {
	n.send(customerID, chatEvent{
		Type:    typeUserMessage,
		OrderID: orderID.String(),
		Text:    text,
		SentAt:  sentAt,
	})
}

func (n *Notifier) NotifyNoAgentAvailable(customerID kernel.UUID, orderID kernel.UUID) {
	n.send(customerID, orderRefEvent{Type: typeNoAgentAvailable, OrderID: orderID.String()})
}

type sender interface {
	Send(event any)
}

func (n *Notifier) send(id kernel.UUID, event any) {
	session, ok := n.registry.Session(id)
	if !ok {
		return
	}
	s, ok := session.(sender)
	if !ok {
		n.logger.Error("session does not support sending", "id", id)
		return
	}
	s.Send(event)
}
