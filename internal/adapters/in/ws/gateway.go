// Package ws is the inbound real-time adapter: it authenticates websocket
// sessions, registers them in the presence registry, routes inbound events to
// the dispatch coordinator and the relays, and implements the outbound
// notifier over the same sessions.
package ws

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"dispatch/internal/core/application/dispatch"
	"dispatch/internal/core/application/presence"
	"dispatch/internal/core/application/relay"
	"dispatch/internal/core/domain/model/kernel"
	"dispatch/internal/pkg/errs"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// Gateway multiplexes authenticated websocket sessions onto the dispatch
// core. An event referencing an unknown order or identity is a no-op, never
// a fatal error for the connection.
type Gateway struct {
	registry    *presence.Registry
	coordinator *dispatch.Coordinator
	locations   *relay.LocationRelay
	chat        *relay.ChatRelay
	auth        Authenticator
	logger      *slog.Logger
	upgrader    websocket.Upgrader
}

// NewGateway creates the websocket gateway.
func NewGateway(
	registry *presence.Registry,
	coordinator *dispatch.Coordinator,
	locations *relay.LocationRelay,
	chat *relay.ChatRelay,
	auth Authenticator,
	logger *slog.Logger,
) *Gateway {
	return &Gateway{
		registry:    registry,
		coordinator: coordinator,
		locations:   locations,
		chat:        chat,
		auth:        auth,
		logger:      logger.With("component", "ws-gateway"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts the gateway endpoint on the echo instance.
func (g *Gateway) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws", g.handleConnection)
}

func (g *Gateway) handleConnection(c echo.Context) error {
	id, kind, err := g.auth.Authenticate(c.QueryParam("token"))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}

	socket, err := g.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		g.logger.Debug("upgrade failed", "error", err)
		return nil
	}

	session := newConn(socket, g.logger)
	g.registry.Connect(id, kind, session)
	g.logger.Info("session connected", "id", id, "kind", kindLabel(kind))

	defer func() {
		g.registry.Disconnect(id, session)
		_ = session.Close()
		g.logger.Info("session disconnected", "id", id)
	}()

	for {
		_, payload, err := socket.ReadMessage()
		if err != nil {
			return nil
		}
		g.registry.Touch(id)

		var event inboundEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			g.logger.Debug("malformed event dropped", "id", id, "error", err)
			continue
		}

		switch kind {
		case presence.KindAgent:
			g.routeAgentEvent(c, session, id, event)
		case presence.KindCustomer:
			g.routeCustomerEvent(c, session, id, event)
		}
	}
}

func (g *Gateway) routeAgentEvent(c echo.Context, session *conn, agentID kernel.UUID, event inboundEvent) {
	ctx := c.Request().Context()

	switch event.Type {
	case typeAgentOnline:
		// Presence is established by the connection itself.

	case typeAcceptOrder:
		orderID, ok := g.parseOrderID(session, event)
		if !ok {
			return
		}
		err := g.coordinator.Accept(ctx, orderID, agentID, event.Generation)
		session.Send(acceptResultEvent{
			Type:    typeAcceptResult,
			OrderID: event.OrderID,
			Outcome: acceptOutcome(err),
		})

	case typeRejectOrder:
		orderID, ok := g.parseOrderID(session, event)
		if !ok {
			return
		}
		if err := g.coordinator.Reject(ctx, orderID, agentID, event.Generation); err != nil {
			g.logger.Debug("reject dropped", "orderID", orderID, "agentID", agentID, "error", err)
		}

	case typeCancelOrder:
		orderID, ok := g.parseOrderID(session, event)
		if !ok {
			return
		}
		if err := g.coordinator.CancelByAgent(ctx, orderID, agentID, event.Reason); err != nil {
			g.sendError(session, event.OrderID, err)
		}

	case typeAgentLocationUpdate:
		var orderID *kernel.UUID
		if event.OrderID != "" {
			id, err := kernel.UUIDFromString(event.OrderID)
			if err != nil {
				return
			}
			orderID = &id
		}
		if err := g.locations.HandleAgentLocation(agentID, orderID, event.Latitude, event.Longitude); err != nil {
			g.logger.Debug("location sample dropped", "agentID", agentID, "error", err)
		}

	case typeRouteUpdate:
		orderID, ok := g.parseOrderID(session, event)
		if !ok {
			return
		}
		if err := g.locations.HandleRouteUpdate(agentID, orderID, event.Route); err != nil {
			g.logger.Debug("route update dropped", "orderID", orderID, "error", err)
		}

	case typeMessageUser:
		orderID, ok := g.parseOrderID(session, event)
		if !ok {
			return
		}
		if err := g.chat.MessageToUser(agentID, orderID, event.Text); err != nil {
			g.sendError(session, event.OrderID, err)
		}

	case typeTrackOrder:
		orderID, ok := g.parseOrderID(session, event)
		if !ok {
			return
		}
		if err := g.locations.ResendLastKnown(orderID, agentID); err != nil {
			g.logger.Debug("track request dropped", "orderID", orderID, "error", err)
		}

	default:
		g.logger.Debug("unknown agent event dropped", "type", event.Type, "agentID", agentID)
	}
}

func (g *Gateway) routeCustomerEvent(c echo.Context, session *conn, customerID kernel.UUID, event inboundEvent) {
	switch event.Type {
	case typeUserOnline:
		// Presence is established by the connection itself.

	case typeUserLocationUpdate:
		orderID, ok := g.parseOrderID(session, event)
		if !ok {
			return
		}
		if err := g.locations.HandleUserLocation(customerID, orderID, event.Latitude, event.Longitude); err != nil {
			g.logger.Debug("location sample dropped", "customerID", customerID, "error", err)
		}

	case typeMessageAgent:
		orderID, ok := g.parseOrderID(session, event)
		if !ok {
			return
		}
		if err := g.chat.MessageToAgent(customerID, orderID, event.Text); err != nil {
			g.sendError(session, event.OrderID, err)
		}

	case typeTrackOrder:
		orderID, ok := g.parseOrderID(session, event)
		if !ok {
			return
		}
		if err := g.locations.ResendLastKnown(orderID, customerID); err != nil {
			g.logger.Debug("track request dropped", "orderID", orderID, "error", err)
		}

	default:
		g.logger.Debug("unknown customer event dropped", "type", event.Type, "customerID", customerID)
	}
}

func (g *Gateway) parseOrderID(session *conn, event inboundEvent) (kernel.UUID, bool) {
	orderID, err := kernel.UUIDFromString(event.OrderID)
	if err != nil {
		session.Send(requestErrorEvent{
			Type:    typeRequestError,
			OrderID: event.OrderID,
			Code:    "validation",
			Message: "malformed order id",
		})
		return kernel.UUID{}, false
	}
	return orderID, true
}

// sendError reports a failed request back to the originating connection only.
func (g *Gateway) sendError(session *conn, orderID string, err error) {
	session.Send(requestErrorEvent{
		Type:    typeRequestError,
		OrderID: orderID,
		Code:    errorCode(err),
		Message: err.Error(),
	})
}

func acceptOutcome(err error) string {
	switch {
	case err == nil:
		return outcomeWon
	case errors.Is(err, dispatch.ErrOrderAlreadyAssigned), errors.Is(err, dispatch.ErrOfferNotCurrent):
		return outcomeTooLate
	case errors.Is(err, errs.ErrObjectNotFound):
		return outcomeNotFound
	default:
		return outcomeInvalid
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, errs.ErrObjectNotFound):
		return "notFound"
	case errors.Is(err, dispatch.ErrNotAssignee), errors.Is(err, dispatch.ErrOrderAlreadyAssigned):
		return "conflict"
	case errors.Is(err, errs.ErrValueIsRequired), errors.Is(err, errs.ErrValueIsInvalid), errors.Is(err, errs.ErrValueIsOutOfRange):
		return "validation"
	default:
		return "state"
	}
}
