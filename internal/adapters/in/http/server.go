// Package http exposes the REST surface for order management. Live traffic
// (offers, relays, chat) goes over the websocket gateway; this adapter covers
// order intake, lifecycle commands and read-side projections.
package http

import (
	"context"
	"errors"
	"net/http"

	"dispatch/internal/core/application/dispatch"
	"dispatch/internal/core/application/presence"
	"dispatch/internal/core/application/usecases/commands"
	"dispatch/internal/core/application/usecases/queries"
	"dispatch/internal/core/domain/model/agent"
	"dispatch/internal/core/domain/model/kernel"
	"dispatch/internal/core/domain/model/order"
	"dispatch/internal/pkg/errs"

	"github.com/labstack/echo/v4"
)

// TokenIssuer mints websocket session tokens for registered parties.
type TokenIssuer interface {
	Issue(id kernel.UUID, kind presence.Kind) string
}

// Server coordinates between HTTP handlers and application use cases.
type Server struct {
	createOrderHandler commands.CreateOrderCommandHandler

	getOrderHandler        queries.GetOrderQueryHandler
	getActiveOrdersHandler queries.GetActiveOrdersQueryHandler

	coordinator *dispatch.Coordinator
	registry    *presence.Registry
	tokens      TokenIssuer
}

// NewServer creates a new HTTP server with the required handlers and services.
func NewServer(
	createOrderHandler commands.CreateOrderCommandHandler,
	getOrderHandler queries.GetOrderQueryHandler,
	getActiveOrdersHandler queries.GetActiveOrdersQueryHandler,
	coordinator *dispatch.Coordinator,
	registry *presence.Registry,
	tokens TokenIssuer,
) *Server {
	return &Server{
		createOrderHandler:     createOrderHandler,
		getOrderHandler:        getOrderHandler,
		getActiveOrdersHandler: getActiveOrdersHandler,
		coordinator:            coordinator,
		registry:               registry,
		tokens:                 tokens,
	}
}

// RegisterRoutes attaches all REST endpoints to the echo instance.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	v1 := e.Group("/api/v1")

	v1.POST("/agents", s.RegisterAgent)
	v1.POST("/customers/sessions", s.CreateCustomerSession)

	v1.POST("/orders", s.CreateOrder)
	v1.GET("/orders/active", s.GetActiveOrders)
	v1.GET("/orders/:id", s.GetOrder)
	v1.POST("/orders/:id/cancel", s.CancelOrder)
	v1.POST("/orders/:id/retry", s.RetryOrder)
	v1.POST("/orders/:id/pickup", s.MarkPickedUp)
	v1.POST("/orders/:id/out-for-delivery", s.MarkOutForDelivery)
	v1.POST("/orders/:id/delivered", s.MarkDelivered)
	v1.POST("/orders/:id/payment", s.SetPaymentStatus)
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type registerAgentRequest struct {
	Name  string   `json:"name"`
	Zones []string `json:"zones"`
}

type sessionResponse struct {
	ID    string `json:"id"`
	Token string `json:"token"`
}

type createCustomerSessionRequest struct {
	CustomerID string `json:"customerId"`
}

type createOrderRequest struct {
	CustomerID string  `json:"customerId"`
	Latitude   float64 `json:"lat"`
	Longitude  float64 `json:"lng"`
	Zone       string  `json:"zone"`
}

type createOrderResponse struct {
	ID string `json:"id"`
}

type orderResponse struct {
	ID            string  `json:"id"`
	CustomerID    string  `json:"customerId"`
	AgentID       *string `json:"agentId,omitempty"`
	Latitude      float64 `json:"lat"`
	Longitude     float64 `json:"lng"`
	Zone          string  `json:"zone"`
	Status        string  `json:"status"`
	PaymentStatus string  `json:"paymentStatus"`
}

type agentActionRequest struct {
	AgentID string `json:"agentId"`
}

type paymentRequest struct {
	Status string `json:"status"`
}

// RegisterAgent handles POST /api/v1/agents - registers a delivery agent and
// issues its websocket session token.
func (s *Server) RegisterAgent(ctx echo.Context) error {
	var req registerAgentRequest
	if err := ctx.Bind(&req); err != nil {
		return badRequest(ctx, "Invalid request body")
	}

	zones := make([]kernel.Zone, 0, len(req.Zones))
	for _, name := range req.Zones {
		zone, err := kernel.NewZone(name)
		if err != nil {
			return badRequest(ctx, "Invalid zone: "+err.Error())
		}
		zones = append(zones, zone)
	}

	id := kernel.NewUUID()
	a, err := agent.NewAgent(id, req.Name, zones)
	if err != nil {
		return badRequest(ctx, "Invalid agent data: "+err.Error())
	}

	if err := s.registry.RegisterAgent(a); err != nil {
		return writeError(ctx, err)
	}

	return ctx.JSON(http.StatusCreated, sessionResponse{
		ID:    id.String(),
		Token: s.tokens.Issue(id, presence.KindAgent),
	})
}

// CreateCustomerSession handles POST /api/v1/customers/sessions - issues a
// websocket session token for a customer. A missing customer ID mints a new
// identity.
func (s *Server) CreateCustomerSession(ctx echo.Context) error {
	var req createCustomerSessionRequest
	if err := ctx.Bind(&req); err != nil {
		return badRequest(ctx, "Invalid request body")
	}

	id := kernel.NewUUID()
	if req.CustomerID != "" {
		parsed, err := kernel.UUIDFromString(req.CustomerID)
		if err != nil {
			return badRequest(ctx, "Invalid customer id")
		}
		id = parsed
	}

	return ctx.JSON(http.StatusCreated, sessionResponse{
		ID:    id.String(),
		Token: s.tokens.Issue(id, presence.KindCustomer),
	})
}

// CreateOrder handles POST /api/v1/orders - places a new order and starts
// dispatch.
func (s *Server) CreateOrder(ctx echo.Context) error {
	var req createOrderRequest
	if err := ctx.Bind(&req); err != nil {
		return badRequest(ctx, "Invalid request body")
	}

	customerID, err := kernel.UUIDFromString(req.CustomerID)
	if err != nil {
		return badRequest(ctx, "Invalid customer id")
	}

	location, err := kernel.NewGeoPoint(req.Latitude, req.Longitude)
	if err != nil {
		return badRequest(ctx, "Invalid shipping location: "+err.Error())
	}

	zone, err := kernel.NewZone(req.Zone)
	if err != nil {
		return badRequest(ctx, "Invalid zone: "+err.Error())
	}

	orderID := kernel.NewUUID()
	cmd, err := commands.NewCreateOrderCommand(orderID, customerID, location, zone)
	if err != nil {
		return badRequest(ctx, "Invalid order data: "+err.Error())
	}

	if handleErr := s.createOrderHandler.Handle(ctx.Request().Context(), cmd); handleErr != nil {
		return writeError(ctx, handleErr)
	}

	return ctx.JSON(http.StatusCreated, createOrderResponse{ID: orderID.String()})
}

// GetActiveOrders handles GET /api/v1/orders/active - retrieves all
// non-terminal orders.
func (s *Server) GetActiveOrders(ctx echo.Context) error {
	query := queries.NewGetActiveOrdersQuery()

	orders, err := s.getActiveOrdersHandler.Handle(ctx.Request().Context(), query)
	if err != nil {
		return writeError(ctx, err)
	}

	response := make([]orderResponse, len(orders))
	for i, o := range orders {
		response[i] = toOrderResponse(o.ID, o.CustomerID, o.AgentID, o.ShippingLocation, o.Zone, o.Status, o.PaymentStatus)
	}

	return ctx.JSON(http.StatusOK, response)
}

// GetOrder handles GET /api/v1/orders/:id - retrieves a single order.
func (s *Server) GetOrder(ctx echo.Context) error {
	orderID, err := kernel.UUIDFromString(ctx.Param("id"))
	if err != nil {
		return badRequest(ctx, "Invalid order id")
	}

	query, err := queries.NewGetOrderQuery(orderID)
	if err != nil {
		return badRequest(ctx, "Invalid order id")
	}

	o, err := s.getOrderHandler.Handle(ctx.Request().Context(), query)
	if err != nil {
		return writeError(ctx, err)
	}

	return ctx.JSON(http.StatusOK,
		toOrderResponse(o.ID, o.CustomerID, o.AgentID, o.ShippingLocation, o.Zone, o.Status, o.PaymentStatus))
}

// CancelOrder handles POST /api/v1/orders/:id/cancel - customer-initiated
// cancellation.
func (s *Server) CancelOrder(ctx echo.Context) error {
	orderID, err := kernel.UUIDFromString(ctx.Param("id"))
	if err != nil {
		return badRequest(ctx, "Invalid order id")
	}

	if err := s.coordinator.CancelByCustomer(ctx.Request().Context(), orderID); err != nil {
		return writeError(ctx, err)
	}

	return ctx.NoContent(http.StatusNoContent)
}

// RetryOrder handles POST /api/v1/orders/:id/retry - re-enters dispatch for
// an order stuck with no agent available.
func (s *Server) RetryOrder(ctx echo.Context) error {
	orderID, err := kernel.UUIDFromString(ctx.Param("id"))
	if err != nil {
		return badRequest(ctx, "Invalid order id")
	}

	if err := s.coordinator.Dispatch(ctx.Request().Context(), orderID); err != nil {
		return writeError(ctx, err)
	}

	return ctx.NoContent(http.StatusAccepted)
}

// MarkPickedUp handles POST /api/v1/orders/:id/pickup.
func (s *Server) MarkPickedUp(ctx echo.Context) error {
	return s.agentAction(ctx, s.coordinator.MarkPickedUp)
}

// MarkOutForDelivery handles POST /api/v1/orders/:id/out-for-delivery.
func (s *Server) MarkOutForDelivery(ctx echo.Context) error {
	return s.agentAction(ctx, s.coordinator.MarkOutForDelivery)
}

// MarkDelivered handles POST /api/v1/orders/:id/delivered.
func (s *Server) MarkDelivered(ctx echo.Context) error {
	return s.agentAction(ctx, s.coordinator.MarkDelivered)
}

// SetPaymentStatus handles POST /api/v1/orders/:id/payment - updates the
// payment side channel and fans the change out to connected parties.
func (s *Server) SetPaymentStatus(ctx echo.Context) error {
	orderID, err := kernel.UUIDFromString(ctx.Param("id"))
	if err != nil {
		return badRequest(ctx, "Invalid order id")
	}

	var req paymentRequest
	if err := ctx.Bind(&req); err != nil {
		return badRequest(ctx, "Invalid request body")
	}

	paymentStatus, err := order.ParsePaymentStatus(req.Status)
	if err != nil {
		return badRequest(ctx, "Invalid payment status")
	}

	if err := s.coordinator.SetPaymentStatus(ctx.Request().Context(), orderID, paymentStatus); err != nil {
		return writeError(ctx, err)
	}

	return ctx.NoContent(http.StatusNoContent)
}

type coordinatorAgentAction func(ctx context.Context, orderID, agentID kernel.UUID) error

func (s *Server) agentAction(ctx echo.Context, action coordinatorAgentAction) error {
	orderID, err := kernel.UUIDFromString(ctx.Param("id"))
	if err != nil {
		return badRequest(ctx, "Invalid order id")
	}

	var req agentActionRequest
	if err := ctx.Bind(&req); err != nil {
		return badRequest(ctx, "Invalid request body")
	}

	agentID, err := kernel.UUIDFromString(req.AgentID)
	if err != nil {
		return badRequest(ctx, "Invalid agent id")
	}

	if err := action(ctx.Request().Context(), orderID, agentID); err != nil {
		return writeError(ctx, err)
	}

	return ctx.NoContent(http.StatusNoContent)
}

func toOrderResponse(
	id, customerID kernel.UUID,
	agentID *kernel.UUID,
	location kernel.GeoPoint,
	zone kernel.Zone,
	status order.Status,
	paymentStatus order.PaymentStatus,
) orderResponse {
	resp := orderResponse{
		ID:            id.String(),
		CustomerID:    customerID.String(),
		Latitude:      location.Latitude(),
		Longitude:     location.Longitude(),
		Zone:          zone.Name(),
		Status:        status.String(),
		PaymentStatus: paymentStatus.String(),
	}
	if agentID != nil {
		s := agentID.String()
		resp.AgentID = &s
	}
	return resp
}

func badRequest(ctx echo.Context, message string) error {
	return ctx.JSON(http.StatusBadRequest, errorResponse{
		Code:    http.StatusBadRequest,
		Message: message,
	})
}

// writeError maps domain and dispatch errors onto HTTP status codes.
func writeError(ctx echo.Context, err error) error {
	var notFound *errs.ObjectNotFoundError
	var invalid *errs.ValueIsInvalidError
	var required *errs.ValueIsRequiredError
	var outOfRange *errs.ValueIsOutOfRangeError

	code := http.StatusInternalServerError
	switch {
	case errors.As(err, &notFound):
		code = http.StatusNotFound
	case errors.Is(err, dispatch.ErrNotAssignee):
		code = http.StatusForbidden
	case errors.Is(err, dispatch.ErrOrderAlreadyAssigned), errors.Is(err, order.ErrInvalidTransition):
		code = http.StatusConflict
	case errors.As(err, &invalid), errors.As(err, &required), errors.As(err, &outOfRange):
		code = http.StatusBadRequest
	}

	return ctx.JSON(code, errorResponse{
		Code:    code,
		Message: err.Error(),
	})
}
