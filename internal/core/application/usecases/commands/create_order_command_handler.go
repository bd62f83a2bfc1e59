package commands

import (
	"context"

	"dispatch/internal/core/domain/model/kernel"
	"dispatch/internal/core/domain/model/order"
)

// OrderDispatcher is the slice of the dispatch coordinator the intake needs:
// taking ownership of a new order and opening its first offer round.
type OrderDispatcher interface {
	Track(o *order.Order) error
	Dispatch(ctx context.Context, orderID kernel.UUID) error
}

// CreateOrderCommandHandler handles the business logic for order intake.
// Persists the new order in Placed status, hands it to the dispatch
// coordinator, and opens the first offer round.
//
// Example:
//
//	handler := NewCreateOrderCommandHandler(uowFactory, coordinator)
//	cmd, _ := NewCreateOrderCommand(orderID, customerID, location, zone)
//
//	if err := handler.Handle(ctx, cmd); err != nil {
//	    return fmt.Errorf("order intake failed: %w", err)
//	}
//	// Offers are on their way to candidate agents
type CreateOrderCommandHandler struct {
	uowFactory OrderUoWFactory
	dispatcher OrderDispatcher
}

// NewCreateOrderCommandHandler creates a handler for order intake operations.
// Requires an OrderUoWFactory for transactional persistence and the dispatch
// coordinator that will own the order.
func NewCreateOrderCommandHandler(uowFactory OrderUoWFactory, dispatcher OrderDispatcher) CreateOrderCommandHandler {
	return CreateOrderCommandHandler{
		uowFactory: uowFactory,
		dispatcher: dispatcher,
	}
}

// Handle processes the order intake command.
// The order is committed in Placed status before dispatch starts, so a crash
// between the two steps loses no order: it is picked up again on restart.
func (h *CreateOrderCommandHandler) Handle(ctx context.Context, cmd CreateOrderCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}

	newOrder, err := order.NewOrder(cmd.OrderID(), cmd.CustomerID(), cmd.ShippingLocation(), cmd.Zone())
	if err != nil {
		return err
	}

	uow := h.uowFactory.Create()
	if err = uow.Begin(ctx); err != nil {
		return err
	}

	defer func() {
		_ = uow.Rollback(ctx)
	}()

	if err = uow.OrderRepository().Add(ctx, newOrder); err != nil {
		return err
	}

	if err = uow.Commit(ctx); err != nil {
		return err
	}

	if err = h.dispatcher.Track(newOrder); err != nil {
		return err
	}

	return h.dispatcher.Dispatch(ctx, newOrder.ID())
}
