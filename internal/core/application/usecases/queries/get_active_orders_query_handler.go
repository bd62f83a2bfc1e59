package queries

import (
	"context"
	"database/sql"

	"dispatch/internal/core/domain/model/kernel"
	"dispatch/internal/core/domain/model/order"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GetActiveOrdersQueryHandler retrieves in-flight orders from the database.
// Filters out terminal orders to provide the active dispatch workload, which
// is also the set the coordinator restores on startup.
//
// Example:
//
//	handler := NewGetActiveOrdersQueryHandler(db)
//	query := NewGetActiveOrdersQuery()
//
//	activeOrders, err := handler.Handle(ctx, query)
//	if err != nil {
//	    log.Printf("Failed to get active orders: %v", err)
//	    return err
//	}
type GetActiveOrdersQueryHandler struct {
	db *gorm.DB
}

// NewGetActiveOrdersQueryHandler creates a handler for active order queries.
// Requires a GORM database connection for query execution.
func NewGetActiveOrdersQueryHandler(db *gorm.DB) GetActiveOrdersQueryHandler {
	return GetActiveOrdersQueryHandler{db: db}
}

// Handle executes the query to retrieve all non-terminal orders.
// Excludes delivered and cancelled orders. Results are sorted by order ID
// for consistent output.
func (h GetActiveOrdersQueryHandler) Handle(
	ctx context.Context,
	query GetActiveOrdersQuery,
) ([]GetActiveOrdersQueryResponse, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	orders := make([]GetActiveOrdersQueryResponse, 0)

	rows, err := h.db.WithContext(ctx).Raw(`
		SELECT
			id,
			customer_id,
			agent_id,
			shipping_latitude,
			shipping_longitude,
			zone,
			status,
			payment_status
		FROM orders
		WHERE status NOT IN (?, ?)
		ORDER BY id
	`, order.Delivered, order.Cancelled).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		orderResp, scanErr := scanOrderRow(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		orders = append(orders, orderResp)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return orders, nil
}

// scanOrderRow maps one row of the shared order projection into a response.
// Both order queries select the same column list in the same position.
func scanOrderRow(rows *sql.Rows) (GetActiveOrdersQueryResponse, error) {
	var resp GetActiveOrdersQueryResponse
	var id uuid.UUID
	var customerID uuid.UUID
	var agentID uuid.NullUUID
	var latitude, longitude float64
	var zone string
	var status, paymentStatus int

	err := rows.Scan(
		&id,
		&customerID,
		&agentID,
		&latitude,
		&longitude,
		&zone,
		&status,
		&paymentStatus,
	)
	if err != nil {
		return GetActiveOrdersQueryResponse{}, err
	}

	orderID, idErr := kernel.UUIDFromBytes(id[:])
	if idErr != nil {
		return GetActiveOrdersQueryResponse{}, idErr
	}
	resp.ID = orderID

	custID, custErr := kernel.UUIDFromBytes(customerID[:])
	if custErr != nil {
		return GetActiveOrdersQueryResponse{}, custErr
	}
	resp.CustomerID = custID

	if agentID.Valid {
		aID, agentErr := kernel.UUIDFromBytes(agentID.UUID[:])
		if agentErr != nil {
			return GetActiveOrdersQueryResponse{}, agentErr
		}
		resp.AgentID = &aID
	}

	location, locErr := kernel.NewGeoPoint(latitude, longitude)
	if locErr != nil {
		return GetActiveOrdersQueryResponse{}, locErr
	}
	resp.ShippingLocation = location

	z, zoneErr := kernel.NewZone(zone)
	if zoneErr != nil {
		return GetActiveOrdersQueryResponse{}, zoneErr
	}
	resp.Zone = z

	resp.Status = order.Status(status)
	resp.PaymentStatus = order.PaymentStatus(paymentStatus)

	return resp, nil
}
