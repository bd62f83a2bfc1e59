// Package orderrepo provides data transfer objects and mapping functions for order persistence.
// This package implements the repository pattern for the order domain aggregate, handling
// the conversion between domain entities and database representations.
package orderrepo

import (
	"dispatch/internal/core/domain/model/kernel"
	"dispatch/internal/core/domain/model/order"

	"github.com/google/uuid"
)

// OrderDTO represents the database structure for persisting order aggregates.
// Maps order domain entities to relational database tables with proper indexing
// for efficient querying by status and agent assignment.
type OrderDTO struct {
	ID            uuid.UUID   `gorm:"type:uuid;primaryKey"`
	CustomerID    uuid.UUID   `gorm:"type:uuid;index"`
	AgentID       *uuid.UUID  `gorm:"type:uuid;index"`
	Shipping      GeoPointDTO `gorm:"embedded;embeddedPrefix:shipping_"`
	Zone          string
	Status        int `gorm:"index"`
	PaymentStatus int
}

// TableName specifies the database table name for order entities.
// Overrides GORM's default naming convention to use "orders".
func (OrderDTO) TableName() string {
	return "orders"
}

// GeoPointDTO represents the embedded shipping coordinates within the order table.
// Stores the destination coordinates for order delivery.
type GeoPointDTO struct {
	Latitude  float64 `gorm:"type:double precision"`
	Longitude float64 `gorm:"type:double precision"`
}

// fromDomain converts an order domain aggregate to its database representation.
// Maps all order attributes including optional agent assignment.
func fromDomain(order *order.Order) OrderDTO {
	var agentID *uuid.UUID
	if id := order.AgentID(); id != nil {
		raw := id.Bytes()
		agentID = &raw
	}

	return OrderDTO{
		ID:         order.ID().Bytes(),
		CustomerID: order.CustomerID().Bytes(),
		AgentID:    agentID,
		Shipping: GeoPointDTO{
			Latitude:  order.ShippingLocation().Latitude(),
			Longitude: order.ShippingLocation().Longitude(),
		},
		Zone:          order.Zone().Name(),
		Status:        int(order.Status()),
		PaymentStatus: int(order.PaymentStatus()),
	}
}

// toDomain converts a database DTO to an order domain aggregate.
// Reconstructs the complete aggregate including status, payment status and
// agent assignment using RestoreOrder.
func toDomain(dto OrderDTO) (*order.Order, error) {
	id, err := kernel.UUIDFromBytes(dto.ID[:])
	if err != nil {
		return nil, err
	}

	customerID, err := kernel.UUIDFromBytes(dto.CustomerID[:])
	if err != nil {
		return nil, err
	}

	var agentID *kernel.UUID
	if dto.AgentID != nil {
		aID, agentErr := kernel.UUIDFromBytes((*dto.AgentID)[:])
		if agentErr != nil {
			return nil, agentErr
		}

		agentID = &aID
	}

	location, err := kernel.NewGeoPoint(dto.Shipping.Latitude, dto.Shipping.Longitude)
	if err != nil {
		return nil, err
	}

	zone, err := kernel.NewZone(dto.Zone)
	if err != nil {
		return nil, err
	}

	return order.RestoreOrder(
		id,
		customerID,
		location,
		zone,
		order.Status(dto.Status),
		order.PaymentStatus(dto.PaymentStatus),
		agentID,
	)
}
