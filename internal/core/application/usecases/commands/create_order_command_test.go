package commands_test

import (
	"testing"

	"dispatch/internal/core/application/usecases/commands"
	"dispatch/internal/core/domain/model/kernel"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLocation(t *testing.T) kernel.GeoPoint {
	t.Helper()
	location, err := kernel.NewGeoPoint(52.52, 13.405)
	require.NoError(t, err)
	return location
}

func testZone(t *testing.T) kernel.Zone {
	t.Helper()
	zone, err := kernel.NewZone("mitte")
	require.NoError(t, err)
	return zone
}

func TestNewCreateOrderCommand_ValidInput(t *testing.T) {
	id := kernel.NewUUID()
	customerID := kernel.NewUUID()
	location := testLocation(t)
	zone := testZone(t)

	cmd, err := commands.NewCreateOrderCommand(id, customerID, location, zone)
	require.NoError(t, err)
	assert.Equal(t, id, cmd.OrderID())
	assert.Equal(t, customerID, cmd.CustomerID())
	sameLocation, err := cmd.ShippingLocation().IsEqual(location)
	require.NoError(t, err)
	assert.True(t, sameLocation)
	assert.True(t, cmd.Zone().IsEqual(zone))
}

func TestNewCreateOrderCommand_InvalidOrderID(t *testing.T) {
	invalidID := kernel.UUID{} // zero value, should trigger validation error
	_, err := commands.NewCreateOrderCommand(invalidID, kernel.NewUUID(), testLocation(t), testZone(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, kernel.ErrUUIDIsNotConstructed)
}

func TestNewCreateOrderCommand_InvalidCustomerID(t *testing.T) {
	_, err := commands.NewCreateOrderCommand(kernel.NewUUID(), kernel.UUID{}, testLocation(t), testZone(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, kernel.ErrUUIDIsNotConstructed)
}

func TestNewCreateOrderCommand_InvalidLocation(t *testing.T) {
	_, err := commands.NewCreateOrderCommand(kernel.NewUUID(), kernel.NewUUID(), kernel.GeoPoint{}, testZone(t))
	require.Error(t, err)
}

func TestNewCreateOrderCommand_InvalidZone(t *testing.T) {
	_, err := commands.NewCreateOrderCommand(kernel.NewUUID(), kernel.NewUUID(), testLocation(t), kernel.Zone{})
	require.Error(t, err)
}

func TestCreateOrderCommand_ZeroValueFailsValidation(t *testing.T) {
	var cmd commands.CreateOrderCommand
	err := cmd.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, commands.ErrCreateOrderCommandIsNotConstructed)
}
