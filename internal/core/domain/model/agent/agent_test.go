package agent_test

import (
	"testing"
	"time"

	"dispatch/internal/core/domain/model/agent"
	"dispatch/internal/core/domain/model/kernel"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServiceArea(t *testing.T, names ...string) []kernel.Zone {
	t.Helper()
	if len(names) == 0 {
		names = []string{"chilanzar"}
	}
	zones := make([]kernel.Zone, 0, len(names))
	for _, name := range names {
		zone, err := kernel.NewZone(name)
		require.NoError(t, err)
		zones = append(zones, zone)
	}
	return zones
}

func newTestAgent(t *testing.T, zones ...string) *agent.Agent {
	t.Helper()
	a, err := agent.NewAgent(kernel.NewUUID(), "Aziz", testServiceArea(t, zones...))
	require.NoError(t, err)
	return a
}

func TestNewAgent(t *testing.T) {
	t.Run("creates offline agent with full acceptance rate", func(t *testing.T) {
		id := kernel.NewUUID()

		a, err := agent.NewAgent(id, "Aziz", testServiceArea(t))

		require.NoError(t, err)
		require.NoError(t, a.Validate())
		assert.True(t, a.ID().IsEqual(id))
		assert.Equal(t, "Aziz", a.Name())
		assert.False(t, a.IsOnline())
		assert.Nil(t, a.ActiveOrderID())
		assert.InDelta(t, 1.0, a.AcceptanceRate(), 1e-9)

		_, _, located := a.Location()
		assert.False(t, located)
	})

	t.Run("rejects invalid parameters", func(t *testing.T) {
		testCases := []struct {
			name  string
			build func() (*agent.Agent, error)
		}{
			{
				name: "zero id",
				build: func() (*agent.Agent, error) {
					return agent.NewAgent(kernel.UUID{}, "Aziz", testServiceArea(t))
				},
			},
			{
				name: "empty name",
				build: func() (*agent.Agent, error) {
					return agent.NewAgent(kernel.NewUUID(), "", testServiceArea(t))
				},
			},
			{
				name: "empty service area",
				build: func() (*agent.Agent, error) {
					return agent.NewAgent(kernel.NewUUID(), "Aziz", nil)
				},
			},
			{
				name: "invalid zone in service area",
				build: func() (*agent.Agent, error) {
					return agent.NewAgent(kernel.NewUUID(), "Aziz", []kernel.Zone{{}})
				},
			},
		}

		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				a, err := tc.build()

				require.Error(t, err)
				assert.Nil(t, a)
			})
		}
	})
}

func TestAgent_Validate(t *testing.T) {
	t.Run("zero value fails validation", func(t *testing.T) {
		var a agent.Agent

		require.ErrorIs(t, a.Validate(), agent.ErrAgentIsNotConstructed)
	})

	t.Run("nil agent fails validation", func(t *testing.T) {
		var a *agent.Agent

		require.ErrorIs(t, a.Validate(), agent.ErrAgentIsNotConstructed)
	})
}

func TestAgent_Presence(t *testing.T) {
	t.Run("online and offline toggling", func(t *testing.T) {
		a := newTestAgent(t)

		a.SetOnline()
		assert.True(t, a.IsOnline())

		a.SetOffline()
		assert.False(t, a.IsOnline())
	})

	t.Run("going offline preserves active order", func(t *testing.T) {
		a := newTestAgent(t)
		a.SetOnline()
		orderID := kernel.NewUUID()
		require.NoError(t, a.TakeOrder(orderID))

		a.SetOffline()

		require.NotNil(t, a.ActiveOrderID())
		assert.True(t, a.ActiveOrderID().IsEqual(orderID))
	})
}

func TestAgent_UpdateLocation(t *testing.T) {
	t.Run("records last-known position", func(t *testing.T) {
		a := newTestAgent(t)
		point, _ := kernel.NewGeoPoint(41.3, 69.28)
		at := time.Now()

		require.NoError(t, a.UpdateLocation(point, at))

		location, locatedAt, located := a.Location()
		assert.True(t, located)
		assert.Equal(t, at, locatedAt)
		equal, err := location.IsEqual(point)
		require.NoError(t, err)
		assert.True(t, equal)
	})

	t.Run("rejects unconstructed point", func(t *testing.T) {
		a := newTestAgent(t)

		err := a.UpdateLocation(kernel.GeoPoint{}, time.Now())

		require.Error(t, err)
		_, _, located := a.Location()
		assert.False(t, located)
	})
}

func TestAgent_ServesZone(t *testing.T) {
	a := newTestAgent(t, "chilanzar", "yunusabad")

	inArea, _ := kernel.NewZone("Yunusabad")
	outOfArea, _ := kernel.NewZone("sergeli")

	assert.True(t, a.ServesZone(inArea))
	assert.False(t, a.ServesZone(outOfArea))
}

func TestAgent_TakeAndReleaseOrder(t *testing.T) {
	t.Run("takes one order at a time", func(t *testing.T) {
		a := newTestAgent(t)
		first := kernel.NewUUID()

		require.NoError(t, a.TakeOrder(first))

		err := a.TakeOrder(kernel.NewUUID())
		require.ErrorIs(t, err, agent.ErrAgentBusy)
		assert.True(t, a.ActiveOrderID().IsEqual(first))
	})

	t.Run("releases held order", func(t *testing.T) {
		a := newTestAgent(t)
		orderID := kernel.NewUUID()
		require.NoError(t, a.TakeOrder(orderID))

		require.NoError(t, a.ReleaseOrder(orderID))
		assert.Nil(t, a.ActiveOrderID())
	})

	t.Run("rejects releasing an order not held", func(t *testing.T) {
		a := newTestAgent(t)
		require.NoError(t, a.TakeOrder(kernel.NewUUID()))

		err := a.ReleaseOrder(kernel.NewUUID())
		require.ErrorIs(t, err, agent.ErrOrderNotHeld)
	})

	t.Run("rejects releasing with nothing held", func(t *testing.T) {
		a := newTestAgent(t)

		err := a.ReleaseOrder(kernel.NewUUID())
		require.ErrorIs(t, err, agent.ErrOrderNotHeld)
	})
}

func TestAgent_Availability(t *testing.T) {
	a := newTestAgent(t)
	assert.False(t, a.IsAvailable(), "offline agent is not available")

	a.SetOnline()
	assert.True(t, a.IsAvailable())

	require.NoError(t, a.TakeOrder(kernel.NewUUID()))
	assert.False(t, a.IsAvailable(), "busy agent is not available")
}

func TestAgent_PenalizeAcceptance(t *testing.T) {
	t.Run("each cancellation lowers the rate", func(t *testing.T) {
		a := newTestAgent(t)

		a.PenalizeAcceptance()

		assert.Less(t, a.AcceptanceRate(), 1.0)
	})

	t.Run("rate never drops below zero", func(t *testing.T) {
		a := newTestAgent(t)

		for range 100 {
			a.PenalizeAcceptance()
		}

		assert.GreaterOrEqual(t, a.AcceptanceRate(), 0.0)
	})
}
