package dispatch_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"dispatch/internal/core/application/dispatch"
	"dispatch/internal/core/application/presence"
	"dispatch/internal/core/domain/model/agent"
	"dispatch/internal/core/domain/model/kernel"
	"dispatch/internal/core/domain/model/order"
	"dispatch/internal/core/domain/services"
	"dispatch/internal/core/ports"
	"dispatch/internal/pkg/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubNotifier records every outbound event so tests can assert on the
// notification traffic the coordinator produces.
type stubNotifier struct {
	mu             sync.Mutex
	offers         []offerEvent
	withdrawals    []targetedEvent
	cancellations  []targetedEvent
	statusChanges  []statusEvent
	agentCancels   []agentCancelEvent
	paymentChanges []paymentEvent
	noAgent        []kernel.UUID
}

type offerEvent struct {
	agentID kernel.UUID
	offer   ports.OrderOffer
}

type targetedEvent struct {
	identity kernel.UUID
	orderID  kernel.UUID
}

type statusEvent struct {
	customerID kernel.UUID
	orderID    kernel.UUID
	status     order.Status
	agent      *ports.AgentInfo
}

type agentCancelEvent struct {
	customerID kernel.UUID
	orderID    kernel.UUID
	status     order.Status
	reason     string
}

type paymentEvent struct {
	customerID    kernel.UUID
	orderID       kernel.UUID
	paymentStatus order.PaymentStatus
}

func (n *stubNotifier) NotifyNewOrderOffer(agentID kernel.UUID, offer ports.OrderOffer) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.offers = append(n.offers, offerEvent{agentID: agentID, offer: offer})
}

func (n *stubNotifier) NotifyOfferWithdrawn(agentID kernel.UUID, orderID kernel.UUID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.withdrawals = append(n.withdrawals, targetedEvent{identity: agentID, orderID: orderID})
}

func (n *stubNotifier) NotifyOrderCancelled(agentID kernel.UUID, orderID kernel.UUID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancellations = append(n.cancellations, targetedEvent{identity: agentID, orderID: orderID})
}

func (n *stubNotifier) NotifyUserLocation(kernel.UUID, kernel.UUID, kernel.GeoPoint) {}

func (n *stubNotifier) NotifyAgentMessage(kernel.UUID, kernel.UUID, string, time.Time) {}

func (n *stubNotifier) NotifyOrderStatusChanged(customerID kernel.UUID, orderID kernel.UUID, status order.Status, agentInfo *ports.AgentInfo) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statusChanges = append(n.statusChanges, statusEvent{
		customerID: customerID, orderID: orderID, status: status, agent: agentInfo,
	})
}

func (n *stubNotifier) NotifyOrderCancelledByAgent(customerID kernel.UUID, orderID kernel.UUID, status order.Status, reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.agentCancels = append(n.agentCancels, agentCancelEvent{
		customerID: customerID, orderID: orderID, status: status, reason: reason,
	})
}

func (n *stubNotifier) NotifyPaymentStatusChanged(customerID kernel.UUID, orderID kernel.UUID, paymentStatus order.PaymentStatus) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paymentChanges = append(n.paymentChanges, paymentEvent{
		customerID: customerID, orderID: orderID, paymentStatus: paymentStatus,
	})
}

func (n *stubNotifier) NotifyRouteUpdate(kernel.UUID, kernel.UUID, *string) {}

func (n *stubNotifier) NotifyLiveLocation(kernel.UUID, kernel.UUID, kernel.GeoPoint) {}

func (n *stubNotifier) NotifyUserMessage(kernel.UUID, kernel.UUID, string, time.Time) {}

func (n *stubNotifier) NotifyNoAgentAvailable(customerID kernel.UUID, orderID kernel.UUID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.noAgent = append(n.noAgent, orderID)
}

func (n *stubNotifier) offeredAgents() []kernel.UUID {
	n.mu.Lock()
	defer n.mu.Unlock()
	ids := make([]kernel.UUID, 0, len(n.offers))
	for _, e := range n.offers {
		ids = append(ids, e.agentID)
	}
	return ids
}

func (n *stubNotifier) offerCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.offers)
}

func (n *stubNotifier) lastOffer() offerEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.offers[len(n.offers)-1]
}

func (n *stubNotifier) noAgentCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.noAgent)
}

func (n *stubNotifier) withdrawalCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.withdrawals)
}

func (n *stubNotifier) lastStatusChange() statusEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.statusChanges[len(n.statusChanges)-1]
}

// noopUnitOfWork satisfies the persistence contract without a database;
// coordinator tests assert on in-memory state and notification traffic.
type noopUnitOfWork struct{ repo noopOrderRepository }

type noopUnitOfWorkFactory struct{}

func (noopUnitOfWorkFactory) Create() ports.UnitOfWork { return &noopUnitOfWork{} }

func (u *noopUnitOfWork) Begin(context.Context) error            { return nil }
func (u *noopUnitOfWork) Commit(context.Context) error           { return nil }
func (u *noopUnitOfWork) Rollback(context.Context) error         { return nil }
func (u *noopUnitOfWork) OrderRepository() ports.OrderRepository { return &u.repo }

type noopOrderRepository struct{}

func (noopOrderRepository) Add(context.Context, *order.Order) error    { return nil }
func (noopOrderRepository) Update(context.Context, *order.Order) error { return nil }
func (noopOrderRepository) Get(context.Context, kernel.UUID) (*order.Order, error) {
	return nil, errs.ErrObjectNotFound
}
func (noopOrderRepository) GetAllActive(context.Context) ([]*order.Order, error) { return nil, nil }

type session struct{}

func (session) Close() error { return nil }

type harness struct {
	coordinator *dispatch.Coordinator
	registry    *presence.Registry
	notifier    *stubNotifier
}

func newHarness(t *testing.T, offerTTL time.Duration, tierSize int) *harness {
	t.Helper()

	registry := presence.NewRegistry(slog.Default())
	notifier := &stubNotifier{}
	coordinator := dispatch.NewCoordinator(
		registry,
		notifier,
		services.NewNearestFirstPolicy(tierSize),
		noopUnitOfWorkFactory{},
		offerTTL,
		slog.Default(),
	)
	return &harness{coordinator: coordinator, registry: registry, notifier: notifier}
}

func (h *harness) connectAgent(t *testing.T, name string, lat, lng float64) *agent.Agent {
	t.Helper()

	zone, err := kernel.NewZone("mitte")
	require.NoError(t, err)
	a, err := agent.NewAgent(kernel.NewUUID(), name, []kernel.Zone{zone})
	require.NoError(t, err)

	location, err := kernel.NewGeoPoint(lat, lng)
	require.NoError(t, err)
	require.NoError(t, a.UpdateLocation(location, time.Now()))

	require.NoError(t, h.registry.RegisterAgent(a))
	h.registry.Connect(a.ID(), presence.KindAgent, session{})
	return a
}

func (h *harness) trackOrder(t *testing.T) *order.Order {
	t.Helper()

	location, err := kernel.NewGeoPoint(52.52, 13.405)
	require.NoError(t, err)
	zone, err := kernel.NewZone("mitte")
	require.NoError(t, err)
	o, err := order.NewOrder(kernel.NewUUID(), kernel.NewUUID(), location, zone)
	require.NoError(t, err)

	require.NoError(t, h.coordinator.Track(o))
	return o
}

func (h *harness) dispatchOrder(t *testing.T) *order.Order {
	t.Helper()

	o := h.trackOrder(t)
	require.NoError(t, h.coordinator.Dispatch(context.Background(), o.ID()))
	return o
}

func (h *harness) acceptLastOffer(t *testing.T, a *agent.Agent) *order.Order {
	t.Helper()

	o := h.dispatchOrder(t)
	offer := h.notifier.lastOffer()
	require.NoError(t, h.coordinator.Accept(context.Background(), o.ID(), a.ID(), offer.offer.Generation))
	return o
}

func Test_Coordinator_Dispatch(t *testing.T) {
	t.Run("broadcasts offers to the nearest tier", func(t *testing.T) {
		h := newHarness(t, time.Minute, 2)
		near := h.connectAgent(t, "near", 52.521, 13.406)
		mid := h.connectAgent(t, "mid", 52.50, 13.35)
		h.connectAgent(t, "far", 52.40, 13.10)

		o := h.dispatchOrder(t)

		assert.Equal(t, order.Assigning, o.Status())
		offered := h.notifier.offeredAgents()
		require.Len(t, offered, 2)
		assert.True(t, offered[0].IsEqual(near.ID()))
		assert.True(t, offered[1].IsEqual(mid.ID()))

		offer := h.notifier.lastOffer().offer
		assert.True(t, offer.OrderID.IsEqual(o.ID()))
		assert.Equal(t, uint64(1), offer.Generation)
		assert.False(t, offer.ExpiresAt.IsZero())
	})

	t.Run("no eligible agents resolves to NoAgentAvailable", func(t *testing.T) {
		h := newHarness(t, time.Minute, 2)

		o := h.dispatchOrder(t)

		assert.Equal(t, order.NoAgentAvailable, o.Status())
		assert.Equal(t, 1, h.notifier.noAgentCount())
	})

	t.Run("unknown order returns ObjectNotFound", func(t *testing.T) {
		h := newHarness(t, time.Minute, 2)

		err := h.coordinator.Dispatch(context.Background(), kernel.NewUUID())

		assert.ErrorIs(t, err, errs.ErrObjectNotFound)
	})

	t.Run("retry reopens dispatch after NoAgentAvailable", func(t *testing.T) {
		h := newHarness(t, time.Minute, 2)
		o := h.dispatchOrder(t)
		require.Equal(t, order.NoAgentAvailable, o.Status())

		h.connectAgent(t, "late", 52.52, 13.40)
		require.NoError(t, h.coordinator.Dispatch(context.Background(), o.ID()))

		assert.Equal(t, order.Assigning, o.Status())
		assert.Equal(t, 1, h.notifier.offerCount())
	})

	t.Run("retry on an accepted order is rejected", func(t *testing.T) {
		h := newHarness(t, time.Minute, 2)
		a := h.connectAgent(t, "solo", 52.52, 13.40)
		o := h.acceptLastOffer(t, a)

		err := h.coordinator.Dispatch(context.Background(), o.ID())

		assert.ErrorIs(t, err, order.ErrInvalidTransition)
		assert.Equal(t, order.Accepted, o.Status())
		require.NotNil(t, o.AgentID())
		assert.True(t, o.AgentID().IsEqual(a.ID()))
	})

	t.Run("delivered order cannot re-enter dispatch", func(t *testing.T) {
		h := newHarness(t, time.Minute, 2)
		a := h.connectAgent(t, "solo", 52.52, 13.40)
		o := h.acceptLastOffer(t, a)
		require.NoError(t, h.coordinator.MarkPickedUp(context.Background(), o.ID(), a.ID()))
		require.NoError(t, h.coordinator.MarkOutForDelivery(context.Background(), o.ID(), a.ID()))
		require.NoError(t, h.coordinator.MarkDelivered(context.Background(), o.ID(), a.ID()))

		err := h.coordinator.Dispatch(context.Background(), o.ID())

		assert.ErrorIs(t, err, order.ErrInvalidTransition)
	})
}

func Test_Coordinator_Accept(t *testing.T) {
	t.Run("first accept wins and losers are withdrawn", func(t *testing.T) {
		h := newHarness(t, time.Minute, 2)
		winner := h.connectAgent(t, "winner", 52.521, 13.406)
		loser := h.connectAgent(t, "loser", 52.50, 13.35)

		o := h.dispatchOrder(t)
		generation := h.notifier.lastOffer().offer.Generation

		require.NoError(t, h.coordinator.Accept(context.Background(), o.ID(), winner.ID(), generation))

		assert.Equal(t, order.Accepted, o.Status())
		require.NotNil(t, o.AgentID())
		assert.True(t, o.AgentID().IsEqual(winner.ID()))
		require.NotNil(t, winner.ActiveOrderID())
		assert.True(t, winner.ActiveOrderID().IsEqual(o.ID()))
		assert.Nil(t, loser.ActiveOrderID())

		require.Equal(t, 1, h.notifier.withdrawalCount())
		assert.True(t, h.notifier.withdrawals[0].identity.IsEqual(loser.ID()))

		change := h.notifier.lastStatusChange()
		assert.Equal(t, order.Accepted, change.status)
		require.NotNil(t, change.agent)
		assert.Equal(t, "winner", change.agent.Name)
	})

	t.Run("second accept loses with an explicit conflict", func(t *testing.T) {
		h := newHarness(t, time.Minute, 2)
		winner := h.connectAgent(t, "winner", 52.521, 13.406)
		late := h.connectAgent(t, "late", 52.50, 13.35)

		o := h.dispatchOrder(t)
		generation := h.notifier.lastOffer().offer.Generation

		require.NoError(t, h.coordinator.Accept(context.Background(), o.ID(), winner.ID(), generation))
		err := h.coordinator.Accept(context.Background(), o.ID(), late.ID(), generation)

		assert.ErrorIs(t, err, dispatch.ErrOrderAlreadyAssigned)
		assert.True(t, o.AgentID().IsEqual(winner.ID()))
		assert.Nil(t, late.ActiveOrderID())
	})

	t.Run("stale generation is rejected", func(t *testing.T) {
		h := newHarness(t, time.Minute, 2)
		a := h.connectAgent(t, "solo", 52.52, 13.40)

		o := h.dispatchOrder(t)
		generation := h.notifier.lastOffer().offer.Generation

		err := h.coordinator.Accept(context.Background(), o.ID(), a.ID(), generation+1)

		assert.ErrorIs(t, err, dispatch.ErrOfferNotCurrent)
		assert.Equal(t, order.Assigning, o.Status())
	})

	t.Run("accept from a non-candidate is rejected", func(t *testing.T) {
		h := newHarness(t, time.Minute, 1)
		h.connectAgent(t, "candidate", 52.521, 13.406)
		outsider := h.connectAgent(t, "outsider", 52.40, 13.10)

		o := h.dispatchOrder(t)
		generation := h.notifier.lastOffer().offer.Generation

		err := h.coordinator.Accept(context.Background(), o.ID(), outsider.ID(), generation)

		assert.ErrorIs(t, err, dispatch.ErrOfferNotCurrent)
	})

	t.Run("busy agent loses without touching the order", func(t *testing.T) {
		h := newHarness(t, time.Minute, 2)
		busy := h.connectAgent(t, "busy", 52.521, 13.406)
		h.connectAgent(t, "idle", 52.50, 13.35)

		o := h.dispatchOrder(t)
		generation := h.notifier.lastOffer().offer.Generation
		require.NoError(t, busy.TakeOrder(kernel.NewUUID()))

		err := h.coordinator.Accept(context.Background(), o.ID(), busy.ID(), generation)

		assert.ErrorIs(t, err, agent.ErrAgentBusy)
		assert.Equal(t, order.Assigning, o.Status())
		assert.Nil(t, o.AgentID())
	})
}

func Test_Coordinator_Reject(t *testing.T) {
	t.Run("last reject advances to the next tier immediately", func(t *testing.T) {
		h := newHarness(t, time.Minute, 1)
		first := h.connectAgent(t, "first", 52.521, 13.406)
		second := h.connectAgent(t, "second", 52.50, 13.35)

		o := h.dispatchOrder(t)
		generation := h.notifier.lastOffer().offer.Generation

		require.NoError(t, h.coordinator.Reject(context.Background(), o.ID(), first.ID(), generation))

		require.Equal(t, 2, h.notifier.offerCount())
		next := h.notifier.lastOffer()
		assert.True(t, next.agentID.IsEqual(second.ID()))
		assert.Equal(t, generation+1, next.offer.Generation)
	})

	t.Run("all tiers rejected resolves to NoAgentAvailable", func(t *testing.T) {
		h := newHarness(t, time.Minute, 1)
		solo := h.connectAgent(t, "solo", 52.52, 13.40)

		o := h.dispatchOrder(t)
		generation := h.notifier.lastOffer().offer.Generation

		require.NoError(t, h.coordinator.Reject(context.Background(), o.ID(), solo.ID(), generation))

		assert.Equal(t, order.NoAgentAvailable, o.Status())
		assert.Equal(t, 1, h.notifier.noAgentCount())
	})

	t.Run("reject for a stale round is a no-op", func(t *testing.T) {
		h := newHarness(t, time.Minute, 2)
		a := h.connectAgent(t, "solo", 52.52, 13.40)

		o := h.dispatchOrder(t)
		generation := h.notifier.lastOffer().offer.Generation

		err := h.coordinator.Reject(context.Background(), o.ID(), a.ID(), generation+7)

		assert.ErrorIs(t, err, dispatch.ErrOfferNotCurrent)
		assert.Equal(t, order.Assigning, o.Status())
	})
}

func Test_Coordinator_OfferExpiry(t *testing.T) {
	t.Run("expired round advances to the next tier", func(t *testing.T) {
		h := newHarness(t, 30*time.Millisecond, 1)
		h.connectAgent(t, "first", 52.521, 13.406)
		second := h.connectAgent(t, "second", 52.50, 13.35)

		h.dispatchOrder(t)

		require.Eventually(t, func() bool {
			return h.notifier.offerCount() == 2
		}, time.Second, 5*time.Millisecond)
		assert.True(t, h.notifier.lastOffer().agentID.IsEqual(second.ID()))
		assert.Equal(t, 1, h.notifier.withdrawalCount())
	})

	t.Run("exhausted tiers resolve to NoAgentAvailable", func(t *testing.T) {
		h := newHarness(t, 30*time.Millisecond, 1)
		h.connectAgent(t, "solo", 52.52, 13.40)

		o := h.dispatchOrder(t)

		require.Eventually(t, func() bool {
			return h.notifier.noAgentCount() == 1
		}, time.Second, 5*time.Millisecond)
		assert.Equal(t, order.NoAgentAvailable, o.Status())
	})

	t.Run("an accepted order ignores a late timer", func(t *testing.T) {
		h := newHarness(t, 30*time.Millisecond, 2)
		a := h.connectAgent(t, "solo", 52.52, 13.40)

		o := h.dispatchOrder(t)
		generation := h.notifier.lastOffer().offer.Generation
		require.NoError(t, h.coordinator.Accept(context.Background(), o.ID(), a.ID(), generation))

		time.Sleep(60 * time.Millisecond)

		assert.Equal(t, order.Accepted, o.Status())
		assert.True(t, o.AgentID().IsEqual(a.ID()))
	})
}

func Test_Coordinator_Cancel(t *testing.T) {
	t.Run("customer cancel during dispatch withdraws open offers", func(t *testing.T) {
		h := newHarness(t, time.Minute, 2)
		a := h.connectAgent(t, "solo", 52.52, 13.40)

		o := h.dispatchOrder(t)

		require.NoError(t, h.coordinator.CancelByCustomer(context.Background(), o.ID()))

		assert.Equal(t, order.Cancelled, o.Status())
		require.Equal(t, 1, h.notifier.withdrawalCount())
		assert.True(t, h.notifier.withdrawals[0].identity.IsEqual(a.ID()))
		assert.Equal(t, order.Cancelled, h.notifier.lastStatusChange().status)
	})

	t.Run("customer cancel after accept releases and informs the agent", func(t *testing.T) {
		h := newHarness(t, time.Minute, 2)
		a := h.connectAgent(t, "solo", 52.52, 13.40)
		o := h.acceptLastOffer(t, a)

		require.NoError(t, h.coordinator.CancelByCustomer(context.Background(), o.ID()))

		assert.Equal(t, order.Cancelled, o.Status())
		assert.Nil(t, o.AgentID())
		assert.Nil(t, a.ActiveOrderID())
		require.Len(t, h.notifier.cancellations, 1)
		assert.True(t, h.notifier.cancellations[0].identity.IsEqual(a.ID()))
	})

	t.Run("customer cannot cancel after pickup", func(t *testing.T) {
		h := newHarness(t, time.Minute, 2)
		a := h.connectAgent(t, "solo", 52.52, 13.40)
		o := h.acceptLastOffer(t, a)
		require.NoError(t, h.coordinator.MarkPickedUp(context.Background(), o.ID(), a.ID()))

		err := h.coordinator.CancelByCustomer(context.Background(), o.ID())

		assert.ErrorIs(t, err, order.ErrInvalidTransition)
		assert.Equal(t, order.PickedUp, o.Status())
	})

	t.Run("customer cannot cancel an unassignable order", func(t *testing.T) {
		h := newHarness(t, time.Minute, 2)
		o := h.dispatchOrder(t)
		require.Equal(t, order.NoAgentAvailable, o.Status())

		err := h.coordinator.CancelByCustomer(context.Background(), o.ID())

		assert.ErrorIs(t, err, order.ErrInvalidTransition)
		assert.Equal(t, order.NoAgentAvailable, o.Status())
	})

	t.Run("agent cancel reopens dispatch with a penalty", func(t *testing.T) {
		h := newHarness(t, time.Minute, 2)
		quitter := h.connectAgent(t, "quitter", 52.521, 13.406)
		o := h.acceptLastOffer(t, quitter)
		backup := h.connectAgent(t, "backup", 52.50, 13.35)

		require.NoError(t, h.coordinator.CancelByAgent(context.Background(), o.ID(), quitter.ID(), "vehicle broke down"))

		assert.Equal(t, order.Assigning, o.Status())
		assert.Nil(t, o.AgentID())
		assert.Nil(t, quitter.ActiveOrderID())
		assert.InDelta(t, 0.95, quitter.AcceptanceRate(), 1e-9)

		require.Len(t, h.notifier.agentCancels, 1)
		assert.Equal(t, "vehicle broke down", h.notifier.agentCancels[0].reason)
		assert.Equal(t, order.Assigning, h.notifier.agentCancels[0].status)

		// New round went out to the backup only.
		next := h.notifier.lastOffer()
		assert.True(t, next.agentID.IsEqual(backup.ID()))
		assert.True(t, next.offer.Generation > 1)
	})

	t.Run("cancelling agent is excluded from the new candidate set", func(t *testing.T) {
		h := newHarness(t, time.Minute, 2)
		quitter := h.connectAgent(t, "quitter", 52.521, 13.406)
		backup := h.connectAgent(t, "backup", 52.50, 13.35)
		o := h.dispatchOrder(t)
		generation := h.notifier.lastOffer().offer.Generation
		require.NoError(t, h.coordinator.Accept(context.Background(), o.ID(), quitter.ID(), generation))

		before := h.notifier.offerCount()
		require.NoError(t, h.coordinator.CancelByAgent(context.Background(), o.ID(), quitter.ID(), "vehicle broke down"))

		offered := h.notifier.offeredAgents()[before:]
		require.NotEmpty(t, offered)
		for _, id := range offered {
			assert.False(t, id.IsEqual(quitter.ID()))
		}
		assert.True(t, offered[0].IsEqual(backup.ID()))
	})

	t.Run("agent cancel from a non-assignee is rejected", func(t *testing.T) {
		h := newHarness(t, time.Minute, 2)
		a := h.connectAgent(t, "solo", 52.52, 13.40)
		o := h.acceptLastOffer(t, a)

		err := h.coordinator.CancelByAgent(context.Background(), o.ID(), kernel.NewUUID(), "not mine")

		assert.ErrorIs(t, err, dispatch.ErrNotAssignee)
		assert.Equal(t, order.Accepted, o.Status())
	})
}

func Test_Coordinator_DeliveryProgression(t *testing.T) {
	t.Run("assignee advances the order to delivered", func(t *testing.T) {
		h := newHarness(t, time.Minute, 2)
		a := h.connectAgent(t, "solo", 52.52, 13.40)
		o := h.acceptLastOffer(t, a)
		ctx := context.Background()

		require.NoError(t, h.coordinator.MarkPickedUp(ctx, o.ID(), a.ID()))
		assert.Equal(t, order.PickedUp, o.Status())

		require.NoError(t, h.coordinator.MarkOutForDelivery(ctx, o.ID(), a.ID()))
		assert.Equal(t, order.OutForDelivery, o.Status())

		require.NoError(t, h.coordinator.MarkDelivered(ctx, o.ID(), a.ID()))
		assert.Equal(t, order.Delivered, o.Status())
		assert.Nil(t, a.ActiveOrderID())
		assert.Equal(t, order.Delivered, h.notifier.lastStatusChange().status)
	})

	t.Run("skipping a lifecycle step is rejected", func(t *testing.T) {
		h := newHarness(t, time.Minute, 2)
		a := h.connectAgent(t, "solo", 52.52, 13.40)
		o := h.acceptLastOffer(t, a)

		err := h.coordinator.MarkDelivered(context.Background(), o.ID(), a.ID())

		assert.ErrorIs(t, err, order.ErrInvalidTransition)
		assert.Equal(t, order.Accepted, o.Status())
	})

	t.Run("non-assignee cannot advance the order", func(t *testing.T) {
		h := newHarness(t, time.Minute, 2)
		a := h.connectAgent(t, "solo", 52.52, 13.40)
		o := h.acceptLastOffer(t, a)

		err := h.coordinator.MarkPickedUp(context.Background(), o.ID(), kernel.NewUUID())

		assert.ErrorIs(t, err, dispatch.ErrNotAssignee)
	})
}

func Test_Coordinator_Payment(t *testing.T) {
	t.Run("payment flip notifies the customer without moving the lifecycle", func(t *testing.T) {
		h := newHarness(t, time.Minute, 2)
		a := h.connectAgent(t, "solo", 52.52, 13.40)
		o := h.acceptLastOffer(t, a)

		require.NoError(t, h.coordinator.SetPaymentStatus(context.Background(), o.ID(), order.PaymentPaid))

		assert.Equal(t, order.Accepted, o.Status())
		assert.Equal(t, order.PaymentPaid, o.PaymentStatus())
		require.Len(t, h.notifier.paymentChanges, 1)
		assert.Equal(t, order.PaymentPaid, h.notifier.paymentChanges[0].paymentStatus)
	})
}

func Test_Coordinator_Housekeeping(t *testing.T) {
	t.Run("terminal handler fires on completion", func(t *testing.T) {
		h := newHarness(t, time.Minute, 2)
		var terminated []kernel.UUID
		h.coordinator.SetTerminalHandler(func(orderID, _ kernel.UUID) {
			terminated = append(terminated, orderID)
		})
		a := h.connectAgent(t, "solo", 52.52, 13.40)
		o := h.acceptLastOffer(t, a)
		ctx := context.Background()

		require.NoError(t, h.coordinator.MarkPickedUp(ctx, o.ID(), a.ID()))
		require.NoError(t, h.coordinator.MarkOutForDelivery(ctx, o.ID(), a.ID()))
		require.NoError(t, h.coordinator.MarkDelivered(ctx, o.ID(), a.ID()))

		require.Len(t, terminated, 1)
		assert.True(t, terminated[0].IsEqual(o.ID()))
	})

	t.Run("terminal orders are evicted after the retention window", func(t *testing.T) {
		h := newHarness(t, time.Minute, 2)
		h.connectAgent(t, "solo", 52.52, 13.40)
		o := h.dispatchOrder(t)
		require.NoError(t, h.coordinator.CancelByCustomer(context.Background(), o.ID()))

		assert.Zero(t, h.coordinator.EvictTerminal(time.Hour))
		assert.Equal(t, 1, h.coordinator.EvictTerminal(0))

		_, err := h.coordinator.Snapshot(o.ID())
		assert.ErrorIs(t, err, errs.ErrObjectNotFound)
	})

	t.Run("restore reopens dispatch for orders caught mid-assignment", func(t *testing.T) {
		h := newHarness(t, time.Minute, 2)
		a := h.connectAgent(t, "solo", 52.52, 13.40)

		location, err := kernel.NewGeoPoint(52.52, 13.405)
		require.NoError(t, err)
		zone, err := kernel.NewZone("mitte")
		require.NoError(t, err)
		restored, err := order.RestoreOrder(
			kernel.NewUUID(), kernel.NewUUID(), location, zone,
			order.Assigning, order.PaymentPending, nil,
		)
		require.NoError(t, err)

		require.NoError(t, h.coordinator.Restore(context.Background(), []*order.Order{restored}))

		require.Equal(t, 1, h.notifier.offerCount())
		assert.True(t, h.notifier.lastOffer().agentID.IsEqual(a.ID()))
	})
}
