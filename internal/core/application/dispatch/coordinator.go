// Package dispatch implements the order dispatch protocol: candidate ranking,
// timed offer rounds with first-accept-wins resolution, lifecycle transitions,
// and write-through persistence of every accepted mutation.
//
// The coordinator's unit of fault isolation is a single order. Every shared
// mutable record (the order, its offer window) is guarded by a per-order lock,
// so concurrent accepts for one order resolve deterministically to exactly one
// winner while other orders proceed untouched.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"dispatch/internal/core/application/presence"
	"dispatch/internal/core/domain/model/agent"
	"dispatch/internal/core/domain/model/kernel"
	"dispatch/internal/core/domain/model/order"
	"dispatch/internal/core/domain/services"
	"dispatch/internal/core/ports"
	"dispatch/internal/pkg/errs"
)

// DefaultOfferTTL is how long one offer round stays claimable.
const DefaultOfferTTL = 30 * time.Second

var (
	// ErrOfferNotCurrent is returned for an accept or reject that does not
	// target the currently open offer round: stale generation, expired
	// deadline, or an agent that was never a candidate.
	ErrOfferNotCurrent = errors.New("offer is not current")

	// ErrOrderAlreadyAssigned is returned for an accept that arrives after
	// another agent has already claimed the order.
	ErrOrderAlreadyAssigned = errors.New("order is already assigned")

	// ErrNotAssignee is returned for a delivery action from an agent that
	// does not hold the order.
	ErrNotAssignee = errors.New("agent does not hold this order")
)

// Info is a point-in-time view of a tracked order, used by the relays to gate
// forwarding without reaching into the aggregate.
type Info struct {
	OrderID       kernel.UUID
	CustomerID    kernel.UUID
	AgentID       *kernel.UUID
	Status        order.Status
	PaymentStatus order.PaymentStatus
}

type orderEntry struct {
	mu     sync.Mutex
	order  *order.Order
	window *offerWindow
	doneAt time.Time

	// excluded holds agents banned from this order's candidate sets: an
	// agent that cancelled after accepting is never offered the same order
	// again.
	excluded map[kernel.UUID]struct{}
}

// Coordinator drives orders through the dispatch protocol. It owns the
// in-memory set of tracked orders and serializes every mutation of an order
// behind that order's lock.
type Coordinator struct {
	registry   *presence.Registry
	notifier   ports.Notifier
	ranking    services.RankingPolicy
	uowFactory ports.UnitOfWorkFactory
	offerTTL   time.Duration
	logger     *slog.Logger

	// onTerminal, when set, is invoked after an order reaches a terminal
	// status, while the order's lock is still held. Handlers must not call
	// back into the coordinator.
	onTerminal func(orderID, customerID kernel.UUID)

	mu      sync.RWMutex
	entries map[kernel.UUID]*orderEntry
}

// NewCoordinator creates a dispatch coordinator. A non-positive offerTTL
// falls back to DefaultOfferTTL.
func NewCoordinator(
	registry *presence.Registry,
	notifier ports.Notifier,
	ranking services.RankingPolicy,
	uowFactory ports.UnitOfWorkFactory,
	offerTTL time.Duration,
	logger *slog.Logger,
) *Coordinator {
	if offerTTL <= 0 {
		offerTTL = DefaultOfferTTL
	}
	return &Coordinator{
		registry:   registry,
		notifier:   notifier,
		ranking:    ranking,
		uowFactory: uowFactory,
		offerTTL:   offerTTL,
		logger:     logger.With("component", "dispatch"),
		entries:    make(map[kernel.UUID]*orderEntry),
	}
}

// SetTerminalHandler registers a callback fired when an order reaches a
// terminal status. Used to tear down relay state for the order.
func (c *Coordinator) SetTerminalHandler(fn func(orderID, customerID kernel.UUID)) {
	c.onTerminal = fn
}

// Track places an order under the coordinator's control. Used at order intake
// and when rebuilding state after a restart.
func (c *Coordinator) Track(o *order.Order) error {
	if err := o.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[o.ID()]; ok {
		return nil
	}
	c.entries[o.ID()] = &orderEntry{order: o}
	return nil
}

// Snapshot returns a point-in-time view of a tracked order.
func (c *Coordinator) Snapshot(orderID kernel.UUID) (Info, error) {
	e, err := c.entry(orderID)
	if err != nil {
		return Info{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return Info{
		OrderID:       e.order.ID(),
		CustomerID:    e.order.CustomerID(),
		AgentID:       e.order.AgentID(),
		Status:        e.order.Status(),
		PaymentStatus: e.order.PaymentStatus(),
	}, nil
}

// Dispatch moves an order into Assigning and opens the first offer round.
// Also used to retry an order that ended up in NoAgentAvailable. Any other
// starting status is rejected: once an agent is bound, the order leaves
// Assigning only through the agent's own actions or a cancellation.
func (c *Coordinator) Dispatch(ctx context.Context, orderID kernel.UUID) error {
	e, err := c.entry(orderID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.order.Status() {
	case order.Assigning:
	case order.Placed, order.NoAgentAvailable:
		if err := e.order.StartAssigning(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: cannot dispatch from %s", order.ErrInvalidTransition, e.order.Status())
	}
	c.persist(ctx, e.order)

	return c.startDispatchLocked(ctx, e)
}

// Accept resolves an agent's claim on an open offer. Exactly one accept per
// round can win; every other outcome is reported as an explicit error with no
// state change.
func (c *Coordinator) Accept(ctx context.Context, orderID, agentID kernel.UUID, generation uint64) error {
	e, err := c.entry(orderID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.order.Status() != order.Assigning || e.window == nil {
		if e.order.AgentID() != nil {
			return ErrOrderAlreadyAssigned
		}
		return ErrOfferNotCurrent
	}
	if !e.window.isClaimable(agentID, generation) {
		return ErrOfferNotCurrent
	}

	// Claim the agent first: an agent that picked up another order since
	// the broadcast loses without touching this order.
	if err := c.registry.WithAgent(agentID, func(a *agent.Agent) error {
		return a.TakeOrder(orderID)
	}); err != nil {
		if !e.window.dropCandidate(agentID) {
			c.advanceRoundLocked(ctx, e)
		}
		return err
	}

	losers := make([]kernel.UUID, 0, len(e.window.pending))
	for _, id := range e.window.pendingCandidates() {
		if !id.IsEqual(agentID) {
			losers = append(losers, id)
		}
	}
	e.window.close()

	if err := e.order.Assign(agentID); err != nil {
		releaseErr := c.registry.WithAgent(agentID, func(a *agent.Agent) error {
			return a.ReleaseOrder(orderID)
		})
		if releaseErr != nil {
			c.logger.Error("failed to release agent after assignment failure",
				"orderID", orderID, "agentID", agentID, "error", releaseErr)
		}
		return err
	}

	for _, id := range losers {
		c.notifier.NotifyOfferWithdrawn(id, orderID)
	}
	c.notifier.NotifyOrderStatusChanged(e.order.CustomerID(), orderID, e.order.Status(), c.agentInfo(agentID))
	c.persist(ctx, e.order)

	c.logger.Info("order accepted", "orderID", orderID, "agentID", agentID, "generation", generation)
	return nil
}

// Reject withdraws an agent's candidacy from the open offer round. When the
// last candidate rejects, the coordinator advances to the next tier without
// waiting for the deadline.
func (c *Coordinator) Reject(ctx context.Context, orderID, agentID kernel.UUID, generation uint64) error {
	e, err := c.entry(orderID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.order.Status() != order.Assigning || e.window == nil || !e.window.isClaimable(agentID, generation) {
		return ErrOfferNotCurrent
	}

	if !e.window.dropCandidate(agentID) {
		c.advanceRoundLocked(ctx, e)
	}
	return nil
}

// CancelByCustomer cancels an order on the customer's behalf. Allowed while
// the order is Placed, Assigning, or Accepted; any open offers are withdrawn
// and an assigned agent is released and informed.
func (c *Coordinator) CancelByCustomer(ctx context.Context, orderID kernel.UUID) error {
	e, err := c.entry(orderID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.order.Status().CanCustomerCancel() {
		return fmt.Errorf("%w: customer cannot cancel from %s", order.ErrInvalidTransition, e.order.Status())
	}

	c.withdrawOpenOffersLocked(e)

	assignee := e.order.AgentID()
	if err := e.order.Cancel(); err != nil {
		return err
	}

	if assignee != nil {
		c.releaseAgent(*assignee, orderID, false)
		c.notifier.NotifyOrderCancelled(*assignee, orderID)
	}

	c.notifier.NotifyOrderStatusChanged(e.order.CustomerID(), orderID, e.order.Status(), nil)
	c.persist(ctx, e.order)
	c.markTerminalLocked(e)

	c.logger.Info("order cancelled by customer", "orderID", orderID)
	return nil
}

// CancelByAgent lets the assigned agent back out of an accepted order. The
// order returns to Assigning, the agent is released with an acceptance-rate
// penalty, the customer is informed, and dispatch restarts with a fresh
// ranking that excludes the cancelling agent.
func (c *Coordinator) CancelByAgent(ctx context.Context, orderID, agentID kernel.UUID, reason string) error {
	e, err := c.entry(orderID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.order.AgentID() == nil || !e.order.AgentID().IsEqual(agentID) {
		return ErrNotAssignee
	}

	if err := e.order.Unassign(); err != nil {
		return err
	}
	c.releaseAgent(agentID, orderID, true)

	if e.excluded == nil {
		e.excluded = make(map[kernel.UUID]struct{})
	}
	e.excluded[agentID] = struct{}{}

	c.notifier.NotifyOrderCancelledByAgent(e.order.CustomerID(), orderID, e.order.Status(), reason)
	c.persist(ctx, e.order)

	c.logger.Info("order cancelled by agent", "orderID", orderID, "agentID", agentID, "reason", reason)
	return c.startDispatchLocked(ctx, e)
}

// MarkPickedUp records that the assigned agent collected the order.
func (c *Coordinator) MarkPickedUp(ctx context.Context, orderID, agentID kernel.UUID) error {
	return c.deliveryAction(ctx, orderID, agentID, (*order.Order).MarkPickedUp)
}

// MarkOutForDelivery records that the assigned agent is en route to the
// customer.
func (c *Coordinator) MarkOutForDelivery(ctx context.Context, orderID, agentID kernel.UUID) error {
	return c.deliveryAction(ctx, orderID, agentID, (*order.Order).MarkOutForDelivery)
}

// MarkDelivered completes the order. The agent is released and becomes
// available for new offers.
func (c *Coordinator) MarkDelivered(ctx context.Context, orderID, agentID kernel.UUID) error {
	e, err := c.entry(orderID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.order.AgentID() == nil || !e.order.AgentID().IsEqual(agentID) {
		return ErrNotAssignee
	}

	if err := e.order.MarkDelivered(); err != nil {
		return err
	}
	c.releaseAgent(agentID, orderID, false)

	c.notifier.NotifyOrderStatusChanged(e.order.CustomerID(), orderID, e.order.Status(), c.agentInfo(agentID))
	c.persist(ctx, e.order)
	c.markTerminalLocked(e)

	c.logger.Info("order delivered", "orderID", orderID, "agentID", agentID)
	return nil
}

// SetPaymentStatus records a payment status flip and informs the customer.
// Payment never moves the delivery lifecycle.
func (c *Coordinator) SetPaymentStatus(ctx context.Context, orderID kernel.UUID, paymentStatus order.PaymentStatus) error {
	e, err := c.entry(orderID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.order.SetPaymentStatus(paymentStatus); err != nil {
		return err
	}

	c.notifier.NotifyPaymentStatusChanged(e.order.CustomerID(), orderID, paymentStatus)
	c.persist(ctx, e.order)
	return nil
}

// Restore places previously persisted active orders back under the
// coordinator's control and reopens dispatch for those caught mid-assignment.
func (c *Coordinator) Restore(ctx context.Context, orders []*order.Order) error {
	for _, o := range orders {
		if err := c.Track(o); err != nil {
			return err
		}
		if o.Status() == order.Assigning || o.Status() == order.Placed {
			if err := c.Dispatch(ctx, o.ID()); err != nil {
				c.logger.Error("failed to reopen dispatch", "orderID", o.ID(), "error", err)
			}
		}
	}
	return nil
}

// EvictTerminal drops terminal orders that finished more than olderThan ago
// from the in-memory set. Returns the number of orders evicted.
func (c *Coordinator) EvictTerminal(olderThan time.Duration) int {
	cutoff := time.Now().Add(-olderThan)

	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := 0
	for id, e := range c.entries {
		e.mu.Lock()
		done := !e.doneAt.IsZero() && e.doneAt.Before(cutoff)
		e.mu.Unlock()
		if done {
			delete(c.entries, id)
			evicted++
		}
	}
	return evicted
}

func (c *Coordinator) entry(orderID kernel.UUID) (*orderEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[orderID]
	if !ok {
		return nil, errs.NewObjectNotFoundError("orderID", orderID.String())
	}
	return e, nil
}

// startDispatchLocked ranks the currently online agents and opens the first
// offer round. Caller holds e.mu; the order is in Assigning.
func (c *Coordinator) startDispatchLocked(ctx context.Context, e *orderEntry) error {
	var base uint64
	if e.window != nil {
		base = e.window.generation
		c.withdrawOpenOffersLocked(e)
	}

	tiers, err := c.ranking.Rank(e.order, c.registry.OnlineAgents(), e.excluded)
	if err != nil {
		if errors.Is(err, services.ErrNoCandidates) {
			return c.exhaustLocked(ctx, e)
		}
		return err
	}

	e.window = newOfferWindow(base, tiers)
	c.openRoundLocked(ctx, e)
	return nil
}

// openRoundLocked broadcasts the next tier's offers. Caller holds e.mu.
func (c *Coordinator) openRoundLocked(ctx context.Context, e *orderEntry) {
	orderID := e.order.ID()
	tier, ok := e.window.openRound(c.offerTTL, func(generation uint64) {
		c.handleExpiry(orderID, generation)
	})
	if !ok {
		if err := c.exhaustLocked(ctx, e); err != nil {
			c.logger.Error("failed to mark order unassignable", "orderID", orderID, "error", err)
		}
		return
	}

	offer := ports.OrderOffer{
		OrderID:          orderID,
		CustomerID:       e.order.CustomerID(),
		ShippingLocation: e.order.ShippingLocation(),
		Zone:             e.order.Zone(),
		Generation:       e.window.generation,
		ExpiresAt:        e.window.expiresAt,
	}
	for _, a := range tier {
		c.notifier.NotifyNewOrderOffer(a.ID(), offer)
	}

	c.logger.Info("offer round opened",
		"orderID", orderID, "generation", e.window.generation, "candidates", len(tier))
}

// advanceRoundLocked withdraws the current round and opens the next tier.
// Caller holds e.mu.
func (c *Coordinator) advanceRoundLocked(ctx context.Context, e *orderEntry) {
	c.withdrawOpenOffersLocked(e)
	c.openRoundLocked(ctx, e)
}

// exhaustLocked marks the order NoAgentAvailable after every tier came up
// empty. Caller holds e.mu.
func (c *Coordinator) exhaustLocked(ctx context.Context, e *orderEntry) error {
	if e.window != nil {
		e.window.close()
	}
	if err := e.order.MarkNoAgentAvailable(); err != nil {
		return err
	}

	c.notifier.NotifyNoAgentAvailable(e.order.CustomerID(), e.order.ID())
	c.persist(ctx, e.order)

	c.logger.Info("dispatch exhausted", "orderID", e.order.ID())
	return nil
}

// handleExpiry is the offer deadline callback. A fired timer whose round has
// already resolved is a no-op, guarded by the generation counter.
func (c *Coordinator) handleExpiry(orderID kernel.UUID, generation uint64) {
	e, err := c.entry(orderID)
	if err != nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.order.Status() != order.Assigning || e.window == nil || e.window.generation != generation {
		return
	}

	c.logger.Info("offer round expired", "orderID", orderID, "generation", generation)
	c.advanceRoundLocked(context.Background(), e)
}

// withdrawOpenOffersLocked notifies every pending candidate that the offer is
// gone and closes the window. Caller holds e.mu.
func (c *Coordinator) withdrawOpenOffersLocked(e *orderEntry) {
	if e.window == nil {
		return
	}
	for _, id := range e.window.pendingCandidates() {
		c.notifier.NotifyOfferWithdrawn(id, e.order.ID())
	}
	e.window.close()
}

// markTerminalLocked records the completion time and fires the terminal
// handler. Caller holds e.mu.
func (c *Coordinator) markTerminalLocked(e *orderEntry) {
	e.doneAt = time.Now()
	if c.onTerminal != nil {
		c.onTerminal(e.order.ID(), e.order.CustomerID())
	}
}

func (c *Coordinator) deliveryAction(ctx context.Context, orderID, agentID kernel.UUID, action func(*order.Order) error) error {
	e, err := c.entry(orderID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.order.AgentID() == nil || !e.order.AgentID().IsEqual(agentID) {
		return ErrNotAssignee
	}

	if err := action(e.order); err != nil {
		return err
	}

	c.notifier.NotifyOrderStatusChanged(e.order.CustomerID(), orderID, e.order.Status(), c.agentInfo(agentID))
	c.persist(ctx, e.order)
	return nil
}

func (c *Coordinator) releaseAgent(agentID, orderID kernel.UUID, penalize bool) {
	err := c.registry.WithAgent(agentID, func(a *agent.Agent) error {
		if err := a.ReleaseOrder(orderID); err != nil {
			return err
		}
		if penalize {
			a.PenalizeAcceptance()
		}
		return nil
	})
	if err != nil {
		c.logger.Error("failed to release agent", "orderID", orderID, "agentID", agentID, "error", err)
	}
}

func (c *Coordinator) agentInfo(agentID kernel.UUID) *ports.AgentInfo {
	a, err := c.registry.Agent(agentID)
	if err != nil {
		return &ports.AgentInfo{ID: agentID}
	}
	return &ports.AgentInfo{ID: a.ID(), Name: a.Name()}
}

// persist writes the order snapshot through to storage. Persistence is
// best-effort: the in-memory state is authoritative while the process lives,
// and a failed write must not fail the dispatch operation that caused it.
func (c *Coordinator) persist(ctx context.Context, o *order.Order) {
	uow := c.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		c.logger.Error("failed to begin transaction", "orderID", o.ID(), "error", err)
		return
	}
	if err := uow.OrderRepository().Update(ctx, o); err != nil {
		_ = uow.Rollback(ctx)
		c.logger.Error("failed to persist order", "orderID", o.ID(), "error", err)
		return
	}
	if err := uow.Commit(ctx); err != nil {
		c.logger.Error("failed to commit order", "orderID", o.ID(), "error", err)
	}
}
