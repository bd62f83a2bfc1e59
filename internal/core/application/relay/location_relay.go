// Package relay implements the live forwarding policies that run while an
// order is in a live status: position samples in both directions, the agent's
// route polyline, and chat. Relays are best-effort by design: a dropped sample
// or message is never an error the sender has to care about.
package relay

import (
	"log/slog"
	"sync"
	"time"

	"dispatch/internal/core/application/dispatch"
	"dispatch/internal/core/application/presence"
	"dispatch/internal/core/domain/model/agent"
	"dispatch/internal/core/domain/model/kernel"
	"dispatch/internal/core/ports"
	"dispatch/internal/pkg/errs"
)

// DefaultThrottleInterval is the minimum spacing between forwarded position
// samples from one source on one order.
const DefaultThrottleInterval = 4 * time.Second

// OrderDirectory is the slice of the dispatch coordinator the relays need:
// a point-in-time view of a tracked order.
type OrderDirectory interface {
	Snapshot(orderID kernel.UUID) (dispatch.Info, error)
}

type throttleKey struct {
	orderID kernel.UUID
	source  kernel.UUID
}

// LocationRelay forwards position and route updates between the two parties
// of a live order. Position samples are throttled per source; route updates
// pass through unthrottled, and a nil route is an explicit tombstone that
// clears the customer's map.
//
// The relay also retains the last accepted sample per (order, sender) so a
// party that reconnects mid-delivery can be brought up to date without
// waiting for the counterpart's next sample.
type LocationRelay struct {
	orders   OrderDirectory
	registry *presence.Registry
	notifier ports.Notifier
	interval time.Duration
	logger   *slog.Logger

	mu          sync.Mutex
	lastForward map[throttleKey]time.Time
	lastSample  map[throttleKey]kernel.GeoPoint
}

// NewLocationRelay creates a location relay. A non-positive interval falls
// back to DefaultThrottleInterval.
func NewLocationRelay(
	orders OrderDirectory,
	registry *presence.Registry,
	notifier ports.Notifier,
	interval time.Duration,
	logger *slog.Logger,
) *LocationRelay {
	if interval <= 0 {
		interval = DefaultThrottleInterval
	}
	return &LocationRelay{
		orders:      orders,
		registry:    registry,
		notifier:    notifier,
		interval:    interval,
		logger:      logger.With("component", "location-relay"),
		lastForward: make(map[throttleKey]time.Time),
		lastSample:  make(map[throttleKey]kernel.GeoPoint),
	}
}

// HandleAgentLocation processes a position sample from an agent. The sample
// always refreshes the agent's last-known location; it is forwarded to the
// customer only when the agent holds the order, the order is live, and the
// per-source throttle allows it.
func (r *LocationRelay) HandleAgentLocation(agentID kernel.UUID, orderID *kernel.UUID, lat, lng float64) error {
	point, err := kernel.NewGeoPoint(lat, lng)
	if err != nil {
		return err
	}

	if err := r.registry.WithAgent(agentID, func(a *agent.Agent) error {
		return a.UpdateLocation(point, time.Now())
	}); err != nil {
		return err
	}

	if orderID == nil {
		return nil
	}

	info, err := r.orders.Snapshot(*orderID)
	if err != nil {
		return err
	}
	if !info.Status.IsLive() || info.AgentID == nil || !info.AgentID.IsEqual(agentID) {
		return nil
	}

	r.remember(*orderID, agentID, point)
	if !r.allow(*orderID, agentID) {
		return nil
	}

	r.notifier.NotifyLiveLocation(info.CustomerID, *orderID, point)
	return nil
}

// HandleUserLocation processes a position sample from the customer and
// forwards it to the assigned agent under the same live-status gate and
// per-source throttle.
func (r *LocationRelay) HandleUserLocation(customerID, orderID kernel.UUID, lat, lng float64) error {
	point, err := kernel.NewGeoPoint(lat, lng)
	if err != nil {
		return err
	}

	info, err := r.orders.Snapshot(orderID)
	if err != nil {
		return err
	}
	if !info.CustomerID.IsEqual(customerID) {
		return errs.NewValueIsInvalidError("customerID")
	}
	if !info.Status.IsLive() || info.AgentID == nil {
		return nil
	}

	r.remember(orderID, customerID, point)
	if !r.allow(orderID, customerID) {
		return nil
	}

	r.notifier.NotifyUserLocation(*info.AgentID, orderID, point)
	return nil
}

// HandleRouteUpdate forwards the agent's route polyline to the customer
// verbatim. Routes bypass the throttle; a nil route clears the shown route.
func (r *LocationRelay) HandleRouteUpdate(agentID, orderID kernel.UUID, route *string) error {
	info, err := r.orders.Snapshot(orderID)
	if err != nil {
		return err
	}
	if !info.Status.IsLive() || info.AgentID == nil || !info.AgentID.IsEqual(agentID) {
		return nil
	}

	r.notifier.NotifyRouteUpdate(info.CustomerID, orderID, route)
	return nil
}

// ResendLastKnown pushes the counterpart's last-known position to the
// requesting party, used when either side reconnects mid-delivery and has no
// sample yet. A customer receives the agent's position, the assigned agent
// receives the customer's; a requester that is neither party is rejected.
func (r *LocationRelay) ResendLastKnown(orderID, requesterID kernel.UUID) error {
	info, err := r.orders.Snapshot(orderID)
	if err != nil {
		return err
	}
	if !info.Status.IsLive() || info.AgentID == nil {
		return nil
	}

	switch {
	case info.CustomerID.IsEqual(requesterID):
		point, ok := r.recall(orderID, *info.AgentID)
		if !ok {
			// No sample relayed on this order yet; fall back to the agent's
			// directory position.
			a, err := r.registry.Agent(*info.AgentID)
			if err != nil {
				return err
			}
			if point, _, ok = a.Location(); !ok {
				return nil
			}
		}
		r.notifier.NotifyLiveLocation(info.CustomerID, orderID, point)
		return nil

	case info.AgentID.IsEqual(requesterID):
		if point, ok := r.recall(orderID, info.CustomerID); ok {
			r.notifier.NotifyUserLocation(*info.AgentID, orderID, point)
		}
		return nil

	default:
		return errs.NewValueIsInvalidError("requesterID")
	}
}

// HandleOrderTerminated tears down relay state for a finished order and sends
// the route tombstone so the customer's map stops rendering a stale path.
func (r *LocationRelay) HandleOrderTerminated(orderID, customerID kernel.UUID) {
	r.mu.Lock()
	for key := range r.lastForward {
		if key.orderID.IsEqual(orderID) {
			delete(r.lastForward, key)
		}
	}
	for key := range r.lastSample {
		if key.orderID.IsEqual(orderID) {
			delete(r.lastSample, key)
		}
	}
	r.mu.Unlock()

	r.notifier.NotifyRouteUpdate(customerID, orderID, nil)
	r.logger.Debug("relay state cleared", "orderID", orderID)
}

// remember retains the latest accepted sample for one (order, sender) pair.
// Throttled samples are retained too so the stored position is always the
// freshest one seen.
func (r *LocationRelay) remember(orderID, source kernel.UUID, point kernel.GeoPoint) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastSample[throttleKey{orderID: orderID, source: source}] = point
}

// recall returns the retained sample for one (order, sender) pair.
func (r *LocationRelay) recall(orderID, source kernel.UUID) (kernel.GeoPoint, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	point, ok := r.lastSample[throttleKey{orderID: orderID, source: source}]
	return point, ok
}

// allow applies the per-source throttle for one order.
func (r *LocationRelay) allow(orderID, source kernel.UUID) bool {
	now := time.Now()
	key := throttleKey{orderID: orderID, source: source}

	r.mu.Lock()
	defer r.mu.Unlock()

	if last, ok := r.lastForward[key]; ok && now.Sub(last) < r.interval {
		return false
	}
	r.lastForward[key] = now
	return true
}
