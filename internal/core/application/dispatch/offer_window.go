package dispatch

import (
	"time"

	"dispatch/internal/core/domain/model/agent"
	"dispatch/internal/core/domain/model/kernel"
)

// offerWindow is the state of one dispatch attempt for an order: the candidate
// tiers still to be offered, the set of agents holding the currently open
// offer, and the round's deadline timer. The generation counter is bumped on
// every round so an accept carrying a stale generation can never claim the
// order.
//
// An offerWindow is only ever touched while holding its order entry's lock;
// it has no locking of its own.
type offerWindow struct {
	generation uint64
	tiers      [][]*agent.Agent
	pending    map[kernel.UUID]struct{}
	expiresAt  time.Time
	timer      *time.Timer
}

func newOfferWindow(generation uint64, tiers [][]*agent.Agent) *offerWindow {
	return &offerWindow{
		generation: generation,
		tiers:      tiers,
		pending:    make(map[kernel.UUID]struct{}),
	}
}

// openRound pops the next candidate tier and makes it the pending set.
// Returns the tier's agents, or false when all tiers are exhausted.
func (w *offerWindow) openRound(ttl time.Duration, onExpiry func(generation uint64)) ([]*agent.Agent, bool) {
	if len(w.tiers) == 0 {
		return nil, false
	}

	tier := w.tiers[0]
	w.tiers = w.tiers[1:]
	w.generation++
	w.pending = make(map[kernel.UUID]struct{}, len(tier))
	for _, a := range tier {
		w.pending[a.ID()] = struct{}{}
	}
	w.expiresAt = time.Now().Add(ttl)

	generation := w.generation
	w.timer = time.AfterFunc(ttl, func() { onExpiry(generation) })

	return tier, true
}

// isClaimable reports whether an accept or reject carrying the given
// generation from the given agent targets the currently open round.
func (w *offerWindow) isClaimable(agentID kernel.UUID, generation uint64) bool {
	if generation != w.generation || time.Now().After(w.expiresAt) {
		return false
	}
	_, pending := w.pending[agentID]
	return pending
}

// dropCandidate removes an agent from the pending set and reports whether
// any candidates remain in the round.
func (w *offerWindow) dropCandidate(agentID kernel.UUID) bool {
	delete(w.pending, agentID)
	return len(w.pending) > 0
}

// pendingCandidates returns the agents still holding the open offer.
func (w *offerWindow) pendingCandidates() []kernel.UUID {
	ids := make([]kernel.UUID, 0, len(w.pending))
	for id := range w.pending {
		ids = append(ids, id)
	}
	return ids
}

// close stops the deadline timer and empties the pending set. A timer that
// already fired is harmless: its callback carries a stale generation.
func (w *offerWindow) close() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.pending = make(map[kernel.UUID]struct{})
}
