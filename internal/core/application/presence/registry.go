// Package presence tracks which identities currently hold a live session and
// keeps the in-memory agent directory used by dispatch. It maps an identity to
// at most one connection: a reconnect atomically replaces the previous session
// so stale connections can never receive events meant for the new one.
package presence

import (
	"log/slog"
	"sync"
	"time"

	"dispatch/internal/core/domain/model/agent"
	"dispatch/internal/core/domain/model/kernel"
	"dispatch/internal/pkg/errs"
)

// Kind discriminates the two identity classes a session can authenticate as.
type Kind int

const (
	KindUnknown Kind = iota
	KindAgent
	KindCustomer
)

// Session is the minimal connection handle the registry tracks. The gateway's
// connection type implements it; the registry closes a session when a newer
// one replaces it.
type Session interface {
	// Close tears the underlying connection down. Safe to call more than once.
	Close() error
}

type entry struct {
	session Session
	kind    Kind
	seenAt  time.Time
}

// Registry is the in-memory presence map plus the agent directory.
// All methods are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[kernel.UUID]*entry
	agents  map[kernel.UUID]*agent.Agent

	logger *slog.Logger
}

// NewRegistry creates an empty presence registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		entries: make(map[kernel.UUID]*entry),
		agents:  make(map[kernel.UUID]*agent.Agent),
		logger:  logger.With("component", "presence"),
	}
}

// Connect registers a session for an identity. If the identity already has a
// live session, the old one is closed and replaced; any agent state (active
// order, last-known location, acceptance rate) survives the replacement.
func (r *Registry) Connect(id kernel.UUID, kind Kind, session Session) {
	r.mu.Lock()
	previous := r.entries[id]
	r.entries[id] = &entry{session: session, kind: kind, seenAt: time.Now()}
	if kind == KindAgent {
		if a, ok := r.agents[id]; ok {
			a.SetOnline()
		}
	}
	r.mu.Unlock()

	if previous != nil {
		if err := previous.session.Close(); err != nil {
			r.logger.Debug("failed to close replaced session", "id", id, "error", err)
		}
		r.logger.Info("session replaced", "id", id)
	}
}

// Disconnect removes a session for an identity. The removal only happens if
// the given session is still the current one, so a replaced connection's
// deferred disconnect cannot evict its successor. An agent's record is kept
// and marked offline; its active order is preserved for reconnection.
func (r *Registry) Disconnect(id kernel.UUID, session Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.entries[id]
	if !ok || current.session != session {
		return
	}

	delete(r.entries, id)
	if a, ok := r.agents[id]; ok {
		a.SetOffline()
	}
}

// Session returns the live session for an identity, if any.
func (r *Registry) Session(id kernel.UUID) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return e.session, true
}

// IsOnline reports whether an identity currently holds a live session.
func (r *Registry) IsOnline(id kernel.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.entries[id]
	return ok
}

// Touch refreshes an identity's last-seen timestamp. Called by the gateway on
// inbound traffic so the stale-presence sweep does not evict active sessions.
func (r *Registry) Touch(id kernel.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[id]; ok {
		e.seenAt = time.Now()
	}
}

// SweepStale closes and removes sessions that have been silent for longer
// than maxIdle. Returns the number of sessions evicted.
func (r *Registry) SweepStale(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	r.mu.Lock()
	var stale []Session
	for id, e := range r.entries {
		if e.seenAt.Before(cutoff) {
			stale = append(stale, e.session)
			delete(r.entries, id)
			if a, ok := r.agents[id]; ok {
				a.SetOffline()
			}
			r.logger.Info("stale session evicted", "id", id)
		}
	}
	r.mu.Unlock()

	for _, s := range stale {
		_ = s.Close()
	}
	return len(stale)
}

// RegisterAgent adds an agent to the directory or refreshes an existing
// record. A known agent keeps its runtime state; only the profile fields
// could change, and those are owned by the aggregate itself.
func (r *Registry) RegisterAgent(a *agent.Agent) error {
	if err := a.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.agents[a.ID()]; !ok {
		r.agents[a.ID()] = a
	}
	return nil
}

// Agent returns a snapshot of the directory record for an agent id. Like
// OnlineAgents it hands out a clone; mutations go through WithAgent.
func (r *Registry) Agent(id kernel.UUID) (*agent.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[id]
	if !ok {
		return nil, errs.NewObjectNotFoundError("agentID", id)
	}
	return a.Clone(), nil
}

// WithAgent runs fn on the directory record for an agent id while holding the
// registry lock, giving callers per-agent exclusivity for state mutations such
// as claiming or releasing an order.
func (r *Registry) WithAgent(id kernel.UUID, fn func(a *agent.Agent) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[id]
	if !ok {
		return errs.NewObjectNotFoundError("agentID", id)
	}
	return fn(a)
}

// OnlineAgents returns snapshots of the agents that currently hold a live
// session. Clones are returned because callers rank and inspect them outside
// the registry lock; mutations go through WithAgent.
func (r *Registry) OnlineAgents() []*agent.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	online := make([]*agent.Agent, 0, len(r.agents))
	for id, a := range r.agents {
		if _, ok := r.entries[id]; ok {
			online = append(online, a.Clone())
		}
	}
	return online
}
