package services

import (
	"errors"
	"sort"

	"dispatch/internal/core/domain/model/agent"
	"dispatch/internal/core/domain/model/kernel"
	"dispatch/internal/core/domain/model/order"
)

// ErrNoCandidates is returned when no suitable agent is available for an order.
// This occurs when either no agents are provided or none of the provided agents
// can serve the order due to availability or service area constraints.
var ErrNoCandidates = errors.New("no candidate agents available")

// DefaultTierSize is the number of agents offered per dispatch round when no
// explicit tier size is configured.
const DefaultTierSize = 3

// RankingPolicy orders candidate agents for a delivery order and splits them
// into tiers. Each tier is offered as one dispatch round; the dispatcher moves
// to the next tier only when the current one is exhausted.
//
// Implementations must not mutate the order or the agents.
type RankingPolicy interface {
	// Rank returns the eligible agents for the order grouped into offer tiers,
	// best candidates first. Agents in the excluded set are never candidates:
	// the dispatcher bans an agent from an order it backed out of. It returns
	// ErrNoCandidates when no agent is eligible.
	Rank(o *order.Order, agents []*agent.Agent, excluded map[kernel.UUID]struct{}) ([][]*agent.Agent, error)
}

// NearestFirstPolicy is the default ranking policy.
//
// Eligibility rules:
//   - The agent must not be excluded for this order
//   - The agent must be available (online with no active order)
//   - The agent's service area must cover the order's zone
//
// Ordering rules:
//   - Agents with a known location come first, nearest to the shipping
//     location first
//   - Ties are broken by higher acceptance rate
//   - Agents without a known location come last, ordered by acceptance rate
type NearestFirstPolicy struct {
	tierSize int
}

// NewNearestFirstPolicy creates a NearestFirstPolicy with the given tier size.
// A non-positive tierSize falls back to DefaultTierSize.
func NewNearestFirstPolicy(tierSize int) NearestFirstPolicy {
	if tierSize <= 0 {
		tierSize = DefaultTierSize
	}
	return NearestFirstPolicy{tierSize: tierSize}
}

// Rank implements RankingPolicy.
func (p NearestFirstPolicy) Rank(o *order.Order, agents []*agent.Agent, excluded map[kernel.UUID]struct{}) ([][]*agent.Agent, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}

	type ranked struct {
		agent      *agent.Agent
		distanceKm float64
		hasLoc     bool
	}

	target := o.ShippingLocation()

	candidates := make([]ranked, 0, len(agents))
	for _, a := range agents {
		if err := a.Validate(); err != nil {
			return nil, err
		}
		if _, banned := excluded[a.ID()]; banned {
			continue
		}
		if !a.IsAvailable() || !a.ServesZone(o.Zone()) {
			continue
		}

		r := ranked{agent: a}
		if loc, _, ok := a.Location(); ok {
			// A sample that cannot be measured against the target ranks the
			// agent as unlocated instead of dropping them.
			if d, err := loc.DistanceKm(target); err == nil {
				r.distanceKm = d
				r.hasLoc = true
			}
		}
		candidates = append(candidates, r)
	}

	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.hasLoc != b.hasLoc {
			return a.hasLoc
		}
		if a.hasLoc && a.distanceKm != b.distanceKm {
			return a.distanceKm < b.distanceKm
		}
		return a.agent.AcceptanceRate() > b.agent.AcceptanceRate()
	})

	tiers := make([][]*agent.Agent, 0, (len(candidates)+p.tierSize-1)/p.tierSize)
	for start := 0; start < len(candidates); start += p.tierSize {
		end := start + p.tierSize
		if end > len(candidates) {
			end = len(candidates)
		}
		tier := make([]*agent.Agent, 0, end-start)
		for _, r := range candidates[start:end] {
			tier = append(tier, r.agent)
		}
		tiers = append(tiers, tier)
	}

	return tiers, nil
}
