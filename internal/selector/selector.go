// ABOUTME: Pure agent selection strategies for auto-assignment
// ABOUTME: Picks a candidate from a workload snapshot per assignment mode, no I/O

// Package selector picks a candidate agent for auto-assignment. It is a pure
// function over a snapshot; because the snapshot is live data, two
// near-simultaneous calls may pick the same agent. The assignment store's
// atomicity is the correctness boundary, not this package.
package selector

import (
	"fmt"
	"sort"

	"github.com/samber/lo"
)

// Mode is the policy used to pick a candidate agent.
type Mode string

const (
	// ModeManual never produces a candidate; auto-assignment is a no-op.
	ModeManual Mode = "manual"

	// ModeRoundRobin is an alias of ModeLoadBalanced: fair distribution by
	// current load, with no rotation cursor. A deliberate simplification,
	// not a bug.
	ModeRoundRobin Mode = "round_robin"

	// ModeLoadBalanced picks the online agent with the fewest open
	// conversations, restricted to the channel's teams when any exist.
	ModeLoadBalanced Mode = "load_balanced"

	// ModeTeamBased picks from the channel's teams, falling back to
	// organization-wide load balancing when no team member is online.
	ModeTeamBased Mode = "team_based"
)

// ParseMode validates a mode string from config or an API request.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeManual, ModeRoundRobin, ModeLoadBalanced, ModeTeamBased:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown assignment mode %q", s)
}

// Candidate is one agent in the selection pool.
type Candidate struct {
	ID           string
	Active       bool
	Availability string // store.Availability* values
	TeamIDs      []string
}

// Snapshot is the state the selection runs against: the organization's
// agents, the teams responsible for the target channel (empty when the
// channel is unmapped), and each agent's current open-conversation count.
type Snapshot struct {
	Agents       []Candidate
	ChannelTeams []string
	Load         map[string]int
}

// Select returns the chosen agent id for the given mode, or false when no
// eligible agent exists. An empty result is an expected outcome, not an
// error.
func Select(mode Mode, snap Snapshot) (string, bool) {
	switch mode {
	case ModeManual:
		return "", false
	case ModeRoundRobin, ModeLoadBalanced:
		return loadBalanced(snap, true)
	case ModeTeamBased:
		if id, ok := teamPool(snap); ok {
			return id, true
		}
		// No online team member: fall back to the whole organization
		return loadBalanced(Snapshot{Agents: snap.Agents, Load: snap.Load}, false)
	}
	return "", false
}

// loadBalanced picks the least-loaded online agent. When useChannelTeams is
// set and the channel has responsible teams, the pool shrinks to their
// members first.
func loadBalanced(snap Snapshot, useChannelTeams bool) (string, bool) {
	pool := lo.Filter(snap.Agents, func(c Candidate, _ int) bool {
		return c.Active && c.Availability == "online"
	})

	if useChannelTeams && len(snap.ChannelTeams) > 0 {
		pool = lo.Filter(pool, func(c Candidate, _ int) bool {
			return lo.Some(c.TeamIDs, snap.ChannelTeams)
		})
	}

	return pickLeastLoaded(pool, snap.Load)
}

// teamPool picks from online members of the channel's teams.
func teamPool(snap Snapshot) (string, bool) {
	if len(snap.ChannelTeams) == 0 {
		return "", false
	}
	pool := lo.Filter(snap.Agents, func(c Candidate, _ int) bool {
		return c.Active && c.Availability == "online" && lo.Some(c.TeamIDs, snap.ChannelTeams)
	})
	return pickLeastLoaded(pool, snap.Load)
}

// pickLeastLoaded orders by open-conversation count, ties broken by agent id
// for determinism.
func pickLeastLoaded(pool []Candidate, load map[string]int) (string, bool) {
	if len(pool) == 0 {
		return "", false
	}
	sorted := make([]Candidate, len(pool))
	copy(sorted, pool)
	sort.Slice(sorted, func(i, j int) bool {
		li, lj := load[sorted[i].ID], load[sorted[j].ID]
		if li != lj {
			return li < lj
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted[0].ID, true
}
