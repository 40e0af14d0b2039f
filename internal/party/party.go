// Package party abstracts third-party party-system integrations for
// shared-progress features.
package party

import "github.com/ashgrove/questforge/internal/host"

// Provider returns the players considered teammates of a player.
type Provider interface {
	// Available reports whether a party integration is present.
	Available() bool

	// Members returns the player's party including the player. Never
	// empty for a valid player.
	Members(player host.Player) []host.Player
}

// Solo is the null-object default: every player is their own sole
// party member. Used whenever no integration is detected.
type Solo struct{}

func (Solo) Available() bool { return false }

func (Solo) Members(player host.Player) []host.Player {
	return []host.Player{player}
}

// Select probes candidates in order and returns the first available
// provider, falling back to Solo. Absence of an integration must never
// alter any non-party code path, so the result is always usable.
func Select(candidates ...Provider) Provider {
	for _, c := range candidates {
		if c != nil && c.Available() {
			return c
		}
	}
	return Solo{}
}
