// Package entitlement decides how much of an inbound connection a profile may see.
package entitlement

import (
	"care-connect-be/internal/entity"
)

// Access is the capability set computed for one viewer.
type Access struct {
	FullAccessToInboundDetails bool `json:"full_access_to_inbound_details"`
	// FreeConnectionsRemaining is nil when the viewer has no quota (family or paid).
	FreeConnectionsRemaining *int `json:"free_connections_remaining"`
}

// IsGated reports whether this profile type is subject to the paywall at all.
func IsGated(t entity.ProfileType) bool {
	return t.IsProvider()
}

// IsPaid is true only for an active membership. Trialing accounts spend the free quota.
func IsPaid(m *entity.Membership) bool {
	return m != nil && m.Status == entity.MembershipStatusActive
}

// Evaluate is pure: identical inputs always produce identical output.
// A nil membership is treated as a free account with nothing consumed.
func Evaluate(profileType entity.ProfileType, m *entity.Membership, freeLimit int) Access {
	if !IsGated(profileType) || IsPaid(m) {
		return Access{FullAccessToInboundDetails: true}
	}

	used := 0
	if m != nil {
		used = m.FreeConnectionsUsed
	}
	remaining := max(0, freeLimit-used)
	return Access{
		FullAccessToInboundDetails: remaining > 0,
		FreeConnectionsRemaining:   &remaining,
	}
}

// Remaining returns the quota left, or -1 when unlimited.
func (a Access) Remaining() int {
	if a.FreeConnectionsRemaining == nil {
		return -1
	}
	return *a.FreeConnectionsRemaining
}

// Decision is what the view layer needs to know about one connection for one viewer.
type Decision int

const (
	// Visible means nothing is redacted.
	Visible Decision = iota
	// Unlockable means the viewer may spend one free connection to see it.
	Unlockable
	// Locked means the details must be redacted.
	Locked
)

// Decide resolves the gate for a single connection. unlocked reports whether
// the viewer already spent quota on this connection earlier.
func Decide(viewer *entity.Profile, m *entity.Membership, c *entity.Connection, unlocked bool, freeLimit int) Decision {
	if viewer == nil || c == nil || viewer.Id != c.ToProfileId || !IsGated(viewer.Type) {
		return Visible
	}
	if IsPaid(m) || unlocked {
		return Visible
	}
	if Evaluate(viewer.Type, m, freeLimit).FullAccessToInboundDetails {
		return Unlockable
	}
	return Locked
}
