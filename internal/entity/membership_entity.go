// FILE: internal/entity/membership_entity.go
package entity

import (
	"time"

	"github.com/google/uuid"
)

type MembershipStatus string
type BillingCycle string

const (
	MembershipStatusFree     MembershipStatus = "free"
	MembershipStatusTrialing MembershipStatus = "trialing"
	MembershipStatusActive   MembershipStatus = "active"
	MembershipStatusPastDue  MembershipStatus = "past_due"
	MembershipStatusCanceled MembershipStatus = "canceled"

	BillingCycleNone    BillingCycle = "none"
	BillingCycleMonthly BillingCycle = "monthly"
	BillingCycleYearly  BillingCycle = "yearly"
)

// Membership is the billing read model, one per account.
type Membership struct {
	Id                  uuid.UUID
	AccountId           uuid.UUID
	Status              MembershipStatus
	BillingCycle        BillingCycle
	FreeConnectionsUsed int
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// ConnectionUnlock records an inbound connection a free-tier provider spent quota on.
type ConnectionUnlock struct {
	Id           uuid.UUID
	ProfileId    uuid.UUID
	ConnectionId uuid.UUID
	CreatedAt    time.Time
}
