package model

import (
	"time"

	"github.com/google/uuid"
)

type Membership struct {
	Id                  uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	AccountId           uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	Status              string    `gorm:"type:varchar(20);not null;default:'free'"`
	BillingCycle        string    `gorm:"type:varchar(20);not null;default:'none'"`
	FreeConnectionsUsed int       `gorm:"not null;default:0"`
	CreatedAt           time.Time `gorm:"autoCreateTime"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime"`
}

func (Membership) TableName() string {
	return "memberships"
}

// ConnectionUnlock is one row per (provider profile, inbound connection) that consumed free quota.
type ConnectionUnlock struct {
	Id           uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ProfileId    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_unlock_profile_connection"`
	ConnectionId uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_unlock_profile_connection"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
}

func (ConnectionUnlock) TableName() string {
	return "connection_unlocks"
}
