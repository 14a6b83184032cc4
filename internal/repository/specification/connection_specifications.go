package specification

import (
	"encoding/json"
	"time"

	"care-connect-be/internal/entity"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// InboundTo selects connections received by the profile.
type InboundTo struct {
	ProfileID uuid.UUID
}

func (s InboundTo) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("to_profile_id = ?", s.ProfileID)
}

// OutboundFrom selects connections the profile initiated.
type OutboundFrom struct {
	ProfileID uuid.UUID
}

func (s OutboundFrom) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("from_profile_id = ?", s.ProfileID)
}

// InvolvingProfile selects connections where the profile is either party.
type InvolvingProfile struct {
	ProfileID uuid.UUID
}

func (s InvolvingProfile) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("(from_profile_id = ? OR to_profile_id = ?)", s.ProfileID, s.ProfileID)
}

type WithStatuses struct {
	Statuses []entity.ConnectionStatus
}

func (s WithStatuses) Apply(db *gorm.DB) *gorm.DB {
	statuses := make([]string, len(s.Statuses))
	for i, st := range s.Statuses {
		statuses[i] = string(st)
	}
	return db.Where("status IN ?", statuses)
}

// NotHiddenBy drops records the viewer has hidden for themselves.
type NotHiddenBy struct {
	ProfileID uuid.UUID
}

func (s NotHiddenBy) Apply(db *gorm.DB) *gorm.DB {
	needle, _ := json.Marshal([]string{s.ProfileID.String()})
	return db.Where("NOT COALESCE(metadata->'hidden_by' @> ?::jsonb, false)", string(needle))
}

// PendingOlderThan selects pending connections created before the cutoff.
type PendingOlderThan struct {
	Cutoff time.Time
}

func (s PendingOlderThan) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("status = ? AND created_at < ?", string(entity.ConnectionStatusPending), s.Cutoff)
}

// LiveBetween matches a pending or accepted connection between two profiles in either direction.
type LiveBetween struct {
	A uuid.UUID
	B uuid.UUID
}

func (s LiveBetween) Apply(db *gorm.DB) *gorm.DB {
	return db.Where(
		"((from_profile_id = ? AND to_profile_id = ?) OR (from_profile_id = ? AND to_profile_id = ?)) AND status IN ?",
		s.A, s.B, s.B, s.A,
		[]string{string(entity.ConnectionStatusPending), string(entity.ConnectionStatusAccepted)},
	)
}

// UnlockedBy filters connection_unlocks for one provider profile.
type UnlockedBy struct {
	ProfileID     uuid.UUID
	ConnectionIDs []uuid.UUID
}

func (s UnlockedBy) Apply(db *gorm.DB) *gorm.DB {
	db = db.Where("profile_id = ?", s.ProfileID)
	if len(s.ConnectionIDs) > 0 {
		db = db.Where("connection_id IN ?", s.ConnectionIDs)
	}
	return db
}
