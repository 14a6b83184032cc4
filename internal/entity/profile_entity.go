// FILE: internal/entity/profile_entity.go
package entity

import (
	"time"

	"github.com/google/uuid"
)

type ProfileType string

const (
	ProfileTypeOrganization ProfileType = "organization"
	ProfileTypeCaregiver    ProfileType = "caregiver"
	ProfileTypeFamily       ProfileType = "family"
)

// IsProvider reports whether the profile type is subject to membership gating.
func (t ProfileType) IsProvider() bool {
	return t == ProfileTypeOrganization || t == ProfileTypeCaregiver
}

func (t ProfileType) Valid() bool {
	switch t {
	case ProfileTypeOrganization, ProfileTypeCaregiver, ProfileTypeFamily:
		return true
	}
	return false
}

// Profile is owned by the directory; read-only for the connection engine.
type Profile struct {
	Id          uuid.UUID
	AccountId   uuid.UUID
	Type        ProfileType
	DisplayName string
	Phone       *string
	Email       *string
	Website     *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
