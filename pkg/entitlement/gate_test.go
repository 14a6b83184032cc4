package entitlement

import (
	"testing"

	"care-connect-be/internal/entity"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func membership(status entity.MembershipStatus, used int) *entity.Membership {
	return &entity.Membership{Id: uuid.New(), AccountId: uuid.New(), Status: status, FreeConnectionsUsed: used}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name          string
		profileType   entity.ProfileType
		membership    *entity.Membership
		wantFull      bool
		wantRemaining *int
	}{
		{"family always has full access", entity.ProfileTypeFamily, membership(entity.MembershipStatusFree, 10), true, nil},
		{"active organization is unlimited", entity.ProfileTypeOrganization, membership(entity.MembershipStatusActive, 10), true, nil},
		{"free caregiver with quota", entity.ProfileTypeCaregiver, membership(entity.MembershipStatusFree, 1), true, intPtr(2)},
		{"free organization exhausted", entity.ProfileTypeOrganization, membership(entity.MembershipStatusFree, 3), false, intPtr(0)},
		{"overconsumed never goes negative", entity.ProfileTypeOrganization, membership(entity.MembershipStatusCanceled, 9), false, intPtr(0)},
		{"trialing spends quota", entity.ProfileTypeCaregiver, membership(entity.MembershipStatusTrialing, 0), true, intPtr(3)},
		{"past due spends quota", entity.ProfileTypeCaregiver, membership(entity.MembershipStatusPastDue, 3), false, intPtr(0)},
		{"missing membership is a fresh free account", entity.ProfileTypeOrganization, nil, true, intPtr(3)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(tt.profileType, tt.membership, 3)
			assert.Equal(t, tt.wantFull, got.FullAccessToInboundDetails)
			if tt.wantRemaining == nil {
				assert.Nil(t, got.FreeConnectionsRemaining)
				assert.Equal(t, -1, got.Remaining())
			} else {
				require.NotNil(t, got.FreeConnectionsRemaining)
				assert.Equal(t, *tt.wantRemaining, *got.FreeConnectionsRemaining)
			}
		})
	}
}

func TestEvaluate_IsPure(t *testing.T) {
	m := membership(entity.MembershipStatusFree, 2)
	first := Evaluate(entity.ProfileTypeOrganization, m, 3)
	second := Evaluate(entity.ProfileTypeOrganization, m, 3)

	assert.Equal(t, first, second)
	assert.Equal(t, 2, m.FreeConnectionsUsed)
}

func TestDecide(t *testing.T) {
	provider := &entity.Profile{Id: uuid.New(), Type: entity.ProfileTypeOrganization}
	family := &entity.Profile{Id: uuid.New(), Type: entity.ProfileTypeFamily}
	inbound := &entity.Connection{Id: uuid.New(), FromProfileId: family.Id, ToProfileId: provider.Id}
	outbound := &entity.Connection{Id: uuid.New(), FromProfileId: provider.Id, ToProfileId: family.Id}

	exhausted := membership(entity.MembershipStatusFree, 3)
	fresh := membership(entity.MembershipStatusFree, 0)

	assert.Equal(t, Locked, Decide(provider, exhausted, inbound, false, 3))
	assert.Equal(t, Visible, Decide(provider, exhausted, inbound, true, 3), "already unlocked stays visible")
	assert.Equal(t, Unlockable, Decide(provider, fresh, inbound, false, 3))
	assert.Equal(t, Visible, Decide(provider, exhausted, outbound, false, 3), "outbound is never gated")
	assert.Equal(t, Visible, Decide(family, nil, outbound, false, 3))
	assert.Equal(t, Visible, Decide(provider, membership(entity.MembershipStatusActive, 50), inbound, false, 3))
}

func intPtr(v int) *int { return &v }
