// Package lifecycle implements the connection state machine as pure functions over
// entity.Connection. Nothing here touches storage: callers load a record, apply a
// transition to a clone, then persist it with a compare-and-set.
package lifecycle

import (
	"fmt"
	"time"

	"care-connect-be/internal/entity"
	"care-connect-be/internal/pkg/apperror"

	"github.com/google/uuid"
)

type Action string

const (
	ActionAccept   Action = "accept"
	ActionDecline  Action = "decline"
	ActionWithdraw Action = "withdraw"
	ActionEnd      Action = "end"
	ActionHide     Action = "hide"
	ActionExpire   Action = "expire"
)

// Role says which side of the connection may trigger an action.
type Role int

const (
	RoleRecipient Role = iota
	RoleInitiator
	RoleEither
	RoleSystem
)

type rule struct {
	to   entity.ConnectionStatus
	role Role
}

// transitions is the complete lattice. Hide keeps the status and is only legal on terminal records.
var transitions = map[entity.ConnectionStatus]map[Action]rule{
	entity.ConnectionStatusPending: {
		ActionAccept:   {entity.ConnectionStatusAccepted, RoleRecipient},
		ActionDecline:  {entity.ConnectionStatusDeclined, RoleRecipient},
		ActionWithdraw: {entity.ConnectionStatusExpired, RoleInitiator},
		ActionExpire:   {entity.ConnectionStatusExpired, RoleSystem},
	},
	entity.ConnectionStatusAccepted: {
		ActionEnd: {entity.ConnectionStatusArchived, RoleEither},
	},
	entity.ConnectionStatusDeclined: {
		ActionHide: {entity.ConnectionStatusDeclined, RoleEither},
	},
	entity.ConnectionStatusArchived: {
		ActionHide: {entity.ConnectionStatusArchived, RoleEither},
	},
	entity.ConnectionStatusExpired: {
		ActionHide: {entity.ConnectionStatusExpired, RoleEither},
	},
}

// roleOf is fixed per action regardless of the current status.
var roleOf = map[Action]Role{
	ActionAccept:   RoleRecipient,
	ActionDecline:  RoleRecipient,
	ActionWithdraw: RoleInitiator,
	ActionEnd:      RoleEither,
	ActionHide:     RoleEither,
	ActionExpire:   RoleSystem,
}

var systemText = map[Action]string{
	ActionAccept:   "connection accepted",
	ActionDecline:  "connection declined",
	ActionWithdraw: "connection withdrawn",
	ActionEnd:      "connection ended",
	ActionExpire:   "connection expired",
}

// Next returns the status reached by applying action to from.
func Next(from entity.ConnectionStatus, action Action) (entity.ConnectionStatus, error) {
	r, ok := transitions[from][action]
	if !ok {
		return from, fmt.Errorf("%s from %s: %w", action, from, apperror.ErrInvalidTransition)
	}
	return r.to, nil
}

// Authorize checks that actor may perform action on c. It does not look at status.
func Authorize(c *entity.Connection, actor uuid.UUID, action Action) error {
	role, ok := roleOf[action]
	if !ok {
		return apperror.NewValidationError("action", fmt.Sprintf("unknown action %q", action))
	}
	if role == RoleSystem {
		return nil
	}
	if !c.IsParty(actor) {
		return fmt.Errorf("profile %s on connection %s: %w", actor, c.Id, apperror.ErrForbidden)
	}
	switch role {
	case RoleRecipient:
		if actor != c.ToProfileId {
			return fmt.Errorf("only the recipient may %s: %w", action, apperror.ErrForbidden)
		}
	case RoleInitiator:
		if actor != c.FromProfileId {
			return fmt.Errorf("only the initiator may %s: %w", action, apperror.ErrForbidden)
		}
	}
	return nil
}

// Apply validates and performs a status transition on c in place. It returns
// changed=false when the call was a no-op retry (hiding an already hidden record).
func Apply(c *entity.Connection, actor uuid.UUID, action Action, now time.Time) (changed bool, err error) {
	if err := Authorize(c, actor, action); err != nil {
		return false, err
	}
	to, err := Next(c.Status, action)
	if err != nil {
		return false, err
	}

	switch action {
	case ActionHide:
		if c.IsHiddenBy(actor) {
			return false, nil
		}
		c.Metadata.HiddenBy = append(c.Metadata.HiddenBy, actor)
		Touch(c, now)
		return true, nil
	case ActionWithdraw:
		c.Metadata.Withdrawn = true
	case ActionEnd:
		c.Metadata.Ended = true
		c.Metadata.NextStepRequest = nil
	case ActionExpire:
		// expiry has no human actor; attribute the notice to the initiator whose request lapsed
		actor = c.FromProfileId
	}

	c.Status = to
	Touch(c, now)
	appendEntry(c, entity.ThreadEntry{
		FromProfileId: actor,
		Text:          systemText[action],
		CreatedAt:     c.UpdatedAt,
		Type:          entity.ThreadEntrySystem,
	})
	return true, nil
}

// Touch bumps UpdatedAt. The cursor is kept at microsecond precision to survive a
// Postgres round-trip and is strictly increasing even when the clock is not.
func Touch(c *entity.Connection, now time.Time) {
	next := now.UTC().Truncate(time.Microsecond)
	if !next.After(c.UpdatedAt) {
		next = c.UpdatedAt.Add(time.Microsecond)
	}
	c.UpdatedAt = next
}
