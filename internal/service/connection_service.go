package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"care-connect-be/internal/config"
	"care-connect-be/internal/dto"
	"care-connect-be/internal/entity"
	"care-connect-be/internal/pkg/apperror"
	"care-connect-be/internal/pkg/logger"
	"care-connect-be/internal/repository/specification"
	"care-connect-be/internal/repository/unitofwork"
	"care-connect-be/pkg/entitlement"
	"care-connect-be/pkg/events"
	"care-connect-be/pkg/lifecycle"

	"github.com/google/uuid"
)

const (
	moduleName       = "ConnectionService"
	defaultPageSize  = 20
	maxPageSize      = 100
	expiryBatchLimit = 200
)

type IConnectionService interface {
	Create(ctx context.Context, callerId uuid.UUID, req *dto.CreateConnectionRequest) (*dto.ConnectionResponse, error)
	List(ctx context.Context, callerId uuid.UUID, query *dto.ListConnectionsQuery) (*dto.ConnectionListResponse, error)
	Get(ctx context.Context, callerId, id uuid.UUID) (*dto.ConnectionResponse, error)
	GetVersion(ctx context.Context, callerId, id uuid.UUID) (*dto.ConnectionVersionResponse, error)
	Respond(ctx context.Context, callerId, id uuid.UUID, req *dto.RespondConnectionRequest) (*dto.ConnectionResponse, error)
	Withdraw(ctx context.Context, callerId, id uuid.UUID) (*dto.ConnectionResponse, error)
	End(ctx context.Context, callerId, id uuid.UUID) (*dto.ConnectionResponse, error)
	Hide(ctx context.Context, callerId, id uuid.UUID) (*dto.ConnectionResponse, error)
	SendMessage(ctx context.Context, callerId, id uuid.UUID, req *dto.SendMessageRequest) (*dto.ConnectionResponse, error)
	RequestNextStep(ctx context.Context, callerId, id uuid.UUID, req *dto.RequestNextStepRequest) (*dto.ConnectionResponse, error)
	CancelNextStep(ctx context.Context, callerId, id uuid.UUID) (*dto.ConnectionResponse, error)
	GetEntitlement(ctx context.Context, callerId uuid.UUID) (*dto.EntitlementResponse, error)
	ExpireStale(ctx context.Context) (int, error)
}

// VersionStore caches the pair and latest updated_at per connection.
type VersionStore interface {
	Get(ctx context.Context, id uuid.UUID) (*entity.ConnectionVersion, bool, error)
	Set(ctx context.Context, v entity.ConnectionVersion) error
	Invalidate(ctx context.Context, id uuid.UUID) error
}

// MessageDeduper remembers client message keys for a short window.
type MessageDeduper interface {
	Claim(connectionId, senderId uuid.UUID, clientKey string) bool
	Release(connectionId, senderId uuid.UUID, clientKey string)
}

type connectionService struct {
	uowFactory unitofwork.RepositoryFactory
	events     IEventPublisher
	versions   VersionStore
	dedup      MessageDeduper
	logger     logger.ILogger
	cfg        config.EngineConfig
	now        func() time.Time
}

func NewConnectionService(
	uowFactory unitofwork.RepositoryFactory,
	eventPublisher IEventPublisher,
	versions VersionStore,
	dedup MessageDeduper,
	log logger.ILogger,
	cfg config.EngineConfig,
) IConnectionService {
	return &connectionService{
		uowFactory: uowFactory,
		events:     eventPublisher,
		versions:   versions,
		dedup:      dedup,
		logger:     log,
		cfg:        cfg,
		now:        time.Now,
	}
}

// viewer is the caller's profile plus what the gate needs to know about it.
type viewer struct {
	profile    *entity.Profile
	membership *entity.Membership
}

func (v viewer) access(limit int) entitlement.Access {
	return entitlement.Evaluate(v.profile.Type, v.membership, limit)
}

func (s *connectionService) readContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.StoreReadTimeout)
}

func (s *connectionService) loadViewer(ctx context.Context, uow unitofwork.UnitOfWork, profileId uuid.UUID) (viewer, error) {
	profile, err := uow.ProfileRepository().FindOne(ctx, specification.ByID{ID: profileId})
	if err != nil {
		return viewer{}, err
	}
	if profile == nil {
		return viewer{}, fmt.Errorf("caller profile %s: %w", profileId, apperror.ErrNotFound)
	}
	v := viewer{profile: profile}
	if entitlement.IsGated(profile.Type) {
		v.membership, err = uow.MembershipRepository().FindOne(ctx, specification.ByAccountID{AccountID: profile.AccountId})
		if err != nil {
			return viewer{}, err
		}
	}
	return v, nil
}

// loadConnection returns ErrForbidden for callers outside the pair.
func (s *connectionService) loadConnection(ctx context.Context, uow unitofwork.UnitOfWork, callerId, id uuid.UUID) (*entity.Connection, error) {
	c, err := uow.ConnectionRepository().FindOne(ctx, specification.ByID{ID: id})
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("connection %s: %w", id, apperror.ErrNotFound)
	}
	if !c.IsParty(callerId) {
		return nil, fmt.Errorf("connection %s: %w", id, apperror.ErrForbidden)
	}
	return c, nil
}

func (s *connectionService) isUnlocked(ctx context.Context, uow unitofwork.UnitOfWork, profileId, connectionId uuid.UUID) (bool, error) {
	unlocks, err := uow.ConnectionUnlockRepository().FindAll(ctx, specification.UnlockedBy{
		ProfileID:     profileId,
		ConnectionIDs: []uuid.UUID{connectionId},
	})
	if err != nil {
		return false, err
	}
	return len(unlocks) > 0, nil
}

// decide resolves the gate for a single connection without consuming quota.
func (s *connectionService) decide(ctx context.Context, uow unitofwork.UnitOfWork, v viewer, c *entity.Connection) (entitlement.Decision, error) {
	if c.ToProfileId != v.profile.Id || !entitlement.IsGated(v.profile.Type) || entitlement.IsPaid(v.membership) {
		return entitlement.Visible, nil
	}
	unlocked, err := s.isUnlocked(ctx, uow, v.profile.Id, c.Id)
	if err != nil {
		return entitlement.Locked, err
	}
	return entitlement.Decide(v.profile, v.membership, c, unlocked, s.cfg.FreeConnectionLimit), nil
}

// unlock spends one free connection on c for the viewer. It is idempotent per
// connection and reports whether c is visible afterwards.
func (s *connectionService) unlock(ctx context.Context, v viewer, connectionId uuid.UUID) (bool, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return false, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = uow.Rollback()
		}
	}()

	membership, err := uow.MembershipRepository().FindOne(ctx,
		specification.ByAccountID{AccountID: v.profile.AccountId},
		specification.ForUpdate{},
	)
	if err != nil {
		return false, err
	}
	if membership == nil {
		membership = &entity.Membership{
			Id:           uuid.New(),
			AccountId:    v.profile.AccountId,
			Status:       entity.MembershipStatusFree,
			BillingCycle: entity.BillingCycleNone,
		}
		if err := uow.MembershipRepository().Create(ctx, membership); err != nil {
			return false, err
		}
	}

	unlocked, err := s.isUnlocked(ctx, uow, v.profile.Id, connectionId)
	if err != nil {
		return false, err
	}
	visible := true
	switch {
	case unlocked, entitlement.IsPaid(membership):
	case membership.FreeConnectionsUsed >= s.cfg.FreeConnectionLimit:
		visible = false
	default:
		err := uow.ConnectionUnlockRepository().Create(ctx, &entity.ConnectionUnlock{
			Id:           uuid.New(),
			ProfileId:    v.profile.Id,
			ConnectionId: connectionId,
		})
		if err != nil && !errors.Is(err, apperror.ErrAlreadyExists) {
			return false, err
		}
		if err == nil {
			if err := uow.MembershipRepository().IncrementFreeConnectionsUsed(ctx, membership.Id); err != nil {
				return false, err
			}
			s.logger.Info(moduleName, "Free connection consumed", map[string]interface{}{
				"profile_id":    v.profile.Id.String(),
				"connection_id": connectionId.String(),
				"used":          membership.FreeConnectionsUsed + 1,
			})
		}
	}

	if err := uow.Commit(); err != nil {
		return false, err
	}
	committed = true
	return visible, nil
}

// resolveForView turns an Unlockable decision into Visible by spending quota.
// A failed unlock is logged and the view stays redacted.
func (s *connectionService) resolveForView(ctx context.Context, v viewer, c *entity.Connection, decision entitlement.Decision) entitlement.Decision {
	if decision != entitlement.Unlockable {
		return decision
	}
	visible, err := s.unlock(ctx, v, c.Id)
	if err != nil {
		s.logger.Error(moduleName, "Failed to consume free connection", map[string]interface{}{
			"error":         err.Error(),
			"connection_id": c.Id.String(),
		})
		return entitlement.Locked
	}
	if visible {
		return entitlement.Visible
	}
	return entitlement.Locked
}

func (s *connectionService) render(ctx context.Context, uow unitofwork.UnitOfWork, v viewer, c *entity.Connection, decision entitlement.Decision) (*dto.ConnectionResponse, error) {
	counterpart, err := uow.ProfileRepository().FindOne(ctx, specification.ByID{ID: c.Counterpart(v.profile.Id)})
	if err != nil {
		return nil, err
	}
	return connectionView(c, v.profile.Id, counterpart, decision), nil
}

// mutate runs a read-modify-write against the store with a compare-and-set on
// updated_at, retrying on conflict. apply returns changed=false for a no-op.
func (s *connectionService) mutate(
	ctx context.Context,
	callerId, id uuid.UUID,
	apply func(c *entity.Connection, now time.Time) (bool, error),
) (*entity.Connection, bool, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	for attempt := 0; ; attempt++ {
		readCtx, cancel := s.readContext(ctx)
		current, err := s.loadConnection(readCtx, uow, callerId, id)
		cancel()
		if err != nil {
			return nil, false, err
		}

		next := current.Clone()
		changed, err := apply(next, s.now())
		if err != nil {
			return nil, false, err
		}
		if !changed {
			return current, false, nil
		}

		err = uow.ConnectionRepository().CompareAndSwap(ctx, next, current.UpdatedAt)
		if err == nil {
			s.cacheVersion(ctx, next.Version())
			return next, true, nil
		}
		if !errors.Is(err, apperror.ErrConcurrencyConflict) || attempt >= s.cfg.WriteRetryAttempts {
			return nil, false, err
		}
		s.logger.Warn(moduleName, "Write conflict, retrying", map[string]interface{}{
			"connection_id": id.String(),
			"attempt":       attempt + 1,
		})
	}
}

// cacheVersion records a committed write. When the write cannot be recorded
// the entry is dropped, since a stale hit would hide the change from pollers.
func (s *connectionService) cacheVersion(ctx context.Context, v entity.ConnectionVersion) {
	if s.versions == nil {
		return
	}
	err := s.versions.Set(ctx, v)
	if err == nil {
		return
	}
	s.logger.Warn(moduleName, "Failed to cache connection version", map[string]interface{}{
		"error":         err.Error(),
		"connection_id": v.Id.String(),
	})
	if err := s.versions.Invalidate(ctx, v.Id); err != nil {
		s.logger.Error(moduleName, "Failed to invalidate connection version", map[string]interface{}{
			"error":         err.Error(),
			"connection_id": v.Id.String(),
		})
	}
}

func (s *connectionService) publish(ctx context.Context, event events.BaseEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Error(moduleName, "Failed to publish event", map[string]interface{}{
			"error": err.Error(),
			"type":  event.Type,
		})
	}
}

// respondAfterWrite renders the updated record for the caller. Viewing your
// own write never spends quota.
func (s *connectionService) respondAfterWrite(ctx context.Context, callerId uuid.UUID, c *entity.Connection) (*dto.ConnectionResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	readCtx, cancel := s.readContext(ctx)
	defer cancel()

	v, err := s.loadViewer(readCtx, uow, callerId)
	if err != nil {
		return nil, err
	}
	decision, err := s.decide(readCtx, uow, v, c)
	if err != nil {
		return nil, err
	}
	return s.render(readCtx, uow, v, c, decision)
}

func (s *connectionService) Create(ctx context.Context, callerId uuid.UUID, req *dto.CreateConnectionRequest) (*dto.ConnectionResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	readCtx, cancel := s.readContext(ctx)
	v, err := s.loadViewer(readCtx, uow, callerId)
	if err != nil {
		cancel()
		return nil, err
	}
	target, err := uow.ProfileRepository().FindOne(readCtx, specification.ByID{ID: req.ToProfileId})
	cancel()
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, fmt.Errorf("profile %s: %w", req.ToProfileId, apperror.ErrNotFound)
	}

	if entitlement.IsGated(v.profile.Type) && v.access(s.cfg.FreeConnectionLimit).Remaining() == 0 {
		return nil, fmt.Errorf("no free connections left: %w", apperror.ErrUpgradeRequired)
	}

	c, err := lifecycle.NewConnection(callerId, target.Id, entity.ConnectionType(req.Type), entity.ConnectionMessage{
		CareType:          req.CareType,
		Urgency:           req.Urgency,
		Recipient:         req.Recipient,
		Note:              req.Note,
		ContactPreference: req.ContactPreference,
	}, s.cfg.NoteMaxLength, s.now())
	if err != nil {
		return nil, err
	}

	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}
	if err := uow.ConnectionRepository().Create(ctx, c); err != nil {
		_ = uow.Rollback()
		return nil, err
	}
	if err := uow.Commit(); err != nil {
		return nil, err
	}

	s.cacheVersion(ctx, c.Version())
	s.logger.Info(moduleName, "Connection created", map[string]interface{}{
		"connection_id": c.Id.String(),
		"from":          callerId.String(),
		"to":            target.Id.String(),
		"type":          string(c.Type),
	})
	s.publish(ctx, connectionEvent(events.ConnectionCreated, c, callerId, target.Id, map[string]interface{}{"type": string(c.Type)}))

	return connectionView(c, callerId, target, entitlement.Visible), nil
}

func (s *connectionService) List(ctx context.Context, callerId uuid.UUID, query *dto.ListConnectionsQuery) (*dto.ConnectionListResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	readCtx, cancel := s.readContext(ctx)
	defer cancel()

	v, err := s.loadViewer(readCtx, uow, callerId)
	if err != nil {
		return nil, err
	}

	limit := query.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	limit = min(limit, maxPageSize)
	offset := max(query.Offset, 0)

	var filters []specification.Specification
	switch query.Direction {
	case "inbound":
		filters = append(filters, specification.InboundTo{ProfileID: callerId})
	case "outbound":
		filters = append(filters, specification.OutboundFrom{ProfileID: callerId})
	case "", "all":
		filters = append(filters, specification.InvolvingProfile{ProfileID: callerId})
	default:
		return nil, apperror.NewValidationError("direction", "must be inbound, outbound or all")
	}
	if query.Status != "" {
		status := entity.ConnectionStatus(query.Status)
		if !status.Valid() {
			return nil, apperror.NewValidationError("status", "unknown status")
		}
		filters = append(filters, specification.WithStatuses{Statuses: []entity.ConnectionStatus{status}})
	}
	if !query.IncludeHidden {
		filters = append(filters, specification.NotHiddenBy{ProfileID: callerId})
	}

	total, err := uow.ConnectionRepository().Count(readCtx, filters...)
	if err != nil {
		return nil, err
	}
	connections, err := uow.ConnectionRepository().FindAll(readCtx, append(filters,
		specification.OrderBy{Field: "updated_at", Desc: true},
		specification.Pagination{Limit: limit, Offset: offset},
	)...)
	if err != nil {
		return nil, err
	}

	counterpartIds := make([]uuid.UUID, 0, len(connections))
	inboundIds := make([]uuid.UUID, 0, len(connections))
	for _, c := range connections {
		counterpartIds = append(counterpartIds, c.Counterpart(callerId))
		if c.ToProfileId == callerId {
			inboundIds = append(inboundIds, c.Id)
		}
	}

	profiles := make(map[uuid.UUID]*entity.Profile)
	if len(counterpartIds) > 0 {
		found, err := uow.ProfileRepository().FindAll(readCtx, specification.ByIDs{IDs: counterpartIds})
		if err != nil {
			return nil, err
		}
		for _, p := range found {
			profiles[p.Id] = p
		}
	}

	unlocked := make(map[uuid.UUID]bool)
	if entitlement.IsGated(v.profile.Type) && !entitlement.IsPaid(v.membership) && len(inboundIds) > 0 {
		unlocks, err := uow.ConnectionUnlockRepository().FindAll(readCtx, specification.UnlockedBy{
			ProfileID:     callerId,
			ConnectionIDs: inboundIds,
		})
		if err != nil {
			return nil, err
		}
		for _, u := range unlocks {
			unlocked[u.ConnectionId] = true
		}
	}

	items := make([]*dto.ConnectionResponse, 0, len(connections))
	for _, c := range connections {
		decision := entitlement.Decide(v.profile, v.membership, c, unlocked[c.Id], s.cfg.FreeConnectionLimit)
		items = append(items, connectionView(c, callerId, profiles[c.Counterpart(callerId)], decision))
	}

	return &dto.ConnectionListResponse{
		Items:  items,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	}, nil
}

func (s *connectionService) Get(ctx context.Context, callerId, id uuid.UUID) (*dto.ConnectionResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	readCtx, cancel := s.readContext(ctx)
	defer cancel()

	c, err := s.loadConnection(readCtx, uow, callerId, id)
	if err != nil {
		return nil, err
	}
	v, err := s.loadViewer(readCtx, uow, callerId)
	if err != nil {
		return nil, err
	}
	decision, err := s.decide(readCtx, uow, v, c)
	if err != nil {
		return nil, err
	}
	decision = s.resolveForView(ctx, v, c, decision)

	return s.render(readCtx, uow, v, c, decision)
}

func (s *connectionService) GetVersion(ctx context.Context, callerId, id uuid.UUID) (*dto.ConnectionVersionResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	readCtx, cancel := s.readContext(ctx)
	defer cancel()

	var v *entity.ConnectionVersion
	if s.versions != nil {
		cached, ok, err := s.versions.Get(readCtx, id)
		if err != nil {
			s.logger.Warn(moduleName, "Version cache read failed", map[string]interface{}{"error": err.Error()})
		} else if ok {
			v = cached
		}
	}
	if v == nil {
		stored, err := uow.ConnectionRepository().FindVersion(readCtx, id)
		if err != nil {
			return nil, err
		}
		if stored == nil {
			return nil, fmt.Errorf("connection %s: %w", id, apperror.ErrNotFound)
		}
		v = stored
		s.cacheVersion(ctx, *v)
	}
	if !v.IsParty(callerId) {
		return nil, fmt.Errorf("connection %s: %w", id, apperror.ErrForbidden)
	}

	return &dto.ConnectionVersionResponse{Id: id, UpdatedAt: v.UpdatedAt}, nil
}

func (s *connectionService) Respond(ctx context.Context, callerId, id uuid.UUID, req *dto.RespondConnectionRequest) (*dto.ConnectionResponse, error) {
	var action lifecycle.Action
	var eventType string
	switch req.Action {
	case "accept":
		action, eventType = lifecycle.ActionAccept, events.ConnectionAccepted
	case "decline":
		action, eventType = lifecycle.ActionDecline, events.ConnectionDeclined
	default:
		return nil, apperror.NewValidationError("action", "must be accept or decline")
	}

	c, _, err := s.mutate(ctx, callerId, id, func(c *entity.Connection, now time.Time) (bool, error) {
		return lifecycle.Apply(c, callerId, action, now)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(moduleName, "Connection "+string(c.Status), map[string]interface{}{
		"connection_id": id.String(),
		"actor":         callerId.String(),
	})
	s.publish(ctx, connectionEvent(eventType, c, callerId, c.FromProfileId, nil))

	if action == lifecycle.ActionAccept {
		// accepting counts as viewing: spend quota if the provider still has some
		uow := s.uowFactory.NewUnitOfWork(ctx)
		readCtx, cancel := s.readContext(ctx)
		v, err := s.loadViewer(readCtx, uow, callerId)
		if err == nil {
			var decision entitlement.Decision
			decision, err = s.decide(readCtx, uow, v, c)
			if err == nil {
				s.resolveForView(ctx, v, c, decision)
			}
		}
		cancel()
		if err != nil {
			s.logger.Error(moduleName, "Failed to resolve entitlement after accept", map[string]interface{}{"error": err.Error()})
		}
	}

	return s.respondAfterWrite(ctx, callerId, c)
}

func (s *connectionService) Withdraw(ctx context.Context, callerId, id uuid.UUID) (*dto.ConnectionResponse, error) {
	c, _, err := s.mutate(ctx, callerId, id, func(c *entity.Connection, now time.Time) (bool, error) {
		return lifecycle.Apply(c, callerId, lifecycle.ActionWithdraw, now)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(moduleName, "Connection withdrawn", map[string]interface{}{"connection_id": id.String()})
	s.publish(ctx, connectionEvent(events.ConnectionWithdrawn, c, callerId, c.ToProfileId, nil))
	return s.respondAfterWrite(ctx, callerId, c)
}

func (s *connectionService) End(ctx context.Context, callerId, id uuid.UUID) (*dto.ConnectionResponse, error) {
	c, _, err := s.mutate(ctx, callerId, id, func(c *entity.Connection, now time.Time) (bool, error) {
		return lifecycle.Apply(c, callerId, lifecycle.ActionEnd, now)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(moduleName, "Connection ended", map[string]interface{}{"connection_id": id.String(), "actor": callerId.String()})
	s.publish(ctx, connectionEvent(events.ConnectionEnded, c, callerId, c.Counterpart(callerId), nil))
	return s.respondAfterWrite(ctx, callerId, c)
}

func (s *connectionService) Hide(ctx context.Context, callerId, id uuid.UUID) (*dto.ConnectionResponse, error) {
	c, changed, err := s.mutate(ctx, callerId, id, func(c *entity.Connection, now time.Time) (bool, error) {
		return lifecycle.Apply(c, callerId, lifecycle.ActionHide, now)
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.logger.Info(moduleName, "Connection hidden", map[string]interface{}{"connection_id": id.String(), "viewer": callerId.String()})
	}
	return s.respondAfterWrite(ctx, callerId, c)
}

func (s *connectionService) SendMessage(ctx context.Context, callerId, id uuid.UUID, req *dto.SendMessageRequest) (*dto.ConnectionResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	readCtx, cancel := s.readContext(ctx)
	current, err := s.loadConnection(readCtx, uow, callerId, id)
	if err != nil {
		cancel()
		return nil, err
	}
	v, err := s.loadViewer(readCtx, uow, callerId)
	if err != nil {
		cancel()
		return nil, err
	}
	decision, err := s.decide(readCtx, uow, v, current)
	cancel()
	if err != nil {
		return nil, err
	}
	if s.resolveForView(ctx, v, current, decision) == entitlement.Locked && current.Status.IsLive() {
		return nil, fmt.Errorf("reply to locked connection %s: %w", id, apperror.ErrUpgradeRequired)
	}

	if req.ClientMessageId != "" && s.dedup != nil {
		if !s.dedup.Claim(id, callerId, req.ClientMessageId) {
			s.logger.Info(moduleName, "Duplicate message suppressed", map[string]interface{}{
				"connection_id":     id.String(),
				"client_message_id": req.ClientMessageId,
			})
			return s.Get(ctx, callerId, id)
		}
	}

	c, _, err := s.mutate(ctx, callerId, id, func(c *entity.Connection, now time.Time) (bool, error) {
		return true, lifecycle.AppendMessage(c, callerId, req.Text, s.cfg.MessageMaxLength, now)
	})
	if err != nil {
		if req.ClientMessageId != "" && s.dedup != nil {
			s.dedup.Release(id, callerId, req.ClientMessageId)
		}
		return nil, err
	}

	s.publish(ctx, connectionEvent(events.ConnectionMessage, c, callerId, c.Counterpart(callerId), nil))
	return s.respondAfterWrite(ctx, callerId, c)
}

func (s *connectionService) RequestNextStep(ctx context.Context, callerId, id uuid.UUID, req *dto.RequestNextStepRequest) (*dto.ConnectionResponse, error) {
	step := entity.NextStepType(req.Type)
	c, _, err := s.mutate(ctx, callerId, id, func(c *entity.Connection, now time.Time) (bool, error) {
		return true, lifecycle.RequestNextStep(c, callerId, step, req.Note, s.cfg.NoteMaxLength, now)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(moduleName, "Next step requested", map[string]interface{}{"connection_id": id.String(), "type": req.Type})
	s.publish(ctx, connectionEvent(events.NextStepRequested, c, callerId, c.Counterpart(callerId), map[string]interface{}{"next_step": req.Type}))
	return s.respondAfterWrite(ctx, callerId, c)
}

func (s *connectionService) CancelNextStep(ctx context.Context, callerId, id uuid.UUID) (*dto.ConnectionResponse, error) {
	var cancelled entity.NextStepType
	c, _, err := s.mutate(ctx, callerId, id, func(c *entity.Connection, now time.Time) (bool, error) {
		if c.Metadata.NextStepRequest != nil {
			cancelled = c.Metadata.NextStepRequest.Type
		}
		return true, lifecycle.CancelNextStep(c, callerId, now)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(moduleName, "Next step cancelled", map[string]interface{}{"connection_id": id.String()})
	s.publish(ctx, connectionEvent(events.NextStepCancelled, c, callerId, c.Counterpart(callerId), map[string]interface{}{"next_step": string(cancelled)}))
	return s.respondAfterWrite(ctx, callerId, c)
}

func (s *connectionService) GetEntitlement(ctx context.Context, callerId uuid.UUID) (*dto.EntitlementResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	readCtx, cancel := s.readContext(ctx)
	defer cancel()

	v, err := s.loadViewer(readCtx, uow, callerId)
	if err != nil {
		return nil, err
	}
	access := v.access(s.cfg.FreeConnectionLimit)
	res := &dto.EntitlementResponse{
		ProfileId:                  v.profile.Id,
		ProfileType:                string(v.profile.Type),
		FullAccessToInboundDetails: access.FullAccessToInboundDetails,
		FreeConnectionsRemaining:   access.FreeConnectionsRemaining,
		FreeConnectionLimit:        s.cfg.FreeConnectionLimit,
	}
	if v.membership != nil {
		res.MembershipStatus = string(v.membership.Status)
	}
	return res, nil
}

// ExpireStale moves pending connections older than PendingTTL to expired.
// A connection that changes under the sweep is skipped and retried next run.
func (s *connectionService) ExpireStale(ctx context.Context) (int, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	cutoff := s.now().Add(-s.cfg.PendingTTL)
	expired := 0

	for {
		readCtx, cancel := s.readContext(ctx)
		stale, err := uow.ConnectionRepository().FindAll(readCtx,
			specification.PendingOlderThan{Cutoff: cutoff},
			specification.OrderBy{Field: "created_at"},
			specification.Pagination{Limit: expiryBatchLimit},
		)
		cancel()
		if err != nil {
			return expired, err
		}

		progressed := 0
		for _, c := range stale {
			if err := ctx.Err(); err != nil {
				return expired, err
			}
			next := c.Clone()
			if _, err := lifecycle.Apply(next, uuid.Nil, lifecycle.ActionExpire, s.now()); err != nil {
				continue
			}
			if err := uow.ConnectionRepository().CompareAndSwap(ctx, next, c.UpdatedAt); err != nil {
				if errors.Is(err, apperror.ErrConcurrencyConflict) {
					continue
				}
				return expired, err
			}
			expired++
			progressed++
			s.cacheVersion(ctx, next.Version())
			s.publish(ctx, connectionEvent(events.ConnectionExpired, next, uuid.Nil, next.FromProfileId, nil))
		}

		if len(stale) < expiryBatchLimit || progressed == 0 {
			break
		}
	}

	if expired > 0 {
		s.logger.Info(moduleName, "Expired stale connections", map[string]interface{}{"count": expired})
	}
	return expired, nil
}
