package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"care-connect-be/internal/config"
	"care-connect-be/internal/dto"
	"care-connect-be/internal/entity"
	"care-connect-be/internal/pkg/apperror"
	"care-connect-be/internal/pkg/logger"
	"care-connect-be/internal/repository/cache"
	"care-connect-be/internal/repository/contract"
	"care-connect-be/internal/repository/memory"
	"care-connect-be/internal/repository/specification"
	"care-connect-be/internal/repository/unitofwork"
	"care-connect-be/pkg/events"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType()
	}
	return out
}

type fixture struct {
	store    *memory.Store
	svc      *connectionService
	events   *recordingPublisher
	family   *entity.Profile
	provider *entity.Profile
}

func strPtr(s string) *string { return &s }

func testEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		FreeConnectionLimit: 1,
		StoreReadTimeout:    time.Second,
		WriteRetryAttempts:  2,
		PendingTTL:          30 * 24 * time.Hour,
		ExpirySweepInterval: time.Hour,
		MessageMaxLength:    4000,
		NoteMaxLength:       2000,
		EventsTopic:         "connection.events",
		DedupWindow:         time.Minute,
	}
}

func newFixture(t *testing.T, providerMembership entity.MembershipStatus, used int) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()

	family := &entity.Profile{Id: uuid.New(), AccountId: uuid.New(), Type: entity.ProfileTypeFamily, DisplayName: "Jane Smith",
		Phone: strPtr("+1 555 0100"), Email: strPtr("jane@example.com")}
	provider := &entity.Profile{Id: uuid.New(), AccountId: uuid.New(), Type: entity.ProfileTypeOrganization, DisplayName: "Sunrise Home Care",
		Phone: strPtr("+1 555 0199"), Website: strPtr("https://sunrise.example.com")}
	require.NoError(t, memory.NewProfileRepository(store).Create(ctx, family))
	require.NoError(t, memory.NewProfileRepository(store).Create(ctx, provider))
	require.NoError(t, memory.NewMembershipRepository(store).Create(ctx, &entity.Membership{
		AccountId:           provider.AccountId,
		Status:              providerMembership,
		BillingCycle:        entity.BillingCycleNone,
		FreeConnectionsUsed: used,
	}))

	pub := &recordingPublisher{}
	svc := NewConnectionService(
		memory.NewRepositoryFactory(store),
		pub,
		nil,
		memory.NewDedupStore(time.Minute),
		logger.NewNopLogger(),
		testEngineConfig(),
	).(*connectionService)

	return &fixture{store: store, svc: svc, events: pub, family: family, provider: provider}
}

func (f *fixture) createInquiry(t *testing.T) *dto.ConnectionResponse {
	t.Helper()
	res, err := f.svc.Create(context.Background(), f.family.Id, &dto.CreateConnectionRequest{
		ToProfileId: f.provider.Id,
		Type:        "inquiry",
		CareType:    "home_care",
		Urgency:     "immediate",
		Recipient:   "My mother, Eleanor",
		Note:        "She needs help with meals three days a week",
	})
	require.NoError(t, err)
	return res
}

// countingFactory counts connection reads and writes and can make every
// compare-and-swap lose.
type countingFactory struct {
	unitofwork.RepositoryFactory
	alwaysConflict bool

	mu          sync.Mutex
	swaps       int
	fullReads   int
	versionRead int
}

func (f *countingFactory) bump(n *int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	*n++
}

func (f *countingFactory) counts() (swaps, fullReads, versionReads int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.swaps, f.fullReads, f.versionRead
}

func (f *countingFactory) NewUnitOfWork(ctx context.Context) unitofwork.UnitOfWork {
	return &countingUnitOfWork{UnitOfWork: f.RepositoryFactory.NewUnitOfWork(ctx), f: f}
}

type countingUnitOfWork struct {
	unitofwork.UnitOfWork
	f *countingFactory
}

func (u *countingUnitOfWork) ConnectionRepository() contract.ConnectionRepository {
	return &countingConnections{ConnectionRepository: u.UnitOfWork.ConnectionRepository(), f: u.f}
}

type countingConnections struct {
	contract.ConnectionRepository
	f *countingFactory
}

func (r *countingConnections) CompareAndSwap(ctx context.Context, c *entity.Connection, expected time.Time) error {
	r.f.bump(&r.f.swaps)
	if r.f.alwaysConflict {
		return fmt.Errorf("connection %s: %w", c.Id, apperror.ErrConcurrencyConflict)
	}
	return r.ConnectionRepository.CompareAndSwap(ctx, c, expected)
}

func (r *countingConnections) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Connection, error) {
	r.f.bump(&r.f.fullReads)
	return r.ConnectionRepository.FindOne(ctx, specs...)
}

func (r *countingConnections) FindVersion(ctx context.Context, id uuid.UUID) (*entity.ConnectionVersion, error) {
	r.f.bump(&r.f.versionRead)
	return r.ConnectionRepository.FindVersion(ctx, id)
}

func (f *fixture) count(alwaysConflict bool) *countingFactory {
	cf := &countingFactory{RepositoryFactory: memory.NewRepositoryFactory(f.store), alwaysConflict: alwaysConflict}
	f.svc.uowFactory = cf
	return cf
}

func (f *fixture) membershipUsed(t *testing.T) int {
	t.Helper()
	m, err := memory.NewMembershipRepository(f.store).FindOne(context.Background(), specification.ByAccountID{AccountID: f.provider.AccountId})
	require.NoError(t, err)
	require.NotNil(t, m)
	return m.FreeConnectionsUsed
}

func TestConnectionService_AcceptThenMessage(t *testing.T) {
	f := newFixture(t, entity.MembershipStatusActive, 0)
	ctx := context.Background()
	created := f.createInquiry(t)
	assert.Equal(t, "pending", created.Status)
	assert.Equal(t, "outbound", created.Direction)
	assert.Empty(t, created.Thread, "the request is carried by message, not the thread")

	accepted, err := f.svc.Respond(ctx, f.provider.Id, created.Id, &dto.RespondConnectionRequest{Action: "accept"})
	require.NoError(t, err)
	assert.Equal(t, "accepted", accepted.Status)
	assert.Equal(t, "connection accepted", accepted.Thread[len(accepted.Thread)-1].Text)

	after, err := f.svc.SendMessage(ctx, f.family.Id, created.Id, &dto.SendMessageRequest{Text: "When are you available?"})
	require.NoError(t, err)
	require.Len(t, after.Thread, 2)
	assert.Equal(t, string(entity.ThreadEntrySystem), after.Thread[0].Type)
	assert.Equal(t, "connection accepted", after.Thread[0].Text)
	assert.Equal(t, string(entity.ThreadEntryMessage), after.Thread[1].Type)
	assert.Equal(t, "When are you available?", after.Thread[1].Text)
	assert.True(t, after.UpdatedAt.After(accepted.UpdatedAt))

	assert.Equal(t, []string{events.ConnectionCreated, events.ConnectionAccepted, events.ConnectionMessage}, f.events.types())
}

func TestConnectionService_WithdrawBlocksAccept(t *testing.T) {
	f := newFixture(t, entity.MembershipStatusActive, 0)
	ctx := context.Background()
	created := f.createInquiry(t)

	res, err := f.svc.Withdraw(ctx, f.family.Id, created.Id)
	require.NoError(t, err)
	assert.Equal(t, "expired", res.Status)
	assert.True(t, res.Withdrawn)

	_, err = f.svc.Respond(ctx, f.provider.Id, created.Id, &dto.RespondConnectionRequest{Action: "accept"})
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)
}

func TestConnectionService_NonPartyIsForbidden(t *testing.T) {
	f := newFixture(t, entity.MembershipStatusActive, 0)
	created := f.createInquiry(t)

	_, err := f.svc.Get(context.Background(), uuid.New(), created.Id)
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	_, err = f.svc.Get(context.Background(), f.family.Id, uuid.New())
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestConnectionService_DuplicateLivePairRejected(t *testing.T) {
	f := newFixture(t, entity.MembershipStatusActive, 0)
	f.createInquiry(t)

	_, err := f.svc.Create(context.Background(), f.family.Id, &dto.CreateConnectionRequest{
		ToProfileId: f.provider.Id,
		Type:        "inquiry",
	})
	assert.ErrorIs(t, err, apperror.ErrAlreadyExists)
}

func TestConnectionService_LockedInboundIsRedacted(t *testing.T) {
	f := newFixture(t, entity.MembershipStatusFree, 1)
	ctx := context.Background()
	created := f.createInquiry(t)

	view, err := f.svc.Get(ctx, f.provider.Id, created.Id)
	require.NoError(t, err)
	assert.True(t, view.Locked)
	assert.False(t, view.Unlockable)
	require.NotNil(t, view.Counterpart)
	assert.Equal(t, "J*** S***", view.Counterpart.DisplayName)
	assert.Nil(t, view.Counterpart.Phone)
	assert.Nil(t, view.Counterpart.Email)
	assert.Equal(t, "She needs help with ...", view.Message.Note)
	assert.Equal(t, 1, f.membershipUsed(t))

	accepted, err := f.svc.Respond(ctx, f.provider.Id, created.Id, &dto.RespondConnectionRequest{Action: "accept"})
	require.NoError(t, err)
	assert.Equal(t, "accepted", accepted.Status)
	assert.True(t, accepted.Locked)

	_, err = f.svc.SendMessage(ctx, f.provider.Id, created.Id, &dto.SendMessageRequest{Text: "Hello"})
	assert.ErrorIs(t, err, apperror.ErrUpgradeRequired)
}

func TestConnectionService_ViewConsumesQuotaOnce(t *testing.T) {
	f := newFixture(t, entity.MembershipStatusFree, 0)
	ctx := context.Background()
	created := f.createInquiry(t)

	list, err := f.svc.List(ctx, f.provider.Id, &dto.ListConnectionsQuery{})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.True(t, list.Items[0].Unlockable)
	assert.Equal(t, 0, f.membershipUsed(t), "listing never spends quota")

	view, err := f.svc.Get(ctx, f.provider.Id, created.Id)
	require.NoError(t, err)
	assert.False(t, view.Locked)
	assert.Equal(t, "Jane Smith", view.Counterpart.DisplayName)
	assert.Equal(t, 1, f.membershipUsed(t))

	_, err = f.svc.Get(ctx, f.provider.Id, created.Id)
	require.NoError(t, err)
	assert.Equal(t, 1, f.membershipUsed(t), "a second view of the same connection is free")

	ent, err := f.svc.GetEntitlement(ctx, f.provider.Id)
	require.NoError(t, err)
	require.NotNil(t, ent.FreeConnectionsRemaining)
	assert.Equal(t, 0, *ent.FreeConnectionsRemaining)
	assert.False(t, ent.FullAccessToInboundDetails)

	// already unlocked stays visible after the quota runs out
	again, err := f.svc.Get(ctx, f.provider.Id, created.Id)
	require.NoError(t, err)
	assert.False(t, again.Locked)
}

func TestConnectionService_NextStepNegotiation(t *testing.T) {
	f := newFixture(t, entity.MembershipStatusActive, 0)
	ctx := context.Background()
	created := f.createInquiry(t)
	_, err := f.svc.Respond(ctx, f.provider.Id, created.Id, &dto.RespondConnectionRequest{Action: "accept"})
	require.NoError(t, err)

	res, err := f.svc.RequestNextStep(ctx, f.provider.Id, created.Id, &dto.RequestNextStepRequest{Type: "call", Note: strPtr("mornings only")})
	require.NoError(t, err)
	require.NotNil(t, res.NextStepRequest)
	assert.Equal(t, "call", res.NextStepRequest.Type)

	_, err = f.svc.RequestNextStep(ctx, f.family.Id, created.Id, &dto.RequestNextStepRequest{Type: "visit"})
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)

	cleared, err := f.svc.CancelNextStep(ctx, f.family.Id, created.Id)
	require.NoError(t, err)
	assert.Nil(t, cleared.NextStepRequest)

	var kept bool
	for _, e := range cleared.Thread {
		if e.Type == string(entity.ThreadEntryNextStepRequest) {
			kept = true
		}
	}
	assert.True(t, kept, "the original request entry stays in the thread")
}

func TestConnectionService_EndThenHideIsViewerScoped(t *testing.T) {
	f := newFixture(t, entity.MembershipStatusActive, 0)
	ctx := context.Background()
	created := f.createInquiry(t)
	_, err := f.svc.Respond(ctx, f.provider.Id, created.Id, &dto.RespondConnectionRequest{Action: "accept"})
	require.NoError(t, err)

	ended, err := f.svc.End(ctx, f.family.Id, created.Id)
	require.NoError(t, err)
	assert.Equal(t, "archived", ended.Status)
	assert.True(t, ended.Ended)

	hidden, err := f.svc.Hide(ctx, f.provider.Id, created.Id)
	require.NoError(t, err)
	assert.True(t, hidden.Hidden)

	forFamily, err := f.svc.Get(ctx, f.family.Id, created.Id)
	require.NoError(t, err)
	assert.False(t, forFamily.Hidden)

	providerList, err := f.svc.List(ctx, f.provider.Id, &dto.ListConnectionsQuery{})
	require.NoError(t, err)
	assert.Empty(t, providerList.Items)

	withHidden, err := f.svc.List(ctx, f.provider.Id, &dto.ListConnectionsQuery{IncludeHidden: true})
	require.NoError(t, err)
	assert.Len(t, withHidden.Items, 1)

	familyList, err := f.svc.List(ctx, f.family.Id, &dto.ListConnectionsQuery{})
	require.NoError(t, err)
	assert.Len(t, familyList.Items, 1)
}

func TestConnectionService_ConcurrentRespondHasOneWinner(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t, entity.MembershipStatusActive, 0)
		created := f.createInquiry(t)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for j, action := range []string{"accept", "decline"} {
			wg.Add(1)
			go func(j int, action string) {
				defer wg.Done()
				_, errs[j] = f.svc.Respond(context.Background(), f.provider.Id, created.Id, &dto.RespondConnectionRequest{Action: action})
			}(j, action)
		}
		wg.Wait()

		var wins int
		for _, err := range errs {
			if err == nil {
				wins++
				continue
			}
			assert.ErrorIs(t, err, apperror.ErrInvalidTransition)
		}
		assert.Equal(t, 1, wins)

		final, err := f.svc.Get(context.Background(), f.family.Id, created.Id)
		require.NoError(t, err)
		assert.Contains(t, []string{"accepted", "declined"}, final.Status)
		assert.Len(t, final.Thread, 1)
	}
}

func TestConnectionService_MessageDedup(t *testing.T) {
	f := newFixture(t, entity.MembershipStatusActive, 0)
	ctx := context.Background()
	created := f.createInquiry(t)

	req := &dto.SendMessageRequest{Text: "Are weekends possible?", ClientMessageId: "m-1"}
	first, err := f.svc.SendMessage(ctx, f.family.Id, created.Id, req)
	require.NoError(t, err)
	second, err := f.svc.SendMessage(ctx, f.family.Id, created.Id, req)
	require.NoError(t, err)

	assert.Len(t, first.Thread, 1)
	assert.Len(t, second.Thread, 1)
}

func TestConnectionService_ExpireStale(t *testing.T) {
	f := newFixture(t, entity.MembershipStatusActive, 0)
	ctx := context.Background()

	f.svc.now = func() time.Time { return time.Now().Add(-31 * 24 * time.Hour) }
	created := f.createInquiry(t)
	f.svc.now = time.Now

	n, err := f.svc.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	res, err := f.svc.Get(ctx, f.family.Id, created.Id)
	require.NoError(t, err)
	assert.Equal(t, "expired", res.Status)
	assert.False(t, res.Withdrawn)
	assert.Equal(t, "connection expired", res.Thread[len(res.Thread)-1].Text)

	n, err = f.svc.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestConnectionService_ConflictSurfacesAfterRetries(t *testing.T) {
	f := newFixture(t, entity.MembershipStatusActive, 0)
	ctx := context.Background()
	created := f.createInquiry(t)
	counter := f.count(true)

	_, err := f.svc.Respond(ctx, f.provider.Id, created.Id, &dto.RespondConnectionRequest{Action: "accept"})
	assert.ErrorIs(t, err, apperror.ErrConcurrencyConflict)

	swaps, _, _ := counter.counts()
	assert.Equal(t, 1+f.svc.cfg.WriteRetryAttempts, swaps, "first attempt plus each retry")
	assert.Equal(t, []string{events.ConnectionCreated}, f.events.types(), "a lost write publishes nothing")

	f.count(false)
	current, err := f.svc.Get(ctx, f.family.Id, created.Id)
	require.NoError(t, err)
	assert.Equal(t, "pending", current.Status)
}

func TestConnectionService_GatedCreatorWithoutQuota(t *testing.T) {
	f := newFixture(t, entity.MembershipStatusFree, 1)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.provider.Id, &dto.CreateConnectionRequest{
		ToProfileId: f.family.Id,
		Type:        "application",
	})
	assert.ErrorIs(t, err, apperror.ErrUpgradeRequired)

	list, err := f.svc.List(ctx, f.family.Id, &dto.ListConnectionsQuery{})
	require.NoError(t, err)
	assert.Empty(t, list.Items)
	assert.Empty(t, f.events.types())
}

func TestConnectionService_ConcurrentAcceptAndWithdraw(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t, entity.MembershipStatusActive, 0)
		created := f.createInquiry(t)
		ctx := context.Background()

		var wg sync.WaitGroup
		var acceptErr, withdrawErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, acceptErr = f.svc.Respond(ctx, f.provider.Id, created.Id, &dto.RespondConnectionRequest{Action: "accept"})
		}()
		go func() {
			defer wg.Done()
			_, withdrawErr = f.svc.Withdraw(ctx, f.family.Id, created.Id)
		}()
		wg.Wait()

		final, err := f.svc.Get(ctx, f.family.Id, created.Id)
		require.NoError(t, err)
		switch {
		case acceptErr == nil:
			assert.ErrorIs(t, withdrawErr, apperror.ErrInvalidTransition)
			assert.Equal(t, "accepted", final.Status)
			assert.False(t, final.Withdrawn)
		case withdrawErr == nil:
			assert.ErrorIs(t, acceptErr, apperror.ErrInvalidTransition)
			assert.Equal(t, "expired", final.Status)
			assert.True(t, final.Withdrawn)
		default:
			t.Fatalf("both lost: accept=%v withdraw=%v", acceptErr, withdrawErr)
		}
		assert.Len(t, final.Thread, 1)
	}
}

func TestConnectionService_VersionServedFromCache(t *testing.T) {
	f := newFixture(t, entity.MembershipStatusActive, 0)
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	f.svc.versions = cache.NewVersionCache(rdb, time.Minute)

	created := f.createInquiry(t)
	counter := f.count(false)

	v, err := f.svc.GetVersion(ctx, f.family.Id, created.Id)
	require.NoError(t, err)
	assert.True(t, created.UpdatedAt.Equal(v.UpdatedAt))

	_, err = f.svc.GetVersion(ctx, uuid.New(), created.Id)
	assert.ErrorIs(t, err, apperror.ErrForbidden, "the cached pair authorizes the caller")

	_, fullReads, versionReads := counter.counts()
	assert.Zero(t, fullReads)
	assert.Zero(t, versionReads, "a cache hit never reaches the store")

	accepted, err := f.svc.Respond(ctx, f.provider.Id, created.Id, &dto.RespondConnectionRequest{Action: "accept"})
	require.NoError(t, err)
	v, err = f.svc.GetVersion(ctx, f.provider.Id, created.Id)
	require.NoError(t, err)
	assert.True(t, accepted.UpdatedAt.Equal(v.UpdatedAt), "writes move the cached version")

	mr.FlushAll()
	_, _, before := counter.counts()
	v, err = f.svc.GetVersion(ctx, f.family.Id, created.Id)
	require.NoError(t, err)
	assert.True(t, accepted.UpdatedAt.Equal(v.UpdatedAt))
	_, _, after := counter.counts()
	assert.Equal(t, before+1, after, "a miss reads the narrow version row")
	assert.True(t, mr.Exists("conn:ver:"+created.Id.String()), "a miss refills the cache")

	_, err = f.svc.GetVersion(ctx, f.family.Id, uuid.New())
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

type brokenVersions struct {
	mu          sync.Mutex
	invalidated []uuid.UUID
}

func (b *brokenVersions) Get(ctx context.Context, id uuid.UUID) (*entity.ConnectionVersion, bool, error) {
	return nil, false, nil
}

func (b *brokenVersions) Set(ctx context.Context, v entity.ConnectionVersion) error {
	return errors.New("redis: connection refused")
}

func (b *brokenVersions) Invalidate(ctx context.Context, id uuid.UUID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.invalidated = append(b.invalidated, id)
	return nil
}

func TestConnectionService_FailedCacheWriteInvalidates(t *testing.T) {
	f := newFixture(t, entity.MembershipStatusActive, 0)
	versions := &brokenVersions{}
	f.svc.versions = versions

	created := f.createInquiry(t)
	_, err := f.svc.Respond(context.Background(), f.provider.Id, created.Id, &dto.RespondConnectionRequest{Action: "accept"})
	require.NoError(t, err)

	versions.mu.Lock()
	defer versions.mu.Unlock()
	assert.Equal(t, []uuid.UUID{created.Id, created.Id}, versions.invalidated)
}
