package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"care-connect-be/internal/config"
	"care-connect-be/internal/dto"
	"care-connect-be/internal/entity"
	"care-connect-be/internal/pkg/apperror"
	"care-connect-be/internal/pkg/logger"
	"care-connect-be/internal/pkg/serverutils"
	"care-connect-be/internal/repository/memory"
	"care-connect-be/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type envelope struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testApp struct {
	app      *fiber.App
	family   uuid.UUID
	provider uuid.UUID
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()

	family := &entity.Profile{Id: uuid.New(), AccountId: uuid.New(), Type: entity.ProfileTypeFamily, DisplayName: "Jane Smith"}
	provider := &entity.Profile{Id: uuid.New(), AccountId: uuid.New(), Type: entity.ProfileTypeCaregiver, DisplayName: "Maria Lopez"}
	require.NoError(t, memory.NewProfileRepository(store).Create(ctx, family))
	require.NoError(t, memory.NewProfileRepository(store).Create(ctx, provider))
	require.NoError(t, memory.NewMembershipRepository(store).Create(ctx, &entity.Membership{
		AccountId: provider.AccountId,
		Status:    entity.MembershipStatusActive,
	}))

	svc := service.NewConnectionService(
		memory.NewRepositoryFactory(store),
		nil,
		nil,
		memory.NewDedupStore(time.Minute),
		logger.NewNopLogger(),
		config.EngineConfig{
			FreeConnectionLimit: 3,
			StoreReadTimeout:    time.Second,
			WriteRetryAttempts:  2,
			PendingTTL:          time.Hour,
			MessageMaxLength:    200,
			NoteMaxLength:       200,
		},
	)

	return &testApp{app: newRouter(svc), family: family.Id, provider: provider.Id}
}

func newRouter(svc service.IConnectionService) *fiber.App {
	app := fiber.New()
	app.Use(serverutils.ErrorHandlerMiddleware())
	NewConnectionController(svc, serverutils.NewJwtMiddleware(testSecret)).RegisterRoutes(app.Group("/api"))
	return app
}

// failingService fails every Get with err.
type failingService struct {
	service.IConnectionService
	err error
}

func (f failingService) Get(ctx context.Context, callerId, id uuid.UUID) (*dto.ConnectionResponse, error) {
	return nil, f.err
}

func (a *testApp) do(t *testing.T, method, path string, as uuid.UUID, body string) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if as != uuid.Nil {
		token, err := serverutils.SignProfileToken(testSecret, as)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func (a *testApp) create(t *testing.T) string {
	t.Helper()
	status, env := a.do(t, http.MethodPost, "/api/connection/v1", a.family,
		`{"to_profile_id":"`+a.provider.String()+`","type":"inquiry","urgency":"immediate","note":"Weekday mornings"}`)
	require.Equal(t, http.StatusCreated, status, env.Message)

	var created struct {
		Id string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	return created.Id
}

func TestConnectionController_RequiresToken(t *testing.T) {
	a := newTestApp(t)
	status, env := a.do(t, http.MethodGet, "/api/connection/v1", uuid.Nil, "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.False(t, env.Success)
}

func TestConnectionController_Lifecycle(t *testing.T) {
	a := newTestApp(t)
	id := a.create(t)

	status, env := a.do(t, http.MethodPost, "/api/connection/v1/"+id+"/respond", a.provider, `{"action":"accept"}`)
	require.Equal(t, http.StatusOK, status, env.Message)

	status, env = a.do(t, http.MethodPost, "/api/connection/v1/"+id+"/messages", a.family, `{"text":"When are you available?"}`)
	require.Equal(t, http.StatusOK, status, env.Message)
	var view struct {
		Status string            `json:"status"`
		Thread []json.RawMessage `json:"thread"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, "accepted", view.Status)
	assert.Len(t, view.Thread, 2)

	status, env = a.do(t, http.MethodGet, "/api/connection/v1/"+id+"/version", a.provider, "")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(env.Data), `"updated_at"`)

	status, _ = a.do(t, http.MethodPost, "/api/connection/v1/"+id+"/next-step", a.provider, `{"type":"call","note":"mornings only"}`)
	assert.Equal(t, http.StatusOK, status)
	status, _ = a.do(t, http.MethodPost, "/api/connection/v1/"+id+"/next-step", a.family, `{"type":"visit"}`)
	assert.Equal(t, http.StatusConflict, status)
	status, _ = a.do(t, http.MethodDelete, "/api/connection/v1/"+id+"/next-step", a.family, "")
	assert.Equal(t, http.StatusOK, status)

	status, _ = a.do(t, http.MethodPost, "/api/connection/v1/"+id+"/end", a.provider, "")
	assert.Equal(t, http.StatusOK, status)
	status, _ = a.do(t, http.MethodPost, "/api/connection/v1/"+id+"/hide", a.family, "")
	assert.Equal(t, http.StatusOK, status)
}

func TestConnectionController_ErrorMapping(t *testing.T) {
	a := newTestApp(t)
	id := a.create(t)

	t.Run("stranger gets not found", func(t *testing.T) {
		status, env := a.do(t, http.MethodGet, "/api/connection/v1/"+id, uuid.New(), "")
		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, "not found", env.Message)
	})

	t.Run("malformed id gets not found", func(t *testing.T) {
		status, _ := a.do(t, http.MethodGet, "/api/connection/v1/not-a-uuid", a.family, "")
		assert.Equal(t, http.StatusNotFound, status)
	})

	t.Run("initiator cannot accept", func(t *testing.T) {
		status, _ := a.do(t, http.MethodPost, "/api/connection/v1/"+id+"/respond", a.family, `{"action":"accept"}`)
		assert.Equal(t, http.StatusNotFound, status)
	})

	t.Run("unknown action is a validation error", func(t *testing.T) {
		status, env := a.do(t, http.MethodPost, "/api/connection/v1/"+id+"/respond", a.provider, `{"action":"maybe"}`)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Contains(t, string(env.Data), "action")
	})

	t.Run("empty message is a validation error", func(t *testing.T) {
		status, _ := a.do(t, http.MethodPost, "/api/connection/v1/"+id+"/messages", a.family, `{"text":""}`)
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("ending a pending connection is an invalid transition", func(t *testing.T) {
		status, _ := a.do(t, http.MethodPost, "/api/connection/v1/"+id+"/end", a.family, "")
		assert.Equal(t, http.StatusConflict, status)
	})

	t.Run("second live connection to the same profile conflicts", func(t *testing.T) {
		status, _ := a.do(t, http.MethodPost, "/api/connection/v1", a.family,
			`{"to_profile_id":"`+a.provider.String()+`","type":"inquiry"}`)
		assert.Equal(t, http.StatusConflict, status)
	})
}

func TestConnectionController_RetryableErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"store timeout", fmt.Errorf("find connection: %w", apperror.ErrTimeout), http.StatusGatewayTimeout},
		{"store unavailable", fmt.Errorf("find connection: %w", apperror.ErrStorage), http.StatusServiceUnavailable},
		{"lost every write race", fmt.Errorf("connection changed: %w", apperror.ErrConcurrencyConflict), http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := &testApp{app: newRouter(failingService{err: tc.err})}
			status, env := a.do(t, http.MethodGet, "/api/connection/v1/"+uuid.NewString(), uuid.New(), "")
			assert.Equal(t, tc.status, status)
			assert.False(t, env.Success)
			assert.JSONEq(t, `{"retryable":true}`, string(env.Data))
		})
	}

	t.Run("invalid transition is not retryable", func(t *testing.T) {
		a := &testApp{app: newRouter(failingService{err: apperror.ErrInvalidTransition})}
		status, env := a.do(t, http.MethodGet, "/api/connection/v1/"+uuid.NewString(), uuid.New(), "")
		assert.Equal(t, http.StatusConflict, status)
		assert.NotContains(t, string(env.Data), "retryable")
	})
}

func TestConnectionController_Entitlement(t *testing.T) {
	a := newTestApp(t)

	status, env := a.do(t, http.MethodGet, "/api/connection/v1/entitlement", a.provider, "")
	require.Equal(t, http.StatusOK, status)
	var res struct {
		FullAccess bool `json:"full_access_to_inbound_details"`
		Remaining  *int `json:"free_connections_remaining"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.True(t, res.FullAccess)
	assert.Nil(t, res.Remaining)
}
