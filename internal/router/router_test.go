package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-queue/internal/channel/memory"
	"github.com/jwalitptl/clinic-queue/internal/config"
	"github.com/jwalitptl/clinic-queue/internal/handler/appointment"
	authHandler "github.com/jwalitptl/clinic-queue/internal/handler/auth"
	"github.com/jwalitptl/clinic-queue/internal/handler/broadcast"
	"github.com/jwalitptl/clinic-queue/internal/handler/clinic"
	"github.com/jwalitptl/clinic-queue/internal/handler/control"
	"github.com/jwalitptl/clinic-queue/internal/handler/directory"
	"github.com/jwalitptl/clinic-queue/internal/handler/health"
	promHandler "github.com/jwalitptl/clinic-queue/internal/handler/prometheus"
	realtimeHandler "github.com/jwalitptl/clinic-queue/internal/handler/realtime"
	"github.com/jwalitptl/clinic-queue/internal/handler/stats"
	"github.com/jwalitptl/clinic-queue/internal/middleware"
	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/realtime"
	"github.com/jwalitptl/clinic-queue/internal/repository"
	broadcastService "github.com/jwalitptl/clinic-queue/internal/service/broadcast"
	"github.com/jwalitptl/clinic-queue/internal/service/caller"
	clinicService "github.com/jwalitptl/clinic-queue/internal/service/clinic"
	"github.com/jwalitptl/clinic-queue/pkg/auth"
	"github.com/jwalitptl/clinic-queue/pkg/logger"
	"github.com/jwalitptl/clinic-queue/pkg/metrics"
	"github.com/jwalitptl/clinic-queue/pkg/security"
)

type clinicRepo struct {
	clinics []*model.Clinic
}

func (r *clinicRepo) Create(ctx context.Context, c *model.Clinic) error {
	c.ID = uuid.New()
	r.clinics = append(r.clinics, c)
	return nil
}

func (r *clinicRepo) Get(ctx context.Context, id uuid.UUID) (*model.Clinic, error) {
	for _, c := range r.clinics {
		if c.ID == id {
			cp := *c
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *clinicRepo) GetByNumber(ctx context.Context, number int) (*model.Clinic, error) {
	for _, c := range r.clinics {
		if c.Number == number {
			cp := *c
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *clinicRepo) Update(ctx context.Context, c *model.Clinic) error { return nil }

func (r *clinicRepo) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	return nil
}

func (r *clinicRepo) Delete(ctx context.Context, id uuid.UUID) error { return nil }

func (r *clinicRepo) List(ctx context.Context) ([]*model.Clinic, error) {
	return r.clinics, nil
}

func (r *clinicRepo) ListByScreen(ctx context.Context, screenNumber int) ([]*model.Clinic, error) {
	var out []*model.Clinic
	for _, c := range r.clinics {
		if c.ScreenNumber == screenNumber {
			out = append(out, c)
		}
	}
	return out, nil
}

type apiResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type testAPI struct {
	t      *testing.T
	engine *gin.Engine
}

func (a testAPI) request(method, path string, body any, token string) (int, apiResponse) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)

	var resp apiResponse
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
	}
	return w.Code, resp
}

func newTestAPI(t *testing.T, loginPerMinute int) testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.Nop()

	hasher := security.NewBcryptHasher(4)
	clinicHash, err := hasher.Hash("secret1")
	require.NoError(t, err)
	adminHash, err := hasher.Hash("admin-pass")
	require.NoError(t, err)

	ch := memory.New()
	m := metrics.NewTestMetrics()
	tokens := auth.NewTokenManager("test-secret", "clinic-queue", time.Hour)

	repo := &clinicRepo{clinics: []*model.Clinic{
		{Base: model.Base{ID: uuid.New()}, Number: 2, Name: "Dental", ScreenNumber: 1, PasswordHash: clinicHash, Active: true},
	}}
	clinics := clinicService.NewService(repo, ch, hasher, clinicService.Config{}, log)
	callers := caller.NewService(clinics, ch, hasher, m, log)
	hub := realtime.NewHub(ch, realtime.Config{}, m, log)

	reg := prometheus.NewRegistry()
	handlers := Handlers{
		Auth: authHandler.NewHandler(callers, tokens, hasher, config.AdminConfig{
			Username:     "admin",
			PasswordHash: adminHash,
		}, log),
		Control:     control.NewHandler(callers),
		Clinic:      clinic.NewHandler(clinics),
		Directory:   directory.NewHandler(nil),
		Appointment: appointment.NewHandler(nil),
		Broadcast:   broadcast.NewHandler(broadcastService.NewService(ch, m, log)),
		Stats:       stats.NewHandler(nil),
		Realtime:    realtimeHandler.NewHandler(hub, log),
		Health:      health.NewHandler(map[string]health.Checker{"channel": ch}),
		Metrics:     promHandler.New(reg, reg),
	}

	r := NewRouter(middleware.NewAuthMiddleware(tokens), handlers, RouterConfig{
		RequestTimeout: 5 * time.Second,
		CORS:           middleware.DefaultCORSConfig(nil),
		Security:       middleware.DefaultSecurityConfig(),
		SizeLimit:      middleware.DefaultSizeLimitConfig(),
		LoginPerMinute: loginPerMinute,
	}, log)
	r.Setup()
	return testAPI{t: t, engine: r.Engine()}
}

func login(t *testing.T, api testAPI, path string, body any) string {
	t.Helper()
	code, resp := api.request(http.MethodPost, path, body, "")
	require.Equal(t, http.StatusOK, code, resp.Message)
	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &out))
	require.NotEmpty(t, out.Token)
	return out.Token
}

func TestCallerFlow(t *testing.T) {
	api := newTestAPI(t, 0)

	token := login(t, api, "/api/v1/control/login", map[string]any{"clinicNumber": 2, "password": "secret1"})

	code, resp := api.request(http.MethodPost, "/api/v1/control/next", nil, token)
	require.Equal(t, http.StatusOK, code, resp.Message)
	var action control.ActionResponse
	require.NoError(t, json.Unmarshal(resp.Data, &action))
	assert.Equal(t, 2, action.ClinicNumber)
	assert.Equal(t, 1, action.State.Current)
	require.NotNil(t, action.Event)
	assert.Equal(t, model.CallTypeNormal, action.Event.Type)

	code, resp = api.request(http.MethodPost, "/api/v1/control/call", map[string]any{"number": 7}, token)
	require.Equal(t, http.StatusOK, code, resp.Message)

	code, resp = api.request(http.MethodGet, "/api/v1/public/clinics/2/state?ticket=9", nil, "")
	require.Equal(t, http.StatusOK, code, resp.Message)
	var state struct {
		State  model.QueueState `json:"state"`
		Ticket *struct {
			YourNumber int `json:"yourNumber"`
			Current    int `json:"current"`
		} `json:"ticket"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &state))
	assert.Equal(t, 7, state.State.Current)
	require.NotNil(t, state.Ticket)
	assert.Equal(t, 9, state.Ticket.YourNumber)
	assert.Equal(t, 7, state.Ticket.Current)
}

func TestCallerLoginRejectsBadPassword(t *testing.T) {
	api := newTestAPI(t, 0)

	code, resp := api.request(http.MethodPost, "/api/v1/control/login", map[string]any{"clinicNumber": 2, "password": "wrong"}, "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "error", resp.Status)
}

func TestControlRequiresCallerToken(t *testing.T) {
	api := newTestAPI(t, 0)

	code, _ := api.request(http.MethodPost, "/api/v1/control/next", nil, "")
	assert.Equal(t, http.StatusUnauthorized, code)

	adminToken := login(t, api, "/api/v1/admin/login", map[string]any{"username": "admin", "password": "admin-pass"})
	code, _ = api.request(http.MethodPost, "/api/v1/control/next", nil, adminToken)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestAdminRoutesRequireAdminToken(t *testing.T) {
	api := newTestAPI(t, 0)

	code, _ := api.request(http.MethodGet, "/api/v1/admin/queue", nil, "")
	assert.Equal(t, http.StatusUnauthorized, code)

	callerToken := login(t, api, "/api/v1/control/login", map[string]any{"clinicNumber": 2, "password": "secret1"})
	code, _ = api.request(http.MethodGet, "/api/v1/admin/queue", nil, callerToken)
	assert.Equal(t, http.StatusForbidden, code)

	adminToken := login(t, api, "/api/v1/admin/login", map[string]any{"username": "admin", "password": "admin-pass"})
	code, resp := api.request(http.MethodGet, "/api/v1/admin/queue", nil, adminToken)
	require.Equal(t, http.StatusOK, code, resp.Message)

	code, resp = api.request(http.MethodPost, "/api/v1/admin/video/control", map[string]any{"action": "play"}, adminToken)
	assert.Equal(t, http.StatusOK, code, resp.Message)
}

func TestLoginIsRateLimited(t *testing.T) {
	api := newTestAPI(t, 2)
	body := map[string]any{"clinicNumber": 2, "password": "wrong"}

	for i := 0; i < 2; i++ {
		code, _ := api.request(http.MethodPost, "/api/v1/control/login", body, "")
		assert.Equal(t, http.StatusUnauthorized, code)
	}
	code, _ := api.request(http.MethodPost, "/api/v1/control/login", body, "")
	assert.Equal(t, http.StatusTooManyRequests, code)
}

func TestHealthAndMetricsSkipAuth(t *testing.T) {
	api := newTestAPI(t, 0)

	code, _ := api.request(http.MethodGet, "/health/ready", nil, "")
	assert.Equal(t, http.StatusOK, code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	api.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}
