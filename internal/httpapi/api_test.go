package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"ewastePickup/internal/aggregate"
	"ewastePickup/internal/auth"
	"ewastePickup/internal/config"
	"ewastePickup/internal/identity"
	"ewastePickup/internal/lifecycle"
	"ewastePickup/internal/report"
	"ewastePickup/internal/testutil"
	"ewastePickup/repository"
)

type testAPI struct {
	handler   http.Handler
	admin     string
	collector string
	collID    int64
}

func newTestAPI(t *testing.T, rps float64) *testAPI {
	t.Helper()
	d := testutil.OpenInMemoryDB(t)
	users := repository.NewUserRepository(d)
	requests := repository.NewRequestRepository(d)
	ids := identity.NewService(users, auth.NewTokens("http-test", time.Hour), identity.WithBcryptCost(bcrypt.MinCost))

	h := NewRouter(Deps{
		Identity:       ids,
		Engine:         lifecycle.NewEngine(requests, repository.NewRatingRepository(d), users),
		Aggregates:     aggregate.NewService(requests, aggregate.BasisCreated),
		Reports:        report.NewEmitter(users),
		CORSOrigins:    []string{"http://localhost:5173"},
		RateLimitRPS:   rps,
		RateLimitBurst: 3,
	})

	ctx := context.Background()
	_, err := ids.EnsureAdmin(ctx, "root@example.com", "admin-password")
	require.NoError(t, err)
	ta := &testAPI{handler: h}
	ta.admin = ta.login(t, "root@example.com", "admin-password")

	rec := ta.do(t, ta.admin, http.MethodPost, "/api/collectors", map[string]any{"email": "kofi@example.com", "password": "collector-pw"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var out struct {
		User struct {
			ID int64 `json:"id"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	ta.collID = out.User.ID
	ta.collector = ta.login(t, "kofi@example.com", "collector-pw")
	return ta
}

func (ta *testAPI) do(t *testing.T, token, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ta.handler.ServeHTTP(rec, req)
	return rec
}

func (ta *testAPI) login(t *testing.T, email, password string) string {
	t.Helper()
	rec := ta.do(t, "", http.MethodPost, "/api/auth/login", map[string]string{"email": email, "password": password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sess identity.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
	return sess.Token
}

func (ta *testAPI) requester(t *testing.T, email string) string {
	t.Helper()
	rec := ta.do(t, "", http.MethodPost, "/api/auth/register", map[string]string{"email": email, "password": "requester-pw"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return ta.login(t, email, "requester-pw")
}

type requestEnvelope struct {
	Request struct {
		ID                  int64   `json:"id"`
		Status              string  `json:"status"`
		AssignedCollectorID *int64  `json:"assigned_collector_id"`
		CompletedAt         *string `json:"completed_at"`
	} `json:"request"`
}

type listEnvelope struct {
	Requests []struct {
		ID int64 `json:"id"`
	} `json:"requests"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func payload() map[string]any {
	return map[string]any{
		"item_type":      "Laptop",
		"brand":          "HP",
		"condition":      "Broken",
		"quantity":       3,
		"pickup_address": "Stone Town",
		"pickup_date":    time.Now().UTC().AddDate(0, 0, 2).Format(time.DateOnly),
	}
}

func TestRequestLifecycle(t *testing.T) {
	ta := newTestAPI(t, 0)
	req := ta.requester(t, "amina@example.com")

	rec := ta.do(t, req, http.MethodPost, "/api/requests", payload())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[requestEnvelope](t, rec)
	assert.Equal(t, "pending", created.Request.Status)
	assert.Nil(t, created.Request.AssignedCollectorID)
	path := fmt.Sprintf("/api/requests/%d", created.Request.ID)

	rec = ta.do(t, req, http.MethodPost, path+"/assign", map[string]any{"collector_id": ta.collID})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ta.do(t, ta.admin, http.MethodPost, path+"/assign", map[string]any{"collector_id": 1})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = ta.do(t, ta.admin, http.MethodPost, path+"/assign", map[string]any{"collector_id": ta.collID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assigned := decode[requestEnvelope](t, rec)
	assert.Equal(t, "assigned", assigned.Request.Status)
	assert.Equal(t, ta.collID, *assigned.Request.AssignedCollectorID)

	rec = ta.do(t, ta.admin, http.MethodPost, path+"/assign", map[string]any{"collector_id": ta.collID})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "assigned", decode[map[string]string](t, rec)["current_status"])

	rec = ta.do(t, req, http.MethodPatch, path, map[string]any{"quantity": 9})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ta.do(t, ta.collector, http.MethodPost, path+"/status", map[string]any{"status": "completed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	done := decode[requestEnvelope](t, rec)
	assert.Equal(t, "completed", done.Request.Status)
	assert.NotNil(t, done.Request.CompletedAt)

	rec = ta.do(t, ta.collector, http.MethodPost, path+"/status", map[string]any{"status": "completed"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ta.do(t, req, http.MethodPost, path+"/rating", map[string]any{"rating": 4, "comment": "friendly"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ta.do(t, req, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"comment":"friendly"`)

	rec = ta.do(t, ta.admin, http.MethodGet, "/api/dashboard/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"total":1,"pending":0,"assigned":0,"completed":1,"cancelled":0}`, rec.Body.String())

	rec = ta.do(t, req, http.MethodGet, "/api/dashboard/stats", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCancelEditAndScoping(t *testing.T) {
	ta := newTestAPI(t, 0)
	amina := ta.requester(t, "amina@example.com")
	brian := ta.requester(t, "brian@example.com")

	first := decode[requestEnvelope](t, ta.do(t, amina, http.MethodPost, "/api/requests", payload()))
	second := decode[requestEnvelope](t, ta.do(t, amina, http.MethodPost, "/api/requests", payload()))
	path := fmt.Sprintf("/api/requests/%d", first.Request.ID)

	rec := ta.do(t, brian, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = ta.do(t, brian, http.MethodPost, path+"/cancel", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ta.do(t, amina, http.MethodPatch, path, map[string]any{"brand": "Lenovo"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"brand":"Lenovo"`)

	rec = ta.do(t, amina, http.MethodPost, path+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "cancelled", decode[requestEnvelope](t, rec).Request.Status)

	list := decode[listEnvelope](t, ta.do(t, amina, http.MethodGet, "/api/requests", nil))
	require.Len(t, list.Requests, 2)
	assert.Equal(t, second.Request.ID, list.Requests[0].ID, "newest first")

	rec = ta.do(t, brian, http.MethodGet, "/api/requests", nil)
	assert.JSONEq(t, `{"requests":[]}`, rec.Body.String())

	rec = ta.do(t, "", http.MethodGet, "/api/requests", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = ta.do(t, "garbage", http.MethodGet, "/api/requests", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMonthlyReportCSV(t *testing.T) {
	ta := newTestAPI(t, 0)
	amina := ta.requester(t, "amina@example.com")
	for i := 0; i < 2; i++ {
		rec := ta.do(t, amina, http.MethodPost, "/api/requests", payload())
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	month := time.Now().UTC().Format("2006-01")

	rec := ta.do(t, ta.admin, http.MethodGet, "/api/reports/monthly?month="+month, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), month)
	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, strings.Join(report.Header, ",")))
	assert.Contains(t, body, ",amina,Laptop,")
	assert.Contains(t, body, "total_items,6")

	rec = ta.do(t, ta.admin, http.MethodGet, "/api/reports/monthly?month=2024-13", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = ta.do(t, amina, http.MethodGet, "/api/reports/monthly?month="+month, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAccountRoutes(t *testing.T) {
	ta := newTestAPI(t, 0)
	amina := ta.requester(t, "amina@example.com")

	rec := ta.do(t, "", http.MethodPost, "/api/auth/register", map[string]string{"email": "amina@example.com", "password": "requester-pw"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = ta.do(t, "", http.MethodPost, "/api/auth/login", map[string]string{"email": "amina@example.com", "password": "nope-nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ta.do(t, amina, http.MethodPatch, "/api/profile", map[string]string{"phone": "0711"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = ta.do(t, amina, http.MethodGet, "/api/auth/me", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"phone":"0711"`)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = ta.do(t, amina, http.MethodGet, "/api/collectors", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = ta.do(t, ta.admin, http.MethodGet, "/api/collectors", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"username":"kofi"`)

	rec = ta.do(t, "", http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = ta.do(t, "", http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORS(t *testing.T) {
	ta := newTestAPI(t, 0)

	req := httptest.NewRequest(http.MethodOptions, "/api/requests", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	ta.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/requests", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	ta.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestAuthRateLimit(t *testing.T) {
	ta := newTestAPI(t, 0.001)

	var limited bool
	for i := 0; i < 10; i++ {
		rec := ta.do(t, "", http.MethodPost, "/api/auth/login", map[string]string{"email": "x@example.com", "password": "whatever1"})
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	assert.True(t, limited)
}

func TestStartHTTP_EmptyAddressDisablesServer(t *testing.T) {
	cfg, err := config.LoadWithDefaults()
	require.NoError(t, err)
	cfg.HTTP.Address = ""

	shutdown, err := StartHTTP(cfg, Deps{})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}
