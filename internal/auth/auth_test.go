package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"feedbackhub/internal/apperr"
	"feedbackhub/internal/cache"
	"feedbackhub/internal/config"
	"feedbackhub/internal/models"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		AdminUsername:   "admin",
		AdminPassword:   "secret",
		AdminOperatorID: "op-a",
	}
}

func TestAuthenticate(t *testing.T) {
	tests := []struct {
		name     string
		cfg      *config.Config
		username string
		password string
		wantErr  bool
	}{
		{name: "valid credentials", cfg: testConfig(), username: "admin", password: "secret"},
		{name: "wrong password", cfg: testConfig(), username: "admin", password: "nope", wantErr: true},
		{name: "wrong username", cfg: testConfig(), username: "root", password: "secret", wantErr: true},
		{name: "login not configured", cfg: &config.Config{}, username: "", password: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			am := NewManager(tt.cfg)
			token, err := am.Authenticate(tt.username, tt.password)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Empty(t, token)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, token)

			operatorID, ok := am.Operator(token)
			assert.True(t, ok)
			assert.Equal(t, "op-a", operatorID)
		})
	}
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestManager_Expiry(t *testing.T) {
	am := NewManager(testConfig())
	clock := &fakeClock{t: time.Now()}
	am.now = clock.Now

	token, err := am.Authenticate("admin", "secret")
	require.NoError(t, err)
	assert.True(t, am.ValidateToken(token))

	clock.Advance(25 * time.Hour)
	assert.False(t, am.ValidateToken(token))

	am.mu.RLock()
	_, exists := am.tokens[token]
	am.mu.RUnlock()
	assert.False(t, exists, "expired token is removed on lookup")
}

func TestManager_Revoke(t *testing.T) {
	am := NewManager(testConfig())
	token, err := am.Authenticate("admin", "secret")
	require.NoError(t, err)

	am.Revoke(token)
	assert.False(t, am.ValidateToken(token))
}

func TestMiddleware(t *testing.T) {
	am := NewManager(testConfig())
	token, err := am.Authenticate("admin", "secret")
	require.NoError(t, err)

	tests := []struct {
		name       string
		header     string
		query      string
		wantStatus int
	}{
		{name: "bearer header", header: "Bearer " + token, wantStatus: http.StatusOK},
		{name: "raw header", header: token, wantStatus: http.StatusOK},
		{name: "query token", query: "?token=" + token, wantStatus: http.StatusOK},
		{name: "missing token", wantStatus: http.StatusUnauthorized},
		{name: "bad token", header: "Bearer nope", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/api/admin/threads"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			handler := Middleware(am)(func(c echo.Context) error {
				caller, err := Caller(c)
				require.NoError(t, err)
				assert.True(t, caller.IsOperator())
				assert.Equal(t, "op-a", caller.OperatorID())
				return c.NoContent(http.StatusOK)
			})

			require.NoError(t, handler(c))
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusUnauthorized {
				assert.Contains(t, rec.Body.String(), `"code":"unauthorized"`)
			}
		})
	}
}

type countingLookup struct {
	projects map[string]models.Project
	calls    int
	err      error
}

func (l *countingLookup) GetByAPIKey(_ context.Context, apiKey string) (models.Project, error) {
	l.calls++
	if l.err != nil {
		return models.Project{}, l.err
	}
	p, ok := l.projects[apiKey]
	if !ok {
		return models.Project{}, apperr.New(apperr.KindNotFound, "project not found")
	}
	return p, nil
}

func TestProjectResolver(t *testing.T) {
	acme := models.Project{ID: "pA", APIKey: "key-a", SubscriptionActive: true}
	lookup := &countingLookup{projects: map[string]models.Project{"key-a": acme}}
	resolver := NewProjectResolver(lookup, cache.New(time.Minute), time.Minute)
	ctx := context.Background()

	p, err := resolver.Resolve(ctx, "key-a")
	require.NoError(t, err)
	assert.Equal(t, acme, p)

	p, err = resolver.Resolve(ctx, " key-a ")
	require.NoError(t, err)
	assert.Equal(t, acme, p)
	assert.Equal(t, 1, lookup.calls, "second resolve is served from cache")

	_, err = resolver.Resolve(ctx, "unknown")
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))

	_, err = resolver.Resolve(ctx, "")
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
}

func TestProjectResolver_TransientError(t *testing.T) {
	lookup := &countingLookup{err: apperr.New(apperr.KindTransientIO, "db down")}
	resolver := NewProjectResolver(lookup, nil, 0)

	_, err := resolver.Resolve(context.Background(), "key-a")
	assert.True(t, apperr.IsRetryable(err))
}

func TestAPIKeyMiddleware(t *testing.T) {
	acme := models.Project{ID: "pA", APIKey: "key-a", SubscriptionActive: true}
	tests := []struct {
		name       string
		lookup     *countingLookup
		header     string
		query      string
		wantStatus int
	}{
		{name: "header key", lookup: &countingLookup{projects: map[string]models.Project{"key-a": acme}}, header: "key-a", wantStatus: http.StatusOK},
		{name: "query key", lookup: &countingLookup{projects: map[string]models.Project{"key-a": acme}}, query: "?api_key=key-a", wantStatus: http.StatusOK},
		{name: "unknown key", lookup: &countingLookup{projects: map[string]models.Project{}}, header: "nope", wantStatus: http.StatusUnauthorized},
		{name: "missing key", lookup: &countingLookup{}, wantStatus: http.StatusUnauthorized},
		{name: "store down", lookup: &countingLookup{err: apperr.New(apperr.KindTransientIO, "db down")}, header: "key-a", wantStatus: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/api/widget/threads"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set(APIKeyHeader, tt.header)
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			mw := APIKeyMiddleware(NewProjectResolver(tt.lookup, nil, 0), zerolog.Nop())
			handler := mw(func(c echo.Context) error {
				caller, err := Caller(c)
				require.NoError(t, err)
				p, ok := caller.Project()
				assert.True(t, ok)
				assert.Equal(t, "pA", p.ID)
				return c.NoContent(http.StatusOK)
			})

			require.NoError(t, handler(c))
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestCaller_NoneAttached(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	_, err := Caller(c)
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
}
