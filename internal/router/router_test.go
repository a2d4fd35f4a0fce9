package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carvalue-api/internal/comparables"
	"carvalue-api/internal/handler"
	"carvalue-api/internal/intake"
	"carvalue-api/internal/middleware"
	"carvalue-api/internal/quota"
	"carvalue-api/internal/repository"
	"carvalue-api/internal/service"
	"carvalue-api/internal/valuation"
)

// newTestServer wires the full stack over an in-memory SQLite store.
func newTestServer(t *testing.T, keys ...string) *httptest.Server {
	t.Helper()
	ctx := context.Background()

	repo, err := repository.NewSQLiteListingRepository(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	intakes := intake.NewMemoryStore()
	machine := intake.NewMachine(
		intakes,
		repo,
		comparables.NewStoreSelector(repo, comparables.DefaultTolerance),
		valuation.New(valuation.DefaultConfig()),
		quota.NewTracker(quota.NewMemoryStore()),
		quota.NewPlans(nil, nil, nil),
		intake.Config{},
		nil,
	)
	cleaner := service.NewCleanupScheduler(machine, repo, service.CleanupConfig{}, nil)

	mux := New(Config{
		Handler:        handler.New("carvalue-api", "test", handler.ReadinessCheck{Name: "listings", Check: repo.Ping}),
		IntakeHandler:  handler.NewIntakeHandler(machine),
		AdminHandler:   handler.NewAdminHandler(repo, cleaner, nil, "sqlite", "none"),
		AuthMiddleware: middleware.NewAuthMiddleware(middleware.AuthConfig{APIKeys: keys, PublicPaths: middleware.DefaultPublicPaths}),
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func request(t *testing.T, method, url, body, key string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestRoutes(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		method, path, body string
		want               int
	}{
		{http.MethodGet, "/api/status", "", http.StatusOK},
		{http.MethodGet, "/api/v1/health", "", http.StatusOK},
		{http.MethodGet, "/api/v1/ready", "", http.StatusOK},
		{http.MethodPost, "/api/v1/messages", `{"identity":"1","text":"/start"}`, http.StatusOK},
		{http.MethodGet, "/api/v1/quota/1", "", http.StatusOK},
		{http.MethodPost, "/api/v1/valuations", `{"identity":"1","url":"https://example.com/fiat-egea-2020-1234567","price":400000,"mileage":90000,"condition":"original"}`, http.StatusUnprocessableEntity},
		{http.MethodGet, "/api/v1/admin/stats", "", http.StatusOK},
		{http.MethodPost, "/api/v1/admin/cleanup", "", http.StatusOK},
		{http.MethodDelete, "/api/v1/admin/cache", "", http.StatusNotFound},
		{http.MethodGet, "/api/v1/nope", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			resp := request(t, tt.method, srv.URL+tt.path, tt.body, "")
			assert.Equal(t, tt.want, resp.StatusCode)
			assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
		})
	}
}

func TestRoutes_AuthRequired(t *testing.T) {
	srv := newTestServer(t, "k1")

	resp := request(t, http.MethodGet, srv.URL+"/api/v1/quota/1", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = request(t, http.MethodGet, srv.URL+"/api/v1/quota/1", "", "k1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = request(t, http.MethodGet, srv.URL+"/api/v1/health", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
