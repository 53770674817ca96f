package app

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"

	"rex/api/internal/auth"
	"rex/api/internal/gateway"
	"rex/api/internal/metrics"
	"rex/api/internal/store"
	"rex/api/internal/store/memory"
)

const testSecret = "test-secret"

var allScopes = []string{
	auth.ScopeIdeasRead,
	auth.ScopeIdeasWrite,
	auth.ScopeCollectionsRead,
	auth.ScopeCollectionsWrite,
	auth.ScopeRoleAssignmentsWrite,
	auth.ScopeUsersRead,
}

type testServer struct {
	handler http.Handler
	gw      *gateway.Gateway
	service *Service
	metrics *metrics.Metrics
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	gw := gateway.New(memory.New(), gateway.WithMetrics(m))
	t.Cleanup(func() { _ = gw.Close() })
	svc := New(gw, testSecret, nil)
	server := NewHTTPServer(svc, "*", WithMetricsHandler(m.Handler()))
	return &testServer{handler: server.Handler(), gw: gw, service: svc, metrics: m}
}

func issue(t *testing.T, claims auth.Claims) string {
	t.Helper()
	if claims.Exp == 0 {
		claims.Exp = time.Now().Add(time.Hour).Unix()
	}
	token, err := auth.IssueToken([]byte(testSecret), claims)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	return token
}

// tokenFor returns a User token for principal carrying every scope.
func tokenFor(t *testing.T, principal store.ID) string {
	t.Helper()
	return issue(t, auth.Claims{
		Sub:    principal.String(),
		Name:   "Test User",
		Email:  "test-" + principal.String() + "@example.com",
		Roles:  []string{auth.RoleUser},
		Scopes: allScopes,
	})
}

func (ts *testServer) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, status int) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected status %d, got %d body=%s", status, rr.Code, rr.Body.String())
	}
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var payload T
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v body=%s", err, rr.Body.String())
	}
	return payload
}
