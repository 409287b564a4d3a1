package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/alloy/dispatcher/internal/config"
	"github.com/alloy/dispatcher/internal/crm"
	"github.com/alloy/dispatcher/internal/db"
	"github.com/alloy/dispatcher/internal/http/middleware"
)

func testConfig(adminKey string) config.Config {
	return config.Config{
		CORSAllowed:       "http://localhost:3000",
		AdminKey:          adminKey,
		OutboundTimeout:   time.Second,
		FanoutConcurrency: 2,
		ReplyInference:    "dispatch",
		AssignedStatus:    "contractor_assigned",
	}
}

func serve(r http.Handler, method, path string, header map[string]string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouterHealthAndRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := Router(testConfig(""), db.NewMemoryStore(), &crm.MockClient{}, zerolog.Nop())

	for _, path := range []string{"/", "/health"} {
		w := serve(r, http.MethodGet, path, nil)
		if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"service":"alloy-dispatcher"`) {
			t.Fatalf("%s: unexpected response %d %s", path, w.Code, w.Body.String())
		}
		if !strings.HasPrefix(w.Header().Get(middleware.RequestIDHeader), "req_") {
			t.Fatalf("%s: expected generated request id, got %q", path, w.Header().Get(middleware.RequestIDHeader))
		}
	}

	w := serve(r, http.MethodGet, "/health", map[string]string{middleware.RequestIDHeader: "abc-123"})
	if w.Header().Get(middleware.RequestIDHeader) != "abc-123" {
		t.Fatalf("expected caller request id to be echoed, got %q", w.Header().Get(middleware.RequestIDHeader))
	}
}

func TestRouterDebugJobsAdminKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := Router(testConfig("secret"), db.NewMemoryStore(), &crm.MockClient{}, zerolog.Nop())

	if w := serve(r, http.MethodGet, "/debug/jobs", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", w.Code)
	}
	if w := serve(r, http.MethodGet, "/debug/jobs", map[string]string{middleware.AdminKeyHeader: "wrong"}); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong key, got %d", w.Code)
	}
	w := serve(r, http.MethodGet, "/debug/jobs", map[string]string{middleware.AdminKeyHeader: "secret"})
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"count":0`) {
		t.Fatalf("expected job dump with key, got %d %s", w.Code, w.Body.String())
	}

	open := Router(testConfig(""), db.NewMemoryStore(), &crm.MockClient{}, zerolog.Nop())
	if w := serve(open, http.MethodGet, "/debug/jobs", nil); w.Code != http.StatusOK {
		t.Fatalf("expected open debug endpoint without admin key, got %d", w.Code)
	}
}

func TestRouterDispatchWithMockCRM(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := Router(testConfig(""), db.NewMemoryStore(), &crm.MockClient{}, zerolog.Nop())

	req, _ := http.NewRequest(http.MethodPost, "/dispatch", strings.NewReader(`{"calendar":{"appointmentId":"J1"}}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"reason":"no_contractors"`) {
		t.Fatalf("unexpected dispatch response: %d %s", w.Code, w.Body.String())
	}
}
