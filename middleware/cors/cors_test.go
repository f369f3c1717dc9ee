package cors

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMiddleware_AllowAll(t *testing.T) {
	calls := 0
	h := Middleware(Options{AllowOrigins: []string{"*"}})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))

	r := httptest.NewRequest(http.MethodGet, "http://example/get", nil)
	r.Header.Set("Origin", "https://app.example")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected wildcard origin, got %q", got)
	}
	if calls != 1 {
		t.Fatalf("expected next to run")
	}
}

func TestMiddleware_PreflightShortCircuits(t *testing.T) {
	calls := 0
	h := Middleware(Options{AllowOrigins: []string{"https://app.example"}, AllowCredentials: true})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))

	r := httptest.NewRequest(http.MethodOptions, "http://example/create", nil)
	r.Header.Set("Origin", "https://app.example")
	r.Header.Set("Access-Control-Request-Method", "POST")
	r.Header.Set("Access-Control-Request-Headers", "X-API-Key, Content-Type")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Fatalf("expected echoed origin, got %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Headers"); got != "X-API-Key, Content-Type" {
		t.Fatalf("unexpected allow headers %q", got)
	}
	if calls != 0 {
		t.Fatalf("preflight must not reach the handler")
	}
}

func TestMiddleware_UnknownOriginGetsNoHeaders(t *testing.T) {
	h := Middleware(Options{AllowOrigins: Origins([]string{" https://app.example/ "})})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	r := httptest.NewRequest(http.MethodGet, "http://example/get", nil)
	r.Header.Set("Origin", "https://evil.example")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no CORS headers, got %q", got)
	}
}
