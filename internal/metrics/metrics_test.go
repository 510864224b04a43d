package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func newRouter(m *Metrics) http.Handler {
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/jokes/{id}", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "id") == "missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("{}"))
	})
	r.Handle("/metrics", m.Handler())
	return r
}

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("GET /metrics status = %d, want 200", rr.Code)
	}
	body, _ := io.ReadAll(rr.Body)
	return string(body)
}

func TestMiddleware_LabelsByRoutePattern(t *testing.T) {
	m := New()
	h := newRouter(m)

	for _, path := range []string{"/jokes/a", "/jokes/b", "/jokes/missing"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	body := scrape(t, h)
	for _, want := range []string{
		`jokes_api_http_requests_total{code="200",method="GET",route="/jokes/{id}"} 2`,
		`jokes_api_http_requests_total{code="404",method="GET",route="/jokes/{id}"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
	if strings.Contains(body, `route="/jokes/a"`) {
		t.Error("raw path used as a label")
	}
}

func TestMiddleware_UnmatchedRoute(t *testing.T) {
	m := New()
	h := newRouter(m)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	want := `jokes_api_http_requests_total{code="404",method="GET",route="unmatched"} 1`
	if body := scrape(t, h); !strings.Contains(body, want) {
		t.Errorf("exposition missing %q", want)
	}
}

func TestHandler_ExposesCollectors(t *testing.T) {
	m := New()
	h := newRouter(m)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/jokes/x", nil))

	body := scrape(t, h)
	for _, want := range []string{
		"jokes_api_http_request_duration_seconds_bucket",
		"jokes_api_http_requests_in_flight",
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}
