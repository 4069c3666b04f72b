package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"worker-bridge-go/internal/bridge"
)

func TestRegisterRoutes_Wiring(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<p>ok</p>`))
	}))
	defer origin.Close()

	f := newFixture(t, origin.URL)

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"GET /healthz", http.MethodGet, "/healthz", http.StatusOK},
		{"GET /status", http.MethodGet, "/status", http.StatusOK},
		{"GET /metrics", http.MethodGet, "/metrics", http.StatusOK},
		{"GET /", http.MethodGet, "/", http.StatusOK},
		{"GET /blog/post", http.MethodGet, "/blog/post?x=1", http.StatusOK},
		{"DELETE /blog/post", http.MethodDelete, "/blog/post", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.serve(httptest.NewRequest(tt.method, tt.path, http.NoBody))
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestRegisterRoutes_MetricsExposition(t *testing.T) {
	f := newFixture(t, "https://logankeenan.com")

	rec := f.serve(httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), "worker_bridge_scheduler_queue_depth") {
		t.Error("metrics output missing worker_bridge_scheduler_queue_depth")
	}
}

func TestRegisterRoutes_MetricsDisabled(t *testing.T) {
	cfg := testConfig("https://logankeenan.com")
	cfg.Metrics.Enabled = false

	e := echo.New()
	sched := startScheduler(t)
	RegisterRoutes(e, cfg, bridge.Shim{Scheduler: sched}, &OriginHandler{logger: discardLogger()}, NewHealthHandler(cfg, "test"), nil)

	for _, r := range e.Routes() {
		if r.Path == "/metrics" {
			t.Fatal("metrics route registered while disabled")
		}
	}
}
