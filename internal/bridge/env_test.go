package bridge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"worker-bridge-go/internal/host"
)

func TestEnvHandle_RoundTrip(t *testing.T) {
	env := host.NewEnv(nil, nil)
	ctx := WithEnv(context.Background(), NewEnvHandle(env))

	h, ok := EnvFromContext(ctx)
	if !ok {
		t.Fatal("EnvFromContext() ok = false")
	}
	if h.Env() != env {
		t.Error("handle does not wrap the same env")
	}
}

func TestEnvHandle_Missing(t *testing.T) {
	if _, ok := EnvFromContext(context.Background()); ok {
		t.Error("EnvFromContext(Background) ok = true")
	}
	if _, ok := EnvFromContext(WithEnv(context.Background(), NewEnvHandle(nil))); ok {
		t.Error("a handle around a nil env should not count")
	}
}

func TestEnvFrom_EchoContext(t *testing.T) {
	env := host.NewEnv(nil, nil)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req = req.WithContext(WithEnv(req.Context(), NewEnvHandle(env)))
	c := e.NewContext(req, httptest.NewRecorder())

	h, ok := EnvFrom(c)
	if !ok || h.Env() != env {
		t.Errorf("EnvFrom() = %v, %v", h, ok)
	}
}
