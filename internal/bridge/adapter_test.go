package bridge

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"worker-bridge-go/internal/host"
)

func newApp(t *testing.T, mode Mode) *host.Runtime {
	t.Helper()
	s := startScheduler(t)
	env := host.NewEnv(map[string]string{"BRIDGE_VERSION": "1.0.0"}, nil)

	e := echo.New()
	e.GET("/", func(c echo.Context) error {
		return c.HTML(http.StatusOK, "Hello World!")
	})
	e.POST("/echo", func(c echo.Context) error {
		body, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return err
		}
		return c.String(http.StatusOK, string(body))
	})
	e.GET("/version", Local(s, func(ctx context.Context, c echo.Context) error {
		h, _ := EnvFrom(c)
		v, err := h.Env().Var(ctx, "BRIDGE_VERSION")
		if err != nil {
			return err
		}
		return c.String(http.StatusOK, v)
	}))
	e.GET("/bad-header", func(c echo.Context) error {
		c.Response().Header().Set("X-Name", "josé")
		return c.NoContent(http.StatusOK)
	})
	e.GET("/panic", func(echo.Context) error {
		panic("handler bug")
	})

	tr := NewTranslator(Options{Mode: mode})
	a := NewAdapter(e, tr, s, discardLogger())
	return host.NewRuntime(s, env, a, discardLogger())
}

func dispatch(t *testing.T, rt *host.Runtime, method, rawURL, body string) *host.Response {
	t.Helper()
	init := &host.RequestInit{Method: method}
	if body != "" {
		init.Body = strings.NewReader(body)
	}
	req, err := host.NewRequest(rawURL, init)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := rt.Dispatch(context.Background(), req)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	return resp
}

func TestAdapter_EndToEnd(t *testing.T) {
	rt := newApp(t, Fallible)

	tests := []struct {
		name     string
		method   string
		url      string
		body     string
		wantCode int
		wantBody string
	}{
		{"html", http.MethodGet, "https://logankeenan.com/", "", http.StatusOK, "Hello World!"},
		{"post body", http.MethodPost, "https://logankeenan.com/echo", "hello world!", http.StatusOK, "hello world!"},
		{"local env read", http.MethodGet, "https://logankeenan.com/version", "", http.StatusOK, "1.0.0"},
		{"not found", http.MethodGet, "https://logankeenan.com/missing", "", http.StatusNotFound, ""},
		{"response header not ASCII", http.MethodGet, "https://logankeenan.com/bad-header", "", http.StatusInternalServerError, ""},
		{"framework panic", http.MethodGet, "https://logankeenan.com/panic", "", http.StatusInternalServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := dispatch(t, rt, tt.method, tt.url, tt.body)
			if resp.StatusCode() != tt.wantCode {
				t.Errorf("status = %d, want %d", resp.StatusCode(), tt.wantCode)
			}
			if tt.wantBody != "" && string(resp.Body()) != tt.wantBody {
				t.Errorf("body = %q, want %q", resp.Body(), tt.wantBody)
			}
		})
	}
}

func TestAdapter_FallibleRequestErrorIs400(t *testing.T) {
	rt := newApp(t, Fallible)

	req, _ := host.NewRequest("https://logankeenan.com/echo", &host.RequestInit{Method: "POST", Body: strings.NewReader("x")})
	// A consumed body cannot be translated.
	if _, err := req.Bytes(context.Background()); err != nil {
		t.Fatal(err)
	}

	resp, err := rt.Dispatch(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode() != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode())
	}
}

func TestAdapter_TrustingFailureIs500(t *testing.T) {
	rt := newApp(t, Trusting)

	resp := dispatch(t, rt, http.MethodGet, "https://logankeenan.com/bad-header", "")
	if resp.StatusCode() != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode())
	}

	// Only the failing request is aborted.
	resp = dispatch(t, rt, http.MethodGet, "https://logankeenan.com/", "")
	if resp.StatusCode() != http.StatusOK {
		t.Errorf("status after failure = %d, want 200", resp.StatusCode())
	}
}

func TestAdapter_DispatchDeadlineOrphansLocalBody(t *testing.T) {
	s := startScheduler(t)
	obs := newOutcomes()
	sh := Shim{Scheduler: s, Observe: obs.observe}

	release := make(chan struct{})
	bodyCtxDone := make(chan struct{})
	e := echo.New()
	e.GET("/slow", func(c echo.Context) error {
		v, err := RunWith(c.Request().Context(), sh, func(ctx context.Context) (string, error) {
			return host.Await(ctx, func(actx context.Context) (string, error) {
				<-actx.Done()
				close(bodyCtxDone)
				<-release
				return "late", nil
			})
		})
		if err != nil {
			return err
		}
		return c.String(http.StatusOK, v)
	})

	a := NewAdapter(e, NewTranslator(Options{}), s, discardLogger())
	rt := host.NewRuntime(s, host.NewEnv(nil, nil), a, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	req, _ := host.NewRequest("https://logankeenan.com/slow", nil)
	// Either the runtime gives up first or echo answers the shim's error.
	resp, err := rt.Dispatch(ctx, req)
	switch {
	case err != nil && !errors.Is(err, context.DeadlineExceeded):
		t.Fatalf("Dispatch() error = %v, want DeadlineExceeded", err)
	case err == nil && resp.StatusCode() == http.StatusOK:
		t.Fatal("Dispatch() answered 200 before the body finished")
	}

	// The body saw the deadline but still runs to completion.
	select {
	case <-bodyCtxDone:
	case <-time.After(5 * time.Second):
		t.Fatal("body context did not carry the dispatch deadline")
	}
	close(release)
	if got := obs.next(t); got != LocalOrphaned {
		t.Errorf("outcome = %q, want %q", got, LocalOrphaned)
	}
}
