package bridge

import (
	"context"

	"github.com/labstack/echo/v4"

	"worker-bridge-go/internal/host"
)

// EnvHandle lets framework state hold the host env.
//
// *host.Env is bound to the host scheduler, while echo state is shared
// across goroutines. The handle only moves the pointer across that boundary.
// Reads still have to happen from a scheduler task (see Local), and
// host.Env refuses any other caller with host.ErrOffLoop. The env is never
// mutated after construction.
type EnvHandle struct {
	env *host.Env
}

// NewEnvHandle wraps env.
func NewEnvHandle(env *host.Env) EnvHandle {
	return EnvHandle{env: env}
}

// Env returns the wrapped env.
func (h EnvHandle) Env() *host.Env {
	return h.env
}

type envKey struct{}

// WithEnv returns a copy of ctx carrying h.
func WithEnv(ctx context.Context, h EnvHandle) context.Context {
	return context.WithValue(ctx, envKey{}, h)
}

// EnvFromContext returns the handle stored by WithEnv.
func EnvFromContext(ctx context.Context) (EnvHandle, bool) {
	h, ok := ctx.Value(envKey{}).(EnvHandle)
	return h, ok && h.env != nil
}

// EnvFrom returns the handle attached to the request behind c.
func EnvFrom(c echo.Context) (EnvHandle, bool) {
	return EnvFromContext(c.Request().Context())
}
