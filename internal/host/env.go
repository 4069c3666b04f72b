package host

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/joho/godotenv"
)

// ErrVarNotFound is returned when an env binding does not exist.
var ErrVarNotFound = errors.New("binding not found")

// Env holds the bindings a deployment exposes to its handlers: plain vars and
// secrets. Reads are only legal from scheduler tasks.
type Env struct {
	vars    map[string]string
	secrets map[string]string
}

// NewEnv builds an Env from copies of vars and secrets.
func NewEnv(vars, secrets map[string]string) *Env {
	e := &Env{vars: map[string]string{}, secrets: map[string]string{}}
	maps.Copy(e.vars, vars)
	maps.Copy(e.secrets, secrets)
	return e
}

// LoadEnv builds an Env from vars and, when secretsFile is set, the secrets
// in that dotenv file.
func LoadEnv(vars map[string]string, secretsFile string) (*Env, error) {
	var secrets map[string]string
	if secretsFile != "" {
		m, err := godotenv.Read(secretsFile)
		if err != nil {
			return nil, fmt.Errorf("read secrets %s: %w", secretsFile, err)
		}
		secrets = m
	}
	return NewEnv(vars, secrets), nil
}

// Var returns the plain var called name.
func (e *Env) Var(ctx context.Context, name string) (string, error) {
	return e.lookup(ctx, e.vars, "var", name)
}

// Secret returns the secret called name.
func (e *Env) Secret(ctx context.Context, name string) (string, error) {
	return e.lookup(ctx, e.secrets, "secret", name)
}

// Names returns the number of vars and secrets bound.
func (e *Env) Names() (vars, secrets int) {
	return len(e.vars), len(e.secrets)
}

func (e *Env) lookup(ctx context.Context, m map[string]string, kind, name string) (string, error) {
	if !OnLoop(ctx) {
		return "", fmt.Errorf("%s %q: %w", kind, name, ErrOffLoop)
	}
	v, ok := m[name]
	if !ok {
		return "", fmt.Errorf("%s %q: %w", kind, name, ErrVarNotFound)
	}
	return v, nil
}
