package credentials

import (
	"context"
	"os"
	"strings"
)

// EnvStabilityAPIKey names the variable holding the upstream bearer token.
const EnvStabilityAPIKey = "STABILITY_API_KEY"

// LookupFunc mirrors os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Store resolves API credentials from the process environment. Values are
// read on every call, so rotating the variable takes effect without a restart.
type Store struct {
	lookup LookupFunc
}

// NewStore returns a Store backed by lookup, or by os.LookupEnv when nil.
func NewStore(lookup LookupFunc) *Store {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &Store{lookup: lookup}
}

func (s *Store) StabilityAPIKey(ctx context.Context) (string, error) {
	return s.Token(ctx, EnvStabilityAPIKey)
}

// Token returns the trimmed value of name, or "" when it is unset.
func (s *Store) Token(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	v, ok := s.lookup(name)
	if !ok {
		return "", nil
	}
	return strings.TrimSpace(v), nil
}
