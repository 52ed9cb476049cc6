package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode"
)

var (
	// ErrNotFound is returned when the named secret does not exist.
	ErrNotFound = errors.New("secret not found")
	// ErrUnavailable is returned when the secret store cannot be reached or refuses the request.
	ErrUnavailable = errors.New("secret store unavailable")
)

// Provider resolves secrets by name.
type Provider interface {
	Get(ctx context.Context, name string) (string, error)
}

// EnvProvider reads secrets from environment variables. A secret named "BlobConnectionString" is
// read from BLOB_CONNECTION_STRING.
type EnvProvider struct {
	Lookup func(key string) (string, bool)
}

// NewEnvProvider returns an EnvProvider backed by os.LookupEnv.
func NewEnvProvider() *EnvProvider {
	return &EnvProvider{Lookup: os.LookupEnv}
}

// Get returns the value of EnvName(name).
func (p *EnvProvider) Get(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	lookup := p.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	key := EnvName(name)
	v, ok := lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("env %s: %w", key, ErrNotFound)
	}
	return v, nil
}

// EnvName converts a CamelCase secret name to an upper snake case variable name, keeping
// acronyms together ("DIKey" becomes "DI_KEY").
func EnvName(name string) string {
	runes := []rune(strings.TrimSpace(name))
	var b strings.Builder
	for i, r := range runes {
		if r == '-' || r == '.' || r == ' ' {
			b.WriteRune('_')
			continue
		}
		if i > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteRune('_')
			}
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// Resolve fetches every named secret, failing on the first missing or unreachable one.
func Resolve(ctx context.Context, p Provider, names ...string) (map[string]string, error) {
	out := make(map[string]string, len(names))
	for _, name := range names {
		v, err := p.Get(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("resolve secret %s: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

var _ Provider = (*EnvProvider)(nil)
