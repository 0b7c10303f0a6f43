package profile

import (
	"context"
	"errors"
)

// ErrNoProvider is returned when no Manager was injected into the context.
var ErrNoProvider = errors.New("profile: no preference manager in scope")

type ctxKey struct{}

// WithManager returns a context carrying m. Everything reading preferences
// below this point sees the same Manager.
func WithManager(ctx context.Context, m *Manager) context.Context {
	return context.WithValue(ctx, ctxKey{}, m)
}

// FromContext returns the injected Manager or ErrNoProvider.
func FromContext(ctx context.Context) (*Manager, error) {
	m, ok := ctx.Value(ctxKey{}).(*Manager)
	if !ok || m == nil {
		return nil, ErrNoProvider
	}
	return m, nil
}

// MustFromContext is FromContext for code that only runs inside a provider
// scope. It panics otherwise.
func MustFromContext(ctx context.Context) *Manager {
	m, err := FromContext(ctx)
	if err != nil {
		panic("profile: must be used within a provider scope")
	}
	return m
}
