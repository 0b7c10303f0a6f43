package profile

import (
	"context"
	"errors"
	"testing"
)

func TestFromContext(t *testing.T) {
	if _, err := FromContext(context.Background()); !errors.Is(err, ErrNoProvider) {
		t.Errorf("err = %v, want ErrNoProvider", err)
	}

	m := NewManager(Deps{Store: newMemStore()})
	ctx := WithManager(context.Background(), m)
	got, err := FromContext(ctx)
	if err != nil || got != m {
		t.Errorf("FromContext = %p, %v; want %p", got, err, m)
	}
}

func TestFromContext_SharedState(t *testing.T) {
	m := NewManager(Deps{Store: newMemStore()})
	ctx := WithManager(context.Background(), m)

	MustFromContext(ctx).Update(FieldPersona, "educator")
	if MustFromContext(ctx).Persona() != PersonaEducator {
		t.Error("readers in the same scope should see the update")
	}
}

func TestMustFromContext_PanicsOutsideScope(t *testing.T) {
	defer func() {
		r := recover()
		if r != "profile: must be used within a provider scope" {
			t.Errorf("recover() = %v", r)
		}
	}()
	MustFromContext(context.Background())
	t.Fatal("expected panic")
}
