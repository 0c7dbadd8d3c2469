package tool

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"jarvis/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// stubDescriptor is a minimal capability for testing the registry.
func stubDescriptor(name string, scopes ...string) domain.Descriptor {
	return domain.Descriptor{
		Name:        name,
		Description: "stub: " + name,
		Scopes:      scopes,
		Args: []domain.ArgSpec{
			{Name: "value", Kind: domain.KindInteger, Required: true, Constraint: Range{Min: 0, Max: 100}},
		},
		Handler: func(ctx context.Context, args domain.Args) (domain.Payload, error) {
			return domain.Payload{Message: "ok"}, nil
		},
	}
}

func TestRegistry_RegisterAndResolve(t *testing.T) {
	reg := NewRegistry(testLogger())
	if err := reg.Register(stubDescriptor("set_volume")); err != nil {
		t.Fatalf("register: %v", err)
	}

	got, err := reg.Resolve("set_volume")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.Name != "set_volume" {
		t.Fatalf("expected 'set_volume', got %q", got.Name)
	}
}

func TestRegistry_ResolveIgnoresCase(t *testing.T) {
	reg := NewRegistry(testLogger())
	if err := reg.Register(stubDescriptor("Set_Volume")); err != nil {
		t.Fatalf("register: %v", err)
	}

	first, err := reg.Resolve("set_volume")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	for _, name := range []string{"SET_VOLUME", "Set_Volume", "  set_volume ", "sEt_VoLuMe"} {
		got, err := reg.Resolve(name)
		if err != nil {
			t.Fatalf("resolve %q: %v", name, err)
		}
		if got != first {
			t.Fatalf("resolve %q returned a different descriptor instance", name)
		}
	}
}

func TestRegistry_ResolveUnknown(t *testing.T) {
	reg := NewRegistry(testLogger())
	_, err := reg.Resolve("nonexistent")
	if !errors.Is(err, ErrUnknownCapability) {
		t.Fatalf("expected ErrUnknownCapability, got %v", err)
	}
}

func TestRegistry_NoFuzzyMatching(t *testing.T) {
	reg := NewRegistry(testLogger())
	_ = reg.Register(stubDescriptor("set_volume"))
	for _, name := range []string{"set volume", "setvolume", "set_volum", "volume"} {
		if _, err := reg.Resolve(name); !errors.Is(err, ErrUnknownCapability) {
			t.Fatalf("resolve %q: expected ErrUnknownCapability, got %v", name, err)
		}
	}
}

func TestRegistry_DuplicateRegistration(t *testing.T) {
	reg := NewRegistry(testLogger())
	if err := reg.Register(stubDescriptor("dup")); err != nil {
		t.Fatalf("first register: %v", err)
	}
	err := reg.Register(stubDescriptor("DUP"))
	if !errors.Is(err, ErrDuplicateCapability) {
		t.Fatalf("expected ErrDuplicateCapability, got %v", err)
	}
}

func TestRegistry_InvalidDescriptor(t *testing.T) {
	reg := NewRegistry(testLogger())

	noName := stubDescriptor("  ")
	if err := reg.Register(noName); !errors.Is(err, ErrInvalidDescriptor) {
		t.Fatalf("empty name: expected ErrInvalidDescriptor, got %v", err)
	}

	noHandler := stubDescriptor("no_handler")
	noHandler.Handler = nil
	if err := reg.Register(noHandler); !errors.Is(err, ErrInvalidDescriptor) {
		t.Fatalf("nil handler: expected ErrInvalidDescriptor, got %v", err)
	}

	repeated := stubDescriptor("repeated")
	repeated.Args = append(repeated.Args, domain.ArgSpec{Name: "value", Kind: domain.KindString})
	if err := reg.Register(repeated); !errors.Is(err, ErrInvalidDescriptor) {
		t.Fatalf("repeated arg: expected ErrInvalidDescriptor, got %v", err)
	}
}

func TestRegistry_Names(t *testing.T) {
	reg := NewRegistry(testLogger())
	_ = reg.Register(stubDescriptor("beta"))
	_ = reg.Register(stubDescriptor("alpha"))

	names := reg.Names()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "beta" {
		t.Fatalf("expected sorted [alpha beta], got %v", names)
	}
}

func TestRegistry_Definitions(t *testing.T) {
	reg := NewRegistry(testLogger())
	_ = reg.Register(stubDescriptor("tool2"))
	_ = reg.Register(stubDescriptor("tool1"))

	defs := reg.Definitions()
	if len(defs) != 2 {
		t.Fatalf("expected 2 definitions, got %d", len(defs))
	}
	if defs[0].Name != "tool1" {
		t.Fatalf("expected definitions sorted by name, got %q first", defs[0].Name)
	}
	props := defs[0].Parameters["properties"].(map[string]any)
	value := props["value"].(map[string]any)
	if value["type"] != "integer" || value["maximum"] != 100.0 {
		t.Fatalf("unexpected value schema: %v", value)
	}
}

func TestRegistry_ScopesUnion(t *testing.T) {
	reg := NewRegistry(testLogger())
	_ = reg.Register(stubDescriptor("read", "gmail.readonly"))
	_ = reg.Register(stubDescriptor("send", "gmail.send", "gmail.readonly"))
	_ = reg.Register(stubDescriptor("local"))

	scopes := reg.Scopes()
	if len(scopes) != 2 || scopes[0] != "gmail.readonly" || scopes[1] != "gmail.send" {
		t.Fatalf("unexpected scopes: %v", scopes)
	}
}
