package tool

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"jarvis/internal/domain"
)

var (
	// ErrUnknownCapability is returned by Resolve when no capability has the name.
	ErrUnknownCapability = errors.New("unknown capability")
	// ErrDuplicateCapability is returned by Register for a name already taken.
	ErrDuplicateCapability = errors.New("duplicate capability")
	// ErrInvalidDescriptor is returned by Register for a malformed descriptor.
	ErrInvalidDescriptor = errors.New("invalid capability descriptor")
)

// Registry holds the capability catalog. It is filled once at start-up and
// only read afterwards.
type Registry struct {
	mu     sync.RWMutex
	caps   map[string]*domain.Descriptor
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		caps:   make(map[string]*domain.Descriptor),
		logger: logger,
	}
}

// NormalizeName is the registry's lookup key for a capability name.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register adds a descriptor to the catalog.
func (r *Registry) Register(d domain.Descriptor) error {
	key := NormalizeName(d.Name)
	if key == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidDescriptor)
	}
	if d.Handler == nil {
		return fmt.Errorf("%w: %s has no handler", ErrInvalidDescriptor, key)
	}
	seen := make(map[string]bool, len(d.Args))
	for _, a := range d.Args {
		if a.Name == "" || seen[a.Name] {
			return fmt.Errorf("%w: %s has an empty or repeated argument name %q", ErrInvalidDescriptor, key, a.Name)
		}
		seen[a.Name] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.caps[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateCapability, key)
	}
	d.Name = key
	r.caps[key] = &d
	r.logger.Debug("registered capability", "name", key, "args", len(d.Args))
	return nil
}

// RegisterAll registers every descriptor, stopping at the first failure.
func (r *Registry) RegisterAll(ds []domain.Descriptor) error {
	for _, d := range ds {
		if err := r.Register(d); err != nil {
			return err
		}
	}
	return nil
}

// Resolve finds a capability by name, ignoring case.
func (r *Registry) Resolve(name string) (*domain.Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.caps[NormalizeName(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCapability, name)
	}
	return d, nil
}

// Definitions returns the catalog in OpenAI-compatible tool format for the
// upstream language model, sorted by name.
func (r *Registry) Definitions() []domain.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]domain.ToolDefinition, 0, len(r.caps))
	for _, d := range r.caps {
		defs = append(defs, domain.ToolDefinition{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  ToolParameters(d.Args),
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.caps))
	for n := range r.caps {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Scopes returns the union of the scopes declared by every registered capability.
func (r *Registry) Scopes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := make(map[string]struct{})
	for _, d := range r.caps {
		for _, s := range d.Scopes {
			set[s] = struct{}{}
		}
	}
	scopes := make([]string, 0, len(set))
	for s := range set {
		scopes = append(scopes, s)
	}
	sort.Strings(scopes)
	return scopes
}

// ArgNames lists a capability's argument names in declared order, or nil if
// the capability is unknown.
func (r *Registry) ArgNames(name string) []string {
	d, err := r.Resolve(name)
	if err != nil {
		return nil
	}
	names := make([]string, len(d.Args))
	for i, a := range d.Args {
		names[i] = a.Name
	}
	return names
}
