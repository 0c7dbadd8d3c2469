// Package macro loads macro definitions and runs them as ordered sequences of
// dispatches.
package macro

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"jarvis/internal/domain"
)

var (
	ErrUnknownMacro = errors.New("unknown macro")
	ErrInvalidMacro = errors.New("invalid macro definition")
)

// Book is the read-only set of macros known to the sequencer.
type Book struct {
	macros map[string]domain.Macro
}

func NewBook() *Book {
	return &Book{macros: make(map[string]domain.Macro)}
}

// NormalizeName is the lookup key for a macro name.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Add validates m and adds it to the book.
func (b *Book) Add(m domain.Macro) error {
	key := NormalizeName(m.Name)
	if key == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidMacro)
	}
	if _, exists := b.macros[key]; exists {
		return fmt.Errorf("%w: %s is defined twice", ErrInvalidMacro, key)
	}
	if len(m.Steps) == 0 {
		return fmt.Errorf("%w: %s has no steps", ErrInvalidMacro, key)
	}
	switch m.OnError {
	case "":
		m.OnError = domain.PolicyAbort
	case domain.PolicyAbort, domain.PolicyContinue:
	default:
		return fmt.Errorf("%w: %s has on_error %q, want abort or continue", ErrInvalidMacro, key, m.OnError)
	}
	for i, step := range m.Steps {
		if strings.TrimSpace(step.Capability) == "" {
			return fmt.Errorf("%w: %s step %d names no capability", ErrInvalidMacro, key, i+1)
		}
	}
	m.Name = key
	b.macros[key] = m
	return nil
}

// Get returns the macro called name, ignoring case.
func (b *Book) Get(name string) (domain.Macro, error) {
	m, ok := b.macros[NormalizeName(name)]
	if !ok {
		return domain.Macro{}, fmt.Errorf("%w: %s", ErrUnknownMacro, strings.TrimSpace(name))
	}
	return m, nil
}

// List returns every macro sorted by name.
func (b *Book) List() []domain.Macro {
	out := make([]domain.Macro, 0, len(b.macros))
	for _, m := range b.macros {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (b *Book) Len() int { return len(b.macros) }

// macroFile is the on-disk layout: either a list under "macros" or a single
// macro at the top level.
type macroFile struct {
	Macros       []domain.Macro `yaml:"macros"`
	domain.Macro `yaml:",inline"`
}

// Parse decodes one YAML (or JSON) document. fallbackName names a single
// top-level macro that has no name of its own.
func Parse(data []byte, fallbackName string) ([]domain.Macro, error) {
	var f macroFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMacro, err)
	}
	if len(f.Macros) > 0 {
		return f.Macros, nil
	}
	if len(f.Steps) == 0 && f.Name == "" {
		return nil, nil
	}
	m := f.Macro
	if m.Name == "" {
		m.Name = fallbackName
	}
	return []domain.Macro{m}, nil
}

// LoadFile adds the macros defined in path to the book.
func (b *Book) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read macro file: %w", err)
	}
	base := filepath.Base(path)
	macros, err := Parse(data, strings.TrimSuffix(base, filepath.Ext(base)))
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	for _, m := range macros {
		if err := b.Add(m); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	return nil
}

// LoadDirectory adds every .yaml, .yml and .json file in dir. A missing
// directory is not an error.
func (b *Book) LoadDirectory(dir string, logger *slog.Logger) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		logger.Debug("macros directory does not exist, skipping", "dir", dir)
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read macros dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".yaml", ".yml", ".json":
		default:
			continue
		}
		path := filepath.Join(dir, entry.Name())
		before := b.Len()
		if err := b.LoadFile(path); err != nil {
			return err
		}
		logger.Info("loaded macros", "path", path, "count", b.Len()-before)
	}
	return nil
}
