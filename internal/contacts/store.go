// Package contacts keeps the contact directory used by the messaging
// capabilities: a lower-cased display name mapped to a phone address.
package contacts

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"

	"jarvis/internal/fileutil"
)

var (
	ErrUnknownContact   = errors.New("unknown contact")
	ErrInvalidAddress   = errors.New("invalid address")
	ErrDuplicateContact = errors.New("duplicate contact")
	ErrInvalidName      = errors.New("invalid contact name")
	ErrStoreIO          = errors.New("contact store I/O")
)

// AddressPattern is the accepted international phone format: a leading '+'
// followed only by digits.
var AddressPattern = regexp.MustCompile(`^\+[0-9]+$`)

// Store is a JSON-file backed contact directory. Every mutation rewrites the
// whole document before returning.
type Store struct {
	mu      sync.RWMutex
	path    string
	entries map[string]string
	logger  *slog.Logger

	write func(path string, v any, perm os.FileMode) error
}

// Open reads the directory at path. A missing file is an empty directory.
func Open(path string, logger *slog.Logger) (*Store, error) {
	s := &Store{
		path:    path,
		entries: make(map[string]string),
		logger:  logger,
		write:   fileutil.WriteJSONAtomic,
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrStoreIO, path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return s, nil
	}

	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrStoreIO, path, err)
	}
	// Hand edits must keep names unique after normalization and addresses valid.
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)
	source := make(map[string]string, len(raw))
	for _, name := range names {
		key := NormalizeName(name)
		if key == "" {
			return nil, fmt.Errorf("%s: %w: %q", path, ErrInvalidName, name)
		}
		if prev, ok := source[key]; ok {
			return nil, fmt.Errorf("%s: %w: %q and %q are the same name", path, ErrDuplicateContact, prev, name)
		}
		addr := strings.TrimSpace(raw[name])
		if !ValidAddress(addr) {
			return nil, fmt.Errorf("%s: %w for %q: %q", path, ErrInvalidAddress, name, addr)
		}
		source[key] = name
		s.entries[key] = addr
	}
	logger.Debug("contacts loaded", "path", path, "count", len(s.entries))
	return s, nil
}

// NormalizeName is the lookup key for a display name.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ValidAddress reports whether addr is in international phone format.
func ValidAddress(addr string) bool {
	return AddressPattern.MatchString(addr)
}

// Lookup returns the address stored for name.
func (s *Store) Lookup(name string) (string, error) {
	key := NormalizeName(name)
	s.mu.RLock()
	defer s.mu.RUnlock()
	addr, ok := s.entries[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownContact, key)
	}
	return addr, nil
}

// Add stores a new contact. An existing name is never overwritten; the caller
// has to Remove it first.
func (s *Store) Add(name, address string) error {
	key := NormalizeName(name)
	if key == "" {
		return ErrInvalidName
	}
	address = strings.TrimSpace(address)
	if !ValidAddress(address) {
		return fmt.Errorf("%w: %q is not a phone number like +1234567890", ErrInvalidAddress, address)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateContact, key)
	}

	s.entries[key] = address
	if err := s.persistLocked(); err != nil {
		delete(s.entries, key)
		return err
	}
	s.logger.Info("contact added", "name", key)
	return nil
}

// Remove deletes a contact.
func (s *Store) Remove(name string) error {
	key := NormalizeName(name)

	s.mu.Lock()
	defer s.mu.Unlock()
	addr, ok := s.entries[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownContact, key)
	}

	delete(s.entries, key)
	if err := s.persistLocked(); err != nil {
		s.entries[key] = addr
		return err
	}
	s.logger.Info("contact removed", "name", key)
	return nil
}

// List returns a copy of the directory.
func (s *Store) List() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// persistLocked rewrites the document. encoding/json writes map keys sorted.
func (s *Store) persistLocked() error {
	if err := s.write(s.path, s.entries, 0o600); err != nil {
		s.logger.Error("contacts write failed", "path", s.path, "error", err)
		return fmt.Errorf("%w: %v", ErrStoreIO, err)
	}
	return nil
}
