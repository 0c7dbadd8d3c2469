package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"jarvis/internal/fileutil"
)

// Store persists the token record.
type Store interface {
	// Load returns nil without error when no token has been stored yet.
	Load() (*Token, error)
	Save(Token) error
}

// FileStore keeps the token as a JSON document readable only by the owner.
type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

func (f *FileStore) Load() (*Token, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrCredentialIO, f.Path, err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, nil
	}
	var t Token
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrCredentialIO, f.Path, err)
	}
	return &t, nil
}

func (f *FileStore) Save(t Token) error {
	if err := fileutil.WriteJSONAtomic(f.Path, t, 0o600); err != nil {
		return fmt.Errorf("%w: %v", ErrCredentialIO, err)
	}
	return nil
}
