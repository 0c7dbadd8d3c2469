package contacts

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "contacts.json")
	s, err := Open(path, testLogger())
	require.NoError(t, err)
	return s, path
}

func TestOpen_MissingFileIsEmpty(t *testing.T) {
	s, _ := openTemp(t)
	assert.Equal(t, 0, s.Len())
}

func TestOpen_NormalizesKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contacts.json")
	require.NoError(t, os.WriteFile(path, []byte(`{" Mom ": "+15551234567"}`), 0o600))

	s, err := Open(path, testLogger())
	require.NoError(t, err)
	addr, err := s.Lookup("mom")
	require.NoError(t, err)
	assert.Equal(t, "+15551234567", addr)
}

func TestOpen_RejectsNamesCollidingAfterNormalization(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contacts.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"Mom":"+111","mom ":"+222"}`), 0o600))

	for i := 0; i < 20; i++ {
		_, err := Open(path, testLogger())
		require.ErrorIs(t, err, ErrDuplicateContact)
		assert.Contains(t, err.Error(), `"Mom" and "mom "`)
	}
}

func TestOpen_RejectsMalformedAddress(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contacts.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"bob":"555-1234","ann":"+15550001111"}`), 0o600))

	_, err := Open(path, testLogger())
	require.ErrorIs(t, err, ErrInvalidAddress)
	assert.Contains(t, err.Error(), `"bob"`)
}

func TestOpen_RejectsBlankName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contacts.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"  ":"+15550001111"}`), 0o600))

	_, err := Open(path, testLogger())
	require.ErrorIs(t, err, ErrInvalidName)
}

func TestOpen_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contacts.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o600))

	_, err := Open(path, testLogger())
	assert.ErrorIs(t, err, ErrStoreIO)
}

func TestAdd_ThenDuplicateKeepsOriginal(t *testing.T) {
	s, path := openTemp(t)

	require.NoError(t, s.Add("Mom", "+15551234567"))

	err := s.Add("  MOM ", "+19998887777")
	assert.ErrorIs(t, err, ErrDuplicateContact)

	addr, err := s.Lookup("mom")
	require.NoError(t, err)
	assert.Equal(t, "+15551234567", addr)

	reopened, err := Open(path, testLogger())
	require.NoError(t, err)
	addr, err = reopened.Lookup("Mom")
	require.NoError(t, err)
	assert.Equal(t, "+15551234567", addr)
}

func TestAdd_InvalidAddressIsIdempotent(t *testing.T) {
	s, path := openTemp(t)

	for i := 0; i < 3; i++ {
		err := s.Add("bob", "555-1234")
		assert.ErrorIs(t, err, ErrInvalidAddress)
	}
	assert.Equal(t, 0, s.Len())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "a rejected add must not touch the file")
}

func TestAdd_AddressFormats(t *testing.T) {
	tests := []struct {
		addr string
		ok   bool
	}{
		{"+15551234567", true},
		{"+1", true},
		{"15551234567", false},
		{"+1 555 123", false},
		{"+", false},
		{"+1-555", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			assert.Equal(t, tt.ok, ValidAddress(tt.addr))
		})
	}
}

func TestAdd_EmptyName(t *testing.T) {
	s, _ := openTemp(t)
	assert.ErrorIs(t, s.Add("   ", "+15551234567"), ErrInvalidName)
}

func TestLookup_Unknown(t *testing.T) {
	s, _ := openTemp(t)
	_, err := s.Lookup("nobody")
	assert.ErrorIs(t, err, ErrUnknownContact)
}

func TestRemove(t *testing.T) {
	s, path := openTemp(t)
	require.NoError(t, s.Add("dad", "+15550000000"))
	require.NoError(t, s.Remove("DAD"))

	_, err := s.Lookup("dad")
	assert.ErrorIs(t, err, ErrUnknownContact)
	assert.ErrorIs(t, s.Remove("dad"), ErrUnknownContact)

	reopened, err := Open(path, testLogger())
	require.NoError(t, err)
	assert.Equal(t, 0, reopened.Len())

	require.NoError(t, s.Add("dad", "+15551111111"), "re-adding after remove")
}

func TestPersistedDocumentIsSortedJSON(t *testing.T) {
	s, path := openTemp(t)
	require.NoError(t, s.Add("zed", "+2"))
	require.NoError(t, s.Add("amy", "+1"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"amy\": \"+1\",\n  \"zed\": \"+2\"\n}\n", string(data))
}

func TestAdd_WriteFailureRollsBack(t *testing.T) {
	s, _ := openTemp(t)
	s.write = func(string, any, os.FileMode) error { return errors.New("disk full") }

	err := s.Add("mom", "+15551234567")
	assert.ErrorIs(t, err, ErrStoreIO)
	_, err = s.Lookup("mom")
	assert.ErrorIs(t, err, ErrUnknownContact)
}

func TestRemove_WriteFailureRollsBack(t *testing.T) {
	s, _ := openTemp(t)
	require.NoError(t, s.Add("mom", "+15551234567"))
	s.write = func(string, any, os.FileMode) error { return errors.New("disk full") }

	assert.ErrorIs(t, s.Remove("mom"), ErrStoreIO)
	addr, err := s.Lookup("mom")
	require.NoError(t, err)
	assert.Equal(t, "+15551234567", addr)
}

func TestConcurrentAdd_DifferentNames(t *testing.T) {
	s, path := openTemp(t)

	var wg sync.WaitGroup
	errs := make([]error, 20)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.Add(fmt.Sprintf("friend%d", i), fmt.Sprintf("+1555000%04d", i))
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "add %d", i)
	}
	reopened, err := Open(path, testLogger())
	require.NoError(t, err)
	assert.Equal(t, 20, reopened.Len())
}

func TestConcurrentAdd_SameName(t *testing.T) {
	s, path := openTemp(t)

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := "Mom"
			if i%2 == 1 {
				name = " mom"
			}
			errs[i] = s.Add(name, fmt.Sprintf("+1555000%04d", i))
		}(i)
	}
	wg.Wait()

	wins, dups := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrDuplicateContact):
			dups++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 9, dups)

	reopened, err := Open(path, testLogger())
	require.NoError(t, err)
	assert.Equal(t, 1, reopened.Len())
	stored, _ := reopened.Lookup("mom")
	inMemory, _ := s.Lookup("mom")
	assert.Equal(t, inMemory, stored)
}
