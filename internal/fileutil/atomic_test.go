package fileutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSONAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "doc.json")

	require.NoError(t, WriteJSONAtomic(path, map[string]string{"b": "2", "a": "1"}, 0o600))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": \"1\",\n  \"b\": \"2\"\n}\n", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file should not remain")
}

func TestWriteJSONAtomic_Replaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	require.NoError(t, WriteJSONAtomic(path, []int{1}, 0o644))
	require.NoError(t, WriteJSONAtomic(path, []int{2}, 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, "[2]", string(data))
}

func TestWriteJSONAtomic_EmptyPath(t *testing.T) {
	assert.Error(t, WriteJSONAtomic("", 1, 0o644))
}

func TestWriteJSONAtomic_UnmarshalableValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	assert.Error(t, WriteJSONAtomic(path, make(chan int), 0o644))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
