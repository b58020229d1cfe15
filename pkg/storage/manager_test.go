package storage

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeTitle(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"sunset", "sunset"},
		{`a<b>c:d"e/f\g|h?i*j`, "a b c d e f g h i j"},
		{"夕焼け", "夕焼け"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := SanitizeTitle(tt.input); got != tt.want {
			t.Errorf("SanitizeTitle(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestIllustrationPath(t *testing.T) {
	dir := t.TempDir()
	manager, err := NewManager(dir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "101 sky sea.png"), manager.IllustrationPath(101, "sky/sea", "png"))
}

func TestNewManagerCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "root", "Illustrations")
	manager, err := NewManager(dir)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, dir, manager.GetOutputDir())
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	manager, err := NewManager(dir)
	require.NoError(t, err)

	path := manager.IllustrationPath(7, "cat", "jpg")
	assert.False(t, manager.Exists(path))

	data := []byte("jpeg bytes")
	n, err := manager.Save(bytes.NewReader(data), path)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)
	assert.True(t, manager.Exists(path))
	assert.Equal(t, 1, manager.SavedCount())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, content)

	// Overwrite in place
	_, err = manager.Save(bytes.NewReader([]byte("new")), path)
	require.NoError(t, err)
	content, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(content))
}

type failingReader struct{ sent bool }

func (r *failingReader) Read(p []byte) (int, error) {
	if !r.sent {
		r.sent = true
		return copy(p, "partial"), nil
	}
	return 0, errors.New("connection reset")
}

func TestSaveLeavesNothingOnFailure(t *testing.T) {
	dir := t.TempDir()
	manager, err := NewManager(dir)
	require.NoError(t, err)

	path := manager.IllustrationPath(8, "dog", "jpg")
	_, err = manager.Save(&failingReader{}, path)
	require.Error(t, err)

	assert.False(t, manager.Exists(path))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, 0, manager.SavedCount())
}

func TestExistsIgnoresDirectories(t *testing.T) {
	dir := t.TempDir()
	manager, err := NewManager(dir)
	require.NoError(t, err)

	sub := filepath.Join(dir, "nested")
	require.NoError(t, os.Mkdir(sub, 0755))
	assert.False(t, manager.Exists(sub))
}
