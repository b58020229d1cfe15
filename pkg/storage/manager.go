package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
)

// invalidTitleChars are replaced with a space in file names
const invalidTitleChars = `<>:"/\|?*`

var titleReplacer = func() *strings.Replacer {
	pairs := make([]string, 0, 2*len(invalidTitleChars))
	for _, c := range invalidTitleChars {
		pairs = append(pairs, string(c), " ")
	}
	return strings.NewReplacer(pairs...)
}()

// SanitizeTitle replaces every character that is not allowed in a file name
// with a space
func SanitizeTitle(title string) string {
	return titleReplacer.Replace(title)
}

// Manager owns the illustrations directory and writes downloads into it
type Manager struct {
	outputDir string
	saved     atomic.Int64
}

// NewManager creates the output directory if needed
func NewManager(outputDir string) (*Manager, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &Manager{outputDir: outputDir}, nil
}

// IllustrationPath returns "<dir>/<id> <sanitized title>.<ext>"
func (m *Manager) IllustrationPath(id int64, title, ext string) string {
	name := strconv.FormatInt(id, 10) + " " + SanitizeTitle(title) + "." + ext
	return filepath.Join(m.outputDir, name)
}

// Exists reports whether a regular file is present at path
func (m *Manager) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Save streams r into path. Data goes to a temporary file in the same
// directory that is renamed into place once complete, so path never holds a
// partial download.
func (m *Manager) Save(r io.Reader, path string) (int64, error) {
	out, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("failed to create temporary file: %w", err)
	}
	tempFile := out.Name()

	n, err := io.Copy(out, r)
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempFile)
		return n, fmt.Errorf("failed to save illustration data: %w", err)
	}
	if closeErr != nil {
		os.Remove(tempFile)
		return n, fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := os.Rename(tempFile, path); err != nil {
		os.Remove(tempFile)
		return n, fmt.Errorf("failed to rename temporary file: %w", err)
	}

	m.saved.Add(1)
	return n, nil
}

// GetOutputDir returns the output directory path
func (m *Manager) GetOutputDir() string {
	return m.outputDir
}

// SavedCount returns how many files this manager has written
func (m *Manager) SavedCount() int {
	return int(m.saved.Load())
}
