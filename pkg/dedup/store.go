package dedup

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"pixivcrawl/pkg/errors"
	"pixivcrawl/pkg/logger"
)

var header = []string{"id", "title"}

const byteOrderMark = "\ufeff"

// Store is the set of illustration IDs already fetched, backed by an
// append-only CSV file of id,title rows
type Store struct {
	path   string
	file   *os.File
	writer *csv.Writer
	seen   map[int64]struct{}
	mu     sync.Mutex
	log    logger.Logger
}

// Open loads every recorded ID from path. A missing file is created with the
// id,title header. Any failure to open, read or create the record is a
// store_unavailable error.
func Open(path string, log logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.StoreUnavailable(err, "cannot create record directory")
		}
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.StoreUnavailable(err, fmt.Sprintf("cannot open %s", path))
	}

	s := &Store{
		path:   path,
		file:   file,
		writer: csv.NewWriter(file),
		seen:   make(map[int64]struct{}),
		log:    log.WithField("component", "dedup"),
	}

	if err := s.load(); err != nil {
		file.Close()
		return nil, err
	}

	s.log.WithFields(map[string]interface{}{
		"path":  path,
		"known": len(s.seen),
	}).Info("Dedup record loaded")

	return s, nil
}

func (s *Store) load() error {
	info, err := s.file.Stat()
	if err != nil {
		return errors.StoreUnavailable(err, fmt.Sprintf("cannot stat %s", s.path))
	}

	if info.Size() == 0 {
		if err := s.writer.Write(header); err != nil {
			return errors.StoreUnavailable(err, "cannot write record header")
		}
		return s.flush()
	}

	reader := csv.NewReader(s.file)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	for line := 1; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.StoreUnavailable(err, fmt.Sprintf("cannot read %s", s.path))
		}

		raw := strings.TrimSpace(record[0])
		if line == 1 {
			// Spreadsheet tools save UTF-8 CSV with a byte order mark
			raw = strings.TrimPrefix(raw, byteOrderMark)
			if raw == header[0] {
				continue
			}
		}
		if raw == "" {
			continue
		}

		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return errors.StoreUnavailable(err, fmt.Sprintf("%s line %d: malformed id %q", s.path, line, raw))
		}
		s.seen[id] = struct{}{}
	}

	return s.terminateLastRow(info.Size())
}

// terminateLastRow makes sure appended rows start on a fresh line when the
// file was last written without a trailing newline
func (s *Store) terminateLastRow(size int64) error {
	last := make([]byte, 1)
	if _, err := s.file.ReadAt(last, size-1); err != nil {
		return errors.StoreUnavailable(err, fmt.Sprintf("cannot read %s", s.path))
	}
	if last[0] == '\n' {
		return nil
	}
	if _, err := s.file.Write([]byte("\n")); err != nil {
		return errors.StoreUnavailable(err, fmt.Sprintf("cannot write %s", s.path))
	}
	return nil
}

// Contains reports whether id has been recorded
func (s *Store) Contains(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[id]
	return ok
}

// Record adds id to the set and buffers a row for it. The row reaches disk on
// the next Flush.
func (s *Store) Record(id int64, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writer.Write([]string{strconv.FormatInt(id, 10), title}); err != nil {
		return errors.StoreUnavailable(err, fmt.Sprintf("cannot record %d", id))
	}
	s.seen[id] = struct{}{}
	return nil
}

// Flush writes buffered rows and syncs the file
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flush()
}

func (s *Store) flush() error {
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		return errors.StoreUnavailable(err, fmt.Sprintf("cannot flush %s", s.path))
	}
	if err := s.file.Sync(); err != nil {
		return errors.StoreUnavailable(err, fmt.Sprintf("cannot sync %s", s.path))
	}
	return nil
}

// Len returns the number of known IDs
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

// Path returns the record file location
func (s *Store) Path() string {
	return s.path
}

// Close flushes pending rows and closes the file
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	flushErr := s.flush()
	if err := s.file.Close(); err != nil && flushErr == nil {
		return errors.StoreUnavailable(err, fmt.Sprintf("cannot close %s", s.path))
	}
	return flushErr
}
