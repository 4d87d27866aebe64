// Package logstore keeps per-task append-only log files and serves
// offset/limit and tail reads over them.
package logstore

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// ErrBadTaskID is returned for task IDs that cannot name a log file.
var ErrBadTaskID = errors.New("invalid task id")

// Store manages one append-only log file per task under a data directory.
// Finished tasks can be archived in place; reads transparently serve the
// compressed archive afterwards.
type Store struct {
	dir    string
	mu     sync.Mutex
	open   map[string]*os.File
	logger *slog.Logger
}

// New creates the store, ensuring the directory exists.
func New(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	return &Store{
		dir:    dir,
		open:   make(map[string]*os.File),
		logger: logger,
	}, nil
}

// Append writes one line to the task's log. The trailing newline is added
// here; callers pass bare lines.
func (s *Store) Append(taskID, line string) error {
	if err := checkTaskID(taskID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.open[taskID]
	if !ok {
		var err error
		f, err = os.OpenFile(s.logPath(taskID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log for %s: %w", taskID, err)
		}
		s.open[taskID] = f
	}

	if _, err := f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("append log for %s: %w", taskID, err)
	}
	return nil
}

// Read returns up to limit lines starting at the given line offset, the
// current file size in bytes, and whether further lines exist past the
// returned window. A task with no log file yields an empty result, not an
// error, so callers can render "no logs yet".
func (s *Store) Read(taskID string, offset, limit int) (lines []string, size int64, hasMore bool, err error) {
	if err := checkTaskID(taskID); err != nil {
		return nil, 0, false, err
	}
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = 100
	}

	all, size, err := s.readAll(taskID)
	if err != nil {
		return nil, 0, false, err
	}

	if offset >= len(all) {
		return []string{}, size, false, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], size, end < len(all), nil
}

// Tail returns the most recent limit lines and the file size.
func (s *Store) Tail(taskID string, limit int) ([]string, int64, error) {
	if err := checkTaskID(taskID); err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		limit = 100
	}

	all, size, err := s.readAll(taskID)
	if err != nil {
		return nil, 0, err
	}
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, size, nil
}

// Size returns the byte size of the task's log file, zero if absent.
func (s *Store) Size(taskID string) (int64, error) {
	if err := checkTaskID(taskID); err != nil {
		return 0, err
	}
	info, err := os.Stat(s.logPath(taskID))
	if errors.Is(err, os.ErrNotExist) {
		info, err = os.Stat(s.archivePath(taskID))
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
	}
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Archive compresses a finished task's log and removes the plain file.
// Subsequent reads serve the archive. Archiving a task with no log is a
// no-op.
func (s *Store) Archive(taskID string) error {
	if err := checkTaskID(taskID); err != nil {
		return err
	}

	s.mu.Lock()
	if f, ok := s.open[taskID]; ok {
		f.Close()
		delete(s.open, taskID)
	}
	s.mu.Unlock()

	src, err := os.Open(s.logPath(taskID))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open log for archive: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(s.archivePath(taskID))
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}

	zw := gzip.NewWriter(dst)
	if _, err := io.Copy(zw, src); err != nil {
		dst.Close()
		os.Remove(s.archivePath(taskID))
		return fmt.Errorf("compress log: %w", err)
	}
	if err := zw.Close(); err != nil {
		dst.Close()
		return fmt.Errorf("finish archive: %w", err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}

	if err := os.Remove(s.logPath(taskID)); err != nil {
		return fmt.Errorf("remove archived log: %w", err)
	}
	s.logger.Info("log archived", "task", taskID)
	return nil
}

// Close releases all open file handles.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, f := range s.open {
		f.Close()
		delete(s.open, id)
	}
	return nil
}

func (s *Store) readAll(taskID string) ([]string, int64, error) {
	path := s.logPath(taskID)
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return s.readArchive(taskID)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("open log for %s: %w", taskID, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, 0, err
	}
	lines, err := scanLines(f)
	if err != nil {
		return nil, 0, err
	}
	return lines, info.Size(), nil
}

func (s *Store) readArchive(taskID string) ([]string, int64, error) {
	f, err := os.Open(s.archivePath(taskID))
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("open archive for %s: %w", taskID, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, 0, err
	}
	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, 0, fmt.Errorf("read archive for %s: %w", taskID, err)
	}
	defer zr.Close()

	lines, err := scanLines(zr)
	if err != nil {
		return nil, 0, err
	}
	return lines, info.Size(), nil
}

func scanLines(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024) // 1MB max line
	lines := []string{}
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan log: %w", err)
	}
	return lines, nil
}

func (s *Store) logPath(taskID string) string {
	return filepath.Join(s.dir, taskID+".log")
}

func (s *Store) archivePath(taskID string) string {
	return filepath.Join(s.dir, taskID+".log.gz")
}

func checkTaskID(taskID string) error {
	if taskID == "" || strings.ContainsAny(taskID, "/\\") || strings.Contains(taskID, "..") {
		return fmt.Errorf("%w: %q", ErrBadTaskID, taskID)
	}
	return nil
}
