package storage

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	logx "postbot/pkg/logx"
)

// fileStore keeps the cursor as a decimal integer in a text file.
//
// Writes go to <path>.tmp, are fsynced, then renamed over <path>, so a crash
// leaves either the old or the new value on disk.
type fileStore struct {
	log  logx.Logger
	path string

	mu sync.Mutex
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	// Leftover from a crash between write and rename; the real file is intact.
	_ = os.Remove(path + ".tmp")
	return &fileStore{log: log, path: path}, nil
}

func (s *fileStore) Path() string { return s.path }

func (s *fileStore) Get(ctx context.Context) (uint64, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	raw := strings.TrimSpace(string(b))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		s.log.Warn("cursor file unreadable; resetting to 0", logx.String("path", s.path), logx.String("raw", truncate(raw, 32)))
		return 0, nil
	}
	return v, nil
}

func (s *fileStore) Set(ctx context.Context, v uint64) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeAtomic(s.path, []byte(strconv.FormatUint(v, 10)+"\n")); err != nil {
		return &PersistError{Driver: "file", Value: v, Err: err}
	}
	return nil
}

func (s *fileStore) Close() error { return nil }

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
