package store

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"syscall"

	"github.com/gofrs/flock"

	"github.com/jonwraymond/pipecache/observe"
)

const lockFile = ".lock"

// Config configures a FilesystemStore.
type Config struct {
	// Directory is the root of the store region. Created when missing.
	Directory string `yaml:"directory"`

	// Exclusive takes an advisory lock on <Directory>/.lock for the
	// lifetime of the store.
	// Default: false
	Exclusive bool `yaml:"exclusive"`

	// Logger receives I/O failures that are swallowed by Get and Load.
	// Default: no-op
	Logger observe.Logger `yaml:"-"`
}

// FilesystemStore is a key/value region rooted at a directory.
//
// Contract:
//   - Concurrency: safe for concurrent use; operations are serialized.
//   - Errors: Get, Load and ContainsKey never fail, they report absence.
type FilesystemStore struct {
	mu     sync.Mutex
	dir    string
	lock   *flock.Flock
	logger observe.Logger
	closed bool
}

// New opens the store region described by cfg.
func New(cfg Config) (*FilesystemStore, error) {
	if cfg.Directory == "" {
		return nil, fmt.Errorf("%w: directory is required", ErrStartup)
	}
	dir, err := filepath.Abs(cfg.Directory)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStartup, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStartup, err)
	}

	s := &FilesystemStore{
		dir:    dir,
		logger: observe.OrNop(cfg.Logger).With(observe.F("store.dir", dir)),
	}

	if cfg.Exclusive {
		lk := flock.New(filepath.Join(dir, lockFile))
		ok, err := lk.TryLock()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStartup, err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrLocked, dir)
		}
		s.lock = lk
	}

	if err := s.writeProbe(); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("%w: %v", ErrStartup, err)
	}
	return s, nil
}

// Directory returns the absolute root of the region.
func (s *FilesystemStore) Directory() string { return s.dir }

func (s *FilesystemStore) path(key string) string {
	return filepath.Join(s.dir, filepath.FromSlash(EncodeKey(key)))
}

// Get returns the bytes stored under key. Absent keys, null values and
// unreadable entries all report false.
func (s *FilesystemStore) Get(ctx context.Context, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false
	}
	return s.read(ctx, key)
}

func (s *FilesystemStore) read(ctx context.Context, key string) ([]byte, bool) {
	p := s.path(key)
	info, err := os.Stat(p)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) && !isNotDir(err) {
			s.logger.Warn(ctx, "store stat failed", observe.F("key", key), observe.Err(err))
		}
		return nil, false
	}
	if info.IsDir() {
		return nil, false
	}
	data, err := os.ReadFile(p)
	if err != nil {
		s.logger.Warn(ctx, "store read failed", observe.F("key", key), observe.Err(err))
		return nil, false
	}
	return data, true
}

// Store writes value under key, replacing any previous value.
//
// nil is stored as an empty directory, string and []byte as raw bytes, an
// io.Reader is streamed, and any other value is gob-encoded.
func (s *FilesystemStore) Store(ctx context.Context, key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	p := s.path(key)
	if value == nil {
		return s.storeNull(p)
	}

	var body io.Reader
	switch v := value.(type) {
	case []byte:
		body = bytes.NewReader(v)
	case string:
		body = strings.NewReader(v)
	case io.Reader:
		body = v
	default:
		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(value); err != nil {
			return fmt.Errorf("store: encode %q: %w", key, err)
		}
		body = &buf
	}

	if err := s.writeFile(p, body); err != nil {
		return fmt.Errorf("store: write %q: %w", key, err)
	}
	s.logger.Debug(ctx, "store entry written", observe.F("key", key))
	return nil
}

// Hold is Store under its region name.
func (s *FilesystemStore) Hold(ctx context.Context, key string, value any) error {
	return s.Store(ctx, key, value)
}

// Load gob-decodes the value under key into v.
func (s *FilesystemStore) Load(ctx context.Context, key string, v any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	data, ok := s.read(ctx, key)
	if !ok {
		return false
	}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		s.logger.Warn(ctx, "store decode failed", observe.F("key", key), observe.Err(err))
		return false
	}
	return true
}

func (s *FilesystemStore) storeNull(p string) error {
	info, err := os.Stat(p)
	if err == nil && !info.IsDir() {
		if err := os.Remove(p); err != nil {
			return fmt.Errorf("store: replace with null: %w", err)
		}
	}
	if err := os.MkdirAll(p, 0o755); err != nil {
		return fmt.Errorf("store: create null entry: %w", err)
	}
	return nil
}

func (s *FilesystemStore) writeFile(p string, body io.Reader) error {
	parent := filepath.Dir(p)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(parent, ".entry-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	_, err = io.Copy(tmp, body)
	closeErr := tmp.Close()
	if err != nil {
		return err
	}
	if closeErr != nil {
		return closeErr
	}

	// A previous null value is an empty directory; rename cannot replace it.
	if info, err := os.Stat(p); err == nil && info.IsDir() {
		if err := os.Remove(p); err != nil {
			return fmt.Errorf("key is a parent of other keys: %w", err)
		}
	}
	return os.Rename(tmpPath, p)
}

// Remove deletes key and prunes parent directories left empty. Removing an
// absent key or a key that only has children is a no-op.
func (s *FilesystemStore) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	p := s.path(key)
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || isNotDir(err) {
			return nil
		}
		return fmt.Errorf("store: remove %q: %w", key, err)
	}
	if info.IsDir() {
		entries, err := os.ReadDir(p)
		if err != nil {
			return fmt.Errorf("store: remove %q: %w", key, err)
		}
		if len(entries) > 0 {
			return nil
		}
	}
	if err := os.Remove(p); err != nil {
		return fmt.Errorf("store: remove %q: %w", key, err)
	}
	s.prune(filepath.Dir(p))
	s.logger.Debug(ctx, "store entry removed", observe.F("key", key))
	return nil
}

func (s *FilesystemStore) prune(dir string) {
	for dir != s.dir && strings.HasPrefix(dir, s.dir) {
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

// ContainsKey reports whether key holds a value or a null.
func (s *FilesystemStore) ContainsKey(_ context.Context, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}

	p := s.path(key)
	info, err := os.Stat(p)
	if err != nil {
		return false
	}
	if !info.IsDir() {
		return true
	}
	entries, err := os.ReadDir(p)
	return err == nil && len(entries) == 0
}

// Keys returns a sorted snapshot of every key in the region.
func (s *FilesystemStore) Keys(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.keys(ctx)
}

func (s *FilesystemStore) keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(s.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == s.dir {
			return nil
		}
		if strings.Contains(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			entries, err := os.ReadDir(p)
			if err != nil || len(entries) > 0 {
				return err
			}
		}

		rel, err := filepath.Rel(s.dir, p)
		if err != nil {
			return err
		}
		key, err := DecodeKey(filepath.ToSlash(rel))
		if err != nil {
			s.logger.Debug(ctx, "skipping undecodable store path", observe.F("path", rel), observe.Err(err))
			return nil
		}
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: list keys: %w", err)
	}
	slices.Sort(keys)
	return keys, nil
}

// Size returns the number of keys. It walks the whole region.
func (s *FilesystemStore) Size(ctx context.Context) (int, error) {
	keys, err := s.Keys(ctx)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// Clear removes every entry, keeping the root directory and lock file.
func (s *FilesystemStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("store: clear: %w", err)
	}
	var errs []error
	for _, e := range entries {
		if e.Name() == lockFile {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.dir, e.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("store: clear: %w", err)
	}
	s.logger.Info(ctx, "store cleared")
	return nil
}

// Probe verifies the region is still writable.
func (s *FilesystemStore) Probe(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.writeProbe()
}

func (s *FilesystemStore) writeProbe() error {
	f, err := os.CreateTemp(s.dir, ".probe-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_, werr := f.Write([]byte("ok"))
	cerr := f.Close()
	rerr := os.Remove(name)
	return errors.Join(werr, cerr, rerr)
}

// Close releases the region lock. The store is unusable afterwards.
func (s *FilesystemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.lock != nil {
		return s.lock.Unlock()
	}
	return nil
}

// isNotDir reports ENOTDIR, returned when a path element is a regular file.
func isNotDir(err error) bool {
	return errors.Is(err, syscall.ENOTDIR)
}
