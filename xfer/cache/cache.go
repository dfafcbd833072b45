// Package cache implements the process-wide directory-listing cache of
// spec.md §4.D: a persistent on-disk store of the raw bytes a directory
// listing produced, keyed by endpoint identity and directory path, so a
// later listing of the same directory can be replayed without a network
// round trip.
package cache

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/fangq/gftpgo/xfer/xlog"
)

// cacheNamespace seeds the deterministic (v5) UUIDs used as on-disk entry
// file names, so the same logical key always maps to the same file without
// a separate index.
var cacheNamespace = uuid.MustParse("6f9c1e2a-6b9b-4e0a-9b1a-9a1f0f6d6a9e")

// Key identifies one cached listing. Per SPEC_FULL.md's supplement to
// §4.D, show_hidden_files and resolve_symlinks are part of the key: two
// listings of the same path taken under different flags are not
// interchangeable.
type Key struct {
	Endpoint        string
	Path            string
	ShowHiddenFiles bool
	ResolveSymlinks bool
}

// String renders the key the way it is logged and locked on. It is not
// the on-disk file name (see entryFile).
func (k Key) String() string {
	return k.Endpoint + "\x00" + k.Path + "\x00" +
		strconv.FormatBool(k.ShowHiddenFiles) + "\x00" + strconv.FormatBool(k.ResolveSymlinks)
}

func (k Key) entryFile() string {
	id := uuid.NewSHA1(cacheNamespace, []byte(k.String()))
	return id.String() + ".listing"
}

// Cache is a process-wide, directory-backed store of raw listing bytes.
// Only one writer per key is ever active at a time (keyed serialization,
// spec.md §4's "Shared resources" note); readers are not serialized
// against each other.
type Cache struct {
	dir  string
	lock *keyLock
}

// New opens (creating if necessary) a cache rooted at dir.
func New(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &Cache{dir: dir, lock: newKeyLock()}, nil
}

// Lookup returns a reader over the cached entry for key, and whether one
// exists. Callers must Close the reader.
func (c *Cache) Lookup(key Key) (io.ReadCloser, bool, error) {
	f, err := os.Open(filepath.Join(c.dir, key.entryFile()))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return f, true, nil
}

// Writer is the "last-entry" scratch of spec.md §4.D: a Request writes
// each produced listing line through it while also delivering the line to
// its own caller. Writes land in a temp file and only replace the entry
// on a successful Close, so a failed or aborted listing never corrupts an
// existing cache entry.
type Writer struct {
	cache *Cache
	key   Key
	tmp   *os.File
	final string
	done  bool
}

// NewWriter begins a write-through entry for key, taking the per-key lock
// so no other writer can race it. Callers must Close (or Abort) before
// another writer for the same key can proceed.
func (c *Cache) NewWriter(key Key) (*Writer, error) {
	c.lock.Lock(key.String())
	final := filepath.Join(c.dir, key.entryFile())
	tmp, err := os.CreateTemp(c.dir, "listing-*.tmp")
	if err != nil {
		c.lock.Unlock(key.String())
		return nil, err
	}
	return &Writer{cache: c, key: key, tmp: tmp, final: final}, nil
}

func (w *Writer) Write(p []byte) (int, error) {
	return w.tmp.Write(p)
}

// Close flushes the entry into place and releases the per-key lock. Safe
// to call at most once.
func (w *Writer) Close() error {
	if w.done {
		return nil
	}
	w.done = true
	defer w.cache.lock.Unlock(w.key.String())
	if err := w.tmp.Close(); err != nil {
		os.Remove(w.tmp.Name())
		return err
	}
	if err := os.Rename(w.tmp.Name(), w.final); err != nil {
		os.Remove(w.tmp.Name())
		return err
	}
	return nil
}

// Abort discards a partially written entry (e.g. the listing was
// cancelled or the driver hit a Fatal error mid-stream) without touching
// any existing cached entry for the key.
func (w *Writer) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	defer w.cache.lock.Unlock(w.key.String())
	name := w.tmp.Name()
	_ = w.tmp.Close()
	return os.Remove(name)
}

// Invalidate implements delete_cache_entry: explicit invalidation
// triggered by a UI refresh or by any operation that mutates the
// directory (mkdir, rmdir, delete, rename, chmod, upload).
func (c *Cache) Invalidate(key Key) error {
	err := os.Remove(filepath.Join(c.dir, key.entryFile()))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	xlog.Debugf("cache", "invalidated %s", key.Path)
	return nil
}
