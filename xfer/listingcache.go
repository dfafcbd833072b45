package xfer

import (
	"strconv"
	"sync"

	"github.com/fangq/gftpgo/xfer/cache"
)

var (
	cachesMu sync.Mutex
	caches   = map[string]*cache.Cache{}
)

// ListingCache lazily opens the process-wide directory-listing cache
// rooted at the cache_dir option, spec.md §4.D. Returns nil, nil when
// cache_dir is unset, meaning caching is disabled for this Request.
func (r *Request) ListingCache() (*cache.Cache, error) {
	dir := r.Options.GetString("cache_dir")
	if dir == "" {
		return nil, nil
	}
	cachesMu.Lock()
	defer cachesMu.Unlock()
	if c, ok := caches[dir]; ok {
		return c, nil
	}
	c, err := cache.New(dir)
	if err != nil {
		return nil, err
	}
	caches[dir] = c
	return c, nil
}

// CacheKey builds the cache.Key for a listing of dir on this Request's
// endpoint. show_hidden_files and resolve_symlinks are folded into the
// key per SPEC_FULL.md's refinement of §4.D: two listings of the same
// path taken under different flags are not interchangeable.
func (r *Request) CacheKey(dir string) cache.Key {
	return cache.Key{
		Endpoint:        r.Protocol.String() + "://" + r.Username + "@" + r.Hostname + ":" + strconv.Itoa(r.Port),
		Path:            dir,
		ShowHiddenFiles: r.Options.GetBool("show_hidden_files"),
		ResolveSymlinks: r.Options.GetBool("resolve_symlinks"),
	}
}

// InvalidateCache drops any cached listing of dir, per §4.D: any
// operation that mutates a directory's contents (mkdir, rmdir, delete,
// rename, chmod, upload) must invalidate that directory's entry.
func (r *Request) InvalidateCache(dir string) error {
	c, err := r.ListingCache()
	if err != nil || c == nil {
		return err
	}
	return c.Invalidate(r.CacheKey(dir))
}
