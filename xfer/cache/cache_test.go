package cache

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteThenLookup(t *testing.T) {
	c, err := New(t.TempDir())
	require.NoError(t, err)

	key := Key{Endpoint: "ftp://alice@ftp.example.com:21", Path: "/pub"}
	w, err := c.NewWriter(key)
	require.NoError(t, err)
	_, err = w.Write([]byte("-rw-r--r-- 1 alice staff 2048 Jan 12 09:15 report.txt\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, ok, err := c.Lookup(key)
	require.NoError(t, err)
	require.True(t, ok)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Contains(t, string(data), "report.txt")
}

func TestLookupMiss(t *testing.T) {
	c, err := New(t.TempDir())
	require.NoError(t, err)
	_, ok, err := c.Lookup(Key{Endpoint: "ftp://x", Path: "/missing"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDifferentFlagsAreDifferentEntries(t *testing.T) {
	c, err := New(t.TempDir())
	require.NoError(t, err)

	plain := Key{Endpoint: "ftp://x", Path: "/a"}
	hidden := Key{Endpoint: "ftp://x", Path: "/a", ShowHiddenFiles: true}

	w, err := c.NewWriter(plain)
	require.NoError(t, err)
	_, _ = w.Write([]byte("visible.txt\n"))
	require.NoError(t, w.Close())

	_, ok, err := c.Lookup(hidden)
	require.NoError(t, err)
	assert.False(t, ok, "show_hidden_files is part of the cache key")
}

func TestInvalidate(t *testing.T) {
	c, err := New(t.TempDir())
	require.NoError(t, err)
	key := Key{Endpoint: "ftp://x", Path: "/a"}

	w, err := c.NewWriter(key)
	require.NoError(t, err)
	_, _ = w.Write([]byte("x\n"))
	require.NoError(t, w.Close())

	require.NoError(t, c.Invalidate(key))
	_, ok, err := c.Lookup(key)
	require.NoError(t, err)
	assert.False(t, ok)

	// Invalidating an absent entry is not an error.
	require.NoError(t, c.Invalidate(key))
}

func TestAbortLeavesExistingEntryUntouched(t *testing.T) {
	c, err := New(t.TempDir())
	require.NoError(t, err)
	key := Key{Endpoint: "ftp://x", Path: "/a"}

	w, err := c.NewWriter(key)
	require.NoError(t, err)
	_, _ = w.Write([]byte("original\n"))
	require.NoError(t, w.Close())

	w2, err := c.NewWriter(key)
	require.NoError(t, err)
	_, _ = w2.Write([]byte("partial"))
	require.NoError(t, w2.Abort())

	r, ok, err := c.Lookup(key)
	require.NoError(t, err)
	require.True(t, ok)
	data, _ := io.ReadAll(r)
	r.Close()
	assert.Equal(t, "original\n", string(data))
}
