package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execRoot runs the real command tree end to end, the way main.main()
// does, capturing output instead of writing to the process's stdout.
func execRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := GetRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestLsListsLocalDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))

	out, err := execRoot(t, "ls", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "a.txt")
	assert.Contains(t, out, "sub")
}

func TestGetDownloadsASingleFile(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "a.txt"), []byte("hello world"), 0644))

	out, err := execRoot(t, "get", filepath.Join(srcDir, "a.txt"), filepath.Join(dstDir, "a.txt"))
	require.NoError(t, err)
	assert.Contains(t, out, "done:")

	data, err := os.ReadFile(filepath.Join(dstDir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestPutUploadsASingleFile(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "a.txt"), []byte("round trip"), 0644))

	out, err := execRoot(t, "put", filepath.Join(srcDir, "a.txt"), filepath.Join(dstDir, "b.txt"))
	require.NoError(t, err)
	assert.Contains(t, out, "done:")

	data, err := os.ReadFile(filepath.Join(dstDir, "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "round trip", string(data))
}

func TestMirrorCopiesATreeRecursively(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "top.txt"), []byte("top"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(srcDir, "nested"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "nested", "deep.txt"), []byte("deep"), 0644))

	out, err := execRoot(t, "mirror", srcDir, dstDir)
	require.NoError(t, err)
	assert.Contains(t, out, "done:")

	top, err := os.ReadFile(filepath.Join(dstDir, "top.txt"))
	require.NoError(t, err)
	assert.Equal(t, "top", string(top))

	deep, err := os.ReadFile(filepath.Join(dstDir, "nested", "deep.txt"))
	require.NoError(t, err)
	assert.Equal(t, "deep", string(deep))
}

func TestMirrorOnEmptyDirReportsNothingToTransfer(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()

	out, err := execRoot(t, "mirror", srcDir, dstDir)
	require.NoError(t, err)
	assert.Contains(t, out, "nothing to transfer")
}

func TestVersionCommandPrintsVersion(t *testing.T) {
	Version, Commit, Date = "1.2.3", "abc123", "2026-01-01"
	out, err := execRoot(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "1.2.3")
	assert.Contains(t, out, "abc123")
}

func TestGetRejectsDirectoryOnlySourceURL(t *testing.T) {
	_, err := execRoot(t, "get", "file://localhost/tmp/", "/tmp/out.txt")
	require.Error(t, err)
}
