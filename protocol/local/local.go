// Package local implements xfer.Driver against the host filesystem,
// spec.md §4.I: list_files reads a directory and populates FileRecord
// from lstat, get/put_file_chunk wrap file descriptor reads/writes, and
// the driver is always_connected since there is no transport to lose.
package local

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fangq/gftpgo/xfer"
	"github.com/fangq/gftpgo/xfer/xlog"
)

// Driver is the local-filesystem xfer.Driver. Grounded on rclone's
// backend/local Fs/Object split, collapsed onto the single Driver
// interface: cwd plus an open *os.File stand in for rclone's Fs root and
// Object handle.
type Driver struct{}

// New returns a local filesystem Driver.
func New() *Driver { return &Driver{} }

func (d *Driver) Protocol() xfer.Protocol { return xfer.ProtoLocal }

func (d *Driver) Capabilities() xfer.Capability {
	return xfer.CapList | xfer.CapTransfer | xfer.CapMutate | xfer.CapMetadata
}

// state is the Driver-private data stashed in Request.Private, mirroring
// how rclone's backend packages keep an unexported struct behind the
// public Fs/Object interfaces.
type state struct {
	cwd     string
	listing []os.DirEntry
	file    *os.File
}

func priv(r *xfer.Request) *state {
	if r.Private == nil {
		r.Private = &state{cwd: "/"}
	}
	return r.Private.(*state)
}

func (d *Driver) Connect(ctx context.Context, r *xfer.Request) error {
	r.AlwaysConnected = true
	r.DataFD = 0
	st := priv(r)
	if r.Dir != "" {
		st.cwd = r.Dir
	}
	return nil
}

func (d *Driver) Disconnect(r *xfer.Request) error {
	if st, ok := r.Private.(*state); ok && st.file != nil {
		_ = st.file.Close()
		st.file = nil
	}
	return nil
}

func (d *Driver) resolve(r *xfer.Request, name string) string {
	st := priv(r)
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(st.cwd, name)
}

func (d *Driver) ListFiles(ctx context.Context, r *xfer.Request) error {
	st := priv(r)
	entries, err := os.ReadDir(st.cwd)
	if err != nil {
		return xfer.NewError(xfer.Fatal, "list_files", err.Error(), err)
	}
	st.listing = entries
	return nil
}

func (d *Driver) GetNextFile(ctx context.Context, r *xfer.Request) (*xfer.FileRecord, error) {
	st := priv(r)
	if len(st.listing) == 0 {
		return nil, nil
	}
	entry := st.listing[0]
	st.listing = st.listing[1:]
	info, err := entry.Info()
	if err != nil {
		// A vanished entry (raced delete) is not fatal to the listing;
		// skip it and let the caller ask for the next one.
		xlog.Debugf("local", "skip %s: %v", entry.Name(), err)
		return d.GetNextFile(ctx, r)
	}
	return recordFromInfo(entry.Name(), filepath.Join(st.cwd, entry.Name()), info), nil
}

func recordFromInfo(name, fullPath string, info os.FileInfo) *xfer.FileRecord {
	mode := uint32(info.Mode().Perm())
	isLink := info.Mode()&os.ModeSymlink != 0
	switch {
	case info.IsDir():
		mode |= xfer.ModeDir
	case isLink:
		mode |= xfer.ModeLnk
	default:
		mode |= xfer.ModeReg
	}
	rec := &xfer.FileRecord{
		Name:     name,
		Size:     info.Size(),
		DateTime: info.ModTime(),
		Mode:     mode,
		IsDir:    info.IsDir(),
		IsLink:   isLink,
		User:     "unknown",
		Group:    "unknown",
	}
	if isLink {
		if target, err := os.Readlink(fullPath); err == nil {
			rec.LinkTarget = target
		}
	}
	return rec
}

func (d *Driver) GetFile(ctx context.Context, r *xfer.Request, name string, start int64) (int64, error) {
	st := priv(r)
	f, err := os.Open(d.resolve(r, name))
	if err != nil {
		return 0, xfer.NewError(xfer.Fatal, "get_file", err.Error(), err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return 0, xfer.NewError(xfer.Fatal, "get_file", err.Error(), err)
	}
	if start > 0 {
		if _, err := f.Seek(start, io.SeekStart); err != nil {
			f.Close()
			return 0, xfer.NewError(xfer.Fatal, "get_file", err.Error(), err)
		}
	}
	st.file = f
	return info.Size(), nil
}

func (d *Driver) PutFile(ctx context.Context, r *xfer.Request, name string, start, total int64) error {
	st := priv(r)
	path := d.resolve(r, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return xfer.NewError(xfer.Fatal, "put_file", err.Error(), err)
	}
	flags := os.O_WRONLY | os.O_CREATE
	if start > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return xfer.NewError(xfer.Fatal, "put_file", err.Error(), err)
	}
	if start > 0 {
		if _, err := f.Seek(start, io.SeekStart); err != nil {
			f.Close()
			return xfer.NewError(xfer.Fatal, "put_file", err.Error(), err)
		}
	}
	st.file = f
	return nil
}

func (d *Driver) GetNextFileChunk(ctx context.Context, r *xfer.Request, buf []byte) (int, error) {
	st := priv(r)
	if st.file == nil {
		return 0, xfer.NewError(xfer.Fatal, "get_next_file_chunk", "no open file", nil)
	}
	n, err := st.file.Read(buf)
	if err == io.EOF {
		return n, nil
	}
	if err != nil {
		return n, xfer.NewError(xfer.Retryable, "get_next_file_chunk", err.Error(), err)
	}
	return n, nil
}

func (d *Driver) PutNextFileChunk(ctx context.Context, r *xfer.Request, buf []byte) (int, error) {
	st := priv(r)
	if st.file == nil {
		return 0, xfer.NewError(xfer.Fatal, "put_next_file_chunk", "no open file", nil)
	}
	n, err := st.file.Write(buf)
	if err != nil {
		return n, xfer.NewError(xfer.Retryable, "put_next_file_chunk", err.Error(), err)
	}
	return n, nil
}

func (d *Driver) EndTransfer(ctx context.Context, r *xfer.Request) error {
	st := priv(r)
	if st.file != nil {
		err := st.file.Close()
		st.file = nil
		if err != nil {
			return xfer.NewError(xfer.Fatal, "end_transfer", err.Error(), err)
		}
	}
	return nil
}

func (d *Driver) AbortTransfer(ctx context.Context, r *xfer.Request) error {
	return d.EndTransfer(ctx, r)
}

func (d *Driver) Chdir(ctx context.Context, r *xfer.Request, dir string) error {
	st := priv(r)
	target := d.resolve(r, dir)
	info, err := os.Stat(target)
	if err != nil || !info.IsDir() {
		return xfer.NewError(xfer.Fatal, "chdir", target, err)
	}
	st.cwd = target
	return nil
}

func (d *Driver) Mkdir(ctx context.Context, r *xfer.Request, dir string) error {
	if err := os.MkdirAll(d.resolve(r, dir), 0755); err != nil {
		return xfer.NewError(xfer.Fatal, "mkdir", err.Error(), err)
	}
	return nil
}

func (d *Driver) Rmdir(ctx context.Context, r *xfer.Request, dir string) error {
	if err := os.Remove(d.resolve(r, dir)); err != nil {
		return xfer.NewError(xfer.Fatal, "rmdir", err.Error(), err)
	}
	return nil
}

func (d *Driver) Rmfile(ctx context.Context, r *xfer.Request, name string) error {
	if err := os.Remove(d.resolve(r, name)); err != nil {
		return xfer.NewError(xfer.Fatal, "rmfile", err.Error(), err)
	}
	return nil
}

func (d *Driver) Rename(ctx context.Context, r *xfer.Request, from, to string) error {
	if err := os.Rename(d.resolve(r, from), d.resolve(r, to)); err != nil {
		return xfer.NewError(xfer.Fatal, "rename", err.Error(), err)
	}
	return nil
}

func (d *Driver) Chmod(ctx context.Context, r *xfer.Request, name string, mode uint32) error {
	if err := os.Chmod(d.resolve(r, name), os.FileMode(mode&xfer.ModePerm)); err != nil {
		return xfer.NewError(xfer.Fatal, "chmod", err.Error(), err)
	}
	return nil
}

func (d *Driver) SetFileTime(ctx context.Context, r *xfer.Request, name string, t int64) error {
	mtime := time.Unix(t, 0)
	if err := os.Chtimes(d.resolve(r, name), mtime, mtime); err != nil {
		return xfer.NewError(xfer.Fatal, "set_file_time", err.Error(), err)
	}
	return nil
}

// Site has no meaning for a local filesystem.
func (d *Driver) Site(ctx context.Context, r *xfer.Request, argline string) error {
	return xfer.ErrUnsupported
}

func (d *Driver) GetFileSize(ctx context.Context, r *xfer.Request, name string) (int64, error) {
	info, err := os.Stat(d.resolve(r, name))
	if err != nil {
		return 0, xfer.NewError(xfer.Fatal, "get_file_size", err.Error(), err)
	}
	return info.Size(), nil
}

func (d *Driver) StatFilename(ctx context.Context, r *xfer.Request, name string) (*xfer.FileRecord, error) {
	path := d.resolve(r, name)
	info, err := os.Lstat(path)
	if err != nil {
		return nil, xfer.NewError(xfer.Fatal, "stat_filename", err.Error(), err)
	}
	base := strings.TrimSuffix(filepath.Base(path), "/")
	return recordFromInfo(base, path, info), nil
}
