// Package http implements xfer.Driver for a read-only HTTP/1.x client,
// spec.md §4.G: request composition, a hand-rolled status/header reader,
// and a chunked-transfer decoder, all built directly on net.Conn rather
// than net/http — the same "own the wire engine" approach as
// protocol/ftp, since the spec calls for the response reader and
// chunked decoder as components in their own right, not black boxes
// behind a client library.
package http

import (
	"context"
	"io"
	"net"
	"strings"
	"time"

	"github.com/fangq/gftpgo/xfer"
	"github.com/fangq/gftpgo/xfer/iobuf"
	"github.com/fangq/gftpgo/xfer/listing"
	"github.com/fangq/gftpgo/xfer/netdial"
)

const maxHeaderLineLen = 8192

// Driver is the HTTP xfer.Driver. Read-only: Mkdir/Rmdir/Rmfile/Rename/
// Chmod/SetFileTime/Site/PutFile all return ErrUnsupported, spec.md
// §4.G "those operation pointers are null".
type Driver struct{}

func New() *Driver { return &Driver{} }

func (d *Driver) Protocol() xfer.Protocol { return xfer.ProtoHTTP }

func (d *Driver) Capabilities() xfer.Capability {
	return xfer.CapList | xfer.CapTransfer | xfer.CapMetadata
}

// state holds the in-flight download's connection and body decoder.
// Every HTTP operation opens its own short-lived connection (spec.md §3
// marks HTTP always_connected: there is no persistent control channel
// to keep alive the way FTP/SFTP do).
type state struct {
	timeout time.Duration
	dir     string
	listing []*xfer.FileRecord

	conn net.Conn
	body bodyReader
}

type bodyReader interface {
	Read(ctx context.Context, p []byte) (int, error)
}

func priv(r *xfer.Request) *state {
	if r.Private == nil {
		r.Private = &state{}
	}
	return r.Private.(*state)
}

func (d *Driver) Connect(ctx context.Context, r *xfer.Request) error {
	st := priv(r)
	st.timeout = time.Duration(r.Options.GetInt("network_timeout")) * time.Second
	st.dir = "/"
	r.AlwaysConnected = true
	r.DataFD = 0
	return nil
}

func (d *Driver) Disconnect(r *xfer.Request) error {
	st := priv(r)
	closeBody(st)
	r.DataFD = -1
	return nil
}

func closeBody(st *state) {
	if st.conn != nil {
		_ = st.conn.Close()
		st.conn = nil
	}
	st.body = nil
}

// dial opens a fresh connection to the proxy (if use_proxy) or the
// target directly.
func (d *Driver) dial(ctx context.Context, r *xfer.Request, st *state) (net.Conn, error) {
	dialer := &netdial.Dialer{EnableIPv6: r.Options.GetBool("enable_ipv6"), Timeout: st.timeout}
	host, port := r.Hostname, r.Port
	if r.UseProxy {
		host = r.Options.GetString("http_proxy_host")
		port = r.Options.GetInt("http_proxy_port")
	}
	conn, err := dialer.Connect(ctx, "http", host, port)
	if err != nil {
		return nil, xfer.NewError(xfer.Retryable, "connect", "", err)
	}
	return conn, nil
}

// doRequest opens a connection, sends a GET or HEAD for name with an
// optional Range, and returns the parsed status line/headers. The
// caller is responsible for reading (or discarding) the body and
// closing conn.
func (d *Driver) doRequest(ctx context.Context, r *xfer.Request, st *state, method, name string, start int64) (*httpResponse, net.Conn, error) {
	conn, err := d.dial(ctx, r, st)
	if err != nil {
		return nil, nil, err
	}
	path := joinDir(st.dir, name)
	if err := sendRequest(conn, st.timeout, r, method, path, start); err != nil {
		conn.Close()
		return nil, nil, xfer.NewError(xfer.Retryable, "request", "", err)
	}
	lr := iobuf.NewLineReader(conn, maxHeaderLineLen, st.timeout, nil)
	resp, err := readHTTPResponse(ctx, lr)
	if err != nil {
		conn.Close()
		return nil, nil, xfer.NewError(xfer.Retryable, "request", "", err)
	}
	resp.lr = lr
	return resp, conn, nil
}

// ListFiles serves a cached index page when one exists for this
// directory (spec.md §4.D), otherwise fetches it and writes the raw
// bytes through to a new cache entry. HTTP has no mutating operations,
// so unlike FTP nothing here ever invalidates an entry; staleness
// is bounded only by the cache's own lifetime.
func (d *Driver) ListFiles(ctx context.Context, r *xfer.Request) error {
	st := priv(r)
	key := r.CacheKey(st.dir)
	lc, err := r.ListingCache()
	if err != nil {
		return xfer.NewError(xfer.Fatal, "list_files", "cache", err)
	}
	if lc != nil {
		if rc, hit, err := lc.Lookup(key); err != nil {
			return xfer.NewError(xfer.Fatal, "list_files", "cache", err)
		} else if hit {
			defer rc.Close()
			records, perr := listing.ParseHTMLIndex(rc, time.Now())
			if perr != nil {
				return xfer.NewError(xfer.Fatal, "list_files", "", perr)
			}
			st.listing = records
			r.Cached = true
			return nil
		}
	}
	r.Cached = false

	resp, conn, err := d.doRequest(ctx, r, st, "GET", "", 0) // name="": joinDir appends the trailing slash
	if err != nil {
		return err
	}
	defer conn.Close()
	if resp.Status != 200 {
		return xfer.NewError(xfer.LogicalFailure, "list_files", resp.StatusLine, nil)
	}
	body := resp.bodyReader()
	data, err := readAll(ctx, body, maxListingBytes)
	if err != nil {
		return xfer.NewError(xfer.Retryable, "list_files", "", err)
	}
	records, err := listing.ParseHTMLIndex(strings.NewReader(string(data)), time.Now())
	if err != nil {
		return xfer.NewError(xfer.Fatal, "list_files", "", err)
	}
	if lc != nil {
		w, err := lc.NewWriter(key)
		if err != nil {
			return xfer.NewError(xfer.Fatal, "list_files", "write-to-cache", err)
		}
		if _, err := w.Write(data); err != nil {
			w.Abort()
			return xfer.NewError(xfer.Fatal, "list_files", "write-to-cache", err)
		}
		if err := w.Close(); err != nil {
			return xfer.NewError(xfer.Fatal, "list_files", "write-to-cache", err)
		}
	}
	st.listing = records
	return nil
}

const maxListingBytes = 8 << 20

func (d *Driver) GetNextFile(ctx context.Context, r *xfer.Request) (*xfer.FileRecord, error) {
	st := priv(r)
	if len(st.listing) == 0 {
		return nil, nil
	}
	rec := st.listing[0]
	st.listing = st.listing[1:]
	return rec, nil
}

func (d *Driver) GetFile(ctx context.Context, r *xfer.Request, name string, start int64) (int64, error) {
	st := priv(r)
	resp, conn, err := d.doRequest(ctx, r, st, "GET", name, start)
	if err != nil {
		return 0, err
	}
	switch {
	case resp.Status == 200:
		// full content; total is whatever Content-Length reported
	case resp.Status == 206:
		// resumed; Content-Length is the remaining byte count
	default:
		conn.Close()
		return 0, xfer.NewError(xfer.LogicalFailure, "get_file", resp.StatusLine, nil)
	}
	st.conn = conn
	st.body = resp.bodyReader()

	total := xfer.SizeUnknown
	if resp.ContentLength >= 0 {
		if resp.Status == 206 {
			total = start + resp.ContentLength
		} else {
			total = resp.ContentLength
		}
	}
	return total, nil
}

func (d *Driver) GetFileSize(ctx context.Context, r *xfer.Request, name string) (int64, error) {
	st := priv(r)
	resp, conn, err := d.doRequest(ctx, r, st, "HEAD", name, 0)
	if err != nil {
		return 0, err
	}
	defer conn.Close()
	if resp.Status != 200 {
		return 0, xfer.NewError(xfer.LogicalFailure, "get_file_size", resp.StatusLine, nil)
	}
	if resp.ContentLength < 0 {
		return 0, xfer.NewError(xfer.LogicalFailure, "get_file_size", "no Content-Length", nil)
	}
	return resp.ContentLength, nil
}

func (d *Driver) StatFilename(ctx context.Context, r *xfer.Request, name string) (*xfer.FileRecord, error) {
	size, err := d.GetFileSize(ctx, r, name)
	if err != nil {
		return nil, err
	}
	base := name
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		base = name[i+1:]
	}
	return &xfer.FileRecord{Name: base, Size: size, Mode: xfer.ModeReg | 0644, User: "unknown", Group: "unknown"}, nil
}

func (d *Driver) GetNextFileChunk(ctx context.Context, r *xfer.Request, buf []byte) (int, error) {
	st := priv(r)
	if st.body == nil {
		return 0, xfer.NewError(xfer.Fatal, "get_next_file_chunk", "no open body", nil)
	}
	n, err := st.body.Read(ctx, buf)
	if err != nil && err != io.EOF {
		return n, xfer.NewError(xfer.Retryable, "get_next_file_chunk", "", err)
	}
	return n, nil
}

func (d *Driver) PutNextFileChunk(ctx context.Context, r *xfer.Request, buf []byte) (int, error) {
	return 0, xfer.ErrUnsupported
}

func (d *Driver) EndTransfer(ctx context.Context, r *xfer.Request) error {
	st := priv(r)
	closeBody(st)
	return nil
}

func (d *Driver) AbortTransfer(ctx context.Context, r *xfer.Request) error {
	return d.EndTransfer(ctx, r)
}

func (d *Driver) PutFile(ctx context.Context, r *xfer.Request, name string, start, total int64) error {
	return xfer.ErrUnsupported
}

// Chdir just updates the remembered path prefix: HTTP has no server-side
// notion of a working directory, every request carries its own full
// path (request->directory in rfc2068.c, built up client-side).
func (d *Driver) Chdir(ctx context.Context, r *xfer.Request, dir string) error {
	st := priv(r)
	if !strings.HasPrefix(dir, "/") {
		dir = st.dir + "/" + dir
	}
	if !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	st.dir = dir
	return nil
}

func (d *Driver) Mkdir(ctx context.Context, r *xfer.Request, dir string) error {
	return xfer.ErrUnsupported
}

func (d *Driver) Rmdir(ctx context.Context, r *xfer.Request, dir string) error {
	return xfer.ErrUnsupported
}

func (d *Driver) Rmfile(ctx context.Context, r *xfer.Request, name string) error {
	return xfer.ErrUnsupported
}

func (d *Driver) Rename(ctx context.Context, r *xfer.Request, from, to string) error {
	return xfer.ErrUnsupported
}

func (d *Driver) Chmod(ctx context.Context, r *xfer.Request, name string, mode uint32) error {
	return xfer.ErrUnsupported
}

func (d *Driver) SetFileTime(ctx context.Context, r *xfer.Request, name string, t int64) error {
	return xfer.ErrUnsupported
}

func (d *Driver) Site(ctx context.Context, r *xfer.Request, argline string) error {
	return xfer.ErrUnsupported
}

func readAll(ctx context.Context, body bodyReader, limit int) ([]byte, error) {
	var out []byte
	buf := make([]byte, 4096)
	for len(out) < limit {
		n, err := body.Read(ctx, buf)
		if n > 0 {
			out = append(out, buf[:n]...)
		}
		if err != nil {
			if err == io.EOF {
				return out, nil
			}
			return out, err
		}
		if n == 0 {
			return out, nil
		}
	}
	return out, nil
}
