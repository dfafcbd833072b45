package http

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fangq/gftpgo/xfer"
)

// fakeHTTPServer answers exactly one request per accepted connection
// (spec.md's always_connected model: every operation opens its own
// connection), enough to drive GetFileSize/GetFile/ListFiles.
type fakeHTTPServer struct {
	ln          net.Listener
	body        string
	listingHits int32 // GET .../listing/ requests actually served, for cache-hit tests
}

func startFakeHTTPServer(t *testing.T, body string) *fakeHTTPServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	fs := &fakeHTTPServer{ln: ln, body: body}

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go fs.serveOne(conn)
		}
	}()
	return fs
}

func (fs *fakeHTTPServer) serveOne(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	requestLine, err := r.ReadString('\n')
	if err != nil {
		return
	}
	for {
		line, err := r.ReadString('\n')
		if err != nil || strings.TrimRight(line, "\r\n") == "" {
			break
		}
	}

	fields := strings.Fields(requestLine)
	if len(fields) < 2 {
		return
	}
	method, target := fields[0], fields[1]

	switch {
	case method == "HEAD":
		fmt.Fprintf(conn, "HTTP/1.1 200 OK\r\nContent-Length: %d\r\n\r\n", len(fs.body))
	case method == "GET" && strings.HasSuffix(target, "/listing/"):
		atomic.AddInt32(&fs.listingHits, 1)
		html := `<html><body><a href="hello.txt">hello.txt</a> 12 Jan-01-2024<br></body></html>`
		fmt.Fprintf(conn, "HTTP/1.1 200 OK\r\nContent-Length: %d\r\n\r\n%s", len(html), html)
	case method == "GET" && strings.Contains(target, "chunked"):
		fmt.Fprintf(conn, "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n")
		fmt.Fprintf(conn, "%x\r\n%s\r\n0\r\n\r\n", len(fs.body), fs.body)
	default:
		fmt.Fprintf(conn, "HTTP/1.1 200 OK\r\nContent-Length: %d\r\n\r\n%s", len(fs.body), fs.body)
	}
}

func (fs *fakeHTTPServer) hostPort(t *testing.T) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(fs.ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

func newHTTPRequest(t *testing.T, fs *fakeHTTPServer) *xfer.Request {
	t.Helper()
	global := xfer.NewGlobalOptions()
	r := xfer.NewRequest(New(), global)
	host, port := fs.hostPort(t)
	r.Hostname = host
	r.Port = port
	return r
}

func TestConnectIsAlwaysConnected(t *testing.T) {
	fs := startFakeHTTPServer(t, "")
	r := newHTTPRequest(t, fs)
	require.NoError(t, r.Connect(context.Background()))
	assert.True(t, r.Connected())
}

func TestGetFileSizeParsesContentLength(t *testing.T) {
	fs := startFakeHTTPServer(t, "0123456789")
	r := newHTTPRequest(t, fs)
	require.NoError(t, r.Connect(context.Background()))
	size, err := r.Driver.(*Driver).GetFileSize(context.Background(), r, "f.bin")
	require.NoError(t, err)
	assert.Equal(t, int64(10), size)
}

func TestGetFileReadsPlainBody(t *testing.T) {
	body := "the quick brown fox"
	fs := startFakeHTTPServer(t, body)
	r := newHTTPRequest(t, fs)
	require.NoError(t, r.Connect(context.Background()))

	total, err := r.Driver.GetFile(context.Background(), r, "f.txt", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(len(body)), total)

	got := readAllChunks(t, r)
	require.NoError(t, r.Driver.EndTransfer(context.Background(), r))
	assert.Equal(t, body, got)
}

func TestGetFileReadsChunkedBody(t *testing.T) {
	body := "chunked response body"
	fs := startFakeHTTPServer(t, body)
	r := newHTTPRequest(t, fs)
	require.NoError(t, r.Connect(context.Background()))

	_, err := r.Driver.GetFile(context.Background(), r, "chunked/f.txt", 0)
	require.NoError(t, err)

	got := readAllChunks(t, r)
	require.NoError(t, r.Driver.EndTransfer(context.Background(), r))
	assert.Equal(t, body, got)
}

func TestListFilesParsesHTMLIndex(t *testing.T) {
	fs := startFakeHTTPServer(t, "")
	r := newHTTPRequest(t, fs)
	require.NoError(t, r.Connect(context.Background()))

	require.NoError(t, r.Driver.Chdir(context.Background(), r, "/listing"))
	require.NoError(t, r.Driver.ListFiles(context.Background(), r))
	rec, err := r.Driver.GetNextFile(context.Background(), r)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "hello.txt", rec.Name)
}

func TestListFilesServesSecondCallFromCache(t *testing.T) {
	fs := startFakeHTTPServer(t, "")
	r := newHTTPRequest(t, fs)
	r.Options.Set("cache_dir", xfer.Value{Kind: xfer.KindString, Str: t.TempDir()})
	require.NoError(t, r.Connect(context.Background()))
	require.NoError(t, r.Driver.Chdir(context.Background(), r, "/listing"))

	require.NoError(t, r.Driver.ListFiles(context.Background(), r))
	assert.False(t, r.Cached)
	assert.EqualValues(t, 1, fs.listingHits)

	require.NoError(t, r.Driver.ListFiles(context.Background(), r))
	assert.True(t, r.Cached)
	rec, err := r.Driver.GetNextFile(context.Background(), r)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "hello.txt", rec.Name)
	assert.EqualValues(t, 1, fs.listingHits, "second ListFiles should be served from cache, not a new GET")
}

func readAllChunks(t *testing.T, r *xfer.Request) string {
	t.Helper()
	var got []byte
	buf := make([]byte, 4)
	for {
		n, err := r.Driver.GetNextFileChunk(context.Background(), r, buf)
		require.NoError(t, err)
		if n == 0 {
			break
		}
		got = append(got, buf[:n]...)
	}
	return string(got)
}
