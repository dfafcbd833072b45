package ftp

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fangq/gftpgo/xfer"
)

// fakeServer is a minimal scripted RFC 959 server good enough to drive
// Driver through Connect/login/Chdir/ListFiles/GetFile/Disconnect. It
// runs a single control connection and serves PASV data connections on
// request.
type fakeServer struct {
	ln        net.Listener
	addr      string
	listCount int32 // LIST commands actually received, for cache-hit tests
}

func startFakeServer(t *testing.T, listingLine, fileBody string) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	fs := &fakeServer{ln: ln, addr: ln.Addr().String()}

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		w := func(s string) { _, _ = conn.Write([]byte(s + "\r\n")) }
		w("220 fake ready")

		r := bufio.NewReader(conn)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			cmd := strings.TrimRight(line, "\r\n")
			switch {
			case strings.HasPrefix(cmd, "USER"):
				w("331 need password")
			case strings.HasPrefix(cmd, "PASS"):
				w("230 logged in")
			case strings.HasPrefix(cmd, "CWD"):
				w("250 directory changed")
			case strings.HasPrefix(cmd, "MKD"):
				w("257 directory created")
			case strings.HasPrefix(cmd, "TYPE"):
				w("200 type set")
			case strings.HasPrefix(cmd, "PASV"):
				dataLn, err := net.Listen("tcp", "127.0.0.1:0")
				if err != nil {
					w("425 cannot open data connection")
					continue
				}
				port := dataLn.Addr().(*net.TCPAddr).Port
				w(fmt.Sprintf("227 Entering Passive Mode (127,0,0,1,%d,%d)", port>>8, port&0xff))
				go func() {
					dc, err := dataLn.Accept()
					dataLn.Close()
					if err != nil {
						return
					}
					defer dc.Close()
					if listingLine != "" {
						_, _ = dc.Write([]byte(listingLine + "\r\n"))
					}
					if fileBody != "" {
						_, _ = dc.Write([]byte(fileBody))
					}
				}()
			case strings.HasPrefix(cmd, "LIST"):
				atomic.AddInt32(&fs.listCount, 1)
				w("150 here comes the listing")
				time.Sleep(20 * time.Millisecond)
				w("226 listing complete")
			case strings.HasPrefix(cmd, "SIZE"):
				w(fmt.Sprintf("213 %d", len(fileBody)))
			case strings.HasPrefix(cmd, "RETR"):
				w("150 opening data connection")
				time.Sleep(20 * time.Millisecond)
				w("226 transfer complete")
			case strings.HasPrefix(cmd, "QUIT"):
				w("221 goodbye")
				return
			default:
				w("500 unknown command")
			}
		}
	}()
	return fs
}

func (fs *fakeServer) hostPort(t *testing.T) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(fs.addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

func newFTPRequest(t *testing.T, fs *fakeServer) *xfer.Request {
	t.Helper()
	global := xfer.NewGlobalOptions()
	r := xfer.NewRequest(New(), global)
	host, port := fs.hostPort(t)
	r.Hostname = host
	r.Port = port
	r.Username = "alice"
	r.Password = "secret"
	r.Options.Set("enable_ipv6", xfer.Value{Kind: xfer.KindBool, Bool: false})
	return r
}

func TestConnectLoginAndDisconnect(t *testing.T) {
	fs := startFakeServer(t, "", "")
	r := newFTPRequest(t, fs)
	require.NoError(t, r.Connect(context.Background()))
	assert.True(t, r.Connected())
	require.NoError(t, r.Disconnect())
	assert.False(t, r.Connected())
}

func TestListFilesParsesOneEntry(t *testing.T) {
	fs := startFakeServer(t, "-rw-r--r-- 1 alice users 12 Jan 1 00:00 hello.txt", "")
	r := newFTPRequest(t, fs)
	require.NoError(t, r.Connect(context.Background()))
	defer r.Disconnect()

	require.NoError(t, r.Driver.ListFiles(context.Background(), r))
	rec, err := r.Driver.GetNextFile(context.Background(), r)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "hello.txt", rec.Name)
	assert.Equal(t, int64(12), rec.Size)

	rec, err = r.Driver.GetNextFile(context.Background(), r)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestGetFileReadsBody(t *testing.T) {
	body := "0123456789"
	fs := startFakeServer(t, "", body)
	r := newFTPRequest(t, fs)
	require.NoError(t, r.Connect(context.Background()))
	defer r.Disconnect()

	total, err := r.Driver.GetFile(context.Background(), r, "f.bin", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(len(body)), total)

	var got []byte
	buf := make([]byte, 4)
	for {
		n, err := r.Driver.GetNextFileChunk(context.Background(), r, buf)
		require.NoError(t, err)
		if n == 0 {
			break
		}
		got = append(got, buf[:n]...)
		if len(got) >= len(body) {
			break
		}
	}
	require.NoError(t, r.Driver.EndTransfer(context.Background(), r))
	assert.Equal(t, body, string(got))
}

func TestListFilesServesSecondCallFromCache(t *testing.T) {
	fs := startFakeServer(t, "-rw-r--r-- 1 alice users 12 Jan 1 00:00 hello.txt", "")
	r := newFTPRequest(t, fs)
	r.Options.Set("cache_dir", xfer.Value{Kind: xfer.KindString, Str: t.TempDir()})
	require.NoError(t, r.Connect(context.Background()))
	defer r.Disconnect()

	require.NoError(t, r.Driver.ListFiles(context.Background(), r))
	assert.False(t, r.Cached)
	rec, err := r.Driver.GetNextFile(context.Background(), r)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "hello.txt", rec.Name)
	assert.EqualValues(t, 1, fs.listCount)

	require.NoError(t, r.Driver.ListFiles(context.Background(), r))
	assert.True(t, r.Cached)
	rec, err = r.Driver.GetNextFile(context.Background(), r)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "hello.txt", rec.Name)
	assert.EqualValues(t, 1, fs.listCount, "second ListFiles should be served from cache, not a new LIST")
}

func TestMkdirInvalidatesCachedListing(t *testing.T) {
	fs := startFakeServer(t, "-rw-r--r-- 1 alice users 12 Jan 1 00:00 hello.txt", "")
	r := newFTPRequest(t, fs)
	r.Options.Set("cache_dir", xfer.Value{Kind: xfer.KindString, Str: t.TempDir()})
	require.NoError(t, r.Connect(context.Background()))
	defer r.Disconnect()

	require.NoError(t, r.Driver.ListFiles(context.Background(), r))
	assert.EqualValues(t, 1, fs.listCount)

	require.NoError(t, r.Driver.Mkdir(context.Background(), r, "newdir"))

	require.NoError(t, r.Driver.ListFiles(context.Background(), r))
	assert.False(t, r.Cached)
	assert.EqualValues(t, 2, fs.listCount, "Mkdir should invalidate the cache, forcing a fresh LIST")
}
