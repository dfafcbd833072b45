package ftp

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fangq/gftpgo/xfer/iobuf"
)

func pipeLineReader(t *testing.T) (server net.Conn, lr *iobuf.LineReader) {
	t.Helper()
	client, srv := net.Pipe()
	t.Cleanup(func() { client.Close(); srv.Close() })
	return srv, iobuf.NewLineReader(client, 4096, time.Second, nil)
}

func TestReadResponseSingleLine(t *testing.T) {
	srv, lr := pipeLineReader(t)
	go func() { _, _ = srv.Write([]byte("220 Ready.\r\n")) }()

	resp, err := readResponse(context.Background(), lr)
	require.NoError(t, err)
	assert.Equal(t, 220, resp.Code)
	assert.Equal(t, "220 Ready.", resp.Last)
	assert.Equal(t, 2, resp.class())
	assert.True(t, resp.isPositive())
}

func TestReadResponseMultiLine(t *testing.T) {
	srv, lr := pipeLineReader(t)
	go func() {
		_, _ = srv.Write([]byte("250-First line.\r\n"))
		_, _ = srv.Write([]byte("250-Second line.\r\n"))
		_, _ = srv.Write([]byte("250 Done.\r\n"))
	}()

	resp, err := readResponse(context.Background(), lr)
	require.NoError(t, err)
	assert.Equal(t, 250, resp.Code)
	assert.Equal(t, "250 Done.", resp.Last)
}

func TestReadResponseMultiLineTerminatesOnFirstMatchingCode(t *testing.T) {
	srv, lr := pipeLineReader(t)
	go func() {
		_, _ = srv.Write([]byte("250-First line.\r\n"))
		_, _ = srv.Write([]byte("250-Second line, code 250 appears mid-text.\r\n"))
		_, _ = srv.Write([]byte("250 Actually done.\r\n"))
	}()

	resp, err := readResponse(context.Background(), lr)
	require.NoError(t, err)
	assert.Equal(t, "250 Actually done.", resp.Last)
}

func TestReadResponseMalformedTooShort(t *testing.T) {
	srv, lr := pipeLineReader(t)
	go func() { _, _ = srv.Write([]byte("42\r\n")) }()

	_, err := readResponse(context.Background(), lr)
	assert.Error(t, err)
}

func TestIs42x(t *testing.T) {
	assert.True(t, is42x(421))
	assert.True(t, is42x(425))
	assert.True(t, is42x(426))
	assert.False(t, is42x(220))
	assert.False(t, is42x(550))
	assert.False(t, is42x(226))
}
