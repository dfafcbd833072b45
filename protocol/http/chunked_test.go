package http

import (
	"context"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fangq/gftpgo/xfer/iobuf"
)

func pipeLineReader(t *testing.T) (net.Conn, *iobuf.LineReader) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { server.Close(); client.Close() })
	return server, iobuf.NewLineReader(client, maxHeaderLineLen, 0, nil)
}

func TestReadHTTPResponseContentLength(t *testing.T) {
	server, lr := pipeLineReader(t)
	go func() {
		_, _ = server.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 5\r\nServer: test\r\n\r\nhello"))
	}()
	resp, err := readHTTPResponse(context.Background(), lr)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, int64(5), resp.ContentLength)
	assert.False(t, resp.Chunked)
}

func TestReadHTTPResponseChunkedHeader(t *testing.T) {
	server, lr := pipeLineReader(t)
	go func() {
		_, _ = server.Write([]byte("HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n"))
	}()
	resp, err := readHTTPResponse(context.Background(), lr)
	require.NoError(t, err)
	assert.True(t, resp.Chunked)
	assert.Equal(t, int64(-1), resp.ContentLength)
}

func TestReadHTTPResponseMalformedStatusLine(t *testing.T) {
	server, lr := pipeLineReader(t)
	go func() { _, _ = server.Write([]byte("nope\r\n")) }()
	_, err := readHTTPResponse(context.Background(), lr)
	assert.Error(t, err)
}

func TestContentLengthReaderReadsExactCount(t *testing.T) {
	server, lr := pipeLineReader(t)
	go func() { _, _ = server.Write([]byte("hello world extra bytes after body")) }()
	cr := &contentLengthReader{lr: lr, remaining: 11}
	buf := make([]byte, 4)
	var got []byte
	for {
		n, err := cr.Read(context.Background(), buf)
		got = append(got, buf[:n]...)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}
	assert.Equal(t, "hello world", string(got))
}

func TestChunkedReaderDecodesMultipleChunks(t *testing.T) {
	server, lr := pipeLineReader(t)
	go func() {
		_, _ = server.Write([]byte("5\r\nhello\r\n6\r\n world\r\n0\r\n\r\n"))
	}()
	cr := &chunkedReader{lr: lr}
	buf := make([]byte, 64)
	var got []byte
	for {
		n, err := cr.Read(context.Background(), buf)
		got = append(got, buf[:n]...)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}
	assert.Equal(t, "hello world", string(got))
}

func TestChunkedReaderClipsOversizedReadAndResyncs(t *testing.T) {
	server, lr := pipeLineReader(t)
	go func() {
		_, _ = server.Write([]byte("3\r\nabc\r\n3\r\ndef\r\n0\r\n\r\n"))
	}()
	cr := &chunkedReader{lr: lr}
	buf := make([]byte, 64) // larger than any single chunk
	n1, err := cr.Read(context.Background(), buf)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(buf[:n1]))

	n2, err := cr.Read(context.Background(), buf)
	require.NoError(t, err)
	assert.Equal(t, "def", string(buf[:n2]))

	n3, err := cr.Read(context.Background(), buf)
	assert.Equal(t, 0, n3)
	assert.Equal(t, io.EOF, err)
}
