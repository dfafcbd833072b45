package http

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fangq/gftpgo/xfer/iobuf"
)

// httpResponse is the parsed status line and the handful of headers the
// driver cares about, grounded on rfc2068_read_response.
type httpResponse struct {
	Status        int
	StatusLine    string
	ContentLength int64 // -1 if absent
	Chunked       bool

	lr *iobuf.LineReader
}

// readHTTPResponse reads the status line and header block up to the
// terminating blank line, extracting Content-Length and
// Transfer-Encoding: chunked the way rfc2068_read_response does.
func readHTTPResponse(ctx context.Context, lr *iobuf.LineReader) (*httpResponse, error) {
	statusLine, err := lr.GetLine(ctx)
	if err != nil {
		return nil, err
	}
	resp := &httpResponse{StatusLine: string(statusLine), ContentLength: -1}
	fields := strings.Fields(resp.StatusLine)
	if len(fields) < 2 {
		return nil, fmt.Errorf("http: malformed status line %q", resp.StatusLine)
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, fmt.Errorf("http: malformed status code in %q", resp.StatusLine)
	}
	resp.Status = code

	for {
		line, err := lr.GetLine(ctx)
		if err != nil {
			return nil, err
		}
		if len(line) == 0 {
			break
		}
		text := string(line)
		switch {
		case strings.HasPrefix(strings.ToLower(text), "content-length:"):
			v := strings.TrimSpace(text[len("content-length:"):])
			n, err := strconv.ParseInt(v, 10, 64)
			if err == nil {
				resp.ContentLength = n
			}
		case strings.EqualFold(text, "transfer-encoding: chunked"):
			resp.Chunked = true
		}
	}
	return resp, nil
}

// bodyReader returns the right body decoder for this response: chunked
// takes priority over Content-Length the way the original checks
// chunked_transfer before content_length.
func (resp *httpResponse) bodyReader() bodyReader {
	if resp.Chunked {
		return &chunkedReader{lr: resp.lr}
	}
	return &contentLengthReader{lr: resp.lr, remaining: resp.ContentLength}
}

// contentLengthReader reads exactly ContentLength bytes (or, if it was
// absent, reads until the connection closes).
type contentLengthReader struct {
	lr        *iobuf.LineReader
	remaining int64 // -1 means unbounded: read until EOF
}

func (c *contentLengthReader) Read(ctx context.Context, p []byte) (int, error) {
	if c.remaining == 0 {
		return 0, io.EOF
	}
	if c.remaining > 0 && int64(len(p)) > c.remaining {
		p = p[:c.remaining]
	}
	n, err := c.lr.ReadRaw(p)
	if c.remaining > 0 {
		c.remaining -= int64(n)
	}
	return n, err
}

// chunkedReader decodes HTTP/1.1 chunked transfer coding per spec.md
// §4.G: "<hex>\r\n" then that many bytes then "\r\n"; a 0-size chunk
// terminates. A Read for more than the current chunk is clipped to the
// chunk boundary; the next Read transparently opens the next chunk
// header, so callers never see chunk boundaries.
type chunkedReader struct {
	lr        *iobuf.LineReader
	remaining int64
	done      bool
}

func (c *chunkedReader) Read(ctx context.Context, p []byte) (int, error) {
	if c.done {
		return 0, io.EOF
	}
	if c.remaining == 0 {
		size, err := c.nextChunkSize(ctx)
		if err != nil {
			return 0, err
		}
		if size == 0 {
			c.done = true
			return 0, io.EOF
		}
		c.remaining = size
	}
	if int64(len(p)) > c.remaining {
		p = p[:c.remaining]
	}
	n, err := c.lr.ReadRaw(p)
	c.remaining -= int64(n)
	if err != nil {
		return n, err
	}
	if c.remaining == 0 {
		// consume the trailing CRLF that closes this chunk
		if _, err := c.lr.GetLine(ctx); err != nil {
			return n, err
		}
	}
	return n, nil
}

func (c *chunkedReader) nextChunkSize(ctx context.Context) (int64, error) {
	line, err := c.lr.GetLine(ctx)
	if err != nil {
		return 0, err
	}
	hex := string(line)
	if i := strings.IndexByte(hex, ';'); i >= 0 {
		hex = hex[:i]
	}
	hex = strings.TrimSpace(hex)
	size, err := strconv.ParseInt(hex, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("http: bad chunk size %q", hex)
	}
	return size, nil
}
