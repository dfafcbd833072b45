package sftp

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fangq/gftpgo/xfer"
)

// pipeRequest wires a Request directly to a *state backed by a net.Pipe,
// skipping Connect/the SSH transport entirely: the packet layer doesn't
// care what carries it, and Connect is exercised by Driver.Connect itself
// being a thin SSH-session-setup wrapper around sendInit, already covered
// by manual tracing against ssh_internal.go/ssh_external.go.
func pipeRequest(t *testing.T) (*xfer.Request, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	st := &state{rw: client, cwd: "/"}
	r := &xfer.Request{Driver: New(), Private: st}
	t.Cleanup(func() { client.Close(); server.Close() })
	return r, server
}

func serverReadPacket(t *testing.T, conn net.Conn) *packet {
	t.Helper()
	p, err := readPacket(conn)
	require.NoError(t, err)
	return p
}

func serverWritePacket(t *testing.T, conn net.Conn, typ byte, payload []byte) {
	t.Helper()
	require.NoError(t, writePacket(conn, typ, payload))
}

func TestSendInitHandshake(t *testing.T) {
	r, srv := pipeRequest(t)
	st := priv(r)

	done := make(chan error, 1)
	go func() { done <- st.sendInit() }()

	p := serverReadPacket(t, srv)
	assert.Equal(t, byte(typeInit), p.Type)
	assert.Equal(t, uint32(3), newDecoder(p.Payload).uint32())

	ve := newEncoder(0, false)
	ve.uint32(3)
	serverWritePacket(t, srv, typeVersion, ve.bytesOut())

	require.NoError(t, <-done)
}

func TestGetFileOpensAndReads(t *testing.T) {
	r, srv := pipeRequest(t)
	d := New()
	ctx := context.Background()

	errCh := make(chan error, 1)
	var total int64
	go func() {
		var err error
		total, err = d.GetFile(ctx, r, "greeting.txt", 0)
		errCh <- err
	}()

	// STAT round trip
	statReq := serverReadPacket(t, srv)
	assert.Equal(t, byte(typeStat), statReq.Type)
	ae := newEncoder(statReq.ID, true)
	a := attrs{Flags: attrSize, Size: 5}
	a.encode(ae)
	serverWritePacket(t, srv, typeAttrs, ae.bytesOut())

	// OPEN round trip
	openReq := serverReadPacket(t, srv)
	assert.Equal(t, byte(typeOpen), openReq.Type)
	he := newEncoder(openReq.ID, true)
	he.bytes([]byte{0x01, 0x02})
	serverWritePacket(t, srv, typeHandle, he.bytesOut())

	require.NoError(t, <-errCh)
	assert.Equal(t, int64(5), total)

	readErrCh := make(chan error, 1)
	var n int
	buf := make([]byte, 32*1024)
	go func() {
		var err error
		n, err = d.GetNextFileChunk(ctx, r, buf)
		readErrCh <- err
	}()

	readReq := serverReadPacket(t, srv)
	assert.Equal(t, byte(typeRead), readReq.Type)
	de := newEncoder(readReq.ID, true)
	de.bytes([]byte("hello"))
	serverWritePacket(t, srv, typeData, de.bytesOut())

	require.NoError(t, <-readErrCh)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(buf[:n]))
}

func TestListFilesParsesReaddir(t *testing.T) {
	r, srv := pipeRequest(t)
	d := New()
	ctx := context.Background()

	errCh := make(chan error, 1)
	go func() { errCh <- d.ListFiles(ctx, r) }()

	openReq := serverReadPacket(t, srv)
	assert.Equal(t, byte(typeOpenDir), openReq.Type)
	he := newEncoder(openReq.ID, true)
	he.bytes([]byte{0xAA})
	serverWritePacket(t, srv, typeHandle, he.bytesOut())

	readdirReq := serverReadPacket(t, srv)
	assert.Equal(t, byte(typeReadDir), readdirReq.Type)
	ne := newEncoder(readdirReq.ID, true)
	ne.uint32(3)
	ne.str(".")
	ne.str(".")
	attrs{}.encode(ne)
	ne.str("..")
	ne.str("..")
	attrs{}.encode(ne)
	ne.str("file.txt")
	ne.str("-rw-r--r-- file.txt")
	attrs{Flags: attrSize, Size: 10}.encode(ne)
	serverWritePacket(t, srv, typeName, ne.bytesOut())

	readdirReq2 := serverReadPacket(t, srv)
	assert.Equal(t, byte(typeReadDir), readdirReq2.Type)
	se := newEncoder(readdirReq2.ID, true)
	se.uint32(statusEOF)
	se.str("EOF")
	serverWritePacket(t, srv, typeStatus, se.bytesOut())

	closeReq := serverReadPacket(t, srv)
	assert.Equal(t, byte(typeClose), closeReq.Type)
	ce := newEncoder(closeReq.ID, true)
	ce.uint32(statusOK)
	ce.str("")
	serverWritePacket(t, srv, typeStatus, ce.bytesOut())

	require.NoError(t, <-errCh)

	rec, err := d.GetNextFile(ctx, r)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "file.txt", rec.Name)
	assert.Equal(t, int64(10), rec.Size)

	rec2, err := d.GetNextFile(ctx, r)
	require.NoError(t, err)
	assert.Nil(t, rec2)
}

// TestRoundTripIDMismatchIsFatal checks that a response whose id differs
// from the request's fails the operation with a Fatal error. The
// session's state afterwards is not checked.
func TestRoundTripIDMismatchIsFatal(t *testing.T) {
	r, srv := pipeRequest(t)
	d := New()
	ctx := context.Background()

	errCh := make(chan error, 1)
	go func() {
		_, err := d.GetFile(ctx, r, "f.txt", 0)
		errCh <- err
	}()

	statReq := serverReadPacket(t, srv)
	wrongID := statReq.ID + 1
	ae := newEncoder(wrongID, true)
	attrs{}.encode(ae)
	serverWritePacket(t, srv, typeAttrs, ae.bytesOut())

	err := <-errCh
	require.Error(t, err)
	assert.True(t, xfer.IsFatal(err))
}

func TestScanLoginPromptsAnswersPasswordPrompt(t *testing.T) {
	in, out := net.Pipe()
	var dst writeBuf
	done := make(chan struct{})
	var result []byte
	nulHeader := []byte{0, 0, 0, 1, 0}
	go func() {
		r, err := scanLoginPrompts(in, &dst, "s3cret")
		require.NoError(t, err)
		buf := make([]byte, len(nulHeader))
		_, err = io.ReadFull(r, buf)
		require.NoError(t, err)
		result = buf
		close(done)
	}()

	_, err := out.Write([]byte("alice@host's password: "))
	require.NoError(t, err)

	go func() { out.Write(nulHeader) }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scanLoginPrompts did not return")
	}
	assert.Equal(t, "s3cret\n", dst.String())
	assert.Equal(t, nulHeader, result)
}

type writeBuf struct {
	data []byte
}

func (w *writeBuf) Write(p []byte) (int, error) {
	w.data = append(w.data, p...)
	return len(p), nil
}

func (w *writeBuf) String() string { return string(w.data) }
