package sftp

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadPacketRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	e := newEncoder(42, true)
	e.str("/home/alice")
	require.NoError(t, writePacket(&buf, typeOpen, e.bytesOut()))

	p, err := readPacket(&buf)
	require.NoError(t, err)
	assert.Equal(t, byte(typeOpen), p.Type)
	assert.Equal(t, uint32(42), p.ID)

	d := newDecoder(p.Payload)
	assert.Equal(t, "/home/alice", d.str())
}

func TestReadPacketInitHasNoID(t *testing.T) {
	var buf bytes.Buffer
	e := newEncoder(0, false)
	e.uint32(3)
	require.NoError(t, writePacket(&buf, typeInit, e.bytesOut()))

	p, err := readPacket(&buf)
	require.NoError(t, err)
	assert.Equal(t, byte(typeInit), p.Type)
	assert.Equal(t, uint32(0), p.ID)
	assert.Equal(t, uint32(3), newDecoder(p.Payload).uint32())
}

func TestReadPacketRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	var header [5]byte
	header[0], header[1], header[2], header[3] = 0xFF, 0xFF, 0xFF, 0xFF
	buf.Write(header[:])
	_, err := readPacket(&buf)
	assert.Error(t, err)
}

func TestAttrsEncodeDecodeRoundTrip(t *testing.T) {
	a := attrs{Flags: attrSize | attrPermissions, Size: 12345, Permissions: 0644}
	e := newEncoder(0, false)
	a.encode(e)
	got := decodeAttrs(newDecoder(e.bytesOut()))
	assert.Equal(t, a, got)
}

func TestAttrsToFileRecordUnknownSizeWhenAbsent(t *testing.T) {
	a := attrs{}
	rec := a.toFileRecord("f.txt")
	assert.Equal(t, int64(-1), rec.Size)
	assert.Equal(t, "f.txt", rec.Name)
}
