// Package sftp implements component H: a hand-rolled SFTP v3 client —
// packet framing, request/response id correlation, and the handle-based
// file/directory operations — run over an SSH transport that is itself
// abstracted behind the sshClient/sshSession interfaces in ssh.go
// (grounded on rclone's backend/sftp/ssh.go split between an internal
// golang.org/x/crypto/ssh transport and an external ssh-binary
// transport). This package owns the SFTP packet layer itself rather
// than wrapping github.com/pkg/sftp's client, the same "own the wire
// engine" stance as protocol/ftp and protocol/http — spec.md describes
// the framing, id correlation, and status-code mapping as this
// package's own responsibility.
package sftp

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/fangq/gftpgo/xfer"
)

// Packet types, spec.md §4.H's supported-request list plus the fixed
// response types (SSH_FXP_* from draft-ietf-secsh-filexfer-02).
const (
	typeInit     = 1
	typeVersion  = 2
	typeOpen     = 3
	typeClose    = 4
	typeRead     = 5
	typeWrite    = 6
	typeLStat    = 7
	typeSetStat  = 9
	typeOpenDir  = 11
	typeReadDir  = 12
	typeRemove   = 13
	typeMkdir    = 14
	typeRmdir    = 15
	typeRealPath = 16
	typeStat     = 17
	typeRename   = 18
	typeStatus   = 101
	typeHandle   = 102
	typeData     = 103
	typeName     = 104
	typeAttrs    = 105
)

// Status codes, spec.md §4.H.
const (
	statusOK               = 0
	statusEOF              = 1
	statusNoSuchFile       = 2
	statusPermissionDenied = 3
	statusFailure          = 4
	statusBadMessage       = 5
	statusNoConnection     = 6
	statusConnectionLost   = 7
	statusOpUnsupported    = 8
)

// Open flags (pflags), draft-ietf-secsh-filexfer-02 §6.3.
const (
	flagRead   = 0x00000001
	flagWrite  = 0x00000002
	flagAppend = 0x00000004
	flagCreat  = 0x00000008
	flagTrunc  = 0x00000010
	flagExcl   = 0x00000020
)

// maxPacketLen rejects any packet whose length prefix claims more than
// this, spec.md §4.H "Requests with len > 34000 are rejected as fatal."
const maxPacketLen = 34000

// packet is one decoded SFTP wire message: the 1-byte type, the 4-byte
// id (absent only for SSH_FXP_INIT/VERSION, which carry a version
// number in that slot instead), and the remaining payload.
type packet struct {
	Type    byte
	ID      uint32
	Payload []byte
}

// writePacket frames payload as "u32 length | u8 type | payload" (where
// payload already has the id encoded at its front for every type but
// INIT) and writes it whole.
func writePacket(w io.Writer, typ byte, payload []byte) error {
	length := 1 + len(payload)
	var header [5]byte
	binary.BigEndian.PutUint32(header[:4], uint32(length))
	header[4] = typ
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return err
		}
	}
	return nil
}

// readPacket reads one length-prefixed packet and splits off the id
// (the first 4 bytes of payload, for every type except INIT/VERSION).
func readPacket(r io.Reader) (*packet, error) {
	var header [5]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(header[:4])
	if length == 0 {
		return nil, fmt.Errorf("sftp: zero-length packet")
	}
	if length > maxPacketLen {
		return nil, fmt.Errorf("sftp: packet length %d exceeds %d", length, maxPacketLen)
	}
	typ := header[4]
	body := make([]byte, length-1)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	p := &packet{Type: typ}
	if typ == typeInit || typ == typeVersion {
		p.Payload = body
		return p, nil
	}
	if len(body) < 4 {
		return nil, fmt.Errorf("sftp: packet type %d too short for an id", typ)
	}
	p.ID = binary.BigEndian.Uint32(body[:4])
	p.Payload = body[4:]
	return p, nil
}

// encoder builds an SFTP payload left-to-right: id first (for every
// type but INIT), then fields in protocol order.
type encoder struct {
	buf []byte
}

func newEncoder(id uint32, hasID bool) *encoder {
	e := &encoder{}
	if hasID {
		e.uint32(id)
	}
	return e
}

func (e *encoder) uint32(v uint32) *encoder {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	e.buf = append(e.buf, b[:]...)
	return e
}

func (e *encoder) uint64(v uint64) *encoder {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	e.buf = append(e.buf, b[:]...)
	return e
}

func (e *encoder) str(s string) *encoder {
	e.uint32(uint32(len(s)))
	e.buf = append(e.buf, s...)
	return e
}

func (e *encoder) bytes(b []byte) *encoder {
	e.uint32(uint32(len(b)))
	e.buf = append(e.buf, b...)
	return e
}

func (e *encoder) bytesOut() []byte { return e.buf }

// decoder consumes an SFTP payload left-to-right, the inverse of
// encoder. Every accessor returns a Fatal *xfer.Error on underrun
// rather than panicking: a short payload is a protocol violation.
type decoder struct {
	buf []byte
	err error
}

func newDecoder(buf []byte) *decoder { return &decoder{buf: buf} }

func (d *decoder) take(n int) []byte {
	if d.err != nil || len(d.buf) < n {
		if d.err == nil {
			d.err = xfer.NewError(xfer.Fatal, "sftp_decode", "", fmt.Errorf("short payload"))
		}
		return nil
	}
	out := d.buf[:n]
	d.buf = d.buf[n:]
	return out
}

func (d *decoder) uint32() uint32 {
	b := d.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (d *decoder) uint64() uint64 {
	b := d.take(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (d *decoder) str() string {
	n := d.uint32()
	b := d.take(int(n))
	return string(b)
}

func (d *decoder) bytes() []byte {
	n := d.uint32()
	return append([]byte(nil), d.take(int(n))...)
}
