package sftp

import (
	"time"

	"github.com/fangq/gftpgo/xfer"
)

// ATTRS flag bits, draft-ietf-secsh-filexfer-02 §5.
const (
	attrSize        = 0x00000001
	attrUIDGID      = 0x00000002
	attrPermissions = 0x00000004
	attrACModTime   = 0x00000008
)

// attrs is the decoded form of an SFTP ATTRS structure.
type attrs struct {
	Flags       uint32
	Size        uint64
	UID, GID    uint32
	Permissions uint32
	ATime       uint32
	MTime       uint32
}

func decodeAttrs(d *decoder) attrs {
	var a attrs
	a.Flags = d.uint32()
	if a.Flags&attrSize != 0 {
		a.Size = d.uint64()
	}
	if a.Flags&attrUIDGID != 0 {
		a.UID = d.uint32()
		a.GID = d.uint32()
	}
	if a.Flags&attrPermissions != 0 {
		a.Permissions = d.uint32()
	}
	if a.Flags&attrACModTime != 0 {
		a.ATime = d.uint32()
		a.MTime = d.uint32()
	}
	return a
}

func (a attrs) encode(e *encoder) {
	e.uint32(a.Flags)
	if a.Flags&attrSize != 0 {
		e.uint64(a.Size)
	}
	if a.Flags&attrUIDGID != 0 {
		e.uint32(a.UID)
		e.uint32(a.GID)
	}
	if a.Flags&attrPermissions != 0 {
		e.uint32(a.Permissions)
	}
	if a.Flags&attrACModTime != 0 {
		e.uint32(a.ATime)
		e.uint32(a.MTime)
	}
}

// toFileRecord maps a decoded attrs plus the name SFTP paired it with
// (from a NAME packet, spec.md §4.C's cross-driver FileRecord) onto our
// shared FileRecord shape.
func (a attrs) toFileRecord(name string) *xfer.FileRecord {
	rec := &xfer.FileRecord{
		Name: name,
		Size: xfer.SizeUnknown,
	}
	if a.Flags&attrSize != 0 {
		rec.Size = int64(a.Size)
	}
	if a.Flags&attrPermissions != 0 {
		rec.Mode = a.Permissions
	}
	if a.Flags&attrACModTime != 0 {
		rec.DateTime = time.Unix(int64(a.MTime), 0)
	}
	rec.IsDir = rec.Mode&xfer.ModeFmt == xfer.ModeDir
	rec.IsLink = rec.Mode&xfer.ModeFmt == xfer.ModeLnk
	return rec
}
