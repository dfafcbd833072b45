package listing

import (
	"strings"
	"time"

	"github.com/fangq/gftpgo/xfer"
)

// parseMVS ports gftp_parse_ls_mvs:
// Volume Unit Referred Ext Used Recfm Lrecl BlkSz Dsorg Dsname
func parseMVS(line string, now time.Time) (*xfer.FileRecord, error) {
	_, rest := nextToken(line) // Volume
	_, rest = nextToken(rest)  // Unit
	if rest == "" {
		return nil, &ErrFatalParse{Line: line}
	}

	var dt = time.Time{}
	dt, rest = parseTime(rest, now) // Referred

	_, rest = nextToken(rest) // Ext
	if rest == "" {
		return nil, &ErrFatalParse{Line: line}
	}
	usedTok, rest2 := nextToken(rest)
	size := parseFileSize(usedTok) * 55996

	_, rest2 = nextToken(rest2) // Recfm
	_, rest2 = nextToken(rest2) // Lrecl
	_, rest2 = nextToken(rest2) // BlkSz
	dsorg, rest2 := nextToken(rest2)

	rec := &xfer.FileRecord{DateTime: dt, Size: size, User: "unknown", Group: "unknown"}
	switch dsorg {
	case "PS":
		rec.Mode = xfer.ModeReg | 0644
	case "PO":
		rec.Mode = xfer.ModeDir | 0755
		rec.IsDir = true
	default:
		return nil, &ErrFatalParse{Line: line}
	}
	rec.Name = strings.TrimLeft(rest2, " \t")
	if rec.Name == "" {
		return nil, &ErrFatalParse{Line: line}
	}
	return rec, nil
}
