package listing

import (
	"strings"
	"time"

	"github.com/fangq/gftpgo/xfer"
)

// parseDOS ports gftp_parse_ls_nt: "07-06-99  12:57PM  <DIR>  name" or
// "07-06-99  12:57PM  1024  name". Mode is synthesized, not transmitted.
func parseDOS(line string, now time.Time) (*xfer.FileRecord, error) {
	dt, rest := parseTime(line, now)
	rest = strings.TrimLeft(rest, " \t")

	rec := &xfer.FileRecord{DateTime: dt}
	sizeTok, nameRest := nextToken(rest)
	if strings.EqualFold(sizeTok, "<DIR>") {
		rec.IsDir = true
		rec.Mode = xfer.ModeDir | 0755
	} else {
		rec.Mode = xfer.ModeReg | 0644
		rec.Size = parseFileSize(sizeTok)
	}
	rec.Name = strings.TrimLeft(nameRest, " \t")
	rec.User = "unknown"
	rec.Group = "unknown"
	if rec.Name == "" {
		return nil, &ErrFatalParse{Line: line}
	}
	return rec, nil
}
