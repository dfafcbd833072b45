package listing

import (
	"strings"
	"time"

	"github.com/fangq/gftpgo/xfer"
)

// parseNovell ports gftp_parse_ls_novell: a 12-char attribute block,
// owner, size, date, filename.
func parseNovell(line string, now time.Time) (*xfer.FileRecord, error) {
	if len(line) < 13 || line[12] != ' ' {
		return nil, &ErrFatalParse{Line: line}
	}
	attrs := line[:12]
	rest := strings.TrimLeft(line[13:], " \t")

	rec := &xfer.FileRecord{Mode: xfer.AttributesToMode(attrs)}
	rec.IsDir = rec.Mode&xfer.ModeFmt == xfer.ModeDir

	rec.User, rest = nextToken(rest)
	rec.Group = "unknown"

	i := 0
	for i < len(rest) && !isDigit(rest[i]) {
		i++
	}
	rest = rest[i:]
	sizeTok, rest2 := nextToken(rest)
	rec.Size = parseFileSize(sizeTok)

	rec.DateTime, rest2 = parseTime(rest2, now)
	rec.Name = strings.TrimLeft(rest2, " \t")
	if rec.Name == "" {
		return nil, &ErrFatalParse{Line: line}
	}
	return rec, nil
}
