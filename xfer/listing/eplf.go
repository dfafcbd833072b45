package listing

import (
	"strconv"
	"strings"
	"time"

	"github.com/fangq/gftpgo/xfer"
)

// parseEPLF ports gftp_parse_ls_eplf: fields delimited by ',' between
// the leading '+' and the trailing TAB; recognized tags are '/'
// (directory), 's' (size), 'm' (mtime seconds). The name follows the TAB.
func parseEPLF(line string) (*xfer.FileRecord, error) {
	tabIdx := strings.IndexByte(line, '\t')
	if tabIdx < 0 {
		return nil, &ErrFatalParse{Line: line}
	}
	fields := strings.Split(line[1:tabIdx], ",")
	rec := &xfer.FileRecord{}
	isDir := false
	for _, f := range fields {
		if f == "" {
			continue
		}
		switch f[0] {
		case '/':
			isDir = true
		case 's':
			rec.Size = parseFileSize(f[1:])
		case 'm':
			secs, err := strconv.ParseInt(f[1:], 10, 64)
			if err == nil {
				rec.DateTime = time.Unix(secs, 0).UTC()
			}
		}
	}
	if isDir {
		rec.Mode = xfer.ModeDir | 0755
		rec.IsDir = true
	} else {
		rec.Mode = xfer.ModeReg | 0644
	}
	rec.User = "unknown"
	rec.Group = "unknown"
	rec.Name = line[tabIdx+1:]
	if rec.Name == "" {
		return nil, &ErrFatalParse{Line: line}
	}
	return rec, nil
}
