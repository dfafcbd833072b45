package listing

import (
	"strings"

	"github.com/fangq/gftpgo/xfer"
)

// parseVMS ports gftp_parse_ls_vms, including the multi-line variant:
// "name;ver  blocks  DD-MON-YYYY HH:MM:SS [owner] (R,W,E,D access)". When
// the first line contains no space the metadata lives on the next line,
// fetched via more (spec.md §4.C: "may consume an additional line from
// fd via the line buffer").
func parseVMS(line string, more MoreLines) (*xfer.FileRecord, error) {
	semi := strings.IndexByte(line, ';')
	if semi < 0 {
		return nil, &ErrFatalParse{Line: line}
	}
	name := line[:semi]
	isDir := false
	if strings.HasSuffix(strings.ToUpper(name), ".DIR") {
		isDir = true
		name = name[:len(name)-4]
	}
	if name == "" {
		return nil, &ErrFatalParse{Line: line}
	}

	rec := &xfer.FileRecord{Name: name, IsDir: isDir}

	multiline := !strings.ContainsAny(line, " \t")
	var metaLine string
	if multiline {
		if more == nil {
			return nil, &ErrFatalParse{Line: line}
		}
		l, err := more()
		if err != nil {
			return nil, &ErrFatalParse{Line: line}
		}
		metaLine = strings.TrimLeft(l, " \t")
	} else {
		metaLine = strings.TrimLeft(line[semi+1:], " \t")
	}

	blocksTok, rest := nextToken(metaLine)
	rec.Size = parseFileSize(blocksTok) * 512

	rec.DateTime, rest = parseVMSTime(strings.TrimLeft(rest, " \t"))

	rest = strings.TrimLeft(rest, " \t")
	if !strings.HasPrefix(rest, "[") {
		if isDir {
			rec.Mode = xfer.ModeDir | 0755
		} else {
			rec.Mode = xfer.ModeReg | 0644
		}
		rec.User, rec.Group = "", ""
		return rec, nil
	}
	end := strings.IndexByte(rest, ']')
	if end < 0 {
		return nil, &ErrFatalParse{Line: line}
	}
	rest = strings.TrimLeft(rest[end+1:], " \t")
	comma := strings.IndexByte(rest, ',')
	if comma < 0 {
		if isDir {
			rec.Mode |= xfer.ModeDir
		} else {
			rec.Mode |= xfer.ModeReg
		}
		rec.User, rec.Group = "", ""
		return rec, nil
	}
	rest = rest[comma+1:]

	var mode uint32
	mode |= vmsAccess(&rest, 0700)
	mode |= vmsAccess(&rest, 0070)
	mode |= vmsAccess(&rest, 0007)
	if isDir {
		mode |= xfer.ModeDir
	} else {
		mode |= xfer.ModeReg
	}
	rec.Mode = mode
	rec.User, rec.Group = "", ""
	return rec, nil
}

// vmsAccess ports gftp_parse_vms_attribs: an (R,W,E) triplet separated
// by commas, masked onto the user/group/other rwx bits.
func vmsAccess(rest *string, mask uint32) uint32 {
	s := *rest
	end := strings.IndexByte(s, ',')
	var field string
	if end < 0 {
		field = s
		*rest = ""
	} else {
		field = s[:end]
		*rest = s[end+1:]
	}
	var bits uint32
	if strings.ContainsRune(field, 'R') {
		bits |= 0444
	}
	if strings.ContainsRune(field, 'W') {
		bits |= 0222
	}
	if strings.ContainsRune(field, 'E') {
		bits |= 0111
	}
	return bits & mask
}
