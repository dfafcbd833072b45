package listing

import (
	"strings"
	"time"

	"github.com/fangq/gftpgo/xfer"
)

// parseUnix ports gftp_parse_ls_unix: counts tokens up to (and
// including, doubled) the one containing a ':' to classify the column
// layout, then decodes attrs/links/[user]/[group]/size/date/name.
func parseUnix(line string, now time.Time, cray bool) (*xfer.FileRecord, error) {
	cols := countColumns(line)

	attrs, rest := nextToken(line)
	if len(attrs) < 10 {
		return nil, &ErrFatalParse{Line: line}
	}
	rec := &xfer.FileRecord{Mode: xfer.AttributesToMode(attrs)}

	switch {
	case cols >= 9:
		_, rest = nextToken(rest) // links
		rec.User, rest = nextToken(rest)
		rec.Group, rest = nextToken(rest)
	case cols == 8:
		_, rest = nextToken(rest) // links
		rec.User, rest = nextToken(rest)
		rec.Group = "unknown"
	default:
		_, rest = nextToken(rest) // links
		rec.User = "unknown"
		rec.Group = "unknown"
	}

	if cray && cols == 11 && !strings.Contains(line, "->") {
		_, rest = nextToken(rest)
		_, rest = nextToken(rest)
	}

	sizeTok, afterSize := nextToken(rest)
	if rec.IsDevice() {
		parts := strings.SplitN(sizeTok, ",", 2)
		major := parseFileSize(parts[0])
		var minorTok string
		if len(parts) == 2 && parts[1] != "" {
			minorTok = parts[1]
		} else {
			minorTok, afterSize = nextToken(afterSize)
		}
		minor := parseFileSize(minorTok)
		rec.Size = major<<16 | (minor & 0xff)
	} else {
		rec.Size = parseFileSize(sizeTok)
	}

	rec.DateTime, afterSize = parseTime(afterSize, now)

	name, _ := nextToken(afterSize)
	if rec.Mode&xfer.ModeFmt == xfer.ModeLnk {
		if i := strings.Index(afterSize, " -> "); i >= 0 {
			name = strings.TrimSpace(afterSize[:i])
			rec.LinkTarget = strings.TrimSpace(afterSize[i+4:])
		}
	} else {
		name = strings.TrimLeft(afterSize, " \t")
	}
	rec.Name = name
	rec.IsDir = rec.Mode&xfer.ModeFmt == xfer.ModeDir
	rec.IsLink = rec.Mode&xfer.ModeFmt == xfer.ModeLnk
	return rec, nil
}

// countColumns mirrors the C column-counting loop: walk whitespace
// delimited tokens, incrementing cols once per token, except the token
// that contains a ':' (the time-of-day field) counts twice and stops
// the scan. For a typical "attrs links user group size Mon DD HH:MM
// name" line this yields 9.
func countColumns(line string) int {
	cols := 0
	pos := 0
	n := len(line)
	for pos < n {
		for pos < n && line[pos] != ' ' && line[pos] != '\t' {
			if line[pos] == ':' {
				break
			}
			pos++
		}
		cols++
		if pos < n && line[pos] == ':' {
			cols++
			break
		}
		for pos < n && (line[pos] == ' ' || line[pos] == '\t') {
			pos++
		}
	}
	return cols
}
