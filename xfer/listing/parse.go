// Package listing implements component C: the seven directory-listing
// format parsers dispatched by a single entry point, spec.md §4.C.
package listing

import (
	"fmt"
	"strings"
	"time"

	"github.com/fangq/gftpgo/xfer"
)

// ServerType selects (or asks to autodetect) a listing format, the Go
// analogue of gftp's server_type hint set by FTP SYST.
type ServerType int

const (
	Autodetect ServerType = iota
	Unix
	Cray
	DOS
	Novell
	EPLF
	VMS
	MVS
)

// ErrFatalParse is returned for unrecoverable garbage, per spec.md §4.C
// ("Every parser returns Ok, FatalParse, ...") and the §8 invariant that
// a failed parse never yields an empty-name success.
type ErrFatalParse struct{ Line string }

func (e *ErrFatalParse) Error() string {
	return fmt.Sprintf("listing: cannot parse line %q", e.Line)
}

// MoreLines is called by the VMS multi-line variant to pull the next
// line from the same connection's line buffer (spec.md §4.C, §4.D).
type MoreLines func() (string, error)

// Detect implements the autodetect heuristic of spec.md §4.C.
func Detect(line string) ServerType {
	if strings.HasPrefix(line, "+") {
		return EPLF
	}
	if len(line) > 2 && isDigit(line[0]) && line[2] == '-' {
		return DOS
	}
	if len(line) > 2 && line[1] == ' ' && line[2] == '[' {
		return Novell
	}
	if tok := firstToken(line); strings.Contains(tok, ";") {
		return VMS
	}
	return Unix
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func firstToken(s string) string {
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s
	}
	return s[:i]
}

// nextToken returns the next whitespace-delimited token in s and the
// remainder after it, analogous to gftp's copy_token/goto_next_token
// pair but without in-place mutation.
func nextToken(s string) (tok, rest string) {
	s = strings.TrimLeft(s, " \t")
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimLeft(s[i:], " \t")
}

// ParseLS dispatches to the format-specific parser named or detected.
// now is the reference time used to disambiguate year-less dates.
func ParseLS(line string, st ServerType, now time.Time, more MoreLines) (*xfer.FileRecord, error) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return nil, &ErrFatalParse{Line: line}
	}
	if st == Autodetect {
		st = Detect(line)
	}
	var (
		rec *xfer.FileRecord
		err error
	)
	switch st {
	case Unix, Cray:
		rec, err = parseUnix(line, now, st == Cray)
	case EPLF:
		rec, err = parseEPLF(line)
	case Novell:
		rec, err = parseNovell(line, now)
	case DOS:
		rec, err = parseDOS(line, now)
	case VMS:
		rec, err = parseVMS(line, more)
	case MVS:
		rec, err = parseMVS(line, now)
	default:
		rec, err = parseUnix(line, now, false)
	}
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.Name == "" {
		return nil, &ErrFatalParse{Line: line}
	}
	return rec, nil
}
