package ftp

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/fangq/gftpgo/xfer"
	"github.com/fangq/gftpgo/xfer/iobuf"
	"github.com/fangq/gftpgo/xfer/xlog"
)

// response is the merged result of an RFC 959 control response: possibly
// several continuation lines ("250-...") terminated by a final line whose
// first three digits repeat the opening code followed by a space.
type response struct {
	Code int
	Last string
}

// class returns the functional class (1-5) of the response's first
// digit, spec.md §4.F.
func (r response) class() int {
	return r.Code / 100
}

func (r response) isPositive() bool { return r.class() == 1 || r.class() == 2 || r.class() == 3 }

// readResponse reads one (possibly multi-line) control response from lr.
// A 42x code is the spec's trigger for treating the control connection as
// dead; callers check for that via class()==4 && Code/10%10==2 through
// is42x below, since the FSM must disconnect on it.
func readResponse(ctx context.Context, lr *iobuf.LineReader) (*response, error) {
	first, err := lr.GetLine(ctx)
	if err != nil {
		return nil, xfer.NewError(xfer.Retryable, "ftp_response", "", err)
	}
	line := string(first)
	if len(line) < 4 {
		return nil, xfer.NewError(xfer.Fatal, "ftp_response", line, nil)
	}
	code, err := strconv.Atoi(line[:3])
	if err != nil {
		return nil, xfer.NewError(xfer.Fatal, "ftp_response", line, err)
	}
	last := line
	if line[3] == '-' {
		prefix := line[:3] + " "
		for {
			next, err := lr.GetLine(ctx)
			if err != nil {
				return nil, xfer.NewError(xfer.Retryable, "ftp_response", "", err)
			}
			last = string(next)
			if strings.HasPrefix(last, prefix) {
				break
			}
		}
	} else if line[3] != ' ' {
		return nil, xfer.NewError(xfer.Fatal, "ftp_response", line, nil)
	}
	return &response{Code: code, Last: last}, nil
}

func is42x(code int) bool { return code/10 == 42 }

// sendCommand writes cmd+CRLF to conn and logs it, scrubbing PASS/ACCT
// lines before they ever reach the log sink (spec.md §7; ordering
// confirmed against original_source/lib/rfc959.c's rfc959_send_command,
// which substitutes proxy template variables before this point).
func sendCommand(conn iobuf.Conn, timeout time.Duration, cmd string) error {
	xlog.Debugf("ftp", "-> %s", xlog.Scrub(cmd))
	return iobuf.Write(conn, []byte(cmd+"\r\n"), timeout, nil)
}
