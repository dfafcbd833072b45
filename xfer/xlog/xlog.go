// Package xlog is the leveled logging facade every driver and the
// scheduler call through. It mirrors the call shape of rclone's
// fs.Debugf/fs.Logf/fs.Errorf family: a tag identifying the object doing
// the logging, a format string, and args.
package xlog

import (
	"fmt"
	"regexp"

	"github.com/sirupsen/logrus"
)

// Tag identifies the request or component emitting a log line, e.g.
// "ftp://host", "sftp-scheduler".
type Tag = string

var std = logrus.New()

// SetOutputForTesting lets tests capture log output instead of writing to
// the default stderr.
func SetOutputForTesting(l *logrus.Logger) {
	std = l
}

// SetDebug raises or lowers the standard logger's level between Info and
// Debug, the one knob a CLI front-end's -v flag needs.
func SetDebug(on bool) {
	if on {
		std.SetLevel(logrus.DebugLevel)
		return
	}
	std.SetLevel(logrus.InfoLevel)
}

var credentialLine = regexp.MustCompile(`(?i)^(PASS|ACCT)\s+.*$`)

// Scrub rewrites a line that looks like an outgoing FTP PASS/ACCT command
// so the real credential never reaches a log sink. It must be called
// after any proxy-script template substitution has happened, so the
// scrubber sees the same bytes that went out on the wire (see
// SPEC_FULL.md, supplemented features).
func Scrub(line string) string {
	if credentialLine.MatchString(line) {
		m := credentialLine.FindStringSubmatch(line)
		return m[1] + " xxxx"
	}
	return line
}

func line(tag Tag, format string, args ...any) string {
	msg := fmt.Sprintf(format, args...)
	if tag == "" {
		return msg
	}
	return tag + ": " + msg
}

// Debugf logs at debug level.
func Debugf(tag Tag, format string, args ...any) {
	std.Debug(line(tag, format, args...))
}

// Infof logs at info level.
func Infof(tag Tag, format string, args ...any) {
	std.Info(line(tag, format, args...))
}

// Errorf logs at error level. Every error the caller ultimately surfaces
// is also logged here, tagged distinctly so TUI renderers can color it
// (§7, user-visible failure behavior).
func Errorf(tag Tag, format string, args ...any) {
	std.WithField("kind", "Error").Error(line(tag, format, args...))
}
