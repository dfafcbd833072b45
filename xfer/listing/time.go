package listing

import (
	"strconv"
	"strings"
	"time"
)

// parseTime implements spec.md §4.C's shared date parser: it accepts
// several listing-date spellings and, on total failure, still advances
// past two whitespace-delimited tokens and returns the epoch (time
// zero), so callers like the HTTP HTML-index parser can keep scanning
// past an unparseable field instead of aborting.
//
// now is injected so tests are deterministic; callers pass time.Now().
func parseTime(s string, now time.Time) (t time.Time, rest string) {
	layouts := []struct {
		layout   string
		yearless bool
	}{
		{"01-02-06 03:04PM", false}, // DOS: 07-06-99  12:57PM
		{"02-Jan-2006 15:04", false},
		{"2006/01/02", false},
		{"Jan 2 15:04", true}, // MON DD HH:MM, year inferred
		{"Jan 2 2006", false}, // MON DD YYYY
	}
	for _, l := range layouts {
		n := tokenCount(l.layout)
		field, remainder := takeTokensNormalized(s, n)
		if field == "" {
			continue
		}
		parsed, err := time.ParseInLocation(l.layout, field, time.Local)
		if err != nil {
			continue
		}
		if l.yearless {
			year := now.Year()
			if parsed.Month() > now.Month() {
				year--
			}
			parsed = time.Date(year, parsed.Month(), parsed.Day(), parsed.Hour(), parsed.Minute(), 0, 0, time.Local)
		}
		return parsed, remainder
	}
	// Total failure: advance past two tokens and return epoch 0, per spec.
	_, remainder := takeTokensNormalized(s, 2)
	return time.Unix(0, 0).UTC(), remainder
}

// tokenCount returns how many whitespace-delimited tokens a layout
// string spans (used only to know how many input tokens to try to
// consume for a candidate layout).
func tokenCount(layout string) int {
	return len(strings.Fields(layout))
}

// takeTokensNormalized splits off the first n whitespace-delimited
// tokens of s, joining them with a single space regardless of how much
// whitespace separated them in the input (listings pad columns with
// runs of spaces for alignment), and returns the untouched remainder.
func takeTokensNormalized(s string, n int) (field, rest string) {
	pos := 0
	var toks []string
	for pos < len(s) && len(toks) < n {
		for pos < len(s) && (s[pos] == ' ' || s[pos] == '\t') {
			pos++
		}
		start := pos
		for pos < len(s) && s[pos] != ' ' && s[pos] != '\t' {
			pos++
		}
		if pos == start {
			break
		}
		toks = append(toks, s[start:pos])
	}
	if len(toks) == 0 {
		return "", s
	}
	return strings.Join(toks, " "), strings.TrimLeft(s[pos:], " \t")
}

// parseVMSTime implements parse_vms_time: "8-JUN-2004 13:04:14" or
// "...13:04", falling back to skipping two tokens on failure.
func parseVMSTime(s string) (t time.Time, rest string) {
	for _, layout := range []string{"2-Jan-2006 15:04:05", "2-Jan-2006 15:04"} {
		n := tokenCount(layout)
		field, remainder := takeTokensNormalized(s, n)
		if field == "" {
			continue
		}
		parsed, err := time.ParseInLocation(layout, field, time.Local)
		if err == nil {
			return parsed, remainder
		}
	}
	_, remainder := takeTokensNormalized(s, 2)
	return time.Unix(0, 0).UTC(), remainder
}

// parseFileSize mirrors gftp_parse_file_size: a plain integer, tolerant
// of a trailing non-digit (e.g. EPLF's trailing comma).
func parseFileSize(s string) int64 {
	i := 0
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	neg := false
	if i < len(s) && (s[i] == '-' || s[i] == '+') {
		neg = s[i] == '-'
		i++
	}
	digitsStart := i
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == digitsStart {
		return 0
	}
	n, err := strconv.ParseInt(s[digitsStart:i], 10, 64)
	if err != nil {
		return 0
	}
	if neg {
		n = -n
	}
	return n
}
