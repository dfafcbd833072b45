package listing

import (
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/fangq/gftpgo/xfer"
)

// ParseHTMLIndex implements the HTML-index parser of spec.md §4.C: scan
// for <A HREF="name"> case-insensitively (golang.org/x/net/html handles
// the case-insensitivity for us by lower-casing element/attr names),
// trailing '/' marks a directory, then scan the text following the
// anchor on the same listing row for a date (DD-MON-YYYY HH:MM or MON DD
// YYYY) and a human size ending in 'k' or 'M'.
func ParseHTMLIndex(r io.Reader, now time.Time) ([]*xfer.FileRecord, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	var records []*xfer.FileRecord
	seen := map[string]bool{}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			href := attr(n, "href")
			if href != "" && href != "../" && !strings.HasPrefix(href, "?") {
				trailing := trailingText(n)
				rec := recordFromAnchor(href, trailing, now)
				if rec != nil && !seen[rec.Name] {
					seen[rec.Name] = true
					records = append(records, rec)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return records, nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

// trailingText collects the text between this anchor and the next
// newline in the document's rendered text, which is where Apache/NGINX
// style autoindex pages place the date and size columns.
func trailingText(n *html.Node) string {
	var b strings.Builder
	for sib := n.NextSibling; sib != nil; sib = sib.NextSibling {
		if sib.Type == html.ElementNode && sib.Data == "a" {
			break
		}
		if sib.Type == html.TextNode {
			if strings.Contains(sib.Data, "\n") {
				b.WriteString(strings.SplitN(sib.Data, "\n", 2)[0])
				break
			}
			b.WriteString(sib.Data)
		}
		if sib.Type == html.ElementNode && sib.Data == "br" {
			break
		}
	}
	return b.String()
}

var sizePattern = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*([kM])\b`)

func recordFromAnchor(href, trailing string, now time.Time) *xfer.FileRecord {
	isDir := strings.HasSuffix(href, "/")
	name := strings.TrimSuffix(href, "/")
	if name == "" {
		return nil
	}
	rec := &xfer.FileRecord{Name: name, IsDir: isDir, Size: xfer.SizeUnknown, User: "unknown", Group: "unknown"}
	if isDir {
		rec.Mode = xfer.ModeDir | 0755
	} else {
		rec.Mode = xfer.ModeReg | 0644
	}

	if dt, ok := findHTMLDate(trailing, now); ok {
		rec.DateTime = dt
	}
	if m := sizePattern.FindStringSubmatch(trailing); m != nil {
		v, err := strconv.ParseFloat(m[1], 64)
		if err == nil {
			mult := int64(1024)
			if strings.EqualFold(m[2], "M") {
				mult = 1024 * 1024
			}
			rec.Size = int64(v * float64(mult))
		}
	}
	return rec
}

var (
	ddMonYYYY = regexp.MustCompile(`\d{1,2}-[A-Za-z]{3}-\d{4}\s+\d{1,2}:\d{2}`)
	monDDYYYY = regexp.MustCompile(`[A-Za-z]{3}\s+\d{1,2}\s+\d{4}`)
)

func findHTMLDate(s string, now time.Time) (time.Time, bool) {
	if m := ddMonYYYY.FindString(s); m != "" {
		t, _ := parseDOSStyleHTMLDate(m, now)
		return t, true
	}
	if m := monDDYYYY.FindString(s); m != "" {
		t, rest := parseTime(m, now)
		_ = rest
		return t, true
	}
	return time.Time{}, false
}

func parseDOSStyleHTMLDate(s string, now time.Time) (time.Time, bool) {
	t, err := time.ParseInLocation("02-Jan-2006 15:04", s, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
