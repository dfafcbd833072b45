package xfer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// urlPattern implements the grammar in spec.md §6:
//   scheme://[user[:password]@]host[:port][/path]
// The port is detected only as a trailing :digits immediately before the
// path or end, per spec.
var urlPattern = regexp.MustCompile(
	`^(?P<scheme>[a-zA-Z][a-zA-Z0-9+.-]*)://` +
		`(?:(?P<user>[^:@/]*)(?::(?P<pass>[^@/]*))?@)?` +
		`(?P<host>[^:/]+)` +
		`(?::(?P<port>\d+))?` +
		`(?P<path>/.*)?$`)

// ParsedURL is the decomposed form of a URL, spec.md §6/§8
// (parse_url/compose_url round-trip).
type ParsedURL struct {
	Protocol Protocol
	Host     string
	User     string
	Password string
	Port     int
	Path     string
}

func schemeToProtocol(scheme string) (Protocol, error) {
	switch strings.ToLower(scheme) {
	case "ftp":
		return ProtoFTP, nil
	case "http", "https":
		return ProtoHTTP, nil
	case "sftp", "ssh2":
		return ProtoSFTP, nil
	case "file":
		return ProtoLocal, nil
	default:
		return ProtoUnknown, fmt.Errorf("xfer: unknown scheme %q", scheme)
	}
}

func protocolToScheme(p Protocol) string {
	switch p {
	case ProtoSFTP:
		return "sftp"
	case ProtoLocal:
		return "file"
	default:
		return p.String()
	}
}

// ParseURL parses raw per the grammar above. Leading/trailing whitespace
// is stripped first.
func ParseURL(raw string) (*ParsedURL, error) {
	raw = strings.TrimSpace(raw)
	m := urlPattern.FindStringSubmatch(raw)
	if m == nil {
		return nil, fmt.Errorf("xfer: malformed URL %q", raw)
	}
	names := urlPattern.SubexpNames()
	group := make(map[string]string, len(names))
	for i, n := range names {
		if n != "" {
			group[n] = m[i]
		}
	}
	proto, err := schemeToProtocol(group["scheme"])
	if err != nil {
		return nil, err
	}
	port := DefaultPort(proto)
	if group["port"] != "" {
		p, err := strconv.Atoi(group["port"])
		if err != nil {
			return nil, fmt.Errorf("xfer: bad port in %q: %w", raw, err)
		}
		port = p
	}
	path := group["path"]
	if path == "" {
		path = "/"
	}
	return &ParsedURL{
		Protocol: proto,
		Host:     group["host"],
		User:     group["user"],
		Password: group["pass"],
		Port:     port,
		Path:     path,
	}, nil
}

// ComposeURL is the inverse of ParseURL, used for bookmark round-trips
// and the §8 idempotence property. Passwords are never embedded (they
// are never safe to round-trip through a displayed URL); callers that
// need password round-trip compare fields directly, not via ComposeURL.
func ComposeURL(u *ParsedURL) string {
	var b strings.Builder
	b.WriteString(protocolToScheme(u.Protocol))
	b.WriteString("://")
	if u.User != "" {
		b.WriteString(u.User)
		b.WriteByte('@')
	}
	b.WriteString(u.Host)
	if u.Port != 0 && u.Port != DefaultPort(u.Protocol) {
		fmt.Fprintf(&b, ":%d", u.Port)
	}
	if u.Path != "" && u.Path != "/" {
		b.WriteString(u.Path)
	}
	return b.String()
}

// PopulateRequest applies a ParsedURL onto r's identity fields (spec.md
// §3 lifecycle: "URL/bookmark populates identity").
func PopulateRequest(r *Request, u *ParsedURL) {
	r.Protocol = u.Protocol
	r.Hostname = u.Host
	r.Port = u.Port
	if u.User != "" {
		r.Username = u.User
	}
	if u.Password != "" {
		r.Password = u.Password
	}
	if u.Path != "" {
		r.Dir = u.Path
	}
}
