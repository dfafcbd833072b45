package http

import (
	"encoding/base64"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/fangq/gftpgo/xfer"
	"github.com/fangq/gftpgo/xfer/iobuf"
)

// sendRequest composes and writes a GET or HEAD request line plus
// headers, grounded on original_source/lib/rfc2068.c's
// rfc2068_send_command/rfc2068_get_file/rfc2068_list_files: request
// line, then "User-Agent: ...\nHost: ...\n", then an optional
// Proxy-authorization and Authorization Basic header, then Range if
// start > 0, then the blank line that ends the header block.
//
// The original always includes "://" after the scheme in GET request
// lines but omits it for HEAD (rfc2068_get_file_size). Tracing it
// against the GET path shows no reason an absolute-form request-target
// would need the scheme separator on GET but not on HEAD; nothing else
// in rfc2068.c depends on the HEAD form differing. Treated here as a
// copy-paste slip in the original rather than an intentional proxy
// form, so both methods compose the same way.
func sendRequest(conn net.Conn, timeout time.Duration, r *xfer.Request, method, name string, start int64) error {
	target := requestTarget(r, name)
	useHTTP11 := r.Options.GetBool("use_http11")
	proto := "HTTP/1.0"
	if useHTTP11 {
		proto = "HTTP/1.1"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s\r\n", method, target, proto)
	fmt.Fprintf(&b, "User-Agent: gftpgo/1.0\r\n")
	fmt.Fprintf(&b, "Host: %s\r\n", r.Hostname)

	if r.UseProxy {
		user := r.Options.GetString("http_proxy_username")
		if user != "" {
			pass := r.Options.GetString("http_proxy_password")
			enc := base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
			fmt.Fprintf(&b, "Proxy-authorization: Basic %s\r\n", enc)
		}
	}
	if r.Username != "" {
		enc := base64.StdEncoding.EncodeToString([]byte(r.Username + ":" + r.Password))
		fmt.Fprintf(&b, "Authorization: Basic %s\r\n", enc)
	}
	if useHTTP11 && start > 0 {
		fmt.Fprintf(&b, "Range: bytes=%d-\r\n", start)
	}
	b.WriteString("\r\n")

	return iobuf.Write(conn, []byte(b.String()), timeout, nil)
}

// requestTarget builds the absolute-form "scheme://[user@]host/path"
// request-target rfc2068.c uses for every request, collapsing any
// doubled slashes the concatenation introduces (remove_double_slashes).
func requestTarget(r *xfer.Request, name string) string {
	// Through a proxy the target keeps the origin host/scheme; only the
	// TCP connection itself goes to the proxy (dial() handles that),
	// per rfc2068_connect leaving url_prefix as "http" unless
	// proxy_config=="ftp".
	scheme := "http"
	host := r.Hostname
	var userPart string
	if r.Username != "" {
		userPart = r.Username + "@"
	}
	path := name
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	target := scheme + "://" + userPart + host + path
	return collapseDoubleSlashes(target)
}

// joinDir concatenates the driver's remembered directory with a
// request-relative name the way rfc2068_get_file builds
// "hostname/directory/filename" before collapsing doubled slashes.
func joinDir(dir, name string) string {
	if name == "" {
		return dir
	}
	if strings.HasPrefix(name, "/") {
		return name
	}
	return dir + "/" + name
}

// collapseDoubleSlashes mirrors remove_double_slashes, applied only to
// the part after "://" so the scheme separator itself is untouched.
func collapseDoubleSlashes(s string) string {
	idx := strings.Index(s, "://")
	if idx < 0 {
		return s
	}
	head, tail := s[:idx+3], s[idx+3:]
	for strings.Contains(tail, "//") {
		tail = strings.ReplaceAll(tail, "//", "/")
	}
	return head + tail
}
