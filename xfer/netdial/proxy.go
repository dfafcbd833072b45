package netdial

import (
	"net"
	"strings"

	"github.com/fangq/gftpgo/xfer"
)

// NeedProxy implements spec.md §4.B's need_proxy decision: no proxy
// configured -> false; target matches a bypass suffix or bypass network
// -> false; otherwise true. It is idempotent (§8): given the same host
// and resolved IP it always returns the same answer.
func NeedProxy(proxyConfigured bool, host string, resolvedIPv4 net.IP, bypass []xfer.BypassEntry) bool {
	if !proxyConfigured {
		return false
	}
	for _, b := range bypass {
		if b.Suffix != "" && matchesSuffix(host, b.Suffix) {
			return false
		}
		if b.Net != "" && resolvedIPv4 != nil {
			if _, cidr, err := net.ParseCIDR(b.Net); err == nil && cidr.Contains(resolvedIPv4) {
				return false
			}
		}
	}
	return true
}

func matchesSuffix(host, suffix string) bool {
	host = strings.ToLower(host)
	suffix = strings.ToLower(suffix)
	if !strings.HasPrefix(suffix, ".") {
		suffix = "." + suffix
	}
	return strings.HasSuffix(host, suffix) || host == strings.TrimPrefix(suffix, ".")
}
