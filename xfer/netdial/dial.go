// Package netdial implements component B: name resolution, socket
// connect with proxy-bypass decision (spec.md §4.B).
package netdial

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/fangq/gftpgo/xfer"
	"github.com/fangq/gftpgo/xfer/xlog"
)

// Dialer resolves and connects, preferring AAAA when enableIPv6 is set.
type Dialer struct {
	EnableIPv6 bool
	Timeout    time.Duration
}

// Resolve returns the address list for host, AAAA-preferred when
// EnableIPv6 is set, else IPv4-only (or every address, when host has no
// IPv4 address).
func (d *Dialer) Resolve(ctx context.Context, host string) ([]net.IPAddr, error) {
	network := "ip4"
	if d.EnableIPv6 {
		network = "ip"
	}
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, xfer.NewError(xfer.Retryable, "resolve", "", err)
	}
	if network == "ip4" {
		var v4 []net.IPAddr
		for _, a := range addrs {
			if a.IP.To4() != nil {
				v4 = append(v4, a)
			}
		}
		if len(v4) > 0 {
			addrs = v4
		}
	} else if d.EnableIPv6 {
		// AAAA preferred: stable-sort IPv6 addresses first.
		var v6, v4 []net.IPAddr
		for _, a := range addrs {
			if a.IP.To4() == nil {
				v6 = append(v6, a)
			} else {
				v4 = append(v4, a)
			}
		}
		addrs = append(v6, v4...)
	}
	if len(addrs) == 0 {
		return nil, xfer.NewError(xfer.Retryable, "resolve", "", fmt.Errorf("no addresses for %q", host))
	}
	return addrs, nil
}

// Connect iterates the resolved addresses, logging "Trying host:port"
// for each, per spec.md §4.B.
func (d *Dialer) Connect(ctx context.Context, tag string, host string, port int) (net.Conn, error) {
	addrs, err := d.Resolve(ctx, host)
	if err != nil {
		return nil, err
	}
	var lastErr error
	dialer := &net.Dialer{Timeout: d.Timeout}
	for _, a := range addrs {
		addr := net.JoinHostPort(a.IP.String(), strconv.Itoa(port))
		xlog.Debugf(tag, "Trying %s:%d", host, port)
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	return nil, xfer.NewError(xfer.Retryable, "connect", "", lastErr)
}
