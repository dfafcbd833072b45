package ftp

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/fangq/gftpgo/xfer"
)

// openData opens the data connection for the next transfer or listing,
// spec.md §4.F: passive unless passive_transfer is false or PASV/EPSV
// fails, in which case it falls back to an active PORT/EPRT listener.
func (d *Driver) openData(ctx context.Context, r *xfer.Request, st *state) error {
	if r.Options.GetBool("passive_transfer") {
		conn, err := d.passive(ctx, st)
		if err == nil {
			st.data = conn
			return nil
		}
	}
	return d.active(ctx, r, st)
}

// passive issues PASV (or EPSV over an IPv6 control connection, which
// PASV cannot describe) and dials the returned address.
func (d *Driver) passive(ctx context.Context, st *state) (netConnCloser, error) {
	if isIPv6Conn(st.raw) {
		resp, err := d.command(ctx, st, "EPSV")
		if err != nil {
			return nil, err
		}
		if resp.class() != 2 {
			return nil, xfer.NewError(xfer.Retryable, "epsv", resp.Last, nil)
		}
		port, err := parseEPSV(resp.Last)
		if err != nil {
			return nil, xfer.NewError(xfer.Retryable, "epsv", resp.Last, err)
		}
		host := remoteHostOf(st)
		var d2 net.Dialer
		conn, err := d2.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err != nil {
			return nil, xfer.NewError(xfer.Retryable, "epsv", "", err)
		}
		return conn, nil
	}

	resp, err := d.command(ctx, st, "PASV")
	if err != nil {
		return nil, err
	}
	if resp.class() != 2 {
		return nil, xfer.NewError(xfer.Retryable, "pasv", resp.Last, nil)
	}
	host, port, err := parsePASV(resp.Last)
	if err != nil {
		return nil, xfer.NewError(xfer.Retryable, "pasv", resp.Last, err)
	}
	var d2 net.Dialer
	conn, err := d2.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, xfer.NewError(xfer.Retryable, "pasv", "", err)
	}
	return conn, nil
}

func isIPv6Conn(conn netConnCloser) bool {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return false
	}
	addr, ok := tc.RemoteAddr().(*net.TCPAddr)
	return ok && addr.IP.To4() == nil
}

func remoteHostOf(st *state) string {
	if tc, ok := st.raw.(*net.TCPConn); ok {
		if addr, ok := tc.RemoteAddr().(*net.TCPAddr); ok {
			return addr.IP.String()
		}
	}
	return ""
}

// parsePASV extracts h1,h2,h3,h4,p1,p2 from a 227 reply, spec.md §4.F.
// The numbers are the first parenthesized (or otherwise comma-joined)
// run of six found anywhere in the line, tolerating servers that don't
// wrap them in parens.
func parsePASV(line string) (host string, port int, err error) {
	start := strings.IndexByte(line, '(')
	body := line
	if start >= 0 {
		if end := strings.IndexByte(line[start:], ')'); end >= 0 {
			body = line[start+1 : start+end]
		} else {
			body = line[start+1:]
		}
	} else {
		for _, f := range strings.Fields(line) {
			if strings.Count(f, ",") >= 5 {
				body = f
				break
			}
		}
	}
	parts := strings.Split(strings.TrimSpace(body), ",")
	nums := make([]int, 0, 6)
	for _, p := range parts {
		p = strings.TrimSpace(p)
		n, convErr := strconv.Atoi(p)
		if convErr != nil {
			continue
		}
		nums = append(nums, n)
	}
	if len(nums) < 6 {
		return "", 0, fmt.Errorf("cannot find 6 numbers in PASV reply %q", line)
	}
	nums = nums[len(nums)-6:]
	for _, n := range nums {
		if n < 0 || n > 255 {
			return "", 0, fmt.Errorf("PASV octet out of range in %q", line)
		}
	}
	host = fmt.Sprintf("%d.%d.%d.%d", nums[0], nums[1], nums[2], nums[3])
	port = nums[4]<<8 | nums[5]
	return host, port, nil
}

// parseEPSV extracts the port from a 229 reply's "|||port|" payload.
func parseEPSV(line string) (port int, err error) {
	start := strings.IndexByte(line, '(')
	body := line
	if start >= 0 {
		if end := strings.IndexByte(line[start:], ')'); end >= 0 {
			body = line[start+1 : start+end]
		}
	}
	body = strings.TrimSpace(body)
	if len(body) < 2 {
		return 0, fmt.Errorf("malformed EPSV reply %q", line)
	}
	delim := body[0]
	fields := strings.Split(body, string(delim))
	for _, f := range fields {
		if f == "" {
			continue
		}
		if n, convErr := strconv.Atoi(f); convErr == nil {
			return n, nil
		}
	}
	return 0, fmt.Errorf("no port in EPSV reply %q", line)
}

// active binds an ephemeral local listener and sends PORT (EPRT when the
// control connection's local address is IPv6). The listener is kept in
// st.listener; acceptPending accepts the server's connection once the
// caller has issued the transfer command.
func (d *Driver) active(ctx context.Context, r *xfer.Request, st *state) error {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		return xfer.NewError(xfer.Retryable, "port", "", err)
	}
	addr := ln.Addr().(*net.TCPAddr)
	local := localAddrOf(st)
	var cmd string
	if local.To4() == nil {
		cmd = fmt.Sprintf("EPRT |2|%s|%d|", local.String(), addr.Port)
	} else {
		cmd = fmt.Sprintf("PORT %s,%d,%d", ipToCommaBytes(local), addr.Port>>8, addr.Port&0xff)
	}
	resp, err := d.command(ctx, st, cmd)
	if err != nil {
		ln.Close()
		return err
	}
	if resp.class() != 2 {
		ln.Close()
		return xfer.NewError(xfer.Retryable, "port", resp.Last, nil)
	}
	st.listener = ln
	return nil
}

// acceptPending completes an active-mode data connection after the
// transfer command (RETR/STOR/LIST/...) has been sent, per RFC 959's
// ordering: PORT, then the service command, then the server connects
// back.
func (d *Driver) acceptPending(st *state) error {
	if st.listener == nil {
		return nil
	}
	ln := st.listener
	st.listener = nil
	conn, err := ln.Accept()
	ln.Close()
	if err != nil {
		return xfer.NewError(xfer.Retryable, "port_accept", "", err)
	}
	st.data = conn
	return nil
}

func localAddrOf(st *state) net.IP {
	if tc, ok := st.raw.(*net.TCPConn); ok {
		if addr, ok := tc.LocalAddr().(*net.TCPAddr); ok {
			return addr.IP
		}
	}
	return net.IPv4zero
}

func ipToCommaBytes(ip net.IP) string {
	v4 := ip.To4()
	if v4 == nil {
		return "0,0,0,0"
	}
	return fmt.Sprintf("%d,%d,%d,%d", v4[0], v4[1], v4[2], v4[3])
}
