package ftp

import (
	"strconv"
	"strings"

	"github.com/fangq/gftpgo/xfer"
)

// proxyTemplates are the named proxy_config variants, ported verbatim
// from original_source/lib/rfc959.c's gftp_proxy_type table. "none" and
// "http" are handled by the caller (login skips the script; "http"
// means treat the endpoint as HTTP CONNECT, out of this driver's
// scope) and are never looked up here.
var proxyTemplates = map[string]string{
	"SITE":             "USER %pu\nPASS %pp\nSITE %hh\nUSER %hu\nPASS %hp\n",
	"user@host":        "USER %pu\nPASS %pp\nUSER %hu@%hh\nPASS %hp\n",
	"user@host:port":   "USER %hu@%hh:%ho\nPASS %hp\n",
	"AUTHENTICATE":     "USER %hu@%hh\nPASS %hp\nSITE AUTHENTICATE %pu\nSITE RESPONSE %pp\n",
	"user@host port":   "USER %hu@%hh %ho\nPASS %hp\n",
	"user@host NOAUTH": "USER %hu@%hh\nPASS %hp\n",
}

// proxyScript resolves profile to a command template and expands it
// against r, spec.md §4.F "Proxy script". A profile that isn't one of
// the named variants above is treated as a literal custom template, the
// same way the original stored the raw text directly in proxy_config
// (there is no separate "custom text" option to carry it).
func proxyScript(profile string, r *xfer.Request) ([]string, error) {
	tmpl, ok := proxyTemplates[profile]
	if !ok {
		tmpl = profile
	}
	expanded := expandProxyTemplate(tmpl, r)
	expanded = strings.ReplaceAll(expanded, "%n", "\r\n")

	var lines []string
	for _, raw := range strings.Split(expanded, "\n") {
		line := strings.TrimRight(raw, "\r")
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return nil, xfer.NewError(xfer.Fatal, "proxy_script", "empty proxy script for profile "+profile, nil)
	}
	return lines, nil
}

// expandProxyTemplate substitutes %pX (proxy credentials) and %hX
// (target credentials) tokens, spec.md §4.F.
func expandProxyTemplate(tmpl string, r *xfer.Request) string {
	var b strings.Builder
	for i := 0; i < len(tmpl); i++ {
		if tmpl[i] == '%' && i+2 < len(tmpl) {
			val, ok := proxyToken(tmpl[i+1], tmpl[i+2], r)
			if ok {
				b.WriteString(val)
				i += 2
				continue
			}
		}
		b.WriteByte(tmpl[i])
	}
	return b.String()
}

func proxyToken(group, field byte, r *xfer.Request) (string, bool) {
	switch group {
	case 'p', 'P':
		switch field {
		case 'u', 'U':
			return r.Options.GetString("ftp_proxy_username"), true
		case 'p', 'P':
			return r.Options.GetString("ftp_proxy_password"), true
		case 'h', 'H':
			return r.Options.GetString("ftp_proxy_host"), true
		case 'o', 'O':
			return strconv.Itoa(r.Options.GetInt("ftp_proxy_port")), true
		case 'a', 'A':
			return r.Options.GetString("ftp_proxy_account"), true
		}
	case 'h', 'H':
		switch field {
		case 'u', 'U':
			return r.Username, true
		case 'p', 'P':
			return r.Password, true
		case 'h', 'H':
			return r.Hostname, true
		case 'o', 'O':
			return strconv.Itoa(r.Port), true
		case 'a', 'A':
			return r.Account, true
		}
	}
	return "", false
}
