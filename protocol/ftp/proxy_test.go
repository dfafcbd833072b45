package ftp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fangq/gftpgo/xfer"
)

func newProxyRequest(t *testing.T) *xfer.Request {
	t.Helper()
	global := xfer.NewGlobalOptions()
	r := xfer.NewRequest(New(), global)
	r.Hostname = "ftp.example.com"
	r.Port = 21
	r.Username = "alice"
	r.Password = "secret"
	r.Account = "acct1"
	r.Options.Set("ftp_proxy_host", xfer.Value{Kind: xfer.KindString, Str: "proxy.example.com"})
	r.Options.Set("ftp_proxy_port", xfer.Value{Kind: xfer.KindInt, Int: 2121})
	r.Options.Set("ftp_proxy_username", xfer.Value{Kind: xfer.KindString, Str: "proxyuser"})
	r.Options.Set("ftp_proxy_password", xfer.Value{Kind: xfer.KindString, Str: "proxypass"})
	return r
}

func TestProxyScriptSITE(t *testing.T) {
	r := newProxyRequest(t)
	lines, err := proxyScript("SITE", r)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"USER proxyuser",
		"PASS proxypass",
		"SITE ftp.example.com",
		"USER alice",
		"PASS secret",
	}, lines)
}

func TestProxyScriptUserAtHost(t *testing.T) {
	r := newProxyRequest(t)
	lines, err := proxyScript("user@host", r)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"USER proxyuser",
		"PASS proxypass",
		"USER alice@ftp.example.com",
		"PASS secret",
	}, lines)
}

func TestProxyScriptUserAtHostPort(t *testing.T) {
	r := newProxyRequest(t)
	lines, err := proxyScript("user@host:port", r)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"USER alice@ftp.example.com:21",
		"PASS secret",
	}, lines)
}

func TestProxyScriptAuthenticate(t *testing.T) {
	r := newProxyRequest(t)
	lines, err := proxyScript("AUTHENTICATE", r)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"USER alice@ftp.example.com",
		"PASS secret",
		"SITE AUTHENTICATE proxyuser",
		"SITE RESPONSE proxypass",
	}, lines)
}

func TestProxyScriptCustomTemplate(t *testing.T) {
	r := newProxyRequest(t)
	lines, err := proxyScript("USER %hu%nPASS %hp", r)
	require.NoError(t, err)
	assert.Equal(t, []string{"USER alice", "PASS secret"}, lines)
}

func TestProxyScriptEmptyIsFatal(t *testing.T) {
	r := newProxyRequest(t)
	_, err := proxyScript("", r)
	assert.Error(t, err)
}
