package commands

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/fangq/gftpgo/protocol/ftp"
	"github.com/fangq/gftpgo/protocol/http"
	"github.com/fangq/gftpgo/protocol/local"
	"github.com/fangq/gftpgo/protocol/sftp"
	"github.com/fangq/gftpgo/xfer"
)

// openEndpoint turns one CLI argument into a connected *xfer.Request
// rooted at the whole argument as a directory. An argument with a
// "scheme://" prefix is parsed as a URL per spec.md §6; anything else is
// treated as a local filesystem path, the shorthand the teacher's own
// backends accept for a bare directory argument.
func openEndpoint(ctx context.Context, arg string) (*xfer.Request, error) {
	if !strings.Contains(arg, "://") {
		return openLocalDir(ctx, arg)
	}
	u, err := xfer.ParseURL(arg)
	if err != nil {
		return nil, err
	}
	return connectFromURL(ctx, u)
}

// resolveFileArg splits arg into a connected directory-level Request and
// the bare file name inside it, for commands that act on exactly one
// file (get, put) rather than a whole tree (ls, mirror).
func resolveFileArg(ctx context.Context, arg string) (*xfer.Request, string, error) {
	if !strings.Contains(arg, "://") {
		dir, name := filepath.Split(arg)
		if dir == "" {
			dir = "."
		}
		r, err := openLocalDir(ctx, dir)
		return r, name, err
	}

	u, err := xfer.ParseURL(arg)
	if err != nil {
		return nil, "", err
	}
	dir, name := path.Split(u.Path)
	if name == "" {
		return nil, "", fmt.Errorf("%s: URL must name a file, not a directory", arg)
	}
	u.Path = dir
	r, err := connectFromURL(ctx, u)
	return r, name, err
}

func openLocalDir(ctx context.Context, dir string) (*xfer.Request, error) {
	r := xfer.NewRequest(local.New(), global)
	r.Dir = dir
	if err := r.Connect(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func connectFromURL(ctx context.Context, u *xfer.ParsedURL) (*xfer.Request, error) {
	driver, err := driverFor(u.Protocol)
	if err != nil {
		return nil, err
	}

	r := xfer.NewRequest(driver, global)
	xfer.PopulateRequest(r, u)
	promptForPassword(r)

	if err := r.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect %s://%s: %w", u.Protocol, u.Host, err)
	}
	return r, nil
}

func driverFor(p xfer.Protocol) (xfer.Driver, error) {
	switch p {
	case xfer.ProtoFTP:
		return ftp.New(), nil
	case xfer.ProtoHTTP:
		return http.New(), nil
	case xfer.ProtoSFTP:
		return sftp.New(), nil
	case xfer.ProtoLocal:
		return local.New(), nil
	default:
		return nil, fmt.Errorf("unsupported protocol %s", p)
	}
}

// promptForPassword fills r.Password interactively when the URL named a
// user but not a password and stdin is an actual terminal, the same
// fallback dittofs' user command uses around term.ReadPassword before
// falling back to whatever (possibly empty) credential was already set.
func promptForPassword(r *xfer.Request) {
	if r.Password != "" || r.Username == "" {
		return
	}
	if r.Protocol != xfer.ProtoFTP && r.Protocol != xfer.ProtoSFTP {
		return
	}
	if !term.IsTerminal(int(syscall.Stdin)) {
		return
	}
	fmt.Printf("Password for %s@%s: ", r.Username, r.Hostname)
	pw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err == nil {
		r.Password = string(pw)
	}
}
