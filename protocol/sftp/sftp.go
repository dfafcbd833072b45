package sftp

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fangq/gftpgo/xfer"
)

// Driver is the SFTP v3 xfer.Driver, spec.md §4.H.
type Driver struct{}

func New() *Driver { return &Driver{} }

func (d *Driver) Protocol() xfer.Protocol { return xfer.ProtoSFTP }

func (d *Driver) Capabilities() xfer.Capability {
	return xfer.CapList | xfer.CapTransfer | xfer.CapMutate | xfer.CapMetadata
}

// state is the protocol-private block spec.md §3 describes for SFTP:
// "request id + current file handle + offset", plus everything needed
// to frame and correlate packets over the transport.
type state struct {
	client  sshClient
	session sshSession
	rw      io.ReadWriter // stdin (write) paired with stdout (read) of the session

	mu     sync.Mutex // serializes request/response round trips: SFTP here is one-in-flight
	nextID uint32

	cwd string

	handle     []byte // current open file/dir handle
	offset     int64
	dirEntries []*xfer.FileRecord
}

// rwCloser pairs a session's stdin/stdout into one io.ReadWriter.
type rwCloser struct {
	io.Reader
	io.Writer
}

func priv(r *xfer.Request) *state {
	if r.Private == nil {
		r.Private = &state{}
	}
	return r.Private.(*state)
}

func (d *Driver) Connect(ctx context.Context, r *xfer.Request) error {
	st := priv(r)
	useExternal := r.Options.GetBool("sftp_use_external_ssh")

	var client sshClient
	var err error
	if useExternal {
		sshPath := r.Options.GetString("sftp_ssh_path")
		if sshPath == "" {
			sshPath = "ssh"
		}
		args := []string{"-l", r.Username}
		if r.Port != 0 && r.Port != 22 {
			args = append(args, "-p", strconv.Itoa(r.Port))
		}
		args = append(args, r.Hostname)
		useTTY := r.Options.GetBool("sftp_use_tty")
		client = newExternalClient(sshPath, args, r.Password, useTTY)
	} else {
		addr := net.JoinHostPort(r.Hostname, strconv.Itoa(portOrDefault(r.Port)))
		timeout := secondsToDuration(r.Options.GetInt("network_timeout"))
		client, err = dialInternal("tcp", addr, r.Username, r.Password, timeout)
		if err != nil {
			return xfer.NewError(xfer.Retryable, "connect", "", err)
		}
	}

	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return xfer.NewError(xfer.Retryable, "connect", "", err)
	}
	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		client.Close()
		return xfer.NewError(xfer.Fatal, "connect", "", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		client.Close()
		return xfer.NewError(xfer.Fatal, "connect", "", err)
	}
	if err := session.RequestSubsystem("sftp"); err != nil {
		session.Close()
		client.Close()
		return xfer.NewError(xfer.Retryable, "connect", "", err)
	}

	st.client = client
	st.session = session
	st.rw = rwCloser{Reader: stdout, Writer: stdin}
	st.nextID = 0
	st.cwd = "/"

	if err := st.sendInit(); err != nil {
		d.Disconnect(r)
		return err
	}

	r.DataFD = 1
	return nil
}

func portOrDefault(port int) int {
	if port == 0 {
		return 22
	}
	return port
}

func secondsToDuration(secs int) time.Duration { return time.Duration(secs) * time.Second }

func (d *Driver) Disconnect(r *xfer.Request) error {
	st := priv(r)
	if st.session != nil {
		_ = st.session.Close()
		st.session = nil
	}
	if st.client != nil {
		_ = st.client.Close()
		st.client = nil
	}
	r.DataFD = -1
	return nil
}

// sendInit performs the SSH_FXP_INIT/VERSION handshake. INIT/VERSION
// carry no id — spec.md §4.H and packet.go's readPacket both special
// case them.
func (st *state) sendInit() error {
	e := newEncoder(0, false)
	e.uint32(3) // protocol version 3
	if err := writePacket(st.rw, typeInit, e.bytesOut()); err != nil {
		return xfer.NewError(xfer.Retryable, "connect", "", err)
	}
	p, err := readPacket(st.rw)
	if err != nil {
		return xfer.NewError(xfer.Retryable, "connect", "", err)
	}
	if p.Type != typeVersion {
		return xfer.NewError(xfer.Fatal, "connect", "", fmt.Errorf("expected SSH_FXP_VERSION, got type %d", p.Type))
	}
	return nil
}

// roundTrip sends one request packet with a fresh id and returns the
// matching response. A response carrying any other id is a protocol
// violation and returns a Fatal error; roundTrip does not close the
// session itself.
func (st *state) roundTrip(typ byte, body *encoder) (*packet, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.nextID++
	id := st.nextID
	full := newEncoder(id, true)
	full.buf = append(full.buf, body.bytesOut()...)
	if err := writePacket(st.rw, typ, full.bytesOut()); err != nil {
		return nil, xfer.NewError(xfer.Retryable, "sftp_request", "", err)
	}
	resp, err := readPacket(st.rw)
	if err != nil {
		return nil, xfer.NewError(xfer.Retryable, "sftp_request", "", err)
	}
	if resp.ID != id {
		return nil, xfer.NewError(xfer.Fatal, "sftp_request", "", fmt.Errorf("id mismatch: sent %d, received %d", id, resp.ID))
	}
	return resp, nil
}

// statusError decodes an SSH_FXP_STATUS payload and classifies it per
// spec.md §4.H's status table.
func statusError(op string, p *packet) error {
	d := newDecoder(p.Payload)
	code := d.uint32()
	msg := d.str()
	switch code {
	case statusOK:
		return nil
	case statusEOF:
		return io.EOF
	case statusNoSuchFile, statusPermissionDenied:
		return xfer.NewError(xfer.Fatal, op, msg, nil)
	case statusBadMessage, statusConnectionLost, statusNoConnection:
		return xfer.NewError(xfer.Fatal, op, msg, nil)
	case statusOpUnsupported:
		return xfer.ErrUnsupported
	default:
		return xfer.NewError(xfer.LogicalFailure, op, msg, nil)
	}
}

func (d *Driver) absolute(r *xfer.Request, name string) string {
	st := priv(r)
	if strings.HasPrefix(name, "/") {
		return name
	}
	if st.cwd == "/" {
		return "/" + name
	}
	return st.cwd + "/" + name
}

func (d *Driver) Chdir(ctx context.Context, r *xfer.Request, dir string) error {
	st := priv(r)
	path := d.absolute(r, dir)
	e := newEncoder(0, false)
	e.str(path)
	resp, err := st.roundTrip(typeRealPath, e)
	if err != nil {
		return err
	}
	if resp.Type != typeName {
		return statusError("chdir", resp)
	}
	dd := newDecoder(resp.Payload)
	count := dd.uint32()
	if count < 1 {
		return xfer.NewError(xfer.Fatal, "chdir", "", fmt.Errorf("REALPATH returned no names"))
	}
	st.cwd = dd.str()
	return nil
}

func (d *Driver) Mkdir(ctx context.Context, r *xfer.Request, dir string) error {
	e := newEncoder(0, false)
	e.str(d.absolute(r, dir))
	attrs{}.encode(e)
	resp, err := priv(r).roundTrip(typeMkdir, e)
	if err != nil {
		return err
	}
	return statusError("mkdir", resp)
}

func (d *Driver) Rmdir(ctx context.Context, r *xfer.Request, dir string) error {
	e := newEncoder(0, false)
	e.str(d.absolute(r, dir))
	resp, err := priv(r).roundTrip(typeRmdir, e)
	if err != nil {
		return err
	}
	return statusError("rmdir", resp)
}

func (d *Driver) Rmfile(ctx context.Context, r *xfer.Request, name string) error {
	e := newEncoder(0, false)
	e.str(d.absolute(r, name))
	resp, err := priv(r).roundTrip(typeRemove, e)
	if err != nil {
		return err
	}
	return statusError("rmfile", resp)
}

func (d *Driver) Rename(ctx context.Context, r *xfer.Request, from, to string) error {
	e := newEncoder(0, false)
	e.str(d.absolute(r, from))
	e.str(d.absolute(r, to))
	resp, err := priv(r).roundTrip(typeRename, e)
	if err != nil {
		return err
	}
	return statusError("rename", resp)
}

func (d *Driver) Chmod(ctx context.Context, r *xfer.Request, name string, mode uint32) error {
	e := newEncoder(0, false)
	e.str(d.absolute(r, name))
	a := attrs{Flags: attrPermissions, Permissions: mode}
	a.encode(e)
	resp, err := priv(r).roundTrip(typeSetStat, e)
	if err != nil {
		return err
	}
	return statusError("chmod", resp)
}

func (d *Driver) SetFileTime(ctx context.Context, r *xfer.Request, name string, t int64) error {
	e := newEncoder(0, false)
	e.str(d.absolute(r, name))
	a := attrs{Flags: attrACModTime, ATime: uint32(t), MTime: uint32(t)}
	a.encode(e)
	resp, err := priv(r).roundTrip(typeSetStat, e)
	if err != nil {
		return err
	}
	return statusError("set_file_time", resp)
}

func (d *Driver) Site(ctx context.Context, r *xfer.Request, argline string) error {
	return xfer.ErrUnsupported
}

func (d *Driver) GetFileSize(ctx context.Context, r *xfer.Request, name string) (int64, error) {
	rec, err := d.StatFilename(ctx, r, name)
	if err != nil {
		return 0, err
	}
	return rec.Size, nil
}

func (d *Driver) StatFilename(ctx context.Context, r *xfer.Request, name string) (*xfer.FileRecord, error) {
	e := newEncoder(0, false)
	e.str(d.absolute(r, name))
	resp, err := priv(r).roundTrip(typeStat, e)
	if err != nil {
		return nil, err
	}
	if resp.Type != typeAttrs {
		return nil, statusError("stat_filename", resp)
	}
	a := decodeAttrs(newDecoder(resp.Payload))
	base := name
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		base = name[i+1:]
	}
	return a.toFileRecord(base), nil
}
