package xfer

import "context"

// Driver is the per-protocol operation table a Request dispatches
// through. Every method follows the contract in spec.md §4.E: return nil
// on success, or an *Error classified Fatal/Retryable/LogicalFailure.
// A driver that does not support an operation returns ErrUnsupported and
// the scheduler refuses the corresponding user action.
type Driver interface {
	Protocol() Protocol
	Capabilities() Capability

	Connect(ctx context.Context, r *Request) error
	Disconnect(r *Request) error

	ListFiles(ctx context.Context, r *Request) error
	GetNextFile(ctx context.Context, r *Request) (*FileRecord, error)

	GetFile(ctx context.Context, r *Request, name string, start int64) (total int64, err error)
	PutFile(ctx context.Context, r *Request, name string, start, total int64) error
	GetNextFileChunk(ctx context.Context, r *Request, buf []byte) (int, error)
	PutNextFileChunk(ctx context.Context, r *Request, buf []byte) (int, error)
	EndTransfer(ctx context.Context, r *Request) error
	AbortTransfer(ctx context.Context, r *Request) error

	Chdir(ctx context.Context, r *Request, dir string) error
	Mkdir(ctx context.Context, r *Request, dir string) error
	Rmdir(ctx context.Context, r *Request, dir string) error
	Rmfile(ctx context.Context, r *Request, name string) error
	Rename(ctx context.Context, r *Request, from, to string) error
	Chmod(ctx context.Context, r *Request, name string, mode uint32) error
	SetFileTime(ctx context.Context, r *Request, name string, t int64) error
	Site(ctx context.Context, r *Request, argline string) error
	GetFileSize(ctx context.Context, r *Request, name string) (int64, error)
	StatFilename(ctx context.Context, r *Request, name string) (*FileRecord, error)
}

// ErrUnsupported is returned by a Driver method the protocol does not
// implement (e.g. HTTP's Rmdir). It is always a LogicalFailure: the
// Request stays open, the caller just can't do that one thing.
var ErrUnsupported = NewError(LogicalFailure, "unsupported", "", nil)

// Request is the per-endpoint control object, spec.md §3.
type Request struct {
	Driver Driver

	// Identity
	Protocol Protocol
	Hostname string
	Port     int
	Username string
	Password string
	Account  string
	Dir      string

	// Transport
	DataFD int // control/data descriptor; -1 when disconnected

	// State flags
	Cached          bool
	AlwaysConnected bool
	Cancel          bool
	UseProxy        bool

	// Options, request-local then global
	Options *Options

	// Protocol-private state, opaque to everything but the Driver.
	Private any

	// LastResponse is the last protocol response line, for diagnostics.
	LastResponse string
}

// NewRequest builds an empty Request bound to d, ready for identity to be
// populated by ParseURL or a bookmark lookup.
func NewRequest(d Driver, global *Options) *Request {
	return &Request{
		Driver:   d,
		Protocol: d.Protocol(),
		DataFD:   -1,
		Options:  global.NewRequestOptions(),
	}
}

// Connected reports the invariant from spec.md §3: DataFD >= 0 iff
// logically connected, except AlwaysConnected protocols.
func (r *Request) Connected() bool {
	return r.AlwaysConnected || r.DataFD >= 0
}

func (r *Request) Connect(ctx context.Context) error {
	if err := r.Driver.Connect(ctx, r); err != nil {
		return err
	}
	if r.Dir != "" {
		if err := r.Driver.Chdir(ctx, r, r.Dir); err != nil {
			return err
		}
	}
	return nil
}

func (r *Request) Disconnect() error {
	err := r.Driver.Disconnect(r)
	r.DataFD = -1
	r.Private = nil
	return err
}
