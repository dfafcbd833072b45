package sftp

import (
	"context"
	"io"

	"github.com/fangq/gftpgo/xfer"
)

// writeChunk caps WRITE payloads, spec.md §4.H "Write loop: chunks
// capped at ~32 KB".
const writeChunk = 32 * 1024

// readChunk is the READ request size; the server may return less.
const readChunk = 32 * 1024

func (d *Driver) open(r *xfer.Request, name string, flags uint32) ([]byte, error) {
	e := newEncoder(0, false)
	e.str(d.absolute(r, name))
	e.uint32(flags)
	attrs{}.encode(e)
	resp, err := priv(r).roundTrip(typeOpen, e)
	if err != nil {
		return nil, err
	}
	if resp.Type != typeHandle {
		return nil, statusError("open", resp)
	}
	return newDecoder(resp.Payload).bytes(), nil
}

func (d *Driver) closeHandle(r *xfer.Request, handle []byte) error {
	if handle == nil {
		return nil
	}
	e := newEncoder(0, false)
	e.bytes(handle)
	resp, err := priv(r).roundTrip(typeClose, e)
	if err != nil {
		return err
	}
	return statusError("close", resp)
}

func (d *Driver) GetFile(ctx context.Context, r *xfer.Request, name string, start int64) (int64, error) {
	rec, err := d.StatFilename(ctx, r, name)
	if err != nil {
		return 0, err
	}
	handle, err := d.open(r, name, flagRead)
	if err != nil {
		return 0, err
	}
	st := priv(r)
	st.handle = handle
	st.offset = start
	return rec.Size, nil
}

func (d *Driver) PutFile(ctx context.Context, r *xfer.Request, name string, start, total int64) error {
	flags := uint32(flagWrite | flagCreat)
	if start == 0 {
		flags |= flagTrunc
	}
	handle, err := d.open(r, name, flags)
	if err != nil {
		return err
	}
	st := priv(r)
	st.handle = handle
	st.offset = start
	return nil
}

func (d *Driver) GetNextFileChunk(ctx context.Context, r *xfer.Request, buf []byte) (int, error) {
	st := priv(r)
	if st.handle == nil {
		return 0, xfer.NewError(xfer.Fatal, "get_next_file_chunk", "no open handle", nil)
	}
	n := len(buf)
	if n > readChunk {
		n = readChunk
	}
	e := newEncoder(0, false)
	e.bytes(st.handle)
	e.uint64(uint64(st.offset))
	e.uint32(uint32(n))
	resp, err := st.roundTrip(typeRead, e)
	if err != nil {
		return 0, err
	}
	if resp.Type == typeStatus {
		if serr := statusError("get_next_file_chunk", resp); serr != nil {
			if serr == io.EOF {
				return 0, nil
			}
			return 0, serr
		}
		return 0, nil
	}
	if resp.Type != typeData {
		return 0, xfer.NewError(xfer.Fatal, "get_next_file_chunk", "", nil)
	}
	data := newDecoder(resp.Payload).bytes()
	copy(buf, data)
	st.offset += int64(len(data))
	return len(data), nil
}

func (d *Driver) PutNextFileChunk(ctx context.Context, r *xfer.Request, buf []byte) (int, error) {
	st := priv(r)
	if st.handle == nil {
		return 0, xfer.NewError(xfer.Fatal, "put_next_file_chunk", "no open handle", nil)
	}
	written := 0
	for written < len(buf) {
		n := len(buf) - written
		if n > writeChunk {
			n = writeChunk
		}
		e := newEncoder(0, false)
		e.bytes(st.handle)
		e.uint64(uint64(st.offset))
		e.bytes(buf[written : written+n])
		resp, err := st.roundTrip(typeWrite, e)
		if err != nil {
			return written, err
		}
		if serr := statusError("put_next_file_chunk", resp); serr != nil {
			return written, serr
		}
		st.offset += int64(n)
		written += n
	}
	return written, nil
}

func (d *Driver) EndTransfer(ctx context.Context, r *xfer.Request) error {
	st := priv(r)
	handle := st.handle
	st.handle = nil
	return d.closeHandle(r, handle)
}

func (d *Driver) AbortTransfer(ctx context.Context, r *xfer.Request) error {
	return d.EndTransfer(ctx, r)
}

// ListFiles opens the current directory and drains every READDIR
// response into st.dirEntries, spec.md §4.C's FileRecord stream model
// shared with the other drivers.
func (d *Driver) ListFiles(ctx context.Context, r *xfer.Request) error {
	st := priv(r)
	e := newEncoder(0, false)
	e.str(st.cwd)
	resp, err := st.roundTrip(typeOpenDir, e)
	if err != nil {
		return err
	}
	if resp.Type != typeHandle {
		return statusError("list_files", resp)
	}
	handle := newDecoder(resp.Payload).bytes()
	defer d.closeHandle(r, handle)

	var entries []*xfer.FileRecord
	for {
		he := newEncoder(0, false)
		he.bytes(handle)
		rp, err := st.roundTrip(typeReadDir, he)
		if err != nil {
			return err
		}
		if rp.Type == typeStatus {
			if serr := statusError("list_files", rp); serr != nil && serr != io.EOF {
				return serr
			}
			break
		}
		if rp.Type != typeName {
			return xfer.NewError(xfer.Fatal, "list_files", "", nil)
		}
		dd := newDecoder(rp.Payload)
		count := dd.uint32()
		for i := uint32(0); i < count; i++ {
			name := dd.str()
			_ = dd.str() // longname: server-formatted ls -l line, unused
			a := decodeAttrs(dd)
			if name == "." || name == ".." {
				continue
			}
			entries = append(entries, a.toFileRecord(name))
		}
	}
	st.dirEntries = entries
	return nil
}

func (d *Driver) GetNextFile(ctx context.Context, r *xfer.Request) (*xfer.FileRecord, error) {
	st := priv(r)
	if len(st.dirEntries) == 0 {
		return nil, nil
	}
	rec := st.dirEntries[0]
	st.dirEntries = st.dirEntries[1:]
	return rec, nil
}
