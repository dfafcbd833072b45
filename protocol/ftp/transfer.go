package ftp

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/fangq/gftpgo/xfer"
	"github.com/fangq/gftpgo/xfer/cache"
	"github.com/fangq/gftpgo/xfer/iobuf"
	"github.com/fangq/gftpgo/xfer/listing"
)

// isASCIITransfer applies the ext option table, spec.md §4.F "an
// options-driven extension map decides per-file ASCII vs binary", with
// ascii_transfers as a blanket override.
func isASCIITransfer(r *xfer.Request, name string) bool {
	if r.Options.GetBool("ascii_transfers") {
		return true
	}
	lower := strings.ToLower(name)
	for _, rule := range r.Options.GetExts("ext") {
		if strings.HasSuffix(lower, strings.ToLower(rule.Suffix)) {
			return rule.ASCII
		}
	}
	return false
}

// ensureType issues TYPE A/TYPE I only when the decision changed since
// the last transfer, spec.md §4.F.
func (d *Driver) ensureType(ctx context.Context, st *state, ascii bool) error {
	want := byte('I')
	cmd := "TYPE I"
	if ascii {
		want = 'A'
		cmd = "TYPE A"
	}
	if st.lastType == want {
		return nil
	}
	resp, err := d.command(ctx, st, cmd)
	if err != nil {
		return err
	}
	if resp.class() != 2 {
		return xfer.NewError(xfer.LogicalFailure, "type", resp.Last, nil)
	}
	st.lastType = want
	return nil
}

// ListFiles serves a cached listing when one exists for this directory
// and key (spec.md §4.D), otherwise issues LIST and writes each raw
// line through to a new cache entry as it is parsed.
func (d *Driver) ListFiles(ctx context.Context, r *xfer.Request) error {
	st := priv(r)
	key := r.CacheKey(st.cwd)
	lc, err := r.ListingCache()
	if err != nil {
		return xfer.NewError(xfer.Fatal, "list_files", "cache", err)
	}
	if lc != nil {
		if rc, hit, err := lc.Lookup(key); err != nil {
			return xfer.NewError(xfer.Fatal, "list_files", "cache", err)
		} else if hit {
			records, perr := readCachedListing(rc)
			rc.Close()
			if perr != nil {
				return xfer.NewError(xfer.Fatal, "list_files", "cache", perr)
			}
			st.listing = records
			r.Cached = true
			return nil
		}
	}
	r.Cached = false

	if err := d.ensureType(ctx, st, true); err != nil {
		return err
	}
	if err := d.openData(ctx, r, st); err != nil {
		return err
	}
	cmd := "LIST"
	if r.Options.GetBool("show_hidden_files") {
		cmd = "LIST -a"
	}
	resp, err := d.command(ctx, st, cmd)
	if err != nil {
		return err
	}
	if resp.class() != 1 {
		st.teardown()
		return xfer.NewError(xfer.LogicalFailure, "list_files", resp.Last, nil)
	}
	if err := d.acceptPending(st); err != nil {
		return err
	}

	var writer *cache.Writer
	if lc != nil {
		writer, err = lc.NewWriter(key)
		if err != nil {
			return xfer.NewError(xfer.Fatal, "list_files", "write-to-cache", err)
		}
	}

	dlr := iobuf.NewLineReader(st.data, maxLineBuf, st.timeout, nil)
	now := time.Now()
	var records []*xfer.FileRecord
	for {
		line, err := dlr.GetLine(ctx)
		if err != nil {
			if err == io.EOF {
				break
			}
			st.data.Close()
			st.data = nil
			if writer != nil {
				writer.Abort()
			}
			return xfer.NewError(xfer.Retryable, "list_files", "", err)
		}
		if writer != nil {
			if _, werr := writer.Write(append(line, '\n')); werr != nil {
				writer.Abort()
				return xfer.NewError(xfer.Fatal, "list_files", "write-to-cache", werr)
			}
		}
		rec, perr := listing.ParseLS(string(line), listing.Autodetect, now, nil)
		if perr != nil {
			continue // blank/"total N" lines and other non-entries are expected
		}
		records = append(records, rec)
	}
	st.data.Close()
	st.data = nil

	final, err := readResponse(ctx, st.lr)
	if err != nil {
		if writer != nil {
			writer.Abort()
		}
		return err
	}
	if final.class() != 2 {
		if writer != nil {
			writer.Abort()
		}
		return xfer.NewError(xfer.LogicalFailure, "list_files", final.Last, nil)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			return xfer.NewError(xfer.Fatal, "list_files", "write-to-cache", err)
		}
	}
	st.listing = records
	return nil
}

// readCachedListing replays a cache entry's raw LIST lines through the
// same parser the live wire path uses.
func readCachedListing(r io.Reader) ([]*xfer.FileRecord, error) {
	now := time.Now()
	var records []*xfer.FileRecord
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, maxLineBuf), maxLineBuf)
	for scanner.Scan() {
		rec, err := listing.ParseLS(scanner.Text(), listing.Autodetect, now, nil)
		if err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, scanner.Err()
}

func (d *Driver) GetNextFile(ctx context.Context, r *xfer.Request) (*xfer.FileRecord, error) {
	st := priv(r)
	if len(st.listing) == 0 {
		return nil, nil
	}
	rec := st.listing[0]
	st.listing = st.listing[1:]
	return rec, nil
}

// probeSize issues SIZE, reporting ok=false (not an error) when the
// server doesn't support or recognize it.
func (d *Driver) probeSize(ctx context.Context, st *state, name string) (int64, bool, error) {
	resp, err := d.command(ctx, st, "SIZE "+name)
	if err != nil {
		return 0, false, err
	}
	if resp.class() != 2 {
		return 0, false, nil
	}
	fields := strings.Fields(resp.Last)
	if len(fields) < 2 {
		return 0, false, nil
	}
	n, err := strconv.ParseInt(fields[len(fields)-1], 10, 64)
	if err != nil {
		return 0, false, nil
	}
	return n, true, nil
}

// GetFileSize probes with SIZE first, falling back to a directory
// listing scan when the server doesn't support it
// (original_source/lib/rfc959.c; SPEC_FULL.md supplement).
func (d *Driver) GetFileSize(ctx context.Context, r *xfer.Request, name string) (int64, error) {
	st := priv(r)
	if n, ok, err := d.probeSize(ctx, st, name); err != nil {
		return 0, err
	} else if ok {
		return n, nil
	}
	rec, err := d.StatFilename(ctx, r, name)
	if err != nil {
		return 0, err
	}
	return rec.Size, nil
}

func (d *Driver) restart(ctx context.Context, st *state, start int64) error {
	if start <= 0 {
		return nil
	}
	resp, err := d.command(ctx, st, "REST "+strconv.FormatInt(start, 10))
	if err != nil {
		return err
	}
	if resp.class() != 3 {
		return xfer.NewError(xfer.LogicalFailure, "rest", resp.Last, nil)
	}
	return nil
}

func (d *Driver) GetFile(ctx context.Context, r *xfer.Request, name string, start int64) (int64, error) {
	st := priv(r)
	ascii := isASCIITransfer(r, name)
	if err := d.ensureType(ctx, st, ascii); err != nil {
		return 0, err
	}
	total, _, err := d.probeSize(ctx, st, name)
	if err != nil {
		return 0, err
	}
	if err := d.restart(ctx, st, start); err != nil {
		return 0, err
	}
	if err := d.openData(ctx, r, st); err != nil {
		return 0, err
	}
	resp, err := d.command(ctx, st, "RETR "+name)
	if err != nil {
		return 0, err
	}
	if resp.class() != 1 {
		st.teardown()
		return 0, xfer.NewError(xfer.LogicalFailure, "get_file", resp.Last, nil)
	}
	if err := d.acceptPending(st); err != nil {
		return 0, err
	}
	st.transferASCII = ascii
	st.pendingCR = false
	return total, nil
}

func (d *Driver) PutFile(ctx context.Context, r *xfer.Request, name string, start, total int64) error {
	st := priv(r)
	ascii := isASCIITransfer(r, name)
	if err := d.ensureType(ctx, st, ascii); err != nil {
		return err
	}
	if err := d.restart(ctx, st, start); err != nil {
		return err
	}
	if err := d.openData(ctx, r, st); err != nil {
		return err
	}
	resp, err := d.command(ctx, st, "STOR "+name)
	if err != nil {
		return err
	}
	if resp.class() != 1 {
		st.teardown()
		return xfer.NewError(xfer.LogicalFailure, "put_file", resp.Last, nil)
	}
	if err := d.acceptPending(st); err != nil {
		return err
	}
	st.transferASCII = ascii
	st.lastWasCR = false
	st.putPending = true
	return nil
}

func (d *Driver) GetNextFileChunk(ctx context.Context, r *xfer.Request, buf []byte) (int, error) {
	st := priv(r)
	if st.data == nil {
		return 0, xfer.NewError(xfer.Fatal, "get_next_file_chunk", "no open data connection", nil)
	}
	n, err := iobuf.Read(st.data, buf, st.timeout, nil)
	if err != nil && err != io.EOF {
		return n, xfer.NewError(xfer.Retryable, "get_next_file_chunk", "", err)
	}
	if n == 0 {
		return 0, nil
	}
	if !st.transferASCII {
		return n, nil
	}
	out := stripCRBeforeLF(buf[:n], &st.pendingCR)
	copy(buf, out)
	return len(out), nil
}

func (d *Driver) PutNextFileChunk(ctx context.Context, r *xfer.Request, buf []byte) (int, error) {
	st := priv(r)
	if st.data == nil {
		return 0, xfer.NewError(xfer.Fatal, "put_next_file_chunk", "no open data connection", nil)
	}
	out := buf
	if st.transferASCII {
		out = addCRBeforeLF(buf, &st.lastWasCR)
	}
	if err := iobuf.Write(st.data, out, st.timeout, nil); err != nil {
		return 0, xfer.NewError(xfer.Retryable, "put_next_file_chunk", "", err)
	}
	return len(buf), nil
}

// stripCRBeforeLF implements the ASCII-download rule of spec.md §4.F:
// "\r before \n is stripped". pendingCR carries an unresolved trailing
// \r across chunk boundaries.
func stripCRBeforeLF(in []byte, pendingCR *bool) []byte {
	out := make([]byte, 0, len(in))
	for _, b := range in {
		if *pendingCR {
			*pendingCR = false
			if b == '\n' {
				out = append(out, '\n')
				continue
			}
			out = append(out, '\r')
		}
		if b == '\r' {
			*pendingCR = true
			continue
		}
		out = append(out, b)
	}
	return out
}

// addCRBeforeLF implements the ASCII-upload rule: "a lone \n is prefixed
// with \r". lastWasCR carries whether the previous byte written already
// supplied that \r, across chunk boundaries.
func addCRBeforeLF(in []byte, lastWasCR *bool) []byte {
	out := make([]byte, 0, len(in)+8)
	for _, b := range in {
		if b == '\n' && !*lastWasCR {
			out = append(out, '\r')
		}
		out = append(out, b)
		*lastWasCR = b == '\r'
	}
	return out
}

func (d *Driver) EndTransfer(ctx context.Context, r *xfer.Request) error {
	st := priv(r)
	if st.data != nil {
		_ = st.data.Close()
		st.data = nil
	}
	resp, err := readResponse(ctx, st.lr)
	if err != nil {
		return err
	}
	if resp.class() != 2 {
		return xfer.NewError(xfer.LogicalFailure, "end_transfer", resp.Last, nil)
	}
	if st.putPending {
		st.putPending = false
		if err := r.InvalidateCache(st.cwd); err != nil {
			return xfer.NewError(xfer.Fatal, "end_transfer", "cache", err)
		}
	}
	return nil
}

// AbortTransfer sends ABOR and drains the two responses RFC 959
// prescribes: one acknowledging the aborted transfer, one acknowledging
// the ABOR itself (spec.md §4.F).
func (d *Driver) AbortTransfer(ctx context.Context, r *xfer.Request) error {
	st := priv(r)
	st.putPending = false
	if st.data != nil {
		_ = st.data.Close()
		st.data = nil
	}
	if err := sendCommand(st.conn, st.timeout, "ABOR"); err != nil {
		st.teardown()
		return xfer.NewError(xfer.Retryable, "abort_transfer", "", err)
	}
	if _, err := readResponse(ctx, st.lr); err != nil {
		st.teardown()
		return err
	}
	if _, err := readResponse(ctx, st.lr); err != nil {
		st.teardown()
		return err
	}
	return nil
}
