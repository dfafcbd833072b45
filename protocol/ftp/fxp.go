package ftp

import (
	"context"
	"fmt"
	"net"

	"github.com/fangq/gftpgo/xfer"
)

// TransferFile implements the two-endpoint FXP path named at the close of
// spec.md §4.F and invoked by the scheduler's §4.J step 6: issue PASV on
// the source, PORT with that same address/port tuple on the destination,
// then RETR on the source and STOR on the destination, and read the
// trailing 2xx each side sends once the copy finishes server-to-server.
// No bytes cross this process. The scheduler only calls this when both
// Requests are *ftp.Driver; anything else returns xfer.ErrUnsupported so
// the caller falls back to its own streamed get/put loop.
func TransferFile(ctx context.Context, src, dst *xfer.Request, srcName, dstName string) error {
	srcDriver, ok := src.Driver.(*Driver)
	if !ok {
		return xfer.ErrUnsupported
	}
	dstDriver, ok := dst.Driver.(*Driver)
	if !ok {
		return xfer.ErrUnsupported
	}
	srcSt := priv(src)
	dstSt := priv(dst)

	if err := srcDriver.ensureType(ctx, srcSt, isASCIITransfer(src, srcName)); err != nil {
		return err
	}
	if err := dstDriver.ensureType(ctx, dstSt, isASCIITransfer(dst, dstName)); err != nil {
		return err
	}

	resp, err := srcDriver.command(ctx, srcSt, "PASV")
	if err != nil {
		return err
	}
	if resp.class() != 2 {
		return xfer.NewError(xfer.Retryable, "fxp_pasv", resp.Last, nil)
	}
	host, port, err := parsePASV(resp.Last)
	if err != nil {
		return xfer.NewError(xfer.Retryable, "fxp_pasv", resp.Last, err)
	}

	ip := net.ParseIP(host)
	portCmd := fmt.Sprintf("PORT %s,%d,%d", ipToCommaBytes(ip), port>>8, port&0xff)
	resp, err = dstDriver.command(ctx, dstSt, portCmd)
	if err != nil {
		return err
	}
	if resp.class() != 2 {
		return xfer.NewError(xfer.Retryable, "fxp_port", resp.Last, nil)
	}

	resp, err = srcDriver.command(ctx, srcSt, "RETR "+srcName)
	if err != nil {
		return err
	}
	if resp.class() != 1 {
		return xfer.NewError(xfer.LogicalFailure, "fxp_retr", resp.Last, nil)
	}

	resp, err = dstDriver.command(ctx, dstSt, "STOR "+dstName)
	if err != nil {
		return err
	}
	if resp.class() != 1 {
		return xfer.NewError(xfer.LogicalFailure, "fxp_stor", resp.Last, nil)
	}

	srcFinal, err := readResponse(ctx, srcSt.lr)
	if err != nil {
		return err
	}
	if srcFinal.class() != 2 {
		return xfer.NewError(xfer.LogicalFailure, "fxp_retr_final", srcFinal.Last, nil)
	}

	dstFinal, err := readResponse(ctx, dstSt.lr)
	if err != nil {
		return err
	}
	if dstFinal.class() != 2 {
		return xfer.NewError(xfer.LogicalFailure, "fxp_stor_final", dstFinal.Last, nil)
	}
	return nil
}
