package commands

import (
	"github.com/spf13/cobra"

	"github.com/fangq/gftpgo/transfer"
	"github.com/fangq/gftpgo/xfer"
)

var putCmd = &cobra.Command{
	Use:   "put <local-source> <dest>",
	Short: "Upload a single file",
	Args:  cobra.ExactArgs(2),
	RunE:  runPut,
}

func runPut(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	srcReq, srcName, err := resolveFileArg(ctx, args[0])
	if err != nil {
		return err
	}
	defer srcReq.Disconnect()

	dstReq, dstName, err := resolveFileArg(ctx, args[1])
	if err != nil {
		return err
	}
	defer dstReq.Disconnect()
	if dstName == "" {
		dstName = srcName
	}

	rec := &xfer.FileRecord{Name: srcName, DestName: dstName, Size: xfer.SizeUnknown}
	tr := transfer.New(srcReq, dstReq, []*xfer.FileRecord{rec})
	if err := tr.Run(ctx); err != nil {
		return err
	}
	return reportOutcome(cmd.OutOrStdout(), tr)
}
