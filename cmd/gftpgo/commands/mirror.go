package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fangq/gftpgo/transfer"
	"github.com/fangq/gftpgo/xfer"
)

var mirrorCmd = &cobra.Command{
	Use:   "mirror <source-dir> <dest-dir>",
	Short: "Recursively copy a directory tree between any two endpoints",
	Args:  cobra.ExactArgs(2),
	RunE:  runMirror,
}

func runMirror(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	srcReq, err := openEndpoint(ctx, args[0])
	if err != nil {
		return err
	}
	defer srcReq.Disconnect()

	dstReq, err := openEndpoint(ctx, args[1])
	if err != nil {
		return err
	}
	defer dstReq.Disconnect()

	if err := srcReq.Driver.ListFiles(ctx, srcReq); err != nil {
		return err
	}
	var files []*xfer.FileRecord
	for {
		rec, err := srcReq.Driver.GetNextFile(ctx, srcReq)
		if err != nil {
			return err
		}
		if rec == nil {
			break
		}
		if rec.Name == "." || rec.Name == ".." {
			continue
		}
		files = append(files, rec)
	}
	if len(files) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "nothing to transfer")
		return nil
	}

	tr := transfer.New(srcReq, dstReq, files)
	if err := tr.Run(ctx); err != nil {
		return err
	}
	return reportOutcome(cmd.OutOrStdout(), tr)
}
