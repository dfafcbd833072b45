package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/fangq/gftpgo/xfer"
)

var lsCmd = &cobra.Command{
	Use:   "ls <endpoint>",
	Short: "List a directory on any supported endpoint",
	Args:  cobra.ExactArgs(1),
	RunE:  runLs,
}

func runLs(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	r, err := openEndpoint(ctx, args[0])
	if err != nil {
		return err
	}
	defer r.Disconnect()

	if err := r.Driver.ListFiles(ctx, r); err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	for {
		rec, err := r.Driver.GetNextFile(ctx, r)
		if err != nil {
			return err
		}
		if rec == nil {
			return nil
		}
		printRecord(w, rec)
	}
}

func printRecord(w io.Writer, rec *xfer.FileRecord) {
	size := fmt.Sprintf("%d", rec.Size)
	if rec.Size == xfer.SizeUnknown {
		size = "?"
	}
	name := rec.Name
	if rec.IsLink && rec.LinkTarget != "" {
		name = fmt.Sprintf("%s -> %s", rec.Name, rec.LinkTarget)
	}
	fmt.Fprintf(w, "%s %12s %s %s\n", xfer.ModeToAttributes(rec.Mode), size, rec.DateTime.Format("2006-01-02 15:04"), name)
}
