package commands

import (
	"fmt"
	"io"

	"github.com/fangq/gftpgo/transfer"
)

// reportOutcome prints a one-line summary once a Transfer has finished
// and turns a non-Done terminal state into an error, since Run itself
// returns nil whenever the scheduler stopped cleanly (cancelled or a
// file skipped after exhausting retries is not a Go error).
func reportOutcome(w io.Writer, tr *transfer.Transfer) error {
	stats := tr.Stats()
	switch tr.State() {
	case transfer.StateDone:
		fmt.Fprintf(w, "done: %d bytes transferred\n", stats.TransferredBytes)
		return nil
	case transfer.StateCancelled:
		return fmt.Errorf("transfer cancelled")
	default:
		return fmt.Errorf("transfer stopped in state %s after %d bytes", tr.State(), stats.TransferredBytes)
	}
}
