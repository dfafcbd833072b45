package main

import (
	"fmt"
	"os"

	"github.com/fangq/gftpgo/cmd/gftpgo/commands"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.Date = date

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "gftpgo: %v\n", err)
		os.Exit(1)
	}
}
