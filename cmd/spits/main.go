// Command spits loads SPITS job binaries and runs them on this machine.
//
//	spits run [flags] <binary> [args...]
//	spits inspect <binary>
//	spits version
//
// Binaries are shared objects, .wasm files, or inproc:<name> for job
// binaries compiled into this command.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	// registers inproc:mandel and inproc:pi
	_ "github.com/wippyai/spits/examples/mandel"
	_ "github.com/wippyai/spits/examples/pi"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "spits",
		Short:         "Run SPITS job binaries locally",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(newRunCmd(), newInspectCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "spits %s\n", Version)
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
