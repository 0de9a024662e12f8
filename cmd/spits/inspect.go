package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/wippyai/spits/config"
)

func newInspectCmd() *cobra.Command {
	var backend string
	var memoryPages uint32
	cmd := &cobra.Command{
		Use:   "inspect <binary>",
		Short: "List the SPITS symbols a job binary exports",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			job := config.Default()
			job.Binary = args[0]
			job.Backend = config.Backend(backend)
			job.MemoryLimitPages = memoryPages
			if err := job.Validate(); err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			bin, err := openBinary(ctx, job)
			if err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, bin.Close(ctx)) }()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "binary   %s\n", bin.Path())
			fmt.Fprintf(out, "backend  %s\n", job.ResolvedBackend())
			fmt.Fprintf(out, "main     %t\n\n", bin.Capabilities().HasMain())

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SYMBOL\tSHAPE\tKIND\tPRESENT")
			for _, e := range bin.Exports() {
				kind := "optional"
				if e.Required {
					kind = "required"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", e.Name, e.Shape, kind, e.Present)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&backend, "backend", "", "native, wasm or inproc (default: from the binary)")
	cmd.Flags().Uint32Var(&memoryPages, "memory-pages", 0, "wasm memory limit in 64KiB pages")
	return cmd
}
