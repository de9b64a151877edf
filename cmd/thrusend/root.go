package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sheerbytes/thrudrop/internal/config"
	"github.com/sheerbytes/thrudrop/internal/termio"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
)

const usage = "usage: thrusend <host:port> <file>..."

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "thrusend <host:port> <file>...",
		Short: "Upload files to a thrudrop server",
		Long: `thrusend uploads each file over a single connection to a thrudrop
server, resuming from whatever the server already holds.

  THRUDROP_FIELD_GAP  pause between header fields (default 50ms)
  THRUDROP_LOG_LEVEL  debug, info, warn, error (default info)`,
		Version:       fmt.Sprintf("%s (%s)", Version, Commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) < 2 {
				fmt.Fprintln(termio.Stderr(), usage)
				return fmt.Errorf("%w: expected an address and at least one file", config.ErrUsage)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.ParseClientConfig(args)
			if err != nil {
				if errors.Is(err, config.ErrUsage) {
					fmt.Fprintln(termio.Stderr(), usage)
				}
				fmt.Fprintln(termio.Stderr(), err)
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			err = upload(ctx, cfg, termio.Stdout())
			if err != nil {
				fmt.Fprintln(termio.Stderr(), "error:", err)
			}
			return err
		},
	}
	cmd.SetOut(termio.Stdout())
	cmd.SetErr(termio.Stderr())
	cmd.AddCommand(newWatchCmd())
	return cmd
}
