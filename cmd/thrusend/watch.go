package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sheerbytes/thrudrop/internal/logging"
	"github.com/sheerbytes/thrudrop/internal/observe"
	"github.com/sheerbytes/thrudrop/internal/termio"
	"github.com/sheerbytes/thrudrop/internal/wsclient"
)

func newWatchCmd() *cobra.Command {
	var kinds []string
	cmd := &cobra.Command{
		Use:   "watch <admin-addr>",
		Short: "Stream server events as JSON lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wsURL, err := wsclient.EventsURL(args[0])
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := logging.New("thrusend", "warn")
			conn, err := wsclient.Dial(ctx, wsURL, logger)
			if err != nil {
				fmt.Fprintln(termio.Stderr(), "error:", err)
				return err
			}
			defer conn.Close()

			want := make(map[observe.Kind]bool, len(kinds))
			for _, k := range kinds {
				want[observe.Kind(k)] = true
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			err = conn.ReadLoop(ctx, func(ev observe.Event) {
				if len(want) > 0 && !want[ev.Kind] {
					return
				}
				_ = enc.Encode(ev)
			})
			if err != nil && ctx.Err() == nil {
				fmt.Fprintln(termio.Stderr(), "error:", err)
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "only print events of these kinds")
	return cmd
}
