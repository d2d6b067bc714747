package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"github.com/fakeyudi/motionwatch/internal/events"
	"github.com/fakeyudi/motionwatch/internal/tui"
)

var (
	monitorPlain     bool
	monitorClipsOnly bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Follow the running daemon's lifecycle events live",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, addr, err := daemonClient(cmd)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var kinds []events.Kind
		if monitorClipsOnly {
			kinds = append(kinds, events.MotionCaptured)
		}
		stream, err := c.Events(ctx, kinds...)
		if err != nil {
			return err
		}

		if !monitorPlain && term.IsTerminal(os.Stdout.Fd()) {
			return tui.Run(c, stream, addr)
		}

		out := cmd.OutOrStdout()
		for ev := range stream {
			fmt.Fprintln(out, tui.FormatEvent(ev, false))
		}
		return nil
	},
}

func init() {
	addAddrFlag(monitorCmd)
	monitorCmd.Flags().BoolVar(&monitorPlain, "plain", false, "print one line per event instead of the interactive view")
	monitorCmd.Flags().BoolVar(&monitorClipsOnly, "clips", false, "only show captured clips")
	rootCmd.AddCommand(monitorCmd)
}
