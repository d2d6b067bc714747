package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/motionwatch/internal/control"
	"github.com/fakeyudi/motionwatch/internal/runstate"
)

// addrFlag is shared by the commands that talk to a running daemon.
var addrFlag string

func addAddrFlag(cmd *cobra.Command) {
	cmd.Flags().StringVar(&addrFlag, "addr", "", "control address of the daemon (default: from the run state)")
}

// daemonClient returns a client for the running daemon. An explicit --addr
// wins; otherwise the address recorded by "motionwatch run" is used.
func daemonClient(cmd *cobra.Command) (*control.Client, string, error) {
	if cmd.Flags().Changed("addr") {
		c, err := control.NewClient(addrFlag)
		return c, addrFlag, err
	}

	store, err := runstate.NewStore()
	if err != nil {
		return nil, "", err
	}
	st, err := store.Load()
	if err != nil {
		return nil, "", err
	}
	if !st.Alive() {
		return nil, "", fmt.Errorf("%w (stale run state from pid %d)", runstate.ErrNotRunning, st.PID)
	}
	if st.ControlAddr == "" {
		return nil, "", errors.New("the running daemon has its control API disabled")
	}
	c, err := control.NewClient(st.ControlAddr)
	return c, st.ControlAddr, err
}
