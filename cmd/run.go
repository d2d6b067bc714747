package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/fakeyudi/motionwatch/internal/capture"
	"github.com/fakeyudi/motionwatch/internal/clip"
	"github.com/fakeyudi/motionwatch/internal/compare"
	"github.com/fakeyudi/motionwatch/internal/config"
	"github.com/fakeyudi/motionwatch/internal/control"
	"github.com/fakeyudi/motionwatch/internal/events"
	"github.com/fakeyudi/motionwatch/internal/motion"
	"github.com/fakeyudi/motionwatch/internal/notify"
	"github.com/fakeyudi/motionwatch/internal/runner"
	"github.com/fakeyudi/motionwatch/internal/runstate"
)

// newEncoder builds the clip encoder; tests replace it.
var newEncoder = clip.NewEncoder

var runFlags struct {
	source    string
	kind      string
	output    string
	addr      string
	noControl bool
	stopped   bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Watch the configured source and record motion clips until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := GetConfig()
		f := cmd.Flags()
		if f.Changed("source") {
			c.Source.Path = runFlags.source
		}
		if f.Changed("kind") {
			c.Source.Kind = runFlags.kind
		}
		if f.Changed("output") {
			c.Output.Folder = runFlags.output
		}
		if f.Changed("addr") {
			c.Control.Addr = runFlags.addr
		}
		if f.Changed("no-control") {
			c.Control.Enabled = !runFlags.noControl
		}
		if f.Changed("stopped") {
			c.Source.StartStopped = runFlags.stopped
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runDaemon(ctx, c, cmd.OutOrStdout())
	},
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runFlags.source, "source", "s", "", "override source.path (glob, spool directory or camera)")
	f.StringVar(&runFlags.kind, "kind", "", "override source.kind (sequence, spool, device)")
	f.StringVarP(&runFlags.output, "output", "o", "", "override output.folder")
	f.StringVar(&runFlags.addr, "addr", "", "override control.addr")
	f.BoolVar(&runFlags.noControl, "no-control", false, "do not serve the control API")
	f.BoolVar(&runFlags.stopped, "stopped", false, "wait for a start signal before capturing")
	rootCmd.AddCommand(runCmd)
}

// runDaemon wires the frame loop, notifier and control server and runs them
// until ctx is cancelled or the source ends.
func runDaemon(ctx context.Context, c config.Config, out io.Writer) error {
	if err := c.Validate(); err != nil {
		return err
	}

	store, err := runstate.NewStore()
	if err != nil {
		return err
	}
	if prev, err := store.Load(); err == nil && prev.Alive() && prev.PID != os.Getpid() {
		return fmt.Errorf("motionwatch is already running (pid %d, control %s)", prev.PID, prev.ControlAddr)
	} else if err != nil && !errors.Is(err, runstate.ErrNotRunning) {
		log.Warnw("ignoring unreadable run state", "error", err)
	}

	cc, err := c.CompareConfig()
	if err != nil {
		return err
	}
	engine, err := compare.NewEngine(c.Compare.Engine, cc)
	if err != nil {
		return err
	}
	enc, err := newEncoder(c.Output.Encoder, c.Output.FFmpeg)
	if err != nil {
		return err
	}
	writer, err := clip.NewWriter(c.ClipSettings(), enc, log)
	if err != nil {
		return err
	}

	bus := events.New(events.WithQueueLimit(c.Bus.QueueLimit))
	defer bus.Close()

	machine, err := motion.New(c.Policy(), writer, bus, log)
	if err != nil {
		return err
	}
	src, err := capture.Open(c.CaptureOptions())
	if err != nil {
		return fmt.Errorf("opening %s source: %w", c.Source.Kind, err)
	}
	defer src.Close()

	controlSub, err := bus.Subscribe()
	if err != nil {
		return err
	}
	loop := runner.New(src, engine, machine, controlSub, log, c.RunnerOptions())

	notifySub, err := bus.Subscribe()
	if err != nil {
		return err
	}
	notifier := notify.New(notifySub, log, notify.Options{
		Command: c.Notify.Command,
		Timeout: c.Notify.Timeout.D(),
	})

	var ln net.Listener
	if c.Control.Enabled {
		ln, err = net.Listen("tcp", c.Control.Addr)
		if err != nil {
			return fmt.Errorf("control server: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		// Runs until the bus closes so clips flushed at shutdown are still announced.
		notifier.Run(context.Background())
	}()

	addr := "disabled"
	serveErr := make(chan error, 1)
	if ln != nil {
		addr = ln.Addr().String()
		srv := control.NewServer(bus, loop, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Serve(ctx, ln); err != nil {
				serveErr <- err
				cancel()
			}
		}()
	}

	state := &runstate.State{
		ID:          uuid.NewString(),
		PID:         os.Getpid(),
		StartTime:   time.Now(),
		ControlAddr: addr,
		Source:      c.Source.Path,
	}
	if ln == nil {
		state.ControlAddr = ""
	}
	if err := store.Save(state); err != nil {
		log.Warnw("could not record run state", "error", err)
	}
	defer store.Delete()

	fmt.Fprintf(out, "motionwatch running: source %s (%s), clips in %s, control %s\n",
		c.Source.Path, c.Source.Kind, c.Output.Folder, addr)

	runErr := loop.Run(ctx)
	cancel()
	bus.Close()
	wg.Wait()

	st := loop.Status()
	fmt.Fprintf(out, "Processed %d frames, wrote %d clips.\n", st.Frames, st.Clips)
	if st.LastClip != "" {
		fmt.Fprintf(out, "Last clip: %s\n", st.LastClip)
	}

	select {
	case err := <-serveErr:
		return fmt.Errorf("control server: %w", err)
	default:
	}
	return runErr
}
