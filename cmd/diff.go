package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/motionwatch/internal/capture"
	"github.com/fakeyudi/motionwatch/internal/compare"
	"github.com/fakeyudi/motionwatch/internal/frame"
)

var diffCmd = &cobra.Command{
	Use:   "diff <before> <after>",
	Short: "Compare two images with the configured detector and report the moving regions",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := GetConfig()
		if err := c.ValidateLenient(); err != nil {
			return err
		}
		cc, err := c.CompareConfig()
		if err != nil {
			return err
		}
		engine, err := compare.NewEngine(c.Compare.Engine, cc)
		if err != nil {
			return err
		}

		now := time.Now()
		var frames [2]frame.Frame
		for i, path := range args {
			img, err := capture.Decode(path)
			if err != nil {
				return err
			}
			frames[i] = frame.New(img, uint64(i+1), now)
		}

		v, err := engine.Diff(frames[0], frames[1])
		if err != nil {
			return err
		}
		if !v.Changed {
			cmd.Println("No motion.")
			return nil
		}
		cmd.Printf("Motion: %d region(s) of at least %d px\n", len(v.Regions), cc.ContourAreaThreshold)
		for _, r := range v.Regions {
			cmd.Printf("  %v  %dx%d  area %d\n", r.Min, r.Dx(), r.Dy(), r.Dx()*r.Dy())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(diffCmd)
}
