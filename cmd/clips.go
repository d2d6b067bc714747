package cmd

import (
	"github.com/spf13/cobra"

	"github.com/fakeyudi/motionwatch/internal/clip"
)

var (
	clipsJSON   bool
	clipsFolder string
)

var clipsCmd = &cobra.Command{
	Use:   "clips",
	Short: "List recorded clips, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		folder := GetConfig().Output.Folder
		if cmd.Flags().Changed("folder") {
			folder = clipsFolder
		}

		ms, err := clip.ReadManifests(folder)
		if err != nil {
			// Unreadable sidecars are reported but the rest are still listed.
			log.Warnw("some clip manifests could not be read", "error", err)
		}

		var r clip.ManifestRenderer = &clip.TableRenderer{}
		if clipsJSON {
			r = &clip.JSONRenderer{}
		}
		out, err := r.Render(ms)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

func init() {
	clipsCmd.Flags().BoolVar(&clipsJSON, "json", false, "print manifests as JSON")
	clipsCmd.Flags().StringVarP(&clipsFolder, "folder", "f", "", "clip folder (default: output.folder)")
	rootCmd.AddCommand(clipsCmd)
}
