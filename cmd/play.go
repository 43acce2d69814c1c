package cmd

import (
	"github.com/spf13/cobra"

	"github.com/audiolibrelab/wavrecorder/internal/play"
	"github.com/audiolibrelab/wavrecorder/internal/store"
)

var playCmd = &cobra.Command{
	Use:   "play <name>",
	Short: "Play a recording",
	Long: `Play a recording from the output directory with the first external
player found (aplay, ffplay, mpv, vlc). The name may be a file name or the
name a session was recorded under, in which case the newest take is played.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return play.New(cfg, store.NewOS()).Play(args[0])
	},
}
