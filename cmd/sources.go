package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/wavrecorder/internal/audio"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List available audio sources",
	Long:  `List the capture devices each audio backend can open on this system.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configured, err := audio.NewBackend(cfg)
		if err != nil {
			return err
		}

		fmt.Printf("Audio Sources (%s)\n", runtime.GOOS)
		fmt.Printf("═══════════════════════════════════════\n\n")

		for _, bt := range audio.GetAvailableBackends() {
			if err := listBackendSources(bt, bt == configured.GetType()); err != nil {
				return err
			}
		}

		fmt.Printf("Usage:\n")
		fmt.Printf("  • Set audio.device to a name above, or to a unique part of it\n")
		fmt.Printf("  • Leave it empty to record from the default device\n")

		return nil
	},
}

// listBackendSources lists the devices of one backend
func listBackendSources(bt audio.BackendType, configured bool) error {
	backend, err := audio.BackendFor(bt)
	if err != nil {
		return err
	}

	marker := ""
	if configured {
		marker = " (configured)"
	}

	sources, err := backend.ListSources()
	if err != nil {
		return fmt.Errorf("failed to get %s sources: %w", bt, err)
	}

	fmt.Printf("%s%s, %d found:\n", bt, marker, len(sources))
	for i, source := range sources {
		fmt.Printf("  %d. %s\n", i+1, source)
	}
	fmt.Println()
	return nil
}
