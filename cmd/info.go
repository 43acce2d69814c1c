package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/wavrecorder/internal/store"
	"github.com/audiolibrelab/wavrecorder/internal/wav"
)

var infoCmd = &cobra.Command{
	Use:   "info <file.wav>",
	Short: "Show the header and decoded details of a WAV file",
	Long:  `Display the 44-byte header fields of a recording, the duration derived from them, and what a full decoder pass finds in the payload.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]

		f, err := store.NewOS().Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		h, err := wav.ReadHeader(f)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		fmt.Printf("=== HEADER ===\n")
		fmt.Printf("file: %s\n", path)
		fmt.Printf("riff_size: %d\n", h.RIFFSize)
		fmt.Printf("format: %s\n", h.Format())
		fmt.Printf("byte_rate: %d\n", h.ByteRate)
		fmt.Printf("block_align: %d\n", h.BlockAlign)
		fmt.Printf("data_size: %d\n", h.DataSize)
		if h.ByteRate > 0 {
			fmt.Printf("duration: %ds\n", (wav.HeaderSize+h.DataSize)/h.ByteRate)
		}

		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return err
		}
		info, err := wav.Probe(f)
		if err != nil {
			fmt.Printf("\nprobe: %v\n", err)
			return nil
		}

		fmt.Printf("\n=== DECODED ===\n")
		fmt.Printf("frames: %d\n", info.Frames)
		fmt.Printf("duration: %s\n", info.Duration)

		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return err
		}
		buf, err := wav.ReadPCM(f)
		if err != nil {
			return err
		}
		fmt.Printf("peak: %.3f\n", wav.Peak(buf))

		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
