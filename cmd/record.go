package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/wavrecorder/internal/recorder"
	"github.com/audiolibrelab/wavrecorder/internal/service"
)

var recordCmd = &cobra.Command{
	Use:   "record [name]",
	Short: "Record the configured input into a WAV file",
	Long: `Record audio from the configured capture device into a new WAV file in
the output directory. The file is named after the given name and the start time.

Press Ctrl+C to stop. Send SIGUSR1 to toggle pause and resume.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) == 1 {
			name = args[0]
		}

		if dir, _ := cmd.Flags().GetString("output"); dir != "" {
			cfg.Output.Directory = dir
		}

		svc, err := service.New(cfg, service.WithLogger(slog.Default()))
		if err != nil {
			return fmt.Errorf("failed to create service: %w", err)
		}
		defer svc.Close()

		if err := svc.StartRecording(name); err != nil {
			return fmt.Errorf("failed to start recording: %w", err)
		}
		_, session := svc.GetRecordingStatus()
		fmt.Printf("Recording to %s (%s)\n", session.Path, session.Format)
		fmt.Printf("Press Ctrl+C to stop, kill -USR1 %d to pause/resume\n", os.Getpid())

		return waitForStop(cmd.Context(), svc)
	},
}

// waitForStop drives the session from signals until the user stops it or the
// capture device fails
func waitForStop(ctx context.Context, svc *service.WavRecorderService) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGUSR1)
	defer signal.Stop(sigChan)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case sig := <-sigChan:
			if sig != syscall.SIGUSR1 {
				return stopAndReport(svc)
			}
			if err := togglePause(svc); err != nil {
				slog.Warn("Pause toggle failed", "error", err)
			}

		case <-ticker.C:
			state, session := svc.GetRecordingStatus()
			if session == nil {
				continue
			}
			if state == recorder.StateError {
				slog.Error("Recording failed", "error", session.LastError)
				return stopAndReport(svc)
			}
			slog.Debug("Recording", "state", state, "duration_s", session.Duration, "bytes", session.RecordedBytes)

		case <-ctx.Done():
			return stopAndReport(svc)
		}
	}
}

func togglePause(svc *service.WavRecorderService) error {
	state, _ := svc.GetRecordingStatus()
	switch state {
	case recorder.StateRecording:
		if err := svc.PauseRecording(); err != nil {
			return err
		}
		fmt.Println("Paused")
	case recorder.StatePaused:
		if err := svc.ResumeRecording(); err != nil {
			return err
		}
		fmt.Println("Resumed")
	}
	return nil
}

func stopAndReport(svc *service.WavRecorderService) error {
	_, session := svc.GetRecordingStatus()
	failure := ""
	if session != nil {
		failure = session.LastError
	}

	slog.Info("Stopping recording...")
	if err := svc.StopRecording(); err != nil {
		return fmt.Errorf("failed to stop recording: %w", err)
	}
	if session == nil {
		return nil
	}

	rec := svc.Recorder()
	fmt.Printf("Saved %s: %d bytes of audio, %ds\n", session.Path, rec.RecordedBytes(), rec.Duration())
	if session.DroppedHalves > 0 {
		fmt.Printf("Warning: %d buffer halves dropped while the writer fell behind\n", session.DroppedHalves)
	}
	if failure != "" {
		return fmt.Errorf("recording ended early: %s", failure)
	}
	return nil
}

func init() {
	recordCmd.Flags().StringP("output", "o", "", "output directory (overrides config)")
}
