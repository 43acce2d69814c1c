package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/audiolibrelab/wavrecorder/internal/config"
)

var (
	cfg          *config.Config
	cfgFile      string
	profile      string
	logFile      string
	verboseLevel int

	// closed after the command finishes
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "wavrecorder",
	Short: "Record PCM audio from a capture device into WAV files",
	Long: `wavrecorder captures audio from an input device and streams it into
standard RIFF/WAVE files. Recordings can be paused, resumed and stopped
from the command line or through the HTTP control server.

Without a config file the built-in defaults are used (16 kHz, 16 bit, mono).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(); err != nil {
			return err
		}
		return setupLogging(verboseLevel, cfg.Logging)
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logCloser != nil {
			return logCloser.Close()
		}
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/wavrecorder.yaml)")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "configuration profile to use (overrides active_config from file)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "write JSON logs to this file instead of stderr (overrides config)")
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=info, 1=debug")

	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(serveCmd)
}

// loadConfig resolves cfg from the config file. A missing default file is
// not an error; a missing file given with --config is.
func loadConfig() error {
	explicit := cfgFile != ""
	if !explicit {
		cfgFile = config.DefaultPath()
	}

	if _, err := os.Stat(cfgFile); !explicit && errors.Is(err, fs.ErrNotExist) {
		if profile != "" {
			return fmt.Errorf("profile %q requested but no config file found at %s", profile, cfgFile)
		}
		cfg = config.Default()
		return nil
	}

	var err error
	cfg, err = config.LoadWithProfile(cfgFile, profile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	return nil
}

// setupLogging configures slog based on the verbose level. With a log file
// configured, records go to a rotating JSON log instead of the terminal.
func setupLogging(level int, logging config.LoggingConfig) error {
	slogLevel := slog.LevelInfo
	if level >= 1 {
		slogLevel = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: slogLevel}

	filePath := logging.File
	if logFile != "" {
		filePath = logFile
	}
	if filePath == "" {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, opts)))
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	logWriter := &lumberjack.Logger{
		Filename:   filePath,
		MaxSize:    logging.MaxSizeMB,
		MaxBackups: logging.MaxBackups,
		MaxAge:     logging.MaxAgeDays,
	}
	logCloser = logWriter
	slog.SetDefault(slog.New(slog.NewJSONHandler(logWriter, opts)))
	return nil
}
