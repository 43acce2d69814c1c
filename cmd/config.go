package cmd

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/wavrecorder/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `View and manage wavrecorder configuration settings.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
		fmt.Printf("# profile: %s\n", cfg.Profile)
		fmt.Print(string(out))
		return nil
	},
}

var configResolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Show the resolved configuration with inheritance indicators",
	Long:  `Display the resolved configuration and mark which values come from the selected profile and which are inherited from the default profile or built-in defaults.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		inh := cfg.Inheritance
		if inh == nil {
			fmt.Printf("No config file loaded, using built-in defaults\n\n")
			inh = &config.InheritanceInfo{}
		}

		fmt.Printf("=== RESOLVED CONFIGURATION (%s) ===\n", cfg.Profile)

		fmt.Printf("\n[Audio]\n")
		fmt.Printf("backend: %s %s\n", cfg.Audio.Backend, getInheritanceIndicator(inh.Audio.Backend))
		fmt.Printf("device: %q %s\n", cfg.Audio.Device, getInheritanceIndicator(inh.Audio.Device))
		fmt.Printf("sample_rate: %d %s\n", cfg.Audio.SampleRate, getInheritanceIndicator(inh.Audio.SampleRate))
		fmt.Printf("bits_per_sample: %d %s\n", cfg.Audio.BitsPerSample, getInheritanceIndicator(inh.Audio.BitsPerSample))
		fmt.Printf("channels: %d %s\n", cfg.Audio.Channels, getInheritanceIndicator(inh.Audio.Channels))

		fmt.Printf("\n[Capture]\n")
		fmt.Printf("half_buffer_ms: %d %s\n", cfg.Capture.HalfBufferMs, getInheritanceIndicator(inh.Capture.HalfBufferMs))
		fmt.Printf("stop_timeout_ms: %d %s\n", cfg.Capture.StopTimeoutMs, getInheritanceIndicator(inh.Capture.StopTimeoutMs))
		fmt.Printf("half_buffer_bytes: %d\n", cfg.Format().HalfSizeFor(cfg.Capture.HalfBufferMs))

		fmt.Printf("\n[Output]\n")
		fmt.Printf("directory: %s %s\n", cfg.Output.Directory, getInheritanceIndicator(inh.Output.Directory))

		return nil
	},
}

var configUseCmd = &cobra.Command{
	Use:   "use <profile>",
	Short: "Set the active configuration profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UpdateActiveConfig(cfgFile, args[0]); err != nil {
			return err
		}
		fmt.Printf("Active configuration set to '%s' in %s\n", args[0], cfgFile)
		return nil
	},
}

// getInheritanceIndicator returns a formatted indicator for inheritance status
func getInheritanceIndicator(status string) string {
	switch status {
	case "inherited":
		return "[inherited]"
	case "profile-specific":
		return "[profile-specific]"
	default:
		return "[default]"
	}
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configResolveCmd)
	configCmd.AddCommand(configUseCmd)
}
