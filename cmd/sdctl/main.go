package main

import (
	"fmt"
	"os"

	"github.com/danmuck/syndesi/internal/config"
	"github.com/danmuck/syndesi/internal/logging"
	"github.com/danmuck/syndesi/internal/observability"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

type rootFlags struct {
	configPath string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "sdctl: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	rootCmd := &cobra.Command{
		Use:   "sdctl",
		Short: "Syndesi device and host control",
		Long: `sdctl runs syndesi devices, sends frames to them, and inspects frames
on the wire or in packet captures.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "Node config file (.toml, .yaml)")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level override (trace|debug|info|warn|error|disabled)")

	rootCmd.AddCommand(newDeviceCmd(flags))
	rootCmd.AddCommand(newRequestCmd(flags))
	rootCmd.AddCommand(newDecodeCmd())
	rootCmd.AddCommand(newPcapCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// loadNodeConfig reads --config when given and forces role. The log level
// is applied after the logger is configured.
func loadNodeConfig(flags *rootFlags, role string) (config.Config, error) {
	cfg := config.Default()
	if flags.configPath != "" {
		var err error
		if cfg, err = config.Load(flags.configPath); err != nil {
			return config.Config{}, err
		}
	}
	cfg.Node.Role = role
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, err
	}
	observability.InitLogger("sdctl", cfg.Node.ID)
	logging.SetLevel(cfg.Log.Level)
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "sdctl version %s\n", version)
			fmt.Fprintf(out, "commit: %s\n", commit)
			fmt.Fprintf(out, "date: %s\n", date)
		},
	}
}
