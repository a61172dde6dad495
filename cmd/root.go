package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentic-research/figport/internal/config"
	"github.com/agentic-research/figport/internal/logging"
)

var (
	configPath string
	logLevel   string
	logFormat  string
	outputDir  string
)

var rootCmd = &cobra.Command{
	Use:   "figport",
	Short: "Export a design document from the plugin and reorganize it on disk",
	Long: `figport serves the websocket the design plugin joins, runs a staged export
of the whole document into a categorized JSON artifact tree, and reorganizes
the result into per-layer folders, component groups and design tokens.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logging.Init(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to an .hcl or .yaml config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: text or json")
	rootCmd.PersistentFlags().StringVarP(&outputDir, "output", "o", "", "Artifact output directory")
}

// loadConfig resolves the config file (if any) and applies flag overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return cfg, err
		}
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = logFormat
	}
	if flags.Changed("output") {
		cfg.OutputDir = outputDir
	}
	return cfg, cfg.Validate()
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
