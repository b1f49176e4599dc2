package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/retz8/iris/internal/config"
	"github.com/retz8/iris/internal/logging"
)

var (
	// Version information (set by build flags)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	cfgFile string
	verbose bool
	logger  *logrus.Logger
	cfg     *config.Config
)

func main() {
	defer logging.Close()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "iris",
	Short: "IRIS - file intent and responsibility blocks for any source file",
	Long: `IRIS reads a source file and explains it the way a colleague would: one line on
why the file exists and a handful of named responsibility blocks with their line ranges.
Small files are summarized in one pass; larger ones are read selectively from a shallow
structure.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// stdout carries results and MCP traffic
		logger = logrus.New()
		logger.SetOutput(os.Stderr)
		if verbose {
			logger.SetLevel(logrus.DebugLevel)
		} else {
			logger.SetLevel(logrus.InfoLevel)
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			logger.WithError(err).Warn("Failed to load config, using defaults")
			cfg = config.Default()
		}

		if err := logging.Initialize(loggingConfig(cfg.Logging)); err != nil {
			logger.WithError(err).Warn("Failed to open log file, logging to stderr only")
		}
	},
}

func loggingConfig(lc config.LoggingConfig) logging.Config {
	if verbose {
		return logging.DefaultConfig(true)
	}
	if lc.File != "" {
		return logging.FileConfig(logging.ParseLevel(lc.Level), lc.File, lc.JSON)
	}
	c := logging.DefaultConfig(false)
	c.Level = logging.ParseLevel(lc.Level)
	c.JSONFormat = lc.JSON
	return c
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: .iris/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.SetVersionTemplate(`IRIS {{.Version}}
Build time: ` + BuildTime + `
Git commit: ` + GitCommit + `
`)

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(structureCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(configureCmd)
	rootCmd.AddCommand(cacheCmd)
}
