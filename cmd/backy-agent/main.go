package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aundhe1m/backy-agent/pkg/agent"
	"github.com/aundhe1m/backy-agent/pkg/config"
	"github.com/aundhe1m/backy-agent/pkg/log"
	"github.com/aundhe1m/backy-agent/pkg/metrics"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	configPath string
	logLevel   string
	logJSON    bool
	listenPort int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "backy-agent",
	Short: "Backy storage agent for Linux md RAID pools",
	Long: `Backy agent is a privileged host-side storage agent that manages
Linux software-RAID (md) pools built from whole block devices.

It exposes an authenticated HTTP API for pool lifecycle operations
(create, mount, unmount, remove, inspect) and drive inspection, keeps
a durable pool metadata file, and reconciles that metadata with the
kernel's md state across reboots.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"backy-agent version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "/etc/backy/agent.yaml", "Path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Output logs in JSON format")

	serveCmd.Flags().IntVar(&listenPort, "listen-port", 0, "HTTP listen port (overrides config)")

	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the storage agent",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// Flags override file values.
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if cmd.Flags().Changed("log-json") {
		cfg.LogJSON = logJSON
	}
	if listenPort != 0 {
		cfg.ListenPort = listenPort
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := log.Setup(log.Options{
		Level:           cfg.LogLevel,
		JSON:            cfg.LogJSON,
		ComponentLevels: cfg.ComponentLogLevels,
	}); err != nil {
		return err
	}
	metrics.SetVersion(Version)

	baseLogger := log.Base()
	baseLogger.Info().
		Str("version", Version).
		Str("config", configPath).
		Msg("Starting backy-agent")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return agent.New(cfg).Run(ctx)
}
