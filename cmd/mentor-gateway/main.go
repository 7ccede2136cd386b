// ABOUTME: Entry point for mentor-gateway
// ABOUTME: Subcommands to serve the API, write a config, mint tokens and check health

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/mentor-gateway/internal/config"
	"github.com/2389/mentor-gateway/internal/gateway"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const banner = `
                      _
  _ __ ___   ___ _ __ | |_ ___  _ __
 | '_ ' _ \ / _ \ '_ \| __/ _ \| '__|
 | | | | | |  __/ | | | || (_) | |
 |_| |_| |_|\___|_| |_|\__\___/|_|   gateway
`

// getConfigPath returns the path to the gateway config file.
// Priority: MENTOR_CONFIG env var > XDG_CONFIG_HOME/mentor/gateway.yaml > ~/.config/mentor/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("MENTOR_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "mentor", "gateway.yaml")
}

// getDataPath returns the path to the mentor data directory.
// Priority: XDG_DATA_HOME/mentor > ~/.local/share/mentor
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "mentor")
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "mentor-gateway",
		Short:         "Turn routing and conversation persistence for mentor agents",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $MENTOR_CONFIG or ~/.config/mentor/gateway.yaml)")

	resolve := func() string {
		if configPath != "" {
			return configPath
		}
		return getConfigPath()
	}

	root.AddCommand(
		newServeCmd(resolve),
		newInitCmd(),
		newTokenCmd(resolve),
		newHealthCmd(resolve),
	)
	return root
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newServeCmd(configPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath())
		},
	}
}

func runServe(ctx context.Context, configPath string) error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s (%s)\n", cfg.Database.Path, cfg.Database.Driver)
	green.Print("    ▶ ")
	fmt.Printf("Agents:    %s", cfg.Agents.Backend)
	if cfg.Agents.Backend == "scripted" {
		gray.Print(" (offline)")
	}
	fmt.Println()
	if cfg.Server.DevMode {
		yellow.Println("    ! dev mode: internal errors are included in API responses")
	}
	fmt.Println()

	logger.Info("starting mentor-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}
