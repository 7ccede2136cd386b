// ABOUTME: init subcommand that writes a new gateway config file
// ABOUTME: Prompts for each setting and generates a random JWT secret

package main

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/2389/mentor-gateway/internal/config"
)

func newInitCmd() *cobra.Command {
	var (
		output   string
		defaults bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a new config file interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				output = getConfigPath()
			}
			return runInit(cmd.InOrStdin(), cmd.OutOrStdout(), output, defaults)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "config file to write (.yaml or .toml)")
	cmd.Flags().BoolVarP(&defaults, "yes", "y", false, "accept all defaults without prompting")
	return cmd
}

func generateSecret() (string, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", fmt.Errorf("generating JWT secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(secretBytes), nil
}

// defaultConfig returns a complete config with a fresh secret and the default data path.
func defaultConfig() (*config.Config, error) {
	secret, err := generateSecret()
	if err != nil {
		return nil, err
	}
	cfg := &config.Config{
		Server:   config.ServerConfig{HTTPAddr: config.DefaultHTTPAddr},
		Database: config.DatabaseConfig{Driver: config.DefaultDriver, Path: filepath.Join(getDataPath(), "mentor.db")},
		Auth:     config.AuthConfig{JWTSecret: secret},
		Agents: config.AgentsConfig{
			Backend:    config.DefaultBackend,
			TimeoutRaw: config.DefaultAgentTimeout.String(),
		},
		History: config.HistoryConfig{
			ContextWindow: config.DefaultContextWindow,
			DisplayLimit:  config.DefaultDisplayLimit,
			MaxPageLimit:  config.DefaultMaxPageLimit,
		},
		Idempotency: config.IdempotencyConfig{
			MaxEntries: config.DefaultIdemEntries,
			TTLRaw:     config.DefaultIdemTTL.String(),
		},
		Logging: config.LoggingConfig{Level: "info", Format: "text"},
	}
	return cfg, nil
}

func runInit(in io.Reader, out io.Writer, outputFile string, defaults bool) error {
	reader := bufio.NewReader(in)
	ask := func(question, defaultVal string) string {
		if defaults {
			return defaultVal
		}
		return prompt(reader, out, question, defaultVal)
	}

	fmt.Fprintln(out, "mentor-gateway configuration setup")
	fmt.Fprintln(out, "==================================")
	fmt.Fprintln(out)

	cfg, err := defaultConfig()
	if err != nil {
		return err
	}

	if _, err := os.Stat(outputFile); err == nil {
		if defaults {
			return fmt.Errorf("%s already exists", outputFile)
		}
		overwrite := ask("File exists. Overwrite?", "no")
		if !isYes(overwrite) {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	fmt.Fprintln(out, "\n--- Server Configuration ---")
	cfg.Server.HTTPAddr = ask("HTTP address", cfg.Server.HTTPAddr)

	fmt.Fprintln(out, "\n--- Database Configuration ---")
	cfg.Database.Path = ask("SQLite database path", cfg.Database.Path)
	cfg.Database.Driver = ask("SQLite driver (sqlite/sqlite3)", cfg.Database.Driver)

	fmt.Fprintln(out, "\n--- Agent Configuration ---")
	cfg.Agents.Backend = ask("Agent backend (scripted/anthropic)", cfg.Agents.Backend)
	if cfg.Agents.Backend == "anthropic" {
		cfg.Agents.APIKey = ask("Anthropic API key", "${ANTHROPIC_API_KEY}")
		cfg.Agents.Model = ask("Model", "")
	}
	cfg.Agents.TimeoutRaw = ask("Agent timeout", cfg.Agents.TimeoutRaw)

	fmt.Fprintln(out, "\n--- Logging Configuration ---")
	cfg.Logging.Level = ask("Log level (debug/info/warn/error)", cfg.Logging.Level)
	cfg.Logging.Format = ask("Log format (text/json)", cfg.Logging.Format)

	if err := writeConfigFile(outputFile, cfg); err != nil {
		return err
	}

	dataDir := filepath.Dir(cfg.Database.Path)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Fprintf(out, "\nConfig written to %s\n", outputFile)
	fmt.Fprintf(out, "Data directory: %s\n", dataDir)
	fmt.Fprintln(out, "\nTo start the server:")
	fmt.Fprintln(out, "  mentor-gateway serve")
	fmt.Fprintln(out, "To mint a bearer token:")
	fmt.Fprintln(out, "  mentor-gateway token --sub <user-id>")

	return nil
}

// writeConfigFile encodes cfg as TOML or YAML depending on the file extension.
func writeConfigFile(path string, cfg *config.Config) error {
	var buf bytes.Buffer
	buf.WriteString("# mentor-gateway configuration\n")
	buf.WriteString("# Generated by mentor-gateway init\n\n")

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
	} else {
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	// The file holds the JWT secret.
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

func isYes(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "yes" || s == "y"
}

func prompt(reader *bufio.Reader, out io.Writer, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(out, "%s [%s]: ", question, defaultVal)
	} else {
		fmt.Fprintf(out, "%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		// On EOF or error, return default
		fmt.Fprintln(out)
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
