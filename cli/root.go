// Package cli implements the petalmcp command line: serving the protocol over
// stdio or SSE and inspecting or calling the built-in tools directly.
package cli

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/petal-labs/petalmcp/config"
	"github.com/petal-labs/petalmcp/engine"
	"github.com/petal-labs/petalmcp/mcp"
	"github.com/petal-labs/petalmcp/tool"
	"github.com/petal-labs/petalmcp/tool/builtin"
)

// NewRootCmd builds the command tree. version is advertised in the handshake
// when the config does not set one.
func NewRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "petalmcp",
		Short: "MCP tool server",
		Long:  "petalmcp serves a fixed catalog of tools to Model Context Protocol clients over stdio or SSE.",
		// SilenceUsage prevents printing usage on every error
		SilenceUsage: true,
		Version:      version,
	}
	root.SetVersionTemplate(fmt.Sprintf("petalmcp version %s\n", version))

	root.PersistentFlags().Bool("verbose", false, "Enable verbose/debug logging")
	root.PersistentFlags().Bool("quiet", false, "Suppress all log output except errors")
	root.PersistentFlags().String("config", "", "Path to petalmcp.yaml")

	root.AddCommand(NewServeCmd())
	root.AddCommand(NewToolsCmd())
	return root
}

// newLogger writes text logs to stderr; stdout may carry the protocol.
func newLogger(cmd *cobra.Command) *slog.Logger {
	verbose, _ := cmd.Flags().GetBool("verbose")
	quiet, _ := cmd.Flags().GetBool("quiet")

	level := slog.LevelInfo
	switch {
	case quiet:
		level = slog.LevelError
	case verbose:
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// loadConfig resolves the config file and applies command-line overrides.
func loadConfig(cmd *cobra.Command) (config.Config, string, error) {
	explicit, _ := cmd.Flags().GetString("config")
	cfg, path, err := config.Resolve(explicit)
	if err != nil {
		return config.Config{}, "", exitError(exitValidation, "%v", err)
	}

	if f := cmd.Flags().Lookup("transport"); f != nil && f.Changed {
		cfg.Transport.Type = strings.ToLower(strings.TrimSpace(f.Value.String()))
	}
	if f := cmd.Flags().Lookup("host"); f != nil && f.Changed {
		cfg.Transport.Host = f.Value.String()
	}
	if f := cmd.Flags().Lookup("port"); f != nil && f.Changed {
		cfg.Transport.Port, _ = cmd.Flags().GetInt("port")
	}
	if f := cmd.Flags().Lookup("cors-origin"); f != nil && f.Changed {
		cfg.Transport.CORSOrigin = f.Value.String()
	}
	if strings.TrimSpace(cfg.Server.Version) == "" {
		cfg.Server.Version = cmd.Root().Version
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, "", exitError(exitValidation, "invalid configuration: %v", err)
	}
	return cfg, path, nil
}

// buildDispatcher compiles the enabled tools.
func buildDispatcher(cfg config.Config, logger *slog.Logger) (*tool.Dispatcher, error) {
	registry, err := builtin.Catalog(cfg.Tools)
	if err != nil {
		return nil, exitError(exitValidation, "building tool catalog: %v", err)
	}
	return tool.NewDispatcher(registry, logger), nil
}

func buildEngine(cfg config.Config, logger *slog.Logger) (*engine.Engine, error) {
	dispatcher, err := buildDispatcher(cfg, logger)
	if err != nil {
		return nil, err
	}
	return engine.New(dispatcher, engine.Options{
		ServerInfo:   mcp.ServerInfo{Name: cfg.Server.Name, Version: cfg.Server.Version},
		Instructions: cfg.Server.Instructions,
		Logger:       logger,
	}), nil
}
