// Package config loads the server configuration from petalmcp.yaml and
// applies defaults and validation.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/petal-labs/petalmcp/tool/builtin"
)

const (
	projectConfigName = "petalmcp.yaml"
	homeConfigName    = "config.yaml"
)

// Transport types.
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
)

// Defaults.
const (
	DefaultServerName  = "mcp-website-fetcher"
	DefaultHost        = "0.0.0.0"
	DefaultPort        = 8000
	DefaultSSEPath     = "/sse"
	DefaultMessagePath = "/messages/"
	DefaultCORSOrigin  = "*"
	DefaultMaxBody     = 1 << 20
)

// Config is the full petalmcp.yaml shape.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Transport TransportConfig `yaml:"transport"`
	Tools     builtin.Config  `yaml:"tools"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig sets the identity advertised during initialize.
type ServerConfig struct {
	Name         string `yaml:"name"`
	Version      string `yaml:"version,omitempty"`
	Instructions string `yaml:"instructions,omitempty"`
}

// TransportConfig selects and tunes the bridge.
type TransportConfig struct {
	Type        string `yaml:"type"`
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	SSEPath     string `yaml:"sse_path"`
	MessagePath string `yaml:"message_path"`
	CORSOrigin  string `yaml:"cors_origin"`
	MaxBody     int64  `yaml:"max_body"`
	// HandshakeTimeout closes SSE sessions that never initialize. Zero uses
	// the transport default; negative disables it.
	HandshakeTimeout time.Duration `yaml:"handshake_timeout,omitempty"`
}

// Addr returns the listen address.
func (t TransportConfig) Addr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// TelemetryConfig configures trace export.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint,omitempty"`
	ServiceName  string `yaml:"service_name,omitempty"`
}

// Default returns the configuration used when no file is found.
func Default() Config {
	return Config{
		Server: ServerConfig{Name: DefaultServerName},
		Transport: TransportConfig{
			Type:        TransportStdio,
			Host:        DefaultHost,
			Port:        DefaultPort,
			SSEPath:     DefaultSSEPath,
			MessagePath: DefaultMessagePath,
			CORSOrigin:  DefaultCORSOrigin,
			MaxBody:     DefaultMaxBody,
		},
		Tools: builtin.Config{Enabled: builtin.Names()},
	}
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Server.Name) == "" {
		errs = append(errs, errors.New("server.name is required"))
	}
	switch c.Transport.Type {
	case TransportStdio, TransportSSE:
	default:
		errs = append(errs, fmt.Errorf("transport.type must be %q or %q, got %q", TransportStdio, TransportSSE, c.Transport.Type))
	}
	if c.Transport.Port < 1 || c.Transport.Port > 65535 {
		errs = append(errs, fmt.Errorf("transport.port must be between 1 and 65535, got %d", c.Transport.Port))
	}
	if !strings.HasPrefix(c.Transport.SSEPath, "/") {
		errs = append(errs, fmt.Errorf("transport.sse_path must start with /, got %q", c.Transport.SSEPath))
	}
	if !strings.HasPrefix(c.Transport.MessagePath, "/") {
		errs = append(errs, fmt.Errorf("transport.message_path must start with /, got %q", c.Transport.MessagePath))
	}
	if c.Transport.SSEPath == c.Transport.MessagePath {
		errs = append(errs, errors.New("transport.sse_path and transport.message_path must differ"))
	}
	if c.Transport.MaxBody < 0 {
		errs = append(errs, fmt.Errorf("transport.max_body must not be negative, got %d", c.Transport.MaxBody))
	}
	if len(c.Tools.Enabled) == 0 {
		errs = append(errs, errors.New("tools.enabled must list at least one tool"))
	}
	return errors.Join(errs...)
}

// Discover resolves the config location with first-match semantics: the
// explicit path, ./petalmcp.yaml, then ~/.petalmcp/config.yaml.
func Discover(explicitPath string) (string, bool, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", false, fmt.Errorf("resolve working directory: %w", err)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", false, fmt.Errorf("resolve user home: %w", err)
	}
	return DiscoverFrom(explicitPath, cwd, homeDir)
}

// DiscoverFrom is a testable variant of Discover.
func DiscoverFrom(explicitPath, cwd, homeDir string) (string, bool, error) {
	candidates := make([]string, 0, 2)
	if clean := strings.TrimSpace(explicitPath); clean != "" {
		candidates = append(candidates, filepath.Clean(clean))
	} else {
		candidates = append(candidates, filepath.Join(cwd, projectConfigName))
		if homeDir != "" {
			candidates = append(candidates, filepath.Join(homeDir, ".petalmcp", homeConfigName))
		}
	}

	for i, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, true, nil
		}
		if errors.Is(err, os.ErrNotExist) {
			if i == 0 && strings.TrimSpace(explicitPath) != "" {
				return "", false, fmt.Errorf("config file %q not found", candidate)
			}
			continue
		}
		if err != nil {
			return "", false, fmt.Errorf("checking config path %q: %w", candidate, err)
		}
	}
	return "", false, nil
}

// Load reads path over the defaults. Unknown keys are rejected.
func Load(path string) (Config, error) {
	// #nosec G304 -- path resolved from explicit local config discovery.
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %q: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("parsing config %q: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, err
	}
	if len(cfg.Tools.Enabled) == 0 {
		cfg.Tools.Enabled = builtin.Names()
	}
	return cfg, nil
}

// Resolve discovers and loads the config, falling back to defaults when no
// file exists. It returns the path used, or "" for defaults.
func Resolve(explicitPath string) (Config, string, error) {
	path, found, err := Discover(explicitPath)
	if err != nil {
		return Config{}, "", err
	}
	if !found {
		return Default(), "", nil
	}
	cfg, err := Load(path)
	if err != nil {
		return Config{}, "", err
	}
	return cfg, path, nil
}
