// Package engine implements the MCP protocol engine: the per-connection
// session state machine and the routing of protocol methods onto the tool
// dispatcher. The engine itself holds only read-only configuration and is
// shared by every session of every transport.
package engine

import (
	"log/slog"
	"strings"

	"github.com/petal-labs/petalmcp/mcp"
	"github.com/petal-labs/petalmcp/tool"
)

const (
	defaultServerName    = "mcp-website-fetcher"
	defaultServerVersion = "dev"
)

// Options configures the engine identity.
type Options struct {
	ServerInfo   mcp.ServerInfo
	Instructions string
	Logger       *slog.Logger
}

// Engine answers protocol messages for any number of sessions.
type Engine struct {
	info         mcp.ServerInfo
	instructions string
	dispatcher   *tool.Dispatcher
	logger       *slog.Logger
}

// New returns an engine over dispatcher.
func New(dispatcher *tool.Dispatcher, options Options) *Engine {
	if strings.TrimSpace(options.ServerInfo.Name) == "" {
		options.ServerInfo.Name = defaultServerName
	}
	if strings.TrimSpace(options.ServerInfo.Version) == "" {
		options.ServerInfo.Version = defaultServerVersion
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		info:         options.ServerInfo,
		instructions: options.Instructions,
		dispatcher:   dispatcher,
		logger:       logger,
	}
}

// ServerInfo returns the identity advertised in the handshake.
func (e *Engine) ServerInfo() mcp.ServerInfo {
	return e.info
}

// Registry returns the tool catalog served by the engine.
func (e *Engine) Registry() *tool.Registry {
	return e.dispatcher.Registry()
}

// NewSession starts a session in the Uninitialized state. transport names the
// bridge that owns it ("stdio", "sse") and is used for logs and telemetry.
func (e *Engine) NewSession(id, transport string) *Session {
	return &Session{
		id:        id,
		transport: transport,
		engine:    e,
		logger:    e.logger.With("session", id, "transport", transport),
		state:     StateUninitialized,
	}
}
