package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/petal-labs/petalmcp/mcp"
	"github.com/petal-labs/petalmcp/tool"
)

// State is the lifecycle position of a session.
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session is the protocol state of one connected peer. Handle is driven by a
// single goroutine owned by the transport; Close may be called from another.
type Session struct {
	id        string
	transport string
	engine    *Engine
	logger    *slog.Logger

	mu              sync.Mutex
	state           State
	clientInfo      mcp.ClientInfo
	protocolVersion string
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Transport returns the name of the owning transport.
func (s *Session) Transport() string { return s.transport }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ClientInfo returns the peer identity captured during the handshake.
func (s *Session) ClientInfo() mcp.ClientInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientInfo
}

// ProtocolVersion returns the negotiated protocol version, or "" before the
// handshake.
func (s *Session) ProtocolVersion() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.protocolVersion
}

// Close moves the session to Closed. It reports whether this call performed
// the transition.
func (s *Session) Close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return false
	}
	s.state = StateClosed
	s.logger.Debug("session closed")
	return true
}

// Handle processes one inbound message. It returns the reply to send, or nil
// when the message needs none. A non-nil error is fatal (see IsFatal); any
// reply returned alongside it must still be delivered before the transport
// ends the session.
func (s *Session) Handle(ctx context.Context, msg mcp.Message) (*mcp.Message, error) {
	state := s.State()
	if state == StateClosed {
		return nil, ErrSessionClosed
	}

	// Responses from the peer are not expected; nothing was requested.
	if msg.Method == "" {
		s.logger.Debug("ignoring message without method")
		return nil, nil
	}

	if !msg.HasID() {
		s.handleNotification(msg)
		return nil, nil
	}

	if msg.JSONRPC != mcp.JSONRPCVersion {
		return errorReply(msg.ID, mcp.CodeInvalidRequest, fmt.Sprintf("Invalid jsonrpc version %q", msg.JSONRPC)), nil
	}

	if msg.Method == mcp.MethodInitialize {
		return s.initialize(msg)
	}

	if state != StateInitialized {
		s.logger.Warn("request before initialization", "method", msg.Method)
		return errorReply(msg.ID, mcp.CodeNotInitialized, "Session not initialized"),
			fmt.Errorf("%w: %s", ErrNotInitialized, msg.Method)
	}

	switch msg.Method {
	case mcp.MethodPing:
		return reply(msg.ID, struct{}{})
	case mcp.MethodToolsList:
		return s.listTools(msg)
	case mcp.MethodToolsCall:
		return s.callTool(ctx, msg)
	default:
		return errorReply(msg.ID, mcp.CodeMethodNotFound, "Method not found: "+msg.Method), nil
	}
}

func (s *Session) handleNotification(msg mcp.Message) {
	switch msg.Method {
	case mcp.NotificationInitialized:
		s.logger.Debug("client confirmed initialization")
	case mcp.NotificationCancelled:
		s.logger.Debug("client cancelled request", "params", string(msg.Params))
	default:
		s.logger.Debug("ignoring notification", "method", msg.Method)
	}
}

func (s *Session) initialize(msg mcp.Message) (*mcp.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateUninitialized {
		return errorReply(msg.ID, mcp.CodeInvalidRequest, "Session already initialized"),
			fmt.Errorf("%w: repeated initialize", ErrProtocol)
	}

	var params mcp.InitializeParams
	if err := decodeParams(msg.Params, &params); err != nil {
		return errorReply(msg.ID, mcp.CodeInvalidParams, "Invalid initialize params: "+err.Error()),
			fmt.Errorf("%w: initialize: %v", ErrProtocol, err)
	}
	if strings.TrimSpace(params.ProtocolVersion) == "" {
		return errorReply(msg.ID, mcp.CodeInvalidParams, "Invalid initialize params: protocolVersion is required"),
			fmt.Errorf("%w: initialize without protocolVersion", ErrProtocol)
	}

	version := mcp.NegotiateVersion(params.ProtocolVersion)
	result := mcp.InitializeResult{
		ProtocolVersion: version,
		Capabilities: mcp.ServerCapabilities{
			Tools: &mcp.ToolsCapability{ListChanged: false},
		},
		ServerInfo:   s.engine.info,
		Instructions: s.engine.instructions,
	}
	resp, err := reply(msg.ID, result)
	if err != nil {
		return nil, err
	}

	s.state = StateInitialized
	s.clientInfo = params.ClientInfo
	s.protocolVersion = version
	s.logger.Info("session initialized",
		"client", params.ClientInfo.Name,
		"client_version", params.ClientInfo.Version,
		"protocol_version", version,
	)
	return resp, nil
}

func (s *Session) listTools(msg mcp.Message) (*mcp.Message, error) {
	descriptors := s.engine.Registry().List()
	tools := make([]mcp.Tool, 0, len(descriptors))
	for _, d := range descriptors {
		tools = append(tools, d.Wire())
	}
	return reply(msg.ID, mcp.ToolsListResult{Tools: tools})
}

func (s *Session) callTool(ctx context.Context, msg mcp.Message) (*mcp.Message, error) {
	var params mcp.ToolsCallParams
	if err := decodeParams(msg.Params, &params); err != nil {
		return errorReply(msg.ID, mcp.CodeInvalidParams, "Invalid tools/call params: "+err.Error()), nil
	}
	if strings.TrimSpace(params.Name) == "" {
		return errorReply(msg.ID, mcp.CodeInvalidParams, "Invalid tools/call params: name is required"), nil
	}

	ctx = tool.WithCallInfo(ctx, tool.CallInfo{SessionID: s.id, Transport: s.transport})
	result := s.engine.dispatcher.Dispatch(ctx, params.Name, tool.Arguments(params.Arguments))
	return reply(msg.ID, mcp.ToolsCallResult{
		Content: result.Content,
		IsError: result.IsError(),
	})
}

func decodeParams(raw json.RawMessage, out any) error {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		trimmed = "{}"
	}
	return json.Unmarshal([]byte(trimmed), out)
}

func reply(id json.RawMessage, result any) (*mcp.Message, error) {
	resp, err := mcp.NewResponse(id, result)
	if err != nil {
		return errorReply(id, mcp.CodeInternalError, "Internal error"), nil
	}
	return &resp, nil
}

func errorReply(id json.RawMessage, code int, message string) *mcp.Message {
	resp := mcp.NewErrorResponse(id, code, message)
	return &resp
}
