// Package mcp defines the JSON-RPC 2.0 envelope and the Model Context Protocol
// payloads exchanged between a connected peer and the protocol engine.
package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const (
	// JSONRPCVersion is the only JSON-RPC version accepted on the wire.
	JSONRPCVersion = "2.0"

	// LatestProtocolVersion is advertised when a client proposes an
	// unsupported version.
	LatestProtocolVersion = "2025-06-18"
)

// SupportedProtocolVersions lists the protocol revisions the server speaks,
// newest first.
var SupportedProtocolVersions = []string{
	LatestProtocolVersion,
	"2025-03-26",
	"2024-11-05",
}

// JSON-RPC and MCP error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	// CodeNotInitialized is returned for requests that arrive before the
	// initialize handshake completed.
	CodeNotInitialized = -32002
)

// Method names handled by the engine.
const (
	MethodInitialize        = "initialize"
	MethodPing              = "ping"
	MethodToolsList         = "tools/list"
	MethodToolsCall         = "tools/call"
	NotificationInitialized = "notifications/initialized"
	NotificationCancelled   = "notifications/cancelled"
)

// Message is a JSON-RPC 2.0 envelope. ID is kept raw so string and numeric
// ids are echoed back exactly as received.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// IsNotification reports whether the message carries a method but no id.
func (m Message) IsNotification() bool {
	return m.Method != "" && !m.HasID()
}

// IsRequest reports whether the message is a method call expecting a reply.
func (m Message) IsRequest() bool {
	return m.Method != "" && m.HasID()
}

// HasID reports whether the message has a non-null id.
func (m Message) HasID() bool {
	trimmed := bytes.TrimSpace(m.ID)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// RPCError is the JSON-RPC error object.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("mcp: rpc error %d: %s", e.Code, e.Message)
}

// NewResponse builds a success response for the request id.
func NewResponse(id json.RawMessage, result any) (Message, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return Message{}, fmt.Errorf("mcp: encode result: %w", err)
	}
	return Message{
		JSONRPC: JSONRPCVersion,
		ID:      responseID(id),
		Result:  raw,
	}, nil
}

// NewErrorResponse builds an error response for the request id. A missing id
// is rendered as null, as JSON-RPC requires for parse errors.
func NewErrorResponse(id json.RawMessage, code int, message string) Message {
	return Message{
		JSONRPC: JSONRPCVersion,
		ID:      responseID(id),
		Error: &RPCError{
			Code:    code,
			Message: message,
		},
	}
}

// NewNotification builds a server-to-client notification.
func NewNotification(method string, params any) (Message, error) {
	msg := Message{JSONRPC: JSONRPCVersion, Method: method}
	if params == nil {
		return msg, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return Message{}, fmt.Errorf("mcp: encode params: %w", err)
	}
	msg.Params = raw
	return msg, nil
}

func responseID(id json.RawMessage) json.RawMessage {
	if len(bytes.TrimSpace(id)) == 0 {
		return json.RawMessage("null")
	}
	return id
}

// NegotiateVersion returns the client's proposed version when supported and
// the latest server version otherwise.
func NegotiateVersion(proposed string) string {
	for _, v := range SupportedProtocolVersions {
		if v == proposed {
			return v
		}
	}
	return LatestProtocolVersion
}

// ClientInfo identifies the connecting peer.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// ServerInfo identifies this server in the handshake.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// InitializeParams is sent by the client in the initialize request.
type InitializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities,omitempty"`
	ClientInfo      ClientInfo     `json:"clientInfo"`
}

// ServerCapabilities declares what the server supports.
type ServerCapabilities struct {
	Tools *ToolsCapability `json:"tools,omitempty"`
}

// ToolsCapability declares tool support.
type ToolsCapability struct {
	ListChanged bool `json:"listChanged"`
}

// InitializeResult is returned by the initialize request.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      ServerInfo         `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitempty"`
}

// Tool describes one tool in tools/list.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema"`
}

// ToolsListResult is returned by tools/list.
type ToolsListResult struct {
	Tools []Tool `json:"tools"`
}

// ToolsCallParams is sent in tools/call.
type ToolsCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ToolsCallResult is returned by tools/call.
type ToolsCallResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}
