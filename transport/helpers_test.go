package transport

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/petal-labs/petalmcp/engine"
	"github.com/petal-labs/petalmcp/mcp"
	"github.com/petal-labs/petalmcp/tool"
	"github.com/petal-labs/petalmcp/tool/builtin"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	echo := tool.Entry{
		Descriptor: tool.Descriptor{
			Name:        "echo",
			Description: "Echoes its text argument",
			InputSchema: tool.Schema{
				Required:   []string{"text"},
				Properties: map[string]tool.Property{"text": {Type: tool.TypeString}},
			},
		},
		Handler: tool.HandlerFunc(func(_ context.Context, args tool.Arguments) []mcp.ContentBlock {
			text, _ := args.String("text")
			return mcp.Text(text)
		}),
	}
	reg, err := tool.NewRegistry(
		tool.Entry{Descriptor: builtin.MoodDescriptor(), Handler: tool.HandlerFunc(builtin.Mood)},
		echo,
	)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	logger := discardLogger()
	return engine.New(tool.NewDispatcher(reg, logger), engine.Options{
		ServerInfo: mcp.ServerInfo{Name: "transport-test", Version: "0.0.1"},
		Logger:     logger,
	})
}

// script is a representative conversation used to compare transports.
var script = []string{
	`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","clientInfo":{"name":"t"}}}`,
	`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
	`{"jsonrpc":"2.0","id":"two","method":"tools/list"}`,
	`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"mood","arguments":{"question":"how are you?"}}}`,
	`{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"nope","arguments":{}}}`,
	`{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"echo","arguments":{}}}`,
	`{"jsonrpc":"2.0","id":6,"method":"ping"}`,
}

// directReplies runs script against a fresh session and returns the encoded
// replies, the reference every transport must reproduce.
func directReplies(t *testing.T, eng *engine.Engine) []string {
	t.Helper()
	sess := eng.NewSession("direct", "direct")
	var out []string
	for _, line := range script {
		var msg mcp.Message
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			t.Fatalf("decode script line: %v", err)
		}
		resp, err := sess.Handle(context.Background(), msg)
		if err != nil {
			t.Fatalf("Handle(%s) error = %v", line, err)
		}
		if resp != nil {
			data, _ := json.Marshal(resp)
			out = append(out, string(data))
		}
	}
	return out
}
