package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/petal-labs/petalmcp/mcp"
)

// newTestRoot creates a fresh command tree so flag state never leaks between tests.
func newTestRoot() *cobra.Command {
	return NewRootCmd("test")
}

// executeCommand runs a cobra command with the given args and captures stdout/stderr.
func executeCommand(root *cobra.Command, args ...string) (stdout, stderr string, err error) {
	var outBuf, errBuf bytes.Buffer
	root.SetOut(&outBuf)
	root.SetErr(&errBuf)
	root.SetArgs(args)
	err = root.Execute()
	return outBuf.String(), errBuf.String(), err
}

// writeTestFile creates a temporary file with the given content and returns its path.
func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("error = %v (%T), want *ExitError", err, err)
	}
	return exitErr.Code
}

const moodOnlyConfig = "server:\n  name: test-server\ntools:\n  enabled: [mood]\n"

func TestToolsList(t *testing.T) {
	cfgPath := writeTestFile(t, "petalmcp.yaml", "")
	stdout, _, err := executeCommand(newTestRoot(), "tools", "list", "--config", cfgPath)
	if err != nil {
		t.Fatalf("tools list error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	if len(lines) != 4 {
		t.Fatalf("tools list printed %d lines:\n%s", len(lines), stdout)
	}
	if !strings.HasPrefix(lines[0], "NAME") {
		t.Fatalf("header = %q", lines[0])
	}
	for i, name := range []string{"mcp_fetch", "mood", "vuln_lookup"} {
		if !strings.HasPrefix(lines[i+1], name+" ") {
			t.Fatalf("line %d = %q, want tool %s", i+1, lines[i+1], name)
		}
	}
}

func TestToolsListJSON(t *testing.T) {
	cfgPath := writeTestFile(t, "petalmcp.yaml", moodOnlyConfig)
	stdout, _, err := executeCommand(newTestRoot(), "tools", "list", "--json", "--config", cfgPath)
	if err != nil {
		t.Fatalf("tools list --json error = %v", err)
	}

	var result mcp.ToolsListResult
	if err := json.Unmarshal([]byte(stdout), &result); err != nil {
		t.Fatalf("decode output: %v\n%s", err, stdout)
	}
	if len(result.Tools) != 1 || result.Tools[0].Name != "mood" {
		t.Fatalf("tools = %+v", result.Tools)
	}
	if result.Tools[0].InputSchema["type"] != "object" {
		t.Fatalf("inputSchema = %v", result.Tools[0].InputSchema)
	}
}

func TestToolsCallMood(t *testing.T) {
	cfgPath := writeTestFile(t, "petalmcp.yaml", moodOnlyConfig)
	stdout, _, err := executeCommand(newTestRoot(), "tools", "call", "mood", "--arg", "question=how are you?", "--config", cfgPath)
	if err != nil {
		t.Fatalf("tools call error = %v", err)
	}
	if !strings.Contains(stdout, "I'm feeling great and happy to help you!") {
		t.Fatalf("stdout = %q", stdout)
	}
}

func TestToolsCallJSONArgs(t *testing.T) {
	cfgPath := writeTestFile(t, "petalmcp.yaml", moodOnlyConfig)
	stdout, _, err := executeCommand(newTestRoot(), "tools", "call", "mood", "--args", `{"question":"?"}`, "--json", "--config", cfgPath)
	if err != nil {
		t.Fatalf("tools call error = %v", err)
	}
	var result mcp.ToolsCallResult
	if err := json.Unmarshal([]byte(stdout), &result); err != nil {
		t.Fatalf("decode output: %v\n%s", err, stdout)
	}
	if result.IsError || len(result.Content) != 1 || result.Content[0].Type != mcp.ContentTypeText {
		t.Fatalf("result = %+v", result)
	}
}

func TestToolsCallErrors(t *testing.T) {
	cfgPath := writeTestFile(t, "petalmcp.yaml", moodOnlyConfig)

	tests := []struct {
		name     string
		args     []string
		wantCode int
		wantOut  string
	}{
		{
			name:     "unknown tool",
			args:     []string{"tools", "call", "nope"},
			wantCode: exitRuntime,
			wantOut:  "Error: Unknown tool: nope",
		},
		{
			name:     "missing argument",
			args:     []string{"tools", "call", "mood"},
			wantCode: exitRuntime,
			wantOut:  "Error: Missing required argument 'question'",
		},
		{
			name:     "malformed pair",
			args:     []string{"tools", "call", "mood", "--arg", "question"},
			wantCode: exitValidation,
		},
		{
			name:     "malformed json",
			args:     []string{"tools", "call", "mood", "--args", "{"},
			wantCode: exitValidation,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			stdout, _, err := executeCommand(newTestRoot(), append(tc.args, "--config", cfgPath)...)
			if got := exitCode(t, err); got != tc.wantCode {
				t.Fatalf("exit code = %d, want %d (err %v)", got, tc.wantCode, err)
			}
			if tc.wantOut != "" && !strings.Contains(stdout, tc.wantOut) {
				t.Fatalf("stdout = %q, want %q", stdout, tc.wantOut)
			}
		})
	}
}

func TestToolsCallExitCodeFollowsOutcome(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/down" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("Error: 404 is a band name"))
	}))
	defer srv.Close()
	cfgPath := writeTestFile(t, "petalmcp.yaml", "tools:\n  enabled: [mcp_fetch]\n")

	stdout, _, err := executeCommand(newTestRoot(), "tools", "call", "mcp_fetch", "--arg", "url="+srv.URL+"/page", "--config", cfgPath)
	if err != nil {
		t.Fatalf("page fetch error = %v", err)
	}
	if strings.TrimSpace(stdout) != "Error: 404 is a band name" {
		t.Fatalf("stdout = %q", stdout)
	}

	_, _, err = executeCommand(newTestRoot(), "tools", "call", "mcp_fetch", "--arg", "url="+srv.URL+"/down", "--config", cfgPath)
	if got := exitCode(t, err); got != exitRuntime {
		t.Fatalf("exit code = %d, want %d", got, exitRuntime)
	}
}

func TestParseArgumentValue(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{in: "true", want: true},
		{in: "42", want: int64(42)},
		{in: "1.5", want: 1.5},
		{in: "hello", want: "hello"},
		{in: `"7"`, want: "7"},
		{in: "{oops", want: "{oops"},
	}
	for _, tc := range tests {
		if got := parseArgumentValue(tc.in); got != tc.want {
			t.Errorf("parseArgumentValue(%q) = %#v, want %#v", tc.in, got, tc.want)
		}
	}
}

func TestInvalidConfiguration(t *testing.T) {
	cfgPath := writeTestFile(t, "petalmcp.yaml", "transport:\n  type: websocket\n")
	_, _, err := executeCommand(newTestRoot(), "serve", "--config", cfgPath)
	if got := exitCode(t, err); got != exitValidation {
		t.Fatalf("exit code = %d, want %d", got, exitValidation)
	}

	_, _, err = executeCommand(newTestRoot(), "serve", "--transport", "carrier-pigeon", "--config", writeTestFile(t, "ok.yaml", ""))
	if got := exitCode(t, err); got != exitValidation {
		t.Fatalf("flag override exit code = %d, want %d", got, exitValidation)
	}

	_, _, err = executeCommand(newTestRoot(), "tools", "list", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	if got := exitCode(t, err); got != exitValidation {
		t.Fatalf("missing config exit code = %d, want %d", got, exitValidation)
	}
}

func TestServeStdio(t *testing.T) {
	cfgPath := writeTestFile(t, "petalmcp.yaml", moodOnlyConfig)
	script := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"cli-test","version":"0"}}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"mood","arguments":{"question":"hi"}}}`,
	}, "\n") + "\n"

	root := newTestRoot()
	root.SetIn(strings.NewReader(script))
	stdout, _, err := executeCommand(root, "serve", "--quiet", "--config", cfgPath)
	if err != nil {
		t.Fatalf("serve error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d replies:\n%s", len(lines), stdout)
	}

	var initReply struct {
		ID     int                  `json:"id"`
		Result mcp.InitializeResult `json:"result"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &initReply); err != nil {
		t.Fatalf("decode initialize reply: %v", err)
	}
	if initReply.ID != 1 || initReply.Result.ProtocolVersion != "2025-03-26" {
		t.Fatalf("initialize reply = %s", lines[0])
	}
	if initReply.Result.ServerInfo.Name != "test-server" || initReply.Result.ServerInfo.Version != "test" {
		t.Fatalf("serverInfo = %+v", initReply.Result.ServerInfo)
	}
	if !strings.Contains(lines[2], "happy to help you") {
		t.Fatalf("tools/call reply = %s", lines[2])
	}
}

func TestServeStdioFatal(t *testing.T) {
	cfgPath := writeTestFile(t, "petalmcp.yaml", moodOnlyConfig)
	root := newTestRoot()
	root.SetIn(strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}` + "\n"))
	stdout, _, err := executeCommand(root, "serve", "--quiet", "--config", cfgPath)
	if got := exitCode(t, err); got != exitRuntime {
		t.Fatalf("exit code = %d, want %d", got, exitRuntime)
	}
	if !strings.Contains(stdout, `"code":-32002`) {
		t.Fatalf("stdout = %q, want not-initialized error", stdout)
	}
}

func TestVersionFlag(t *testing.T) {
	stdout, _, err := executeCommand(NewRootCmd("1.2.3"), "--version")
	if err != nil {
		t.Fatalf("--version error = %v", err)
	}
	if strings.TrimSpace(stdout) != "petalmcp version 1.2.3" {
		t.Fatalf("stdout = %q", stdout)
	}
}
