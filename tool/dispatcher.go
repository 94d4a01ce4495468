package tool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/petal-labs/petalmcp/mcp"
)

type callInfoKey struct{}

// CallInfo identifies where a call came from, for logging and telemetry.
type CallInfo struct {
	SessionID string
	Transport string
}

// WithCallInfo attaches call origin metadata to ctx.
func WithCallInfo(ctx context.Context, info CallInfo) context.Context {
	return context.WithValue(ctx, callInfoKey{}, info)
}

// CallInfoFrom returns the call origin metadata attached to ctx.
func CallInfoFrom(ctx context.Context) CallInfo {
	info, _ := ctx.Value(callInfoKey{}).(CallInfo)
	return info
}

// Dispatcher routes tools/call invocations to registry handlers. It holds no
// per-call state and never returns a Go error: every outcome is content.
type Dispatcher struct {
	registry *Registry
	logger   *slog.Logger
}

// NewDispatcher returns a dispatcher over registry. A nil logger falls back to
// slog.Default().
func NewDispatcher(registry *Registry, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{registry: registry, logger: logger}
}

// Registry returns the catalog the dispatcher resolves against.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Result is the outcome of one dispatch.
type Result struct {
	// Content is never empty.
	Content []mcp.ContentBlock
	Outcome CallOutcome
	// Err is the collaborator failure behind an OutcomeToolError, if known.
	Err error
}

// IsError reports whether the call did not complete normally. It is derived
// from the dispatch outcome, never from the content.
func (r Result) IsError() bool {
	return r.Outcome != OutcomeOK
}

// Call resolves name, validates args against the tool's schema and invokes
// the handler. The result is always a non-empty block sequence.
func (d *Dispatcher) Call(ctx context.Context, name string, args Arguments) []mcp.ContentBlock {
	return d.Dispatch(ctx, name, args).Content
}

// Dispatch is Call with the outcome attached.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args Arguments) Result {
	start := time.Now()
	info := CallInfoFrom(ctx)

	result := d.call(ctx, name, args)

	observation := CallObservation{
		ToolName:   name,
		SessionID:  info.SessionID,
		Transport:  info.Transport,
		DurationMS: time.Since(start).Milliseconds(),
		Outcome:    result.Outcome,
		Blocks:     len(result.Content),
	}
	if result.Err != nil {
		observation.ErrorCode = ErrorCode(result.Err)
		observation.StatusCode = StatusCode(result.Err)
	}
	emitCallObservation(observation)

	d.logger.Debug("tool call dispatched",
		"tool", name,
		"session", info.SessionID,
		"transport", info.Transport,
		"outcome", string(result.Outcome),
		"duration_ms", observation.DurationMS,
	)
	return result
}

func (d *Dispatcher) call(ctx context.Context, name string, args Arguments) Result {
	entry, ok := d.registry.Lookup(name)
	if !ok {
		return Result{Content: mcp.Text("Error: Unknown tool: " + name), Outcome: OutcomeUnknownTool}
	}
	if args == nil {
		args = Arguments{}
	}

	if err := Validate(entry.Descriptor.InputSchema, args); err != nil {
		var argErr *ArgumentError
		if errors.As(err, &argErr) {
			return Result{Content: mcp.Text("Error: " + argErr.Error()), Outcome: OutcomeInvalidArguments}
		}
		return Result{Content: ErrorBlocks(err), Outcome: OutcomeInvalidArguments}
	}

	rec := &callRecord{}
	blocks, err := d.invoke(withCallRecord(ctx, rec), entry, args)
	if err != nil {
		return Result{Content: blocks, Outcome: OutcomeToolError, Err: err}
	}
	if len(blocks) == 0 {
		d.logger.Warn("tool returned no content", "tool", name)
		return Result{
			Content: mcp.Text(fmt.Sprintf("Error: Tool %s returned no content", name)),
			Outcome: OutcomeToolError,
			Err:     errEmptyResult,
		}
	}
	if failure := rec.failure(); failure != nil {
		return Result{Content: blocks, Outcome: OutcomeToolError, Err: failure}
	}
	return Result{Content: blocks, Outcome: OutcomeOK}
}

var errEmptyResult = errors.New("tool: handler returned no content")

func (d *Dispatcher) invoke(ctx context.Context, entry Entry, args Arguments) (blocks []mcp.ContentBlock, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("tool panicked", "tool", entry.Descriptor.Name, "panic", r)
			blocks = mcp.Text(fmt.Sprintf("Error: Tool %s failed: %v", entry.Descriptor.Name, r))
			err = fmt.Errorf("tool: %s panicked: %v", entry.Descriptor.Name, r)
		}
	}()
	return entry.Handler.Invoke(ctx, args), nil
}
