package tool

import "sync"

// CallOutcome classifies a dispatched tools/call.
type CallOutcome string

const (
	OutcomeOK               CallOutcome = "ok"
	OutcomeUnknownTool      CallOutcome = "unknown_tool"
	OutcomeInvalidArguments CallOutcome = "invalid_arguments"
	OutcomeToolError        CallOutcome = "tool_error"
)

// CallObservation captures one dispatcher invocation.
type CallObservation struct {
	ToolName   string
	SessionID  string
	Transport  string
	DurationMS int64
	Outcome    CallOutcome
	Blocks     int
	// ErrorCode and StatusCode describe a reported collaborator failure.
	ErrorCode  string
	StatusCode int
}

// Observer receives dispatcher observability events.
type Observer interface {
	ObserveCall(observation CallObservation)
}

type noopObserver struct{}

func (noopObserver) ObserveCall(CallObservation) {}

var (
	observerMu     sync.RWMutex
	activeObserver Observer = noopObserver{}
)

// SetObserver sets the process-wide dispatcher observer. A nil observer
// restores the no-op default.
func SetObserver(observer Observer) {
	observerMu.Lock()
	defer observerMu.Unlock()
	if observer == nil {
		activeObserver = noopObserver{}
		return
	}
	activeObserver = observer
}

func emitCallObservation(observation CallObservation) {
	observerMu.RLock()
	observer := activeObserver
	observerMu.RUnlock()
	observer.ObserveCall(observation)
}
