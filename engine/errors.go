package engine

import "errors"

// Fatal session errors. A transport that receives one of these from
// Session.Handle delivers the accompanying response, if any, and then
// terminates the session.
var (
	ErrNotInitialized = errors.New("engine: session not initialized")
	ErrProtocol       = errors.New("engine: protocol violation")
	ErrSessionClosed  = errors.New("engine: session closed")
)

// IsFatal reports whether err must terminate the session.
func IsFatal(err error) bool {
	return errors.Is(err, ErrNotInitialized) ||
		errors.Is(err, ErrProtocol) ||
		errors.Is(err, ErrSessionClosed)
}
