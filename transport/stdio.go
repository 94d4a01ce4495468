// Package transport bridges external byte streams onto the protocol engine:
// a stdio bridge serving one peer over a pair of pipes and an HTTP bridge
// serving any number of peers over Server-Sent Events.
package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/petal-labs/petalmcp/engine"
	"github.com/petal-labs/petalmcp/mcp"
)

// Transport names reported to logs and telemetry.
const (
	NameStdio = "stdio"
	NameSSE   = "sse"
)

const defaultMaxMessageSize = 4 << 20

// Stdio serves a single session over In and Out. Messages are handled one at
// a time in arrival order.
type Stdio struct {
	In     io.Reader
	Out    io.Writer
	Engine *engine.Engine
	Logger *slog.Logger
	// MaxMessageSize caps a Content-Length framed message (default 4 MiB).
	MaxMessageSize int

	writeMu sync.Mutex
}

type frame struct {
	data []byte
	err  error
}

// Serve runs the session until In reaches EOF (nil), ctx is cancelled
// (ctx.Err()), or the engine reports a fatal error, which is returned after
// the accompanying reply has been written.
func (s *Stdio) Serve(ctx context.Context) error {
	if s.Engine == nil {
		return errors.New("transport: stdio engine is nil")
	}
	if s.In == nil || s.Out == nil {
		return errors.New("transport: stdio streams are required")
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxSize := s.MaxMessageSize
	if maxSize <= 0 {
		maxSize = defaultMaxMessageSize
	}

	session := s.Engine.NewSession(uuid.NewString(), NameStdio)
	defer session.Close()
	logger = logger.With("session", session.ID(), "transport", NameStdio)
	logger.Info("stdio session started")

	frames := make(chan frame)
	readCtx, stopReading := context.WithCancel(ctx)
	defer stopReading()
	go readFrames(readCtx, bufio.NewReader(s.In), maxSize, frames)

	for {
		var next frame
		select {
		case <-ctx.Done():
			return ctx.Err()
		case next = <-frames:
		}

		if errors.Is(next.err, errFrameTooLarge) {
			logger.Warn("rejected oversized message", "max_bytes", maxSize)
			reply := mcp.NewErrorResponse(nil, mcp.CodeInvalidRequest, "Message too large")
			if err := s.write(&reply); err != nil {
				return err
			}
			continue
		}
		if next.err != nil {
			if errors.Is(next.err, io.EOF) {
				logger.Info("stdio input closed")
				return nil
			}
			return fmt.Errorf("transport: read stdin: %w", next.err)
		}

		msg, reply := decodeMessage(next.data)
		if reply != nil {
			logger.Warn("rejected malformed message", "code", reply.Error.Code)
			if err := s.write(reply); err != nil {
				return err
			}
			continue
		}

		resp, err := session.Handle(ctx, msg)
		if resp != nil {
			if werr := s.write(resp); werr != nil {
				return werr
			}
		}
		if err != nil {
			logger.Warn("session terminated", "error", err)
			return err
		}
	}
}

func readFrames(ctx context.Context, reader *bufio.Reader, maxSize int, out chan<- frame) {
	for {
		data, err := readFrame(reader, maxSize)
		select {
		case out <- frame{data: data, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil && !errors.Is(err, errFrameTooLarge) {
			return
		}
	}
}

func (s *Stdio) write(msg *mcp.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("transport: encode response: %w", err)
	}
	data = append(data, '\n')

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.Out.Write(data); err != nil {
		return fmt.Errorf("transport: write response: %w", err)
	}
	return nil
}

// decodeMessage parses one JSON-RPC message. When the payload cannot be used,
// it returns the error reply the peer should receive instead.
func decodeMessage(data []byte) (mcp.Message, *mcp.Message) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		reply := mcp.NewErrorResponse(nil, mcp.CodeInvalidRequest, "Batch requests are not supported")
		return mcp.Message{}, &reply
	}
	var msg mcp.Message
	if err := json.Unmarshal(trimmed, &msg); err != nil {
		reply := mcp.NewErrorResponse(nil, mcp.CodeParseError, "Parse error")
		return mcp.Message{}, &reply
	}
	return msg, nil
}
