package transport

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strconv"
	"strings"
)

// errFrameTooLarge reports a message over the size limit. The oversized
// bytes have already been consumed, so the stream stays usable.
var errFrameTooLarge = errors.New("transport: message exceeds size limit")

// readFrame reads one message from reader. Input is normally one JSON value
// per line; a "Content-Length:" header block followed by a blank line is also
// accepted. Neither form buffers more than maxSize bytes: oversized lines and
// oversized Content-Length payloads are discarded and reported as
// errFrameTooLarge. A malformed length header falls through as a line so the
// caller reports a parse error.
func readFrame(reader *bufio.Reader, maxSize int) ([]byte, error) {
	for {
		line, err := readLine(reader, maxSize)
		if err != nil {
			if errors.Is(err, io.EOF) {
				trimmed := bytes.TrimSpace(line)
				if len(trimmed) == 0 {
					return nil, io.EOF
				}
				return trimmed, nil
			}
			return nil, err
		}

		first := bytes.TrimSpace(line)
		if len(first) == 0 {
			continue
		}
		if !strings.HasPrefix(strings.ToLower(string(first)), "content-length:") {
			return first, nil
		}

		_, value, _ := strings.Cut(string(first), ":")
		length, convErr := strconv.Atoi(strings.TrimSpace(value))
		if convErr != nil || length < 0 {
			return first, nil
		}

		for {
			header, headerErr := readLine(reader, maxSize)
			if headerErr != nil && !errors.Is(headerErr, errFrameTooLarge) {
				return nil, headerErr
			}
			if headerErr == nil && len(bytes.TrimSpace(header)) == 0 {
				break
			}
		}

		if length > maxSize {
			if _, err := io.CopyN(io.Discard, reader, int64(length)); err != nil {
				return nil, err
			}
			return nil, errFrameTooLarge
		}
		payload := make([]byte, length)
		if _, err := io.ReadFull(reader, payload); err != nil {
			return nil, err
		}
		return bytes.TrimSpace(payload), nil
	}
}

// readLine returns the next line including its terminator. A line longer
// than maxSize plus a CRLF terminator is consumed to its end and reported as
// errFrameTooLarge.
func readLine(reader *bufio.Reader, maxSize int) ([]byte, error) {
	limit := maxSize + 2
	var line []byte
	for {
		chunk, err := reader.ReadSlice('\n')
		if len(line)+len(chunk) > limit {
			for errors.Is(err, bufio.ErrBufferFull) {
				_, err = reader.ReadSlice('\n')
			}
			if err != nil && !errors.Is(err, io.EOF) {
				return nil, err
			}
			return nil, errFrameTooLarge
		}
		line = append(line, chunk...)
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return line, err
	}
}
