// Package sse implements server-sent event framing: a minimal encoder for
// the wire format and a decoder used by clients and tests.
package sse

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
)

// Event is a single server-sent event frame. Name and ID are optional;
// Data is emitted as one or more data: lines.
type Event struct {
	ID   string
	Name string
	Data []byte
}

// Write encodes the event onto w. Payloads containing newlines are split
// into consecutive data: lines so they reassemble on the far side.
func Write(w io.Writer, ev Event) error {
	if ev.ID != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", ev.ID); err != nil {
			return fmt.Errorf("failed to write SSE event ID: %w", err)
		}
	}
	if ev.Name != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", ev.Name); err != nil {
			return fmt.Errorf("failed to write SSE event name: %w", err)
		}
	}
	for _, line := range bytes.Split(ev.Data, []byte("\n")) {
		if _, err := w.Write([]byte("data: ")); err != nil {
			return fmt.Errorf("failed to write SSE data prefix: %w", err)
		}
		if _, err := w.Write(line); err != nil {
			return fmt.Errorf("failed to write SSE payload: %w", err)
		}
		if _, err := w.Write([]byte("\n")); err != nil {
			return fmt.Errorf("failed to write SSE line terminator: %w", err)
		}
	}
	if _, err := w.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write SSE frame terminator: %w", err)
	}
	return nil
}

// Reader decodes server-sent events from a stream.
type Reader struct {
	br *bufio.Reader
}

// NewReader wraps r for event-by-event decoding.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReader(r)}
}

// Next reads one event frame. It returns io.EOF once the stream ends
// cleanly before a frame starts and io.ErrUnexpectedEOF mid-frame.
func (r *Reader) Next() (Event, error) {
	var (
		ev      Event
		dataBuf bytes.Buffer
		started bool
	)
	for {
		line, err := r.br.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				if started {
					return Event{}, io.ErrUnexpectedEOF
				}
				return Event{}, io.EOF
			}
			return Event{}, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if !started {
				continue
			}
			ev.Data = append([]byte(nil), dataBuf.Bytes()...)
			return ev, nil
		}
		if strings.HasPrefix(line, ":") {
			// comment line, keepalive
			continue
		}
		started = true
		switch {
		case strings.HasPrefix(line, "id: "):
			ev.ID = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "event: "):
			ev.Name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			if dataBuf.Len() > 0 {
				dataBuf.WriteByte('\n')
			}
			dataBuf.WriteString(strings.TrimPrefix(line, "data: "))
		}
	}
}
