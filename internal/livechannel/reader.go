package livechannel

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

// Event is one dispatched Server-Sent Event. Heartbeat comments surface as
// events with Comment set so callers can track liveness.
type Event struct {
	Name    string
	Data    []byte
	Comment string
}

// Reader parses an event stream
type Reader struct {
	r *bufio.Reader
}

// NewReader wraps an event stream body
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Next returns the next event or comment. It returns io.EOF when the stream
// ends cleanly and io.ErrUnexpectedEOF when it ends mid-event.
func (rd *Reader) Next() (Event, error) {
	var (
		ev      Event
		data    bytes.Buffer
		hasData bool
		partial bool
	)

	for {
		line, err := rd.r.ReadString('\n')
		if err != nil {
			if err == io.EOF && (partial || line != "") {
				return Event{}, io.ErrUnexpectedEOF
			}
			return Event{}, err
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if !partial {
				continue
			}
			if hasData {
				ev.Data = data.Bytes()
			}
			if ev.Name == "" && hasData {
				ev.Name = "message"
			}
			return ev, nil
		}

		if strings.HasPrefix(line, ":") {
			if partial {
				continue
			}
			return Event{Comment: strings.TrimSpace(strings.TrimPrefix(line, ":"))}, nil
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		partial = true

		switch field {
		case "event":
			ev.Name = value
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
		}
	}
}
