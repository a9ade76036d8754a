package mcpproto

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// WriteSSEEvent frames one Server-Sent Event, the write-side counterpart to
// the teacher's read-side readSSEEvent (runtime/mcp/ssecaller.go), used by
// the `/mcp` streamable-HTTP and legacy `/sse` transports to push
// responses, notifications, and job-event streams to subscribers.
func WriteSSEEvent(w io.Writer, event string, data []byte) error {
	var b strings.Builder
	if event != "" {
		fmt.Fprintf(&b, "event: %s\n", event)
	}
	for _, line := range strings.Split(string(data), "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteString("\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// ReadSSEEvent parses one SSE frame from reader, mirroring the teacher's
// runtime/mcp/ssecaller.go readSSEEvent exactly (comment lines starting
// with ":", multi-line "data:" fields joined by "\n", blank line
// terminates the event). The server transports only write SSE; this reader
// is the parsing side used by the package's round-trip tests.
func ReadSSEEvent(reader *bufio.Reader) (event string, data []byte, err error) {
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if event == "" && len(data) == 0 {
				continue
			}
			return event, data, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		if after, ok := strings.CutPrefix(line, "event:"); ok {
			event = strings.TrimSpace(after)
			continue
		}
		if after, ok := strings.CutPrefix(line, "data:"); ok {
			chunk := strings.TrimPrefix(after, " ")
			if len(data) > 0 {
				data = append(data, '\n')
			}
			data = append(data, chunk...)
			continue
		}
	}
}
