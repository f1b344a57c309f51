package push

import (
	"bufio"
	"io"
	"strings"
)

const maxFrameBytes = 2 * 1024 * 1024

// readFrames scans a text/event-stream body and calls emit with the data of every
// complete event. Multiple data lines of one event are joined with "\n". Fields other
// than data, and comment lines, are skipped. It returns the scanner's terminal error,
// or nil at a clean end of stream.
func readFrames(r io.Reader, emit func(data string)) error {
	sc := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	sc.Buffer(buf, maxFrameBytes)

	var data []string
	flush := func() {
		if len(data) == 0 {
			return
		}
		emit(strings.Join(data, "\n"))
		data = data[:0]
	}

	for sc.Scan() {
		line := strings.TrimSuffix(sc.Text(), "\r")
		if line == "" {
			flush()
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		if field != "data" {
			continue
		}
		data = append(data, strings.TrimPrefix(value, " "))
	}
	if err := sc.Err(); err != nil {
		return err
	}
	// A final event without its trailing blank line is incomplete and dropped.
	return nil
}
