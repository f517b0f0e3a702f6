package httpx

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// maxSSELineSize is the longest single SSE line accepted (1 MB). Tool-call
// arguments can exceed bufio.Scanner's 64 KiB default.
const maxSSELineSize = 1024 * 1024

// SSEScanner reads Server-Sent Event data payloads.
type SSEScanner struct {
	scanner *bufio.Scanner
}

// NewSSEScanner creates a scanner over r.
func NewSSEScanner(r io.Reader) *SSEScanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELineSize)
	return &SSEScanner{scanner: scanner}
}

// Next returns the next data payload. Consecutive data lines are joined with
// newlines; comments and other fields are skipped. It returns io.EOF at the
// end of the stream or on the "[DONE]" sentinel.
func (s *SSEScanner) Next() (string, error) {
	var data []string

	for s.scanner.Scan() {
		line := s.scanner.Text()

		if line == "" {
			if len(data) > 0 {
				return strings.Join(data, "\n"), nil
			}
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		if payload, ok := strings.CutPrefix(line, "data:"); ok {
			payload = strings.TrimSpace(payload)
			if payload == "[DONE]" {
				return "", io.EOF
			}
			data = append(data, payload)
		}
	}

	if err := s.scanner.Err(); err != nil {
		return "", fmt.Errorf("SSE scanner error: %w", err)
	}

	if len(data) > 0 {
		return strings.Join(data, "\n"), nil
	}
	return "", io.EOF
}
