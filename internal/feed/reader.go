// internal/feed/reader.go
package feed

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log/slog"
)

const maxLineSize = 1 << 20

// Reader streams frames from a JSONL capture, one frame per line. Blank lines
// are skipped. In strict mode the first malformed line stops the reader; in
// lenient mode it is logged and skipped.
type Reader struct {
	scanner *bufio.Scanner
	strict  bool
	line    int
	skipped int
}

func NewReader(r io.Reader, strict bool) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Reader{scanner: scanner, strict: strict}
}

// Next returns the next frame, or io.EOF at the end.
func (r *Reader) Next() (*Frame, error) {
	for r.scanner.Scan() {
		r.line++
		raw := bytes.TrimSpace(r.scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		frame, err := Decode(raw)
		if err != nil {
			if r.strict {
				return nil, fmt.Errorf("line %d: %w", r.line, err)
			}
			r.skipped++
			slog.Warn("skipping malformed frame", "line", r.line, "error", err)
			continue
		}
		return frame, nil
	}
	if err := r.scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan feed: %w", err)
	}
	return nil, io.EOF
}

// Line returns the number of lines consumed so far.
func (r *Reader) Line() int { return r.line }

// Skipped returns the number of malformed lines dropped in lenient mode.
func (r *Reader) Skipped() int { return r.skipped }
