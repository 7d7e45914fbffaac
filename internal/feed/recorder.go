// internal/feed/recorder.go
package feed

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Recorder appends raw frames to a JSONL capture file so that live traffic
// can be replayed later.
type Recorder struct {
	path string
	mu   sync.Mutex
}

func NewRecorder(path string) *Recorder {
	return &Recorder{path: path}
}

func (r *Recorder) Path() string {
	return r.path
}

// Append writes one frame followed by a newline. Embedded newlines are not
// allowed since they would split the frame across capture lines.
func (r *Recorder) Append(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	if bytes.ContainsAny(raw, "\r\n") {
		return fmt.Errorf("record frame: frame spans multiple lines")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("create capture dir: %w", err)
	}
	f, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open capture file: %w", err)
	}
	defer f.Close()

	line := make([]byte, 0, len(raw)+1)
	line = append(append(line, raw...), '\n')
	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}
