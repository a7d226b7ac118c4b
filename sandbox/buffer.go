package sandbox

import (
	"bytes"
	"sync"
)

// DefaultMaxOutputBytes bounds how much sandbox output is retained. A
// candidate can emit arbitrary volume; capture truncates instead of growing.
const DefaultMaxOutputBytes = 32 << 20 // 32 MiB

// boundedWriter retains up to max bytes and silently drops the rest. Writes
// never fail: the subprocess must keep draining regardless.
type boundedWriter struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	max       int
	truncated bool
}

func newBoundedWriter(max int) *boundedWriter {
	if max <= 0 {
		max = DefaultMaxOutputBytes
	}
	return &boundedWriter{max: max}
}

func (w *boundedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if room := w.max - w.buf.Len(); room > 0 {
		keep := p
		if len(keep) > room {
			keep = keep[:room]
			w.truncated = true
		}
		w.buf.Write(keep)
	} else if len(p) > 0 {
		w.truncated = true
	}
	return len(p), nil
}

func (w *boundedWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

func (w *boundedWriter) Truncated() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.truncated
}
