package transport

import (
	"bytes"
	"sync"
)

// captureBuffer collects session output from the SSH stdout/stderr goroutines
// while Run polls it. Offsets only ever grow, so a reader can snapshot "what
// arrived since the command was sent" by remembering Len before writing.
type captureBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *captureBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *captureBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

// Since returns a copy of the bytes written at or after offset.
func (b *captureBuffer) Since(offset int) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	data := b.buf.Bytes()
	if offset >= len(data) {
		return ""
	}
	return string(data[offset:])
}
