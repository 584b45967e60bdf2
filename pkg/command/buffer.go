package command

import "sync"

// defaultOutputLimit is the per-stream capture limit. Older output is
// discarded once a long-running process exceeds it.
const defaultOutputLimit = 1 << 20

// outputBuffer is a concurrency-safe, size-bounded capture buffer.
type outputBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func newOutputBuffer(limit int) *outputBuffer {
	return &outputBuffer{limit: limit}
}

func (b *outputBuffer) appendLine(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf = append(b.buf, line...)
	b.buf = append(b.buf, '\n')
	if b.limit > 0 && len(b.buf) > b.limit {
		drop := len(b.buf) - b.limit
		b.buf = append(b.buf[:0], b.buf[drop:]...)
	}
}

func (b *outputBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
