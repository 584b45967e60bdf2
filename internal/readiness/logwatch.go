package readiness

import (
	"regexp"
	"sync"

	"github.com/ZebulonRouseFrantzich/embedmq/pkg/command"
)

// startupPatterns match the broker's own "boot finished" log lines.
var startupPatterns = []*regexp.Regexp{
	regexp.MustCompile(`completed with \d+ plugins?\.`),
	regexp.MustCompile(`Server startup complete`),
}

// LogWatcher scans broker output for a startup-complete line.
type LogWatcher struct {
	once  sync.Once
	ready chan struct{}
}

// NewLogWatcher creates a watcher whose Ready channel is still open.
func NewLogWatcher() *LogWatcher {
	return &LogWatcher{ready: make(chan struct{})}
}

// Observe matches a single output line. It has the command.LineHandler shape.
func (w *LogWatcher) Observe(_ command.Stream, line string) {
	for _, p := range startupPatterns {
		if p.MatchString(line) {
			w.once.Do(func() { close(w.ready) })
			return
		}
	}
}

// Ready is closed once a startup line has been seen.
func (w *LogWatcher) Ready() <-chan struct{} {
	return w.ready
}
