package sandbox

import "sync"

// output collects printed lines in call order, up to max lines.
type output struct {
	mu        sync.Mutex
	lines     []string
	max       int
	truncated bool
}

func (o *output) write(line string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.max > 0 && len(o.lines) >= o.max {
		o.truncated = true
		return
	}
	o.lines = append(o.lines, line)
}

func (o *output) snapshot() ([]string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string{}, o.lines...), o.truncated
}
