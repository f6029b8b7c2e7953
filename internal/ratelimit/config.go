package ratelimit

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Limit caps calls into one namespace per window.
// Zero values mean no limit.
type Limit struct {
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
}

func (l *Limit) active() bool {
	return l != nil && l.MaxRequests > 0 && l.Window > 0
}

// Config maps command namespaces to their limits. The "*" entry applies to
// namespaces without their own.
type Config map[string]*Limit

// HasLimits returns true if any namespace has a configured limit.
func (c Config) HasLimits() bool {
	for _, l := range c {
		if l.active() {
			return true
		}
	}
	return false
}

func (c Config) lookup(ns string) *Limit {
	if l := c[ns]; l != nil {
		return l
	}
	return c["*"]
}

// Parse builds a Config from NS=N/WINDOW specs, e.g. "HTTP=10/1m" or "*=100/1s".
func Parse(specs []string) (Config, error) {
	cfg := make(Config, len(specs))
	for _, spec := range specs {
		ns, rest, ok := strings.Cut(spec, "=")
		count, window, ok2 := strings.Cut(rest, "/")
		if !ok || !ok2 || ns == "" {
			return nil, fmt.Errorf("invalid rate limit %q: want NS=N/WINDOW", spec)
		}
		n, err := strconv.Atoi(count)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid rate limit %q: count must be a positive integer", spec)
		}
		w, err := time.ParseDuration(window)
		if err != nil || w <= 0 {
			return nil, fmt.Errorf("invalid rate limit %q: bad window", spec)
		}
		cfg[strings.ToUpper(ns)] = &Limit{MaxRequests: n, Window: w}
	}
	return cfg, nil
}
