package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Simulated echoes the call back with status "simulated".
func Simulated(_ context.Context, call CommandCall) (any, error) {
	return map[string]any{
		"command": call.Command,
		"params":  call.Params,
		"status":  "simulated",
	}, nil
}

// Router dispatches calls to an executor per namespace.
type Router struct {
	mu       sync.RWMutex
	routes   map[string]Executor
	fallback Executor
}

// NewRouter creates a Router. Calls to unrouted namespaces go to fallback;
// a nil fallback rejects them.
func NewRouter(fallback Executor) *Router {
	return &Router{
		routes:   make(map[string]Executor),
		fallback: fallback,
	}
}

// Handle routes a namespace to exec.
func (r *Router) Handle(namespace string, exec Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[namespace] = exec
}

// Execute implements Executor.
func (r *Router) Execute(ctx context.Context, call CommandCall) (any, error) {
	ns, _, _ := strings.Cut(call.Command, ".")

	r.mu.RLock()
	exec, ok := r.routes[ns]
	r.mu.RUnlock()

	if !ok {
		exec = r.fallback
	}
	if exec == nil {
		return nil, fmt.Errorf("no handler for namespace %s", ns)
	}
	return exec(ctx, call)
}

// LogExecutor handles LOG.* calls by writing to logger.
// The message param is the log message; other params become attributes.
func LogExecutor(logger *slog.Logger) Executor {
	return func(ctx context.Context, call CommandCall) (any, error) {
		_, method, _ := strings.Cut(call.Command, ".")
		var level slog.Level
		switch method {
		case "DEBUG":
			level = slog.LevelDebug
		case "INFO":
			level = slog.LevelInfo
		case "WARN":
			level = slog.LevelWarn
		case "ERROR":
			level = slog.LevelError
		default:
			return nil, fmt.Errorf("unknown log level %s", method)
		}

		msg, _ := call.Params["message"].(string)
		attrs := make([]any, 0, 2*len(call.Params))
		for _, k := range sortedParamKeys(call.Params) {
			if k == "message" {
				continue
			}
			attrs = append(attrs, k, call.Params[k])
		}
		logger.Log(ctx, level, msg, attrs...)
		return true, nil
	}
}

func sortedParamKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
