package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ppiankov/scriptguard/internal/bridge"
	"github.com/ppiankov/scriptguard/internal/redact"
	"github.com/ppiankov/scriptguard/internal/tracer"
)

// Wrap returns an executor that forwards to next and records every call,
// successful or not, in l. Secret-looking params are masked. A failed audit write is logged and does not
// change the result handed back to the script.
func Wrap(l *Log, next bridge.Executor, allowlistHash string, logger *slog.Logger) bridge.Executor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return func(ctx context.Context, call bridge.CommandCall) (any, error) {
		start := time.Now()
		result, err := next(ctx, call)

		entry := Entry{
			RunID:         tracer.RunID(ctx),
			CallID:        tracer.NewCallID(),
			Type:          TypeCommand,
			Command:       call.Command,
			Status:        "ok",
			DurationMs:    time.Since(start).Milliseconds(),
			AllowlistHash: allowlistHash,
		}
		if len(call.Params) > 0 {
			if raw, merr := json.Marshal(redact.Params(call.Params)); merr == nil {
				entry.Params = raw
			}
		}
		if err != nil {
			entry.Status = "error"
			entry.Error = redact.String(err.Error())
		}
		if werr := l.Record(entry); werr != nil {
			logger.Error("audit write failed", "command", call.Command, "error", werr)
		}
		return result, err
	}
}
