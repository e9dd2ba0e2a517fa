package script

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/roach88/logfire/internal/ir"
	"github.com/roach88/logfire/internal/metrics"
)

// Executor runs operations against one Redis connection.
//
// Thread-safety: Executor holds no mutable state and is safe for
// concurrent use; atomicity comes from Redis running each script alone.
type Executor struct {
	client  redis.Scripter
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewExecutor creates an executor. m may be nil.
func NewExecutor(client redis.Scripter, logger *slog.Logger, m *metrics.Metrics) *Executor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Executor{client: client, logger: logger, metrics: m}
}

// Run executes op with args serialized into ARGV[1] and returns the raw
// JSON result. Every failure is returned as an *ExecutionError and logged
// with the failing source window.
func (e *Executor) Run(ctx context.Context, op Operation, args any) (json.RawMessage, error) {
	payload, err := ir.MarshalCanonical(args)
	if err != nil {
		return nil, fmt.Errorf("marshal %s args: %w", op.Name(), err)
	}

	res, err := op.Script().Run(ctx, e.client, nil, string(payload)).Text()
	if err != nil {
		ee := annotate(op, err)
		e.metrics.ScriptError(op.Name())
		attrs := []any{"op", ee.Op, "error", ee.Err}
		if ee.Line > 0 {
			attrs = append(attrs,
				"line", ee.Line,
				"fragment", ee.Fragment,
				"local_line", ee.LocalLine,
				"source", "\n"+strings.Join(ee.Window, "\n"))
		}
		e.logger.Error("script failed", attrs...)
		return nil, ee
	}

	e.logger.Debug("script ran", "op", op.Name(), "bytes", len(res))
	return json.RawMessage(res), nil
}

// RunInt runs op and decodes a numeric result.
func (e *Executor) RunInt(ctx context.Context, op Operation, args any) (int64, error) {
	raw, err := e.Run(ctx, op, args)
	if err != nil {
		return 0, err
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("decode %s result: %w", op.Name(), err)
	}
	if i, err := n.Int64(); err == nil {
		return i, nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, fmt.Errorf("decode %s result: %w", op.Name(), err)
	}
	return int64(f), nil
}
