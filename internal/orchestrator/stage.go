package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tryon/internal/domain"
	"tryon/internal/metrics"
)

// Outcome tags how a stage finished.
type Outcome int

const (
	Ok Outcome = iota
	Degraded
	Fatal
)

func (o Outcome) String() string {
	switch o {
	case Ok:
		return "ok"
	case Degraded:
		return "degraded"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// StageResult is the tagged result of one pipeline stage. Value is only
// meaningful when Kind is Ok; Err is set otherwise.
type StageResult[T any] struct {
	Kind  Outcome
	Value T
	Err   error
}

func ok[T any](v T) StageResult[T] {
	return StageResult[T]{Kind: Ok, Value: v}
}

func degraded[T any](err error) StageResult[T] {
	return StageResult[T]{Kind: Degraded, Err: err}
}

func fatal[T any](err error) StageResult[T] {
	return StageResult[T]{Kind: Fatal, Err: err}
}

// stageTimeoutError reports a stage that hit its internal ceiling. It matches
// domain.ErrProviderTransport.
type stageTimeoutError struct {
	stage   string
	timeout time.Duration
}

func (e *stageTimeoutError) Error() string {
	return fmt.Sprintf("stage %s timed out after %s", e.stage, e.timeout)
}

func (e *stageTimeoutError) Is(target error) bool {
	return target == domain.ErrProviderTransport || target == context.DeadlineExceeded
}

// runStage calls fn under the stage timeout and converts its error with
// onErr. Latency and outcome are recorded per stage.
func runStage[T any](ctx context.Context, stage string, timeout time.Duration, onErr func(error) StageResult[T], fn func(context.Context) (T, error)) StageResult[T] {
	stageCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	started := time.Now()
	v, err := fn(stageCtx)
	var res StageResult[T]
	switch {
	case err == nil:
		res = ok(v)
	case errors.Is(stageCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		res = onErr(&stageTimeoutError{stage: stage, timeout: timeout})
	default:
		res = onErr(err)
	}
	metrics.ObserveStage(stage, res.Kind.String(), time.Since(started))
	return res
}
