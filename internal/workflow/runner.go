package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lv-tradedesk/internal/apperr"
	"lv-tradedesk/internal/db"
	"lv-tradedesk/internal/metrics"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// ErrHalt ends a run after the current step. The step's effects commit and
// the halt is remembered, so re-running the workflow stops at the same place.
var ErrHalt = errors.New("workflow halted")

type hooksKey struct{}

type hooks struct{ fns []func() }

// AfterCommit defers fn until the running step has committed. Outside a
// workflow step fn runs immediately.
func AfterCommit(ctx context.Context, fn func()) {
	if h, ok := ctx.Value(hooksKey{}).(*hooks); ok {
		h.fns = append(h.fns, fn)
		return
	}
	fn()
}

type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

type Checkpoints interface {
	Lookup(ctx context.Context, runID, step string) (done, halted bool, err error)
	Mark(ctx context.Context, runID, step string, halted bool) error
}

type Runner struct {
	tx          db.Transactor
	checkpoints Checkpoints
	maxAttempts uint
	newBackOff  func() backoff.BackOff
	metrics     *metrics.Metrics
	log         *zap.Logger
}

type Option func(*Runner)

// WithBackOff replaces the exponential retry schedule.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(r *Runner) { r.newBackOff = fn }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

func NewRunner(tx db.Transactor, cp Checkpoints, maxAttempts int, log *zap.Logger, opts ...Option) *Runner {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	r := &Runner{
		tx:          tx,
		checkpoints: cp,
		maxAttempts: uint(maxAttempts),
		log:         log,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			return b
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes steps in order. Each attempt of a step runs in its own
// transaction together with its checkpoint, so a completed step is never
// applied twice. Cancellation is honoured between steps only.
func (r *Runner) Run(ctx context.Context, runID string, steps []Step) error {
	for _, st := range steps {
		if err := ctx.Err(); err != nil {
			r.log.Info("workflow cancelled", zap.String("run_id", runID), zap.String("next_step", st.Name))
			return err
		}
		halted, err := r.runStep(ctx, runID, st)
		if err != nil {
			return fmt.Errorf("%s: step %s: %w", runID, st.Name, err)
		}
		if halted {
			return nil
		}
	}
	return nil
}

func (r *Runner) runStep(ctx context.Context, runID string, st Step) (bool, error) {
	stepCtx := context.WithoutCancel(ctx)
	attempt := 0
	op := func() (bool, error) {
		attempt++
		start := time.Now()
		var halted, skipped bool
		h := &hooks{}
		err := r.tx.InTx(context.WithValue(stepCtx, hooksKey{}, h), func(ctx context.Context) error {
			done, wasHalted, err := r.checkpoints.Lookup(ctx, runID, st.Name)
			if err != nil {
				return err
			}
			if done {
				skipped, halted = true, wasHalted
				return nil
			}
			if err := st.Run(ctx); err != nil {
				if !errors.Is(err, ErrHalt) {
					return err
				}
				halted = true
			}
			return r.checkpoints.Mark(ctx, runID, st.Name, halted)
		})
		if err == nil {
			for _, fn := range h.fns {
				fn()
			}
		}
		fields := []zap.Field{
			zap.String("run_id", runID),
			zap.String("step", st.Name),
			zap.Int("attempt", attempt),
			zap.Duration("took", time.Since(start)),
		}
		switch {
		case err != nil && apperr.IsPermanent(err):
			r.log.Warn("workflow step failed", append(fields, zap.Error(err))...)
			return false, backoff.Permanent(err)
		case err != nil:
			r.log.Warn("workflow step error, will retry", append(fields, zap.Error(err))...)
			return false, err
		case skipped:
			r.log.Debug("workflow step already done", append(fields, zap.Bool("halted", halted))...)
		default:
			r.log.Info("workflow step done", append(fields, zap.Bool("halted", halted))...)
		}
		return halted, nil
	}
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(r.newBackOff()),
		backoff.WithMaxTries(r.maxAttempts),
		backoff.WithNotify(func(error, time.Duration) { r.metrics.StepRetried(st.Name) }),
	)
}
