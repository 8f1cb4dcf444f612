// Package monitor holds the scheduled sweeps that keep accounts, positions
// and resting orders in step with the market.
package monitor

import (
	"context"

	"lv-tradedesk/internal/model"
	"lv-tradedesk/internal/types"
	"lv-tradedesk/internal/workflow"

	"github.com/shopspring/decimal"
)

// Submitter queues account-scoped work. *workflow.Pool satisfies it.
type Submitter interface {
	Submit(ctx context.Context, job workflow.Job) error
}

type inline struct{}

func (inline) Submit(ctx context.Context, job workflow.Job) error { return job.Run(ctx) }

// Inline runs jobs on the caller's goroutine.
var Inline Submitter = inline{}

type Accounts interface {
	Get(ctx context.Context, id string) (model.Account, error)
	ListActive(ctx context.Context) ([]model.Account, error)
}

type Pricer interface {
	Price(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Closer is the close handler shared by both position-closing sweeps.
type Closer interface {
	Close(ctx context.Context, positionID string, price decimal.Decimal, reason types.CloseReason, actorID string) (model.Position, error)
}
