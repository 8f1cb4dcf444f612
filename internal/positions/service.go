package positions

import (
	"context"
	"fmt"
	"time"

	"lv-tradedesk/internal/apperr"
	"lv-tradedesk/internal/audit"
	"lv-tradedesk/internal/db"
	"lv-tradedesk/internal/metrics"
	"lv-tradedesk/internal/model"
	"lv-tradedesk/internal/notify"
	"lv-tradedesk/internal/types"
	"lv-tradedesk/internal/workflow"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Repository interface {
	Get(ctx context.Context, id string) (model.Position, error)
	GetOpen(ctx context.Context, accountID, symbol string) (*model.Position, error)
	ListByAccount(ctx context.Context, accountID string, status types.PositionStatus) ([]model.Position, error)
	ListOpen(ctx context.Context) ([]model.Position, error)
	Insert(ctx context.Context, p model.Position) (model.Position, error)
	Update(ctx context.Context, p model.Position) (model.Position, error)
}

type Balances interface {
	AdjustBalance(ctx context.Context, accountID string, delta decimal.Decimal) (model.Account, error)
}

type AccountResolver interface {
	Resolve(ctx context.Context, userID, requestedAccountID string) (model.Account, error)
}

type TradeRecorder interface {
	Insert(ctx context.Context, t model.Trade) (model.Trade, error)
}

type Pricer interface {
	Price(ctx context.Context, symbol string) (decimal.Decimal, error)
}

type Deps struct {
	Tx       db.Transactor
	Store    Repository
	Balances Balances
	Accounts AccountResolver
	Trades   TradeRecorder
	Prices   Pricer
	Audit    audit.Auditor
	Notifier notify.Notifier
	Metrics  *metrics.Metrics
	Log      *zap.Logger
}

type Service struct {
	Deps
	now func() time.Time
}

func NewService(d Deps) *Service {
	if d.Notifier == nil {
		d.Notifier = notify.Nop{}
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return &Service{Deps: d, now: func() time.Time { return time.Now().UTC() }}
}

// Apply nets a fill into the ledger and persists the result. It runs in the
// caller's transaction when ctx carries one.
func (s *Service) Apply(ctx context.Context, f Fill) (NetResult, error) {
	var res NetResult
	err := s.Tx.InTx(ctx, func(ctx context.Context) error {
		existing, err := s.Store.GetOpen(ctx, f.AccountID, f.Symbol)
		if err != nil {
			return fmt.Errorf("load open position: %w", err)
		}
		res = Net(existing, f)
		if res.Existing != nil {
			saved, err := s.Store.Update(ctx, *res.Existing)
			if err != nil {
				return err
			}
			res.Existing = &saved
		}
		if res.Opened != nil {
			saved, err := s.Store.Insert(ctx, *res.Opened)
			if err != nil {
				return err
			}
			res.Opened = &saved
		}
		return nil
	})
	return res, err
}

// Close realizes the position at price into the account balance.
func (s *Service) Close(ctx context.Context, positionID string, price decimal.Decimal, reason types.CloseReason, actorID string) (model.Position, error) {
	if !price.IsPositive() {
		return model.Position{}, apperr.Validation("invalid close price", map[string]string{"price": "must be positive"})
	}
	var (
		closed   model.Position
		realized decimal.Decimal
		userID   string
	)
	err := s.Tx.InTx(ctx, func(ctx context.Context) error {
		p, err := s.Store.Get(ctx, positionID)
		if err != nil {
			return err
		}
		if !p.IsOpen() {
			return apperr.ErrPositionClosed
		}
		at := s.now()
		Mark(&p, price)
		realized = p.UnrealizedPnL
		closeAt(&p, at, reason)

		closed, err = s.Store.Update(ctx, p)
		if err != nil {
			if apperr.KindOf(err) == apperr.KindConflict {
				if cur, getErr := s.Store.Get(ctx, positionID); getErr == nil && !cur.IsOpen() {
					return apperr.ErrPositionClosed
				}
			}
			return err
		}
		acc, err := s.Balances.AdjustBalance(ctx, p.AccountID, realized)
		if err != nil {
			return fmt.Errorf("credit realized pnl: %w", err)
		}
		userID = acc.UserID

		if s.Trades != nil {
			pnl := realized
			if _, err := s.Trades.Insert(ctx, model.Trade{
				AccountID:   p.AccountID,
				PositionID:  p.ID,
				Symbol:      p.Symbol,
				Side:        closingSide(p.Side),
				Qty:         p.Qty,
				Price:       price,
				Commission:  decimal.Zero,
				RealizedPnL: &pnl,
				ExecutedAt:  at,
			}); err != nil {
				return fmt.Errorf("record close trade: %w", err)
			}
		}

		return s.Audit.Record(ctx, audit.Entry{
			ActorID: actorID, Action: "position.close", Resource: "positions", ResourceID: p.ID,
			Changes: map[string]any{"price": price, "reason": reason, "realized_pnl": realized},
		})
	})
	if err != nil {
		return model.Position{}, err
	}

	workflow.AfterCommit(ctx, func() {
		s.Metrics.PositionClosed(string(reason))
		s.Log.Info("position closed",
			zap.String("position_id", closed.ID),
			zap.String("account_id", closed.AccountID),
			zap.String("reason", string(reason)),
			zap.String("realized_pnl", realized.String()))
		s.Notifier.Notify(ctx, notify.Event{
			Type:   notify.EventPositionClosed,
			UserID: userID,
			Data: map[string]any{
				"position":     closed,
				"reason":       reason,
				"price":        price,
				"realized_pnl": realized,
			},
		})
	})
	return closed, nil
}

// CloseForUser closes one of the user's positions at the current quote.
func (s *Service) CloseForUser(ctx context.Context, userID, positionID string) (model.Position, error) {
	p, err := s.GetForUser(ctx, userID, positionID)
	if err != nil {
		return model.Position{}, err
	}
	if !p.IsOpen() {
		return model.Position{}, apperr.ErrPositionClosed
	}
	price, err := s.Prices.Price(ctx, p.Symbol)
	if err != nil {
		return model.Position{}, fmt.Errorf("quote %s: %w", p.Symbol, err)
	}
	return s.Close(ctx, p.ID, price, types.CloseReasonUser, userID)
}

func (s *Service) GetForUser(ctx context.Context, userID, positionID string) (model.Position, error) {
	p, err := s.Store.Get(ctx, positionID)
	if err != nil {
		return p, err
	}
	if _, err := s.Accounts.Resolve(ctx, userID, p.AccountID); err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return model.Position{}, apperr.NotFound("position")
		}
		return model.Position{}, err
	}
	return p, nil
}

func (s *Service) ListForUser(ctx context.Context, userID, accountID string, status types.PositionStatus) ([]model.Position, error) {
	switch status {
	case "", types.PositionStatusOpen, types.PositionStatusClosed:
	default:
		return nil, apperr.Validation("invalid status", map[string]string{"status": "must be open or closed"})
	}
	acc, err := s.Accounts.Resolve(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}
	return s.Store.ListByAccount(ctx, acc.ID, status)
}

// ListOpen returns every open position across accounts.
func (s *Service) ListOpen(ctx context.Context) ([]model.Position, error) {
	return s.Store.ListOpen(ctx)
}

func (s *Service) ListOpenForAccount(ctx context.Context, accountID string) ([]model.Position, error) {
	return s.Store.ListByAccount(ctx, accountID, types.PositionStatusOpen)
}

// Revalue marks p at price and recomputes its share of account equity.
func (s *Service) Revalue(ctx context.Context, p model.Position, price, equity decimal.Decimal) (model.Position, error) {
	Mark(&p, price)
	p.RiskPercent = RiskPercent(p.Notional(), equity)
	return s.Store.Update(ctx, p)
}

// RiskPercent is notional / equity × 100, infinite when equity ≤ 0.
func RiskPercent(notional, equity decimal.Decimal) types.Ratio {
	if !equity.IsPositive() {
		return types.Inf()
	}
	f, _ := notional.Div(equity).Mul(decimal.NewFromInt(100)).Float64()
	return types.Ratio(f)
}

type Protection struct {
	StopLoss   *decimal.Decimal
	TakeProfit *decimal.Decimal
}

// UpdateProtection replaces the stop-loss and take-profit levels. A nil
// level clears it.
func (s *Service) UpdateProtection(ctx context.Context, userID, positionID string, prot Protection) (model.Position, error) {
	var out model.Position
	err := s.Tx.InTx(ctx, func(ctx context.Context) error {
		p, err := s.GetForUser(ctx, userID, positionID)
		if err != nil {
			return err
		}
		if !p.IsOpen() {
			return apperr.ErrPositionClosed
		}
		if err := validateProtection(p.Side, prot); err != nil {
			return err
		}
		prev := Protection{StopLoss: p.StopLoss, TakeProfit: p.TakeProfit}
		p.StopLoss, p.TakeProfit = prot.StopLoss, prot.TakeProfit
		out, err = s.Store.Update(ctx, p)
		if err != nil {
			return err
		}
		return s.Audit.Record(ctx, audit.Entry{
			ActorID: userID, Action: "position.protection", Resource: "positions", ResourceID: p.ID,
			Changes: map[string]any{"from": prev, "to": prot},
		})
	})
	return out, err
}

func validateProtection(side types.PositionSide, prot Protection) error {
	fields := map[string]string{}
	if prot.StopLoss != nil && !prot.StopLoss.IsPositive() {
		fields["stop_loss"] = "must be positive"
	}
	if prot.TakeProfit != nil && !prot.TakeProfit.IsPositive() {
		fields["take_profit"] = "must be positive"
	}
	if len(fields) == 0 && prot.StopLoss != nil && prot.TakeProfit != nil {
		if side == types.PositionSideLong && !prot.StopLoss.LessThan(*prot.TakeProfit) {
			fields["stop_loss"] = "must be below take_profit for a long position"
		}
		if side == types.PositionSideShort && !prot.StopLoss.GreaterThan(*prot.TakeProfit) {
			fields["stop_loss"] = "must be above take_profit for a short position"
		}
	}
	if len(fields) > 0 {
		return apperr.Validation("invalid protection levels", fields)
	}
	return nil
}

func closingSide(side types.PositionSide) types.OrderSide {
	if side == types.PositionSideShort {
		return types.OrderSideBuy
	}
	return types.OrderSideSell
}
