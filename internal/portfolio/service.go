// Package portfolio assembles the read-only account overview: balances, a
// fresh margin snapshot, open positions and risk statistics.
package portfolio

import (
	"context"
	"fmt"

	"lv-tradedesk/internal/margin"
	"lv-tradedesk/internal/model"
	"lv-tradedesk/internal/risk"

	"github.com/shopspring/decimal"
)

type AccountResolver interface {
	Resolve(ctx context.Context, userID, requestedAccountID string) (model.Account, error)
}

type Positions interface {
	ListOpenForAccount(ctx context.Context, accountID string) ([]model.Position, error)
}

type History interface {
	History(ctx context.Context, accountID string) ([]model.Trade, error)
}

type Summary struct {
	Account     model.Account    `json:"account"`
	Margin      margin.Snapshot  `json:"margin"`
	Health      margin.Health    `json:"health"`
	BuyingPower decimal.Decimal  `json:"buying_power"`
	Positions   []model.Position `json:"positions"`
	Risk        risk.Metrics     `json:"risk"`
}

type Service struct {
	accounts        AccountResolver
	positions       Positions
	trades          History
	policy          margin.Policy
	defaultLeverage int
}

func NewService(accounts AccountResolver, positions Positions, trades History, policy margin.Policy, defaultLeverage int) *Service {
	return &Service{accounts: accounts, positions: positions, trades: trades, policy: policy, defaultLeverage: defaultLeverage}
}

// Summary recomputes the margin snapshot from the stored marks instead of
// returning the values persisted by the last sweep.
func (s *Service) Summary(ctx context.Context, userID, accountID string) (Summary, error) {
	acc, err := s.accounts.Resolve(ctx, userID, accountID)
	if err != nil {
		return Summary{}, err
	}
	open, err := s.positions.ListOpenForAccount(ctx, acc.ID)
	if err != nil {
		return Summary{}, fmt.Errorf("list positions: %w", err)
	}
	history, err := s.trades.History(ctx, acc.ID)
	if err != nil {
		return Summary{}, fmt.Errorf("trade history: %w", err)
	}
	if open == nil {
		open = []model.Position{}
	}

	lev := acc.Leverage
	if lev <= 0 {
		lev = s.defaultLeverage
	}
	snap := margin.Calculate(open, acc.Balance, lev)
	health := margin.HealthHealthy
	if snap.OpenPositions > 0 {
		health = s.policy.Classify(snap.MarginLevel)
	}
	return Summary{
		Account:     acc,
		Margin:      snap,
		Health:      health,
		BuyingPower: snap.BuyingPower(lev),
		Positions:   open,
		Risk:        risk.Aggregate(open, history),
	}, nil
}

func (s *Service) Risk(ctx context.Context, userID, accountID string) (risk.Metrics, error) {
	sum, err := s.Summary(ctx, userID, accountID)
	if err != nil {
		return risk.Metrics{}, err
	}
	return sum.Risk, nil
}
