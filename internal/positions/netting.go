package positions

import (
	"time"

	"lv-tradedesk/internal/model"
	"lv-tradedesk/internal/types"

	"github.com/shopspring/decimal"
)

const pricePlaces = 8

// Fill is one execution applied to the ledger.
type Fill struct {
	AccountID  string
	Symbol     string
	Side       types.OrderSide
	Qty        decimal.Decimal
	Price      decimal.Decimal
	Leverage   int
	StopLoss   *decimal.Decimal
	TakeProfit *decimal.Decimal
	At         time.Time
}

// NetResult describes how a fill changed the ledger. Existing is the
// position the fill was netted against (possibly now closed); Opened is a
// position created by the fill. Either may be nil.
type NetResult struct {
	Existing   *model.Position
	Opened     *model.Position
	Realized   decimal.Decimal
	Reduced    bool
	OpeningQty decimal.Decimal
}

// Primary is the position a trade record should point at.
func (r NetResult) Primary() *model.Position {
	if r.Existing != nil {
		return r.Existing
	}
	return r.Opened
}

// UnrealizedPnL is (price − avg) × qty, sign flipped for shorts.
func UnrealizedPnL(side types.PositionSide, avg, price, qty decimal.Decimal) decimal.Decimal {
	return price.Sub(avg).Mul(qty).Mul(decimal.NewFromInt(side.Sign()))
}

// Mark moves a position to price and recomputes its unrealized P&L.
func Mark(p *model.Position, price decimal.Decimal) {
	p.CurrentPrice = price
	p.UnrealizedPnL = UnrealizedPnL(p.Side, p.AvgPrice, price, p.Qty)
}

// Net applies a fill to the open position for the same account and symbol.
// Same-side fills re-weight the average entry price. Opposing fills reduce
// the position and realize P&L on the reduced quantity at the fill price;
// reaching exactly zero closes it, and any excess opens the other side.
func Net(existing *model.Position, f Fill) NetResult {
	res := NetResult{}
	if existing == nil || !existing.IsOpen() {
		res.Opened = open(f, f.Qty)
		res.OpeningQty = f.Qty
		return res
	}

	p := *existing
	res.Existing = &p
	fillSide := types.SideFor(f.Side)

	if fillSide == p.Side {
		total := p.Qty.Add(f.Qty)
		p.AvgPrice = p.AvgPrice.Mul(p.Qty).Add(f.Price.Mul(f.Qty)).Div(total).Round(pricePlaces)
		p.Qty = total
		applyProtection(&p, f)
		Mark(&p, f.Price)
		p.UpdatedAt = f.At
		res.OpeningQty = f.Qty
		return res
	}

	res.Reduced = true
	switch f.Qty.Cmp(p.Qty) {
	case -1:
		res.Realized = UnrealizedPnL(p.Side, p.AvgPrice, f.Price, f.Qty)
		p.RealizedPnL = p.RealizedPnL.Add(res.Realized)
		p.Qty = p.Qty.Sub(f.Qty)
		Mark(&p, f.Price)
		p.UpdatedAt = f.At
	default:
		Mark(&p, f.Price)
		res.Realized = p.UnrealizedPnL
		closeAt(&p, f.At, types.CloseReasonNetted)
		if excess := f.Qty.Sub(existing.Qty); excess.IsPositive() {
			res.Opened = open(f, excess)
			res.OpeningQty = excess
		}
	}
	return res
}

// closeAt freezes the position: unrealized P&L moves into realized.
func closeAt(p *model.Position, at time.Time, reason types.CloseReason) {
	p.RealizedPnL = p.RealizedPnL.Add(p.UnrealizedPnL)
	p.UnrealizedPnL = decimal.Zero
	p.Status = types.PositionStatusClosed
	p.CloseReason = reason
	p.UpdatedAt = at
	closed := at
	p.ClosedAt = &closed
}

func open(f Fill, qty decimal.Decimal) *model.Position {
	p := &model.Position{
		AccountID:    f.AccountID,
		Symbol:       f.Symbol,
		Side:         types.SideFor(f.Side),
		Qty:          qty,
		AvgPrice:     f.Price,
		CurrentPrice: f.Price,
		Leverage:     f.Leverage,
		Status:       types.PositionStatusOpen,
		OpenedAt:     f.At,
		UpdatedAt:    f.At,
	}
	applyProtection(p, f)
	return p
}

func applyProtection(p *model.Position, f Fill) {
	if f.StopLoss != nil {
		p.StopLoss = f.StopLoss
	}
	if f.TakeProfit != nil {
		p.TakeProfit = f.TakeProfit
	}
}
