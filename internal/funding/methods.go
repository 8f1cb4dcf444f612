package funding

import (
	"strings"

	"lv-tradedesk/internal/types"

	"github.com/shopspring/decimal"
)

// Method is a funding rail a transaction can move through.
type Method struct {
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	Deposit  bool            `json:"deposit"`
	Withdraw bool            `json:"withdraw"`
	Min      decimal.Decimal `json:"min"`
	Max      decimal.Decimal `json:"max"`
	internal bool
}

// MethodInternal books fees and dividends; users cannot pick it.
const MethodInternal = "internal"

var methodCatalog = []Method{
	{ID: "card", Title: "Card", Deposit: true, Withdraw: true, Min: decimal.NewFromInt(10), Max: decimal.NewFromInt(10_000)},
	{ID: "bank_transfer", Title: "Bank transfer", Deposit: true, Withdraw: true, Min: decimal.NewFromInt(50), Max: decimal.NewFromInt(1_000_000)},
	{ID: "crypto", Title: "Crypto", Deposit: true, Withdraw: true, Min: decimal.NewFromInt(20), Max: decimal.NewFromInt(250_000)},
	{ID: MethodInternal, Title: "Internal", internal: true},
}

// Methods lists the rails offered to users.
func Methods() []Method {
	out := make([]Method, 0, len(methodCatalog))
	for _, m := range methodCatalog {
		if !m.internal {
			out = append(out, m)
		}
	}
	return out
}

func LookupMethod(id string) (Method, bool) {
	normalized := strings.ToLower(strings.TrimSpace(id))
	for _, m := range methodCatalog {
		if m.ID == normalized {
			return m, true
		}
	}
	return Method{}, false
}

func TitleByID(id string) string {
	if m, ok := LookupMethod(id); ok {
		return m.Title
	}
	normalized := strings.ToLower(strings.TrimSpace(id))
	if normalized == "" {
		return ""
	}
	return strings.ToUpper(strings.ReplaceAll(normalized, "_", " "))
}

// allows reports whether a user may move amount through m in direction typ.
// The returned message names the violated limit.
func (m Method) allows(typ types.TransactionType, amount decimal.Decimal) (bool, string) {
	if m.internal {
		return false, "method is not available"
	}
	switch typ {
	case types.TransactionTypeDeposit:
		if !m.Deposit {
			return false, "method does not accept deposits"
		}
	case types.TransactionTypeWithdrawal:
		if !m.Withdraw {
			return false, "method does not pay out withdrawals"
		}
	default:
		return false, "unsupported transaction type"
	}
	if amount.LessThan(m.Min) {
		return false, "below the minimum of " + m.Min.String()
	}
	if m.Max.IsPositive() && amount.GreaterThan(m.Max) {
		return false, "above the maximum of " + m.Max.String()
	}
	return true, ""
}
