package types

type OrderSide string

type OrderType string

type OrderStatus string

type TimeInForce string

type PositionSide string

type PositionStatus string

type CloseReason string

type AccountStatus string

type TransactionType string

type TransactionStatus string

type KYCStatus string

type Role string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

const (
	OrderTypeMarket    OrderType = "market"
	OrderTypeLimit     OrderType = "limit"
	OrderTypeStop      OrderType = "stop"
	OrderTypeStopLimit OrderType = "stop_limit"
)

const (
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusOpen            OrderStatus = "open"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusRejected        OrderStatus = "rejected"
	OrderStatusExpired         OrderStatus = "expired"
)

// Terminal reports whether the order can no longer change.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected, OrderStatusExpired:
		return true
	}
	return false
}

// Cancellable reports whether a user may cancel an order in this status.
func (s OrderStatus) Cancellable() bool {
	return s == OrderStatusOpen || s == OrderStatusPartiallyFilled
}

const (
	TimeInForceGTC TimeInForce = "gtc"
	TimeInForceDay TimeInForce = "day"
	TimeInForceIOC TimeInForce = "ioc"
	TimeInForceFOK TimeInForce = "fok"
)

const (
	PositionSideLong  PositionSide = "long"
	PositionSideShort PositionSide = "short"
)

// Sign is +1 for long and -1 for short exposure.
func (s PositionSide) Sign() int64 {
	if s == PositionSideShort {
		return -1
	}
	return 1
}

// SideFor maps an order side to the exposure it opens.
func SideFor(o OrderSide) PositionSide {
	if o == OrderSideSell {
		return PositionSideShort
	}
	return PositionSideLong
}

const (
	PositionStatusOpen   PositionStatus = "open"
	PositionStatusClosed PositionStatus = "closed"
)

const (
	CloseReasonNetted      CloseReason = "netted"
	CloseReasonLiquidation CloseReason = "liquidation"
	CloseReasonStopLoss    CloseReason = "stop_loss"
	CloseReasonTakeProfit  CloseReason = "take_profit"
	CloseReasonUser        CloseReason = "user"
)

const (
	AccountStatusActive    AccountStatus = "active"
	AccountStatusSuspended AccountStatus = "suspended"
	AccountStatusClosed    AccountStatus = "closed"
)

const (
	TransactionTypeDeposit    TransactionType = "deposit"
	TransactionTypeWithdrawal TransactionType = "withdrawal"
	TransactionTypeFee        TransactionType = "fee"
	TransactionTypeDividend   TransactionType = "dividend"
)

const (
	TransactionStatusPending    TransactionStatus = "pending"
	TransactionStatusProcessing TransactionStatus = "processing"
	TransactionStatusCompleted  TransactionStatus = "completed"
	TransactionStatusFailed     TransactionStatus = "failed"
	TransactionStatusCancelled  TransactionStatus = "cancelled"
)

func (s TransactionStatus) Terminal() bool {
	return s == TransactionStatusCompleted || s == TransactionStatusFailed || s == TransactionStatusCancelled
}

const (
	KYCStatusNone     KYCStatus = "none"
	KYCStatusPending  KYCStatus = "pending"
	KYCStatusApproved KYCStatus = "approved"
	KYCStatusRejected KYCStatus = "rejected"
)

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)
