package model

import (
	"encoding/json"
	"time"

	"lv-tradedesk/internal/types"

	"github.com/shopspring/decimal"
)

type User struct {
	ID        string          `json:"id"`
	Email     string          `json:"email"`
	Name      string          `json:"name"`
	Role      types.Role      `json:"role"`
	KYCStatus types.KYCStatus `json:"kyc_status"`
	CreatedAt time.Time       `json:"created_at"`
}

type Account struct {
	ID          string              `json:"id"`
	UserID      string              `json:"user_id"`
	Balance     decimal.Decimal     `json:"balance"`
	Equity      decimal.Decimal     `json:"equity"`
	BuyingPower decimal.Decimal     `json:"buying_power"`
	UsedMargin  decimal.Decimal     `json:"used_margin"`
	FreeMargin  decimal.Decimal     `json:"free_margin"`
	MarginLevel types.Ratio         `json:"margin_level"`
	Leverage    int                 `json:"leverage"`
	Status      types.AccountStatus `json:"status"`
	Version     int64               `json:"version"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

func (a Account) IsActive() bool {
	return a.Status == types.AccountStatusActive
}

type Transaction struct {
	ID            string                  `json:"id"`
	UserID        string                  `json:"user_id"`
	AccountID     string                  `json:"account_id"`
	Type          types.TransactionType   `json:"type"`
	Amount        decimal.Decimal         `json:"amount"`
	Method        string                  `json:"method"`
	Reference     string                  `json:"reference,omitempty"`
	Status        types.TransactionStatus `json:"status"`
	FailureReason string                  `json:"failure_reason,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at"`
	CompletedAt   *time.Time              `json:"completed_at,omitempty"`
}

type KYCVerification struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	Status          types.KYCStatus `json:"status"`
	FullName        string          `json:"full_name"`
	DocumentType    string          `json:"document_type"`
	DocumentNumber  string          `json:"document_number"`
	Country         string          `json:"country"`
	ReviewerID      string          `json:"reviewer_id,omitempty"`
	RejectionReason string          `json:"rejection_reason,omitempty"`
	SubmittedAt     time.Time       `json:"submitted_at"`
	ReviewedAt      *time.Time      `json:"reviewed_at,omitempty"`
}

type WatchlistItem struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Symbol    string    `json:"symbol"`
	CreatedAt time.Time `json:"created_at"`
}

type AuditLog struct {
	ID         string          `json:"id"`
	ActorID    string          `json:"actor_id"`
	Action     string          `json:"action"`
	Resource   string          `json:"resource"`
	ResourceID string          `json:"resource_id"`
	Changes    json.RawMessage `json:"changes"`
	CreatedAt  time.Time       `json:"created_at"`
}
