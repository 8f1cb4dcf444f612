package funding

import (
	"net/http"
	"strings"

	"lv-tradedesk/internal/apperr"
	"lv-tradedesk/internal/httputil"
	"lv-tradedesk/internal/model"
	"lv-tradedesk/internal/types"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Handler struct {
	svc *Service
	log *zap.Logger
}

func NewHandler(svc *Service, log *zap.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

type fundsRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method" validate:"required"`
	Reference string          `json:"reference"`
}

func (h *Handler) Methods(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, Methods())
}

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request, userID string) {
	h.request(w, r, userID, types.TransactionTypeDeposit)
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request, userID string) {
	h.request(w, r, userID, types.TransactionTypeWithdrawal)
}

func (h *Handler) request(w http.ResponseWriter, r *http.Request, userID string, typ types.TransactionType) {
	var req fundsRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	txn, err := h.svc.RequestFunds(r.Context(), Request{
		UserID:    userID,
		AccountID: httputil.AccountID(r),
		Type:      typ,
		Amount:    req.Amount,
		Method:    req.Method,
		Reference: req.Reference,
	})
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, txn)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request, userID string) {
	list, err := h.svc.List(r.Context(), userID, httputil.PageFromQuery(r, 50, 500))
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	if list == nil {
		list = []model.Transaction{}
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request, userID, txnID string) {
	txn, err := h.svc.Cancel(r.Context(), userID, txnID)
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, txn)
}

// ListAll serves the admin transaction listing.
func (h *Handler) ListAll(w http.ResponseWriter, r *http.Request) {
	status := types.TransactionStatus(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status"))))
	switch status {
	case "", types.TransactionStatusPending, types.TransactionStatusProcessing, types.TransactionStatusCompleted,
		types.TransactionStatusFailed, types.TransactionStatusCancelled:
	default:
		httputil.WriteError(w, h.log, apperr.Validation("invalid status filter", map[string]string{"status": "unknown transaction status"}))
		return
	}
	list, err := h.svc.ListAll(r.Context(), status, httputil.PageFromQuery(r, 100, 1000))
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	if list == nil {
		list = []model.Transaction{}
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}
