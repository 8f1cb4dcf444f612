package marketdata

import (
	"net/http"
	"strings"

	"lv-tradedesk/internal/apperr"
	"lv-tradedesk/internal/httputil"
	"lv-tradedesk/internal/types"

	"go.uber.org/zap"
)

const maxQuoteSymbols = 50

type Handler struct {
	quotes  *Quotes
	symbols []string
	log     *zap.Logger
}

func NewHandler(quotes *Quotes, symbols []string, log *zap.Logger) *Handler {
	return &Handler{quotes: quotes, symbols: symbols, log: log}
}

// Quotes answers GET /v1/quotes?symbols=AAPL,MSFT. Without the parameter it
// returns the configured symbols.
func (h *Handler) Quotes(w http.ResponseWriter, r *http.Request) {
	symbols := h.symbols
	if raw := strings.TrimSpace(r.URL.Query().Get("symbols")); raw != "" {
		symbols = types.ParseSymbols(raw)
		if len(symbols) == 0 {
			httputil.WriteError(w, h.log, apperr.Validation("invalid symbols", map[string]string{"symbols": "no valid symbol given"}))
			return
		}
		if len(symbols) > maxQuoteSymbols {
			httputil.WriteError(w, h.log, apperr.Validation("too many symbols", map[string]string{"symbols": "at most 50 symbols"}))
			return
		}
	}
	httputil.WriteJSON(w, http.StatusOK, h.quotes.Snapshot(r.Context(), symbols))
}
