package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"lv-tradedesk/internal/apperr"

	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

type ErrorResponse struct {
	Error  string            `json:"error"`
	Code   string            `json:"code,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

// ReadJSON decodes a single JSON object, rejecting unknown fields, and then
// runs struct validation on it.
func ReadJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("request body is empty", nil)
		}
		return apperr.Validation(fmt.Sprintf("invalid json: %v", err), nil)
	}
	if dec.More() {
		return apperr.Validation("request body must contain a single object", nil)
	}
	return Validate(dst)
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps an application error onto the HTTP error envelope.
// Internal failures are logged and reported generically.
func WriteError(w http.ResponseWriter, log *zap.Logger, err error) {
	status := apperr.HTTPStatus(err)
	var ae *apperr.Error
	if status == http.StatusInternalServerError || !errors.As(err, &ae) {
		if log != nil {
			log.Error("request failed", zap.Error(err))
		}
		WriteJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error", Code: "internal"})
		return
	}
	WriteJSON(w, status, ErrorResponse{Error: ae.Message, Code: ae.Code, Fields: ae.Fields})
}
