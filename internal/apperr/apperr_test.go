package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "validation", err: Validation("bad body", nil), want: http.StatusBadRequest},
		{name: "business", err: ErrInsufficientBuyingPower, want: http.StatusBadRequest},
		{name: "not found", err: NotFound("order"), want: http.StatusNotFound},
		{name: "unauthorized", err: ErrInvalidCredentials, want: http.StatusUnauthorized},
		{name: "forbidden", err: Forbidden("admin only"), want: http.StatusForbidden},
		{name: "conflict", err: Conflict("position"), want: http.StatusConflict},
		{name: "plain error", err: errors.New("db timeout"), want: http.StatusInternalServerError},
		{name: "wrapped business", err: fmt.Errorf("place: %w", ErrPositionClosed), want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestIsPermanent(t *testing.T) {
	assert.True(t, IsPermanent(ErrInsufficientBuyingPower))
	assert.True(t, IsPermanent(NotFound("order")))
	assert.False(t, IsPermanent(errors.New("connection reset")))
	assert.False(t, IsPermanent(Conflict("account")))
	assert.False(t, IsPermanent(nil))
}

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("close: %w", Business("position_closed", "different message"))
	assert.ErrorIs(t, err, ErrPositionClosed)
	assert.NotErrorIs(t, err, ErrOrderNotCancellable)
}
