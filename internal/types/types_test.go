package types

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRatioJSON(t *testing.T) {
	tests := []struct {
		name string
		in   Ratio
		want string
	}{
		{name: "finite", in: Ratio(120.5), want: `120.5`},
		{name: "positive infinity", in: Inf(), want: `"Infinity"`},
		{name: "negative infinity", in: Ratio(math.Inf(-1)), want: `"-Infinity"`},
		{name: "zero", in: 0, want: `0`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(b))
		})
	}
}

func TestRatioUnmarshalInfinity(t *testing.T) {
	var out struct {
		Level Ratio `json:"level"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"level":"Infinity"}`), &out))
	assert.True(t, out.Level.IsInf())

	require.NoError(t, json.Unmarshal([]byte(`{"level":42.25}`), &out))
	assert.Equal(t, Ratio(42.25), out.Level)
}

func TestOrderStatusRules(t *testing.T) {
	assert.True(t, OrderStatusFilled.Terminal())
	assert.True(t, OrderStatusExpired.Terminal())
	assert.False(t, OrderStatusOpen.Terminal())

	assert.True(t, OrderStatusOpen.Cancellable())
	assert.True(t, OrderStatusPartiallyFilled.Cancellable())
	assert.False(t, OrderStatusPending.Cancellable())
	assert.False(t, OrderStatusFilled.Cancellable())
}

func TestSideFor(t *testing.T) {
	assert.Equal(t, PositionSideLong, SideFor(OrderSideBuy))
	assert.Equal(t, PositionSideShort, SideFor(OrderSideSell))
	assert.Equal(t, int64(-1), PositionSideShort.Sign())
	assert.Equal(t, int64(1), PositionSideLong.Sign())
}

func TestParseSymbols(t *testing.T) {
	assert.Equal(t, []string{"AAPL", "BRK.B", "MSFT"}, ParseSymbols(" aapl,brk.b,, MSFT ,aapl,1BAD,"))
	assert.Nil(t, ParseSymbols(""))
	assert.True(t, ValidSymbol("BRK-A"))
	assert.False(t, ValidSymbol("aapl"))
}
