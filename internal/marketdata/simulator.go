package marketdata

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"lv-tradedesk/internal/apperr"
	"lv-tradedesk/internal/types"

	"github.com/shopspring/decimal"
)

// defaultBases seeds the walk for well-known tickers; anything else starts
// at 100.
var defaultBases = map[string]float64{
	"AAPL":  233.16,
	"MSFT":  415.20,
	"GOOGL": 168.40,
	"AMZN":  186.75,
	"TSLA":  248.50,
	"NVDA":  121.30,
}

// Simulator is a seeded random walk per symbol. Each quote moves the price
// by a normally distributed step of vol relative size.
type Simulator struct {
	mu     sync.Mutex
	rng    *rand.Rand
	vol    float64
	prices map[string]float64
	now    func() time.Time
}

func NewSimulator(symbols []string, seed uint64, vol float64) *Simulator {
	if vol <= 0 {
		vol = 0.002
	}
	s := &Simulator{
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		vol:    vol,
		prices: make(map[string]float64, len(symbols)),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, sym := range symbols {
		base, ok := defaultBases[sym]
		if !ok {
			base = 100
		}
		s.prices[sym] = base
	}
	return s
}

func (s *Simulator) Quote(_ context.Context, symbol string) (Quote, error) {
	symbol = types.NormalizeSymbol(symbol)
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prices[symbol]
	if !ok {
		return Quote{}, apperr.NotFound("quote")
	}
	p *= 1 + s.rng.NormFloat64()*s.vol
	p = math.Max(p, 0.01)
	s.prices[symbol] = p
	return Quote{Symbol: symbol, Price: decimal.NewFromFloat(p).Round(2), At: s.now()}, nil
}
