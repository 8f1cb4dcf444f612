package types

import (
	"encoding/json"
	"math"
	"strconv"
)

// Ratio is a dimensionless metric (margin level, win rate, profit factor).
// It may be +Inf, which JSON cannot carry as a number, so infinities are
// encoded as the strings "Infinity" and "-Infinity".
type Ratio float64

func Inf() Ratio { return Ratio(math.Inf(1)) }

func (r Ratio) IsInf() bool { return math.IsInf(float64(r), 1) }

func (r Ratio) Float64() float64 { return float64(r) }

func (r Ratio) String() string {
	switch {
	case math.IsInf(float64(r), 1):
		return "Infinity"
	case math.IsInf(float64(r), -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(float64(r), 'f', 2, 64)
}

func (r Ratio) MarshalJSON() ([]byte, error) {
	f := float64(r)
	if math.IsNaN(f) {
		return []byte("null"), nil
	}
	if math.IsInf(f, 0) {
		return json.Marshal(r.String())
	}
	return json.Marshal(math.Round(f*10000) / 10000)
}

func (r *Ratio) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*r = 0
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		switch s {
		case "Infinity", "+Infinity":
			*r = Ratio(math.Inf(1))
			return nil
		case "-Infinity":
			*r = Ratio(math.Inf(-1))
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*r = Ratio(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*r = Ratio(f)
	return nil
}
