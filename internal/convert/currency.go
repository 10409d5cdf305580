// Package convert holds the stateless conversions shared by the harness and
// the scenarios: currency units, hex payloads and the JSON shapes the node
// uses for balances and byte vectors.
package convert

import (
	"fmt"
	"math/big"
	"strings"
)

// Decimals is the number of minor-unit digits in one major unit (one "dollar").
const Decimals = 12

// Scale is 10^Decimals, the number of minor units in one major unit.
var Scale = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)

// BlocksPerDay assumes 6 second blocks.
const BlocksPerDay = 10 * 60 * 24

// Dollars returns n major units expressed in minor units.
func Dollars(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), Scale)
}

// ToDollar renders an amount of minor units as an exact major-unit decimal,
// e.g. 30500000000000 -> "30.5". Trailing fraction zeros are dropped.
func ToDollar(minor *big.Int) string {
	if minor == nil {
		return "0"
	}
	sign := ""
	v := new(big.Int).Set(minor)
	if v.Sign() < 0 {
		sign = "-"
		v.Neg(v)
	}

	whole, frac := new(big.Int).QuoRem(v, Scale, new(big.Int))
	if frac.Sign() == 0 {
		return sign + whole.String()
	}

	fracStr := fmt.Sprintf("%0*s", Decimals, frac.String())
	fracStr = strings.TrimRight(fracStr, "0")
	return sign + whole.String() + "." + fracStr
}

// ToDollarFloat is the lossy float form of ToDollar, meant for log output.
func ToDollarFloat(minor *big.Int) float64 {
	if minor == nil {
		return 0
	}
	f, _ := new(big.Rat).SetFrac(minor, Scale).Float64()
	return f
}

// FromDollar parses a major-unit decimal such as "30", "0.25" or "-1.5" into
// minor units. More than Decimals fraction digits is an error rather than a
// silent rounding.
func FromDollar(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("parse amount: empty string")
	}

	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}

	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" && (!hasFrac || frac == "") {
		return nil, fmt.Errorf("parse amount %q: no digits", s)
	}
	if len(frac) > Decimals {
		return nil, fmt.Errorf("parse amount %q: more than %d fraction digits", s, Decimals)
	}
	if !allDigits(whole) || !allDigits(frac) {
		return nil, fmt.Errorf("parse amount %q: invalid digit", s)
	}

	digits := whole + frac + strings.Repeat("0", Decimals-len(frac))
	out, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("parse amount %q: invalid number", s)
	}
	if neg {
		out.Neg(out)
	}
	return out, nil
}

// BlocksToDays converts a block count into days.
func BlocksToDays(blocks uint32) float64 {
	return float64(blocks) / BlocksPerDay
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
