package money

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Amount is a currency amount in integer minor units (cents).
// Currency arithmetic and comparison never go through floating point.
type Amount int64

var (
	ErrInvalidAmount = errors.New("invalid_amount")
)

// Parse reads a decimal string such as "75.00" or "75" into minor units.
// At most two fraction digits are accepted; anything else is a data error.
func Parse(value string) (Amount, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, ErrInvalidAmount
	}

	negative := false
	if strings.HasPrefix(value, "-") {
		negative = true
		value = value[1:]
	}

	whole := value
	fraction := ""
	if idx := strings.IndexByte(value, '.'); idx >= 0 {
		whole = value[:idx]
		fraction = value[idx+1:]
	}
	if whole == "" && fraction == "" {
		return 0, ErrInvalidAmount
	}
	if whole == "" {
		whole = "0"
	}
	if len(fraction) > 2 {
		return 0, ErrInvalidAmount
	}
	for len(fraction) < 2 {
		fraction += "0"
	}

	// ParseUint rejects signs and any other non-digit character, so a
	// stray "-" or "+" inside either part is a data error rather than a
	// silently shifted amount.
	units, err := strconv.ParseUint(whole, 10, 63)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	cents, err := strconv.ParseUint(fraction, 10, 63)
	if err != nil {
		return 0, ErrInvalidAmount
	}

	total := int64(units)*100 + int64(cents)
	if negative {
		total = -total
	}
	return Amount(total), nil
}

// MustParse is Parse for trusted literals (seed data, tests).
func MustParse(value string) Amount {
	amount, err := Parse(value)
	if err != nil {
		panic(fmt.Sprintf("money: parse %q: %v", value, err))
	}
	return amount
}

func (a Amount) IsZero() bool     { return a == 0 }
func (a Amount) IsNegative() bool { return a < 0 }

// String renders the amount with two fraction digits, e.g. "75.00".
func (a Amount) String() string {
	units := int64(a) / 100
	cents := int64(a) % 100
	sign := ""
	if a < 0 {
		sign = "-"
		units = -units
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, units, cents)
}
