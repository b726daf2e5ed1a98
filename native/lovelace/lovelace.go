package lovelace

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Lovelace is an amount expressed in the smallest indivisible unit of ADA.
type Lovelace int64

const (
	// Decimals is the number of fractional digits in a whole ADA.
	Decimals = 6
	// PerADA is the number of lovelace in one ADA.
	PerADA Lovelace = 1_000_000
)

// ErrOverflow is returned when an amount does not fit in an int64.
var ErrOverflow = errors.New("lovelace: amount overflows int64")

// FromWhole converts a whole ADA amount into lovelace.
func FromWhole(ada int64) (Lovelace, error) {
	if ada > math.MaxInt64/int64(PerADA) || ada < math.MinInt64/int64(PerADA) {
		return 0, ErrOverflow
	}
	return Lovelace(ada) * PerADA, nil
}

// FromADA parses a non-negative decimal ADA amount such as "1" or "2.5".
// At most six fractional digits are accepted.
func FromADA(raw string) (Lovelace, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, fmt.Errorf("lovelace: empty amount")
	}
	if strings.HasPrefix(trimmed, "-") {
		return 0, fmt.Errorf("lovelace: amount must be non-negative")
	}
	whole, frac, _ := strings.Cut(trimmed, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > Decimals {
		return 0, fmt.Errorf("lovelace: amount %q has more than %d decimal places", raw, Decimals)
	}
	wholeValue, err := strconv.ParseUint(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("lovelace: invalid amount %q", raw)
	}
	if wholeValue > math.MaxInt64 {
		return 0, ErrOverflow
	}
	amount, err := FromWhole(int64(wholeValue))
	if err != nil {
		return 0, err
	}
	if frac == "" {
		return amount, nil
	}
	fracValue, err := strconv.ParseUint(frac+strings.Repeat("0", Decimals-len(frac)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("lovelace: invalid amount %q", raw)
	}
	return Add(amount, Lovelace(fracValue))
}

// Parse reads an integer lovelace amount.
func Parse(raw string) (Lovelace, error) {
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("lovelace: invalid integer amount %q", raw)
	}
	return Lovelace(value), nil
}

// Add returns a+b, failing instead of wrapping around.
func Add(a, b Lovelace) (Lovelace, error) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, ErrOverflow
	}
	return a + b, nil
}

// Sum adds the supplied amounts with overflow detection.
func Sum(amounts ...Lovelace) (Lovelace, error) {
	var total Lovelace
	for _, amount := range amounts {
		next, err := Add(total, amount)
		if err != nil {
			return 0, err
		}
		total = next
	}
	return total, nil
}

// Int64 returns the raw integer amount.
func (l Lovelace) Int64() int64 { return int64(l) }

// String renders the integer lovelace amount.
func (l Lovelace) String() string { return strconv.FormatInt(int64(l), 10) }

// ADA renders the amount as a decimal ADA string with six fractional digits.
func (l Lovelace) ADA() string {
	sign := ""
	value := uint64(l)
	if l < 0 {
		sign = "-"
		value = uint64(-(l + 1)) + 1
	}
	per := uint64(PerADA)
	return fmt.Sprintf("%s%d.%06d", sign, value/per, value%per)
}
