package dto

import (
	"fmt"
	"strings"

	"phantom-ledger/pkg/apperror"

	"github.com/shopspring/decimal"
)

// Money converts between the API's major-unit decimal strings and the
// ledger's integer minor units.
type Money struct {
	MinorUnits int32
}

// Parse converts "12.50" into 1250. Negative values and sub-minor precision
// are rejected with PAY_002.
func (m Money) Parse(amount string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return 0, apperror.Validation(fmt.Sprintf("amount %q is not a decimal number", amount))
	}
	if d.IsNegative() {
		return 0, apperror.ErrInvalidAmount()
	}
	shifted := d.Shift(m.MinorUnits)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, apperror.Validation(fmt.Sprintf("amount %q has more than %d decimal places", amount, m.MinorUnits))
	}
	if !shifted.LessThanOrEqual(decimal.NewFromInt(maxMinor)) {
		return 0, apperror.ErrInvalidAmount()
	}
	return shifted.IntPart(), nil
}

// ParseOptional returns nil for a nil input.
func (m Money) ParseOptional(amount *string) (*int64, error) {
	if amount == nil {
		return nil, nil
	}
	v, err := m.Parse(*amount)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Format renders minor units as a fixed-point major-unit string.
func (m Money) Format(minor int64) string {
	return decimal.New(minor, -m.MinorUnits).StringFixed(m.MinorUnits)
}

const maxMinor = 1<<53 - 1
