package service

import (
	"fmt"

	"phantom-ledger/config"
	"phantom-ledger/internal/core/domain"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// FeeRule is a fixed amount in minor units plus a percentage of the payment.
type FeeRule struct {
	Fixed   int64
	Percent decimal.Decimal
}

// FeeSchedule computes channel fees. Channels without a rule are free.
type FeeSchedule struct {
	rules map[domain.Channel]FeeRule
}

// NewFeeSchedule creates a FeeSchedule from per-channel rules.
func NewFeeSchedule(rules map[domain.Channel]FeeRule) *FeeSchedule {
	return &FeeSchedule{rules: rules}
}

// NewFeeScheduleFromConfig parses major-unit fee config into minor-unit rules.
func NewFeeScheduleFromConfig(fees map[string]config.FeeConfig, minorUnits int32) (*FeeSchedule, error) {
	rules := make(map[domain.Channel]FeeRule, len(fees))
	for channel, fee := range fees {
		fixed, err := config.ToMinor(fee.Fixed, minorUnits)
		if err != nil {
			return nil, fmt.Errorf("fee %s: %w", channel, err)
		}
		percent := decimal.Zero
		if fee.Percent != "" {
			percent, err = decimal.NewFromString(fee.Percent)
			if err != nil {
				return nil, fmt.Errorf("fee %s: percent: %w", channel, err)
			}
		}
		if percent.IsNegative() {
			return nil, fmt.Errorf("fee %s: percent is negative", channel)
		}
		rules[domain.Channel(channel)] = FeeRule{Fixed: fixed, Percent: percent}
	}
	return NewFeeSchedule(rules), nil
}

// Fee returns the fee in minor units, rounding the percentage half-up.
func (f *FeeSchedule) Fee(channel domain.Channel, amount int64) int64 {
	rule, ok := f.rules[channel]
	if !ok {
		return 0
	}
	variable := decimal.NewFromInt(amount).Mul(rule.Percent).Div(hundred).Round(0)
	return rule.Fixed + variable.IntPart()
}
