package app

import (
	"fmt"

	"github.com/shopspring/decimal"

	"staybook/internal/domain"
)

// currencyPrecision is the minor-unit scale shares are rounded to.
const currencyPrecision = 2

// computeCommission splits a gross amount across the stakeholder roles of
// a rate table. Every rated role gets round(gross*rate, 2); the residual
// role (the property owner) gets whatever is left, so the shares sum to
// gross exactly and rounding drift cannot accumulate across reservations.
//
// Pure and deterministic: re-importing the same row always yields the
// same breakdown.
func computeCommission(gross decimal.Decimal, rt domain.RateTable) (domain.CommissionBreakdown, error) {
	if rt.Residual == "" {
		return domain.CommissionBreakdown{}, fmt.Errorf("rate table for %s has no residual role", rt.Platform)
	}

	shares := make(map[domain.StakeholderRole]decimal.Decimal, len(rt.Rates)+1)
	rated := decimal.Zero
	for role, rate := range rt.Rates {
		if role == rt.Residual {
			continue
		}
		if rate.IsNegative() {
			return domain.CommissionBreakdown{}, fmt.Errorf("negative rate for role %s", role)
		}
		if rate.IsZero() {
			continue
		}
		share := gross.Mul(rate).Round(currencyPrecision)
		shares[role] = share
		rated = rated.Add(share)
	}

	residual := gross.Sub(rated)
	if residual.IsNegative() {
		return domain.CommissionBreakdown{}, fmt.Errorf("rates for %s exceed 100%%: residual share would be %s", rt.Platform, residual)
	}
	shares[rt.Residual] = residual

	return domain.CommissionBreakdown{Shares: shares, Residual: rt.Residual}, nil
}
