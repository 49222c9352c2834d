package watchlist

import (
	"github.com/shopspring/decimal"

	"twse_alert_backend/models"
)

// Evaluate returns, in rule order, the indices of the item's rules that
// are enabled, have not fired since the last reset, and whose condition
// holds against the quote. It is a pure function; the caller writes the
// result into the trigger ledger.
func Evaluate(item models.WatchItem, quote models.Quote) []int {
	var fired []int
	for i, rule := range item.Rules {
		if !rule.Enabled {
			continue
		}
		if item.Triggered[rule.ID] {
			continue
		}
		if conditionHolds(rule, quote) {
			fired = append(fired, i)
		}
	}
	return fired
}

// conditionHolds checks one rule against the quote. All comparisons are
// inclusive: a value exactly at the threshold fires.
func conditionHolds(rule models.AlertRule, quote models.Quote) bool {
	switch rule.Kind {
	case models.RulePriceAbove:
		return quote.Price.GreaterThanOrEqual(rule.Threshold)
	case models.RulePriceBelow:
		return quote.Price.LessThanOrEqual(rule.Threshold)
	case models.RuleChangePctAbove:
		return quote.ChangePercent.GreaterThanOrEqual(rule.Threshold)
	case models.RuleChangePctBelow:
		return quote.ChangePercent.LessThanOrEqual(rule.Threshold)
	case models.RuleBidAskRatioAbove:
		return quote.BidAskRatio.GreaterThanOrEqual(rule.Threshold)
	}
	return false
}

// ObservedValue returns the quote figure the rule compares against,
// used when formatting notification bodies.
func ObservedValue(kind models.RuleKind, quote models.Quote) decimal.Decimal {
	switch kind {
	case models.RulePriceAbove, models.RulePriceBelow:
		return quote.Price
	case models.RuleChangePctAbove, models.RuleChangePctBelow:
		return quote.ChangePercent
	case models.RuleBidAskRatioAbove:
		return quote.BidAskRatio
	}
	return decimal.Zero
}
