package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RuleKind identifies the threshold condition an alert rule checks.
type RuleKind string

const (
	RulePriceAbove       RuleKind = "priceAbove"
	RulePriceBelow       RuleKind = "priceBelow"
	RuleChangePctAbove   RuleKind = "changePercentAbove"
	RuleChangePctBelow   RuleKind = "changePercentBelow"
	RuleBidAskRatioAbove RuleKind = "bidAskRatioAbove"
)

// String returns the string representation of RuleKind.
func (k RuleKind) String() string {
	return string(k)
}

// Valid reports whether the kind is one of the supported rule kinds.
func (k RuleKind) Valid() bool {
	switch k {
	case RulePriceAbove, RulePriceBelow, RuleChangePctAbove, RuleChangePctBelow, RuleBidAskRatioAbove:
		return true
	}
	return false
}

// Label returns the user-facing description of the rule kind.
func (k RuleKind) Label() string {
	switch k {
	case RulePriceAbove:
		return "股價高於"
	case RulePriceBelow:
		return "股價低於"
	case RuleChangePctAbove:
		return "漲幅高於"
	case RuleChangePctBelow:
		return "跌幅低於"
	case RuleBidAskRatioAbove:
		return "委買委賣比高於"
	}
	return string(k)
}

// AlertRule is a single threshold condition attached to a watch item.
// ID is assigned once when the rule is first stored and survives edits,
// so the trigger ledger stays attached to the right rule even when the
// rule set is reordered or a threshold is changed.
type AlertRule struct {
	ID        string          `json:"id"`
	Kind      RuleKind        `json:"kind"`
	Threshold decimal.Decimal `json:"threshold"`
	Enabled   bool            `json:"enabled"`
}

// WatchItem is a monitored instrument plus its alert rules and the
// per-day record of which rules already fired.
type WatchItem struct {
	ID        string          `json:"id"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Rules     []AlertRule     `json:"rules"`
	Triggered map[string]bool `json:"triggered"`
	CreatedAt time.Time       `json:"created_at"`
}

// Clone returns a deep copy so callers never share rule slices or the
// trigger ledger with the store's internal state.
func (w *WatchItem) Clone() WatchItem {
	out := *w
	out.Rules = make([]AlertRule, len(w.Rules))
	copy(out.Rules, w.Rules)
	out.Triggered = make(map[string]bool, len(w.Triggered))
	for k, v := range w.Triggered {
		out.Triggered[k] = v
	}
	return out
}

// Quote is a realtime snapshot for one instrument, as supplied by the
// quote source. All derived figures arrive pre-computed.
type Quote struct {
	Code          string          `json:"code"`
	Price         decimal.Decimal `json:"price"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent decimal.Decimal `json:"change_percent"`
	BidVol        int64           `json:"bid_vol"`
	AskVol        int64           `json:"ask_vol"`
	BidAskRatio   decimal.Decimal `json:"bid_ask_ratio"`
}

// Notification is the payload handed to notification sinks when a rule fires.
type Notification struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	Code      string `json:"code"`
	Sound     bool   `json:"sound"`
	SoundFile string `json:"sound_file,omitempty"`
}

// Monitor status values consumed by the presentation layer.
const (
	StatusIdle          = "idle"
	StatusNonTrading    = "non-trading"
	StatusRunningPrefix = "running@" // followed by HH:MM of the last successful check
	StatusCheckFailed   = "check-failed"
	StatusStopped       = "stopped"
)
