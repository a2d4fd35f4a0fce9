package intake

import (
	"fmt"

	"carvalue-api/internal/model"
)

// Kind classifies a reply so transports can render it.
type Kind string

const (
	KindPrompt           Kind = "prompt"
	KindAskPrice         Kind = "ask_price"
	KindAskMileage       Kind = "ask_mileage"
	KindAskCondition     Kind = "ask_condition"
	KindInvalidAmount    Kind = "invalid_amount"
	KindValidationError  Kind = "validation_error"
	KindDuplicate        Kind = "duplicate_listing"
	KindQuotaExceeded    Kind = "quota_exceeded"
	KindInsufficientData Kind = "insufficient_data"
	KindUnavailable      Kind = "store_unavailable"
	KindValuation        Kind = "valuation"
	KindCancelled        Kind = "cancelled"
	KindQuota            Kind = "quota"
)

// Reply is the outcome of one message. It is never an error: every
// failure the user can see has its own Kind.
type Reply struct {
	Kind      Kind                   `json:"kind"`
	State     model.IntakeState      `json:"state"`
	Message   string                 `json:"message"`
	Remaining *int                   `json:"remaining,omitempty"`
	Valuation *model.ValuationResult `json:"valuation,omitempty"`
	// SampleSize and Required are set for insufficient data.
	SampleSize int `json:"sample_size,omitempty"`
	Required   int `json:"required,omitempty"`
}

const (
	msgPrompt        = "Send a listing link to get started. Commands: /help, /cancel, /quota."
	msgAskPrice      = "What is the asking price?"
	msgAskMileage    = "What is the mileage in km?"
	msgAskCondition  = "Describe the condition: original, painted, replaced parts, damage record?"
	msgInvalidAmount = "Please send a number, for example 450.000."
	msgBadLink       = "That link does not identify a listing. Send the full listing URL."
	msgDuplicate     = "This listing was already evaluated."
	msgQuotaExceeded = "Your free evaluations for today are used up. A subscription is needed for more."
	msgInsufficient  = "Not enough comparable listings to value this one yet."
	msgUnavailable   = "Listing data is unavailable right now. Please try again later."
	msgCancelled     = "Cancelled. Send a new listing link whenever you are ready."
)

var decisionMessages = map[model.Decision]string{
	model.DecisionOpportunity: "Good for a quick resale: priced clearly below the market average with a healthy margin.",
	model.DecisionNegotiable:  "Negotiable: the price is partly attractive, do not proceed without bargaining.",
	model.DecisionMarketPrice: "Stay away or wait: the price is at market level and leaves no margin.",
}

func intPtr(n int) *int { return &n }

func prompt(state model.IntakeState) Reply {
	switch state {
	case model.StateAwaitingPrice:
		return Reply{Kind: KindAskPrice, State: state, Message: msgAskPrice}
	case model.StateAwaitingMileage:
		return Reply{Kind: KindAskMileage, State: state, Message: msgAskMileage}
	case model.StateAwaitingCondition:
		return Reply{Kind: KindAskCondition, State: state, Message: msgAskCondition}
	default:
		return Reply{Kind: KindPrompt, State: model.StateIdle, Message: msgPrompt}
	}
}

func valuationMessage(r model.ValuationResult) string {
	pct, side := r.PercentDifference, "below"
	if pct < 0 {
		pct, side = -pct, "above"
	}
	return fmt.Sprintf("%s\n\nMarket reference: %d. Asking: %d (%.1f%% %s). Sample: %d listings, confidence %.0f%%.",
		decisionMessages[r.Decision], r.ReferencePrice, r.AskingPrice, pct, side, r.SampleSize, r.Confidence)
}
