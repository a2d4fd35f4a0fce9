package intake

import (
	"context"
	"strings"

	"carvalue-api/internal/listingref"
	"carvalue-api/internal/model"
)

// Submission carries all intake fields at once.
type Submission struct {
	URL       string `json:"url"`
	Price     int64  `json:"price"`
	Mileage   int64  `json:"mileage"`
	Condition string `json:"condition"`
}

// FieldError names a submission field that failed validation.
type FieldError struct {
	Field   string
	Message string
}

// Validate returns the field problems of s, if any.
func (s Submission) Validate() []FieldError {
	var errs []FieldError
	if !listingref.LooksLikeURL(s.URL) {
		errs = append(errs, FieldError{Field: "url", Message: "must be an http or https listing link"})
	}
	if s.Price <= 0 || s.Price > maxAmount {
		errs = append(errs, FieldError{Field: "price", Message: "must be a positive amount"})
	}
	if s.Mileage < 0 || s.Mileage > maxAmount {
		errs = append(errs, FieldError{Field: "mileage", Message: "must not be negative"})
	}
	return errs
}

// Submit evaluates a complete submission in one step, skipping the
// conversation. It does not touch identity's partial intake.
func (m *Machine) Submit(ctx context.Context, identity string, s Submission) Reply {
	if errs := s.Validate(); len(errs) > 0 {
		return Reply{Kind: KindValidationError, State: model.StateIdle, Message: errs[0].Field + " " + errs[0].Message}
	}

	ref, err := listingref.Parse(strings.TrimSpace(s.URL), m.now())
	if err != nil {
		return Reply{Kind: KindValidationError, State: model.StateIdle, Message: msgBadLink}
	}

	p := &model.PartialIntake{
		Identity:   identity,
		State:      model.StateAwaitingCondition,
		Source:     ref.Source,
		ExternalID: ref.ExternalID,
		Make:       ref.Make,
		Model:      ref.Model,
		Year:       ref.Year,
		Price:      s.Price,
		Mileage:    s.Mileage,
		UpdatedAt:  m.now(),
	}
	return m.finish(ctx, p, s.Condition)
}
