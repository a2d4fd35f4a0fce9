package model

import "time"

// IntakeState is a step of the listing intake conversation.
type IntakeState string

const (
	StateIdle              IntakeState = "idle"
	StateAwaitingPrice     IntakeState = "awaiting_price"
	StateAwaitingMileage   IntakeState = "awaiting_mileage"
	StateAwaitingCondition IntakeState = "awaiting_condition"
)

// PartialIntake holds the fields collected so far for one identity.
type PartialIntake struct {
	Identity   string      `json:"identity"`
	State      IntakeState `json:"state"`
	Source     string      `json:"source,omitempty"`
	ExternalID string      `json:"external_id,omitempty"`
	Make       string      `json:"make,omitempty"`
	Model      string      `json:"model,omitempty"`
	Year       int         `json:"year,omitempty"`
	Price      int64       `json:"price,omitempty"`
	Mileage    int64       `json:"mileage,omitempty"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// Listing assembles the stored record from the collected fields.
func (p *PartialIntake) Listing(cond Condition, now time.Time) *Listing {
	return &Listing{
		Source:     p.Source,
		ExternalID: p.ExternalID,
		Make:       p.Make,
		Model:      p.Model,
		Year:       p.Year,
		Mileage:    p.Mileage,
		Price:      p.Price,
		Condition:  cond,
		CreatedAt:  now,
	}
}
