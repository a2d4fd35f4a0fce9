package model

import "time"

// Condition is the normalized condition bucket of a vehicle.
type Condition string

const (
	ConditionOriginal Condition = "original"
	ConditionDamaged  Condition = "damaged"
	ConditionUnknown  Condition = "unknown"
)

// Valid reports whether c is one of the known buckets.
func (c Condition) Valid() bool {
	switch c {
	case ConditionOriginal, ConditionDamaged, ConditionUnknown:
		return true
	}
	return false
}

// Listing is a recorded vehicle listing. Immutable once stored.
type Listing struct {
	ID         int64     `json:"id"`
	Source     string    `json:"source"`
	ExternalID string    `json:"external_id,omitempty"`
	Make       string    `json:"make"`
	Model      string    `json:"model"`
	Year       int       `json:"year,omitempty"` // 0 when unknown
	Mileage    int64     `json:"mileage"`
	Price      int64     `json:"price"`
	Condition  Condition `json:"condition"`
	CreatedAt  time.Time `json:"created_at"`
}

// PricePoint is a single comparable price together with the listing it came from.
type PricePoint struct {
	ID         int64  `json:"id,omitempty"`
	ExternalID string `json:"external_id,omitempty"`
	Price      int64  `json:"price"`
}

// ComparableQuery describes the comparability window for a listing.
type ComparableQuery struct {
	Make              string
	Model             string
	Condition         Condition
	MinMileage        int64
	MaxMileage        int64
	MinYear           int
	MaxYear           int
	ExcludeExternalID string
	ExcludeID         int64 // stored row id of the listing under evaluation, 0 when not stored
}
