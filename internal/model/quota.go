package model

import "time"

// Plan is a subscription tier.
type Plan string

const (
	PlanFree     Plan = "free"
	PlanStandard Plan = "standard"
	PlanGold     Plan = "gold"
)

// ParsePlan maps a stored plan name to a Plan, defaulting to free.
func ParsePlan(s string) Plan {
	switch Plan(s) {
	case PlanStandard, PlanGold:
		return Plan(s)
	}
	return PlanFree
}

// Day is a calendar date in the server's local time zone, formatted YYYY-MM-DD.
type Day string

// DayOf returns the calendar day of t in t's location.
func DayOf(t time.Time) Day {
	return Day(t.Format("2006-01-02"))
}

// QuotaRecord is the per-identity usage counter for one day.
type QuotaRecord struct {
	Identity string `json:"identity"`
	Day      Day    `json:"day"`
	Used     int    `json:"used"`
}
