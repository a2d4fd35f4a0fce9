package model

// Decision is the classification of a listing against its market.
type Decision string

const (
	DecisionOpportunity Decision = "opportunity"
	DecisionNegotiable  Decision = "negotiable"
	DecisionMarketPrice Decision = "market price"
)

// ValuationResult is computed on demand and never persisted.
type ValuationResult struct {
	SampleSize        int      `json:"sample_size"`
	OutliersRemoved   int      `json:"outliers_removed"`
	ReferencePrice    int64    `json:"reference_price"`
	AskingPrice       int64    `json:"asking_price"`
	PercentDifference float64  `json:"percent_difference"`
	DispersionRatio   float64  `json:"dispersion_ratio"`
	Confidence        float64  `json:"confidence"`
	Decision          Decision `json:"decision"`
}
