// Package valuation turns a sample of comparable prices into a reference
// price, a dispersion measure, a confidence score and a classification.
package valuation

import (
	"errors"
	"fmt"
	"math"

	"carvalue-api/internal/model"
)

const minTrimSample = 5

var (
	// ErrInsufficientData matches every *InsufficientDataError.
	ErrInsufficientData = errors.New("insufficient comparable listings")

	// ErrNonPositiveReference is returned when the blended market price is not positive.
	ErrNonPositiveReference = errors.New("reference price is not positive")
)

// InsufficientDataError reports the sample size together with the floor it missed.
type InsufficientDataError struct {
	SampleSize int
	Required   int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient comparable listings: have %d, need %d", e.SampleSize, e.Required)
}

func (e *InsufficientDataError) Is(target error) bool {
	return target == ErrInsufficientData
}

// Rule classifies a listing when both bounds hold. A zero MaxDispersion means unbounded.
type Rule struct {
	MinPercent    float64
	MaxDispersion float64
	Decision      model.Decision
}

func (r Rule) matches(pct, dispersion float64) bool {
	if pct < r.MinPercent {
		return false
	}
	return r.MaxDispersion == 0 || dispersion < r.MaxDispersion
}

// Config tunes the engine. Zero values are replaced by DefaultConfig values.
type Config struct {
	MinSample    int
	OutlierFloor int
	OutlierSigma float64
	TrimRatio    float64

	MedianWeight  float64
	TrimmedWeight float64
	MeanWeight    float64

	// Confidence is a heuristic quality signal, not a probability:
	// ConfidenceBase + min(n, SampleCap)*SampleWeight - min(dispersion, DispersionCap),
	// clamped to [ConfidenceMin, ConfidenceMax].
	ConfidenceBase float64
	SampleCap      int
	SampleWeight   float64
	DispersionCap  float64
	ConfidenceMin  float64
	ConfidenceMax  float64

	// Rules are evaluated in order; the first match wins.
	Rules    []Rule
	Fallback model.Decision
}

// DefaultConfig returns the reference tuning.
func DefaultConfig() Config {
	return Config{
		MinSample:      5,
		OutlierFloor:   4,
		OutlierSigma:   2,
		TrimRatio:      0.10,
		MedianWeight:   0.5,
		TrimmedWeight:  0.3,
		MeanWeight:     0.2,
		ConfidenceBase: 50,
		SampleCap:      20,
		SampleWeight:   1.5,
		DispersionCap:  20,
		ConfidenceMin:  40,
		ConfidenceMax:  95,
		Rules: []Rule{
			{MinPercent: 15, MaxDispersion: 12, Decision: model.DecisionOpportunity},
			{MinPercent: 8, Decision: model.DecisionNegotiable},
		},
		Fallback: model.DecisionMarketPrice,
	}
}

// Engine evaluates asking prices against comparable samples. It holds no mutable state.
type Engine struct {
	cfg Config
}

// New creates an Engine, filling unset fields from DefaultConfig.
func New(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.MinSample <= 0 {
		cfg.MinSample = def.MinSample
	}
	if cfg.OutlierFloor <= 0 {
		cfg.OutlierFloor = def.OutlierFloor
	}
	if cfg.OutlierSigma <= 0 {
		cfg.OutlierSigma = def.OutlierSigma
	}
	if cfg.TrimRatio <= 0 {
		cfg.TrimRatio = def.TrimRatio
	}
	if cfg.MedianWeight == 0 && cfg.TrimmedWeight == 0 && cfg.MeanWeight == 0 {
		cfg.MedianWeight, cfg.TrimmedWeight, cfg.MeanWeight = def.MedianWeight, def.TrimmedWeight, def.MeanWeight
	}
	if cfg.ConfidenceMax == 0 {
		cfg.ConfidenceBase = def.ConfidenceBase
		cfg.SampleCap = def.SampleCap
		cfg.SampleWeight = def.SampleWeight
		cfg.DispersionCap = def.DispersionCap
		cfg.ConfidenceMin = def.ConfidenceMin
		cfg.ConfidenceMax = def.ConfidenceMax
	}
	if cfg.Rules == nil {
		cfg.Rules = def.Rules
	}
	if cfg.Fallback == "" {
		cfg.Fallback = def.Fallback
	}
	return &Engine{cfg: cfg}
}

// MinSample is the smallest sample Evaluate accepts.
func (e *Engine) MinSample() int {
	return e.cfg.MinSample
}

// Evaluate compares askingPrice with the market described by sample.
// A sample below MinSample yields an *InsufficientDataError.
func (e *Engine) Evaluate(sample []int64, askingPrice int64) (model.ValuationResult, error) {
	if len(sample) < e.cfg.MinSample {
		return model.ValuationResult{}, &InsufficientDataError{SampleSize: len(sample), Required: e.cfg.MinSample}
	}

	filtered := withoutOutliers(sample, e.cfg.OutlierSigma, e.cfg.OutlierFloor)

	ref := e.referencePrice(filtered)
	if ref <= 0 {
		return model.ValuationResult{}, ErrNonPositiveReference
	}
	refF := float64(ref)

	pct := (refF - float64(askingPrice)) / refF * 100
	dispersion := stddev(filtered) / refF * 100

	return model.ValuationResult{
		SampleSize:        len(filtered),
		OutliersRemoved:   len(sample) - len(filtered),
		ReferencePrice:    ref,
		AskingPrice:       askingPrice,
		PercentDifference: pct,
		DispersionRatio:   dispersion,
		Confidence:        e.confidence(len(filtered), dispersion),
		Decision:          e.classify(pct, dispersion),
	}, nil
}

func (e *Engine) referencePrice(xs []int64) int64 {
	blend := e.cfg.MedianWeight*median(xs) +
		e.cfg.TrimmedWeight*trimmedMean(xs, e.cfg.TrimRatio) +
		e.cfg.MeanWeight*mean(xs)
	return int64(math.Round(blend))
}

func (e *Engine) confidence(n int, dispersion float64) float64 {
	if e.cfg.SampleCap > 0 && n > e.cfg.SampleCap {
		n = e.cfg.SampleCap
	}
	score := e.cfg.ConfidenceBase + float64(n)*e.cfg.SampleWeight - math.Min(dispersion, e.cfg.DispersionCap)
	if math.IsNaN(score) {
		return e.cfg.ConfidenceMin
	}
	return math.Max(e.cfg.ConfidenceMin, math.Min(e.cfg.ConfidenceMax, score))
}

func (e *Engine) classify(pct, dispersion float64) model.Decision {
	for _, r := range e.cfg.Rules {
		if r.matches(pct, dispersion) {
			return r.Decision
		}
	}
	return e.cfg.Fallback
}
