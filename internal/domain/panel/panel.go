// Package panel combines the scorecards of a judging panel (positions
// C/B/H/E/M) into one official value per ride.
package panel

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/go-playground/validator/v10"
)

// Method is the statistical rule used to combine judges' values.
type Method string

// Supported aggregation methods.
const (
	// Mean averages every judge.
	Mean Method = "mean"
	// Median takes the middle value, averaging the two middle values for an
	// even panel.
	Median Method = "median"
	// TrimmedMean drops Trim values from each end before averaging.
	TrimmedMean Method = "trimmed_mean"
)

// Errors returned by Aggregate.
var (
	ErrNoValues     = errors.New("no values to aggregate")
	ErrInvalidValue = errors.New("value is NaN or infinite")
)

var validate = validator.New()

// Policy configures panel aggregation.
type Policy struct {
	Method Method `json:"method" koanf:"panel_method" validate:"required,oneof=mean median trimmed_mean"`
	// Trim is the number of values removed from each end for TrimmedMean.
	Trim int `json:"trim" koanf:"panel_trim" validate:"min=0"`
}

// DefaultPolicy averages every judge.
func DefaultPolicy() Policy { return Policy{Method: Mean} }

// Validate checks the policy's struct constraints.
func (p Policy) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid panel policy: %w", err)
	}
	return nil
}

// Aggregate combines values under the policy. A single value is returned
// unchanged whatever the method, so one-judge rides are unaffected. A
// trimmed mean over a panel too small to trim falls back to the median.
func (p Policy) Aggregate(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, ErrNoValues
	}
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, ErrInvalidValue
		}
	}
	if len(values) == 1 {
		return values[0], nil
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	switch p.Method {
	case Median:
		return median(sorted), nil
	case TrimmedMean:
		if 2*p.Trim >= len(sorted) {
			return median(sorted), nil
		}
		return mean(sorted[p.Trim : len(sorted)-p.Trim]), nil
	case Mean, "":
		return mean(sorted), nil
	default:
		return 0, fmt.Errorf("unknown panel method %q", p.Method)
	}
}

func median(sorted []float64) float64 {
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// mean sums in ascending order so the result does not depend on input order.
func mean(sorted []float64) float64 {
	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return sum / float64(len(sorted))
}
