package panel

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyAggregate(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
		values []float64
		want   float64
	}{
		{"single value passes through", Policy{Method: TrimmedMean, Trim: 3}, []float64{71.25}, 71.25},
		{"mean", Policy{Method: Mean}, []float64{70, 72, 74}, 72},
		{"empty method means mean", Policy{}, []float64{60, 70}, 65},
		{"median odd", Policy{Method: Median}, []float64{74, 60, 70}, 70},
		{"median even", Policy{Method: Median}, []float64{60, 70, 72, 80}, 71},
		{"trimmed mean drops extremes", Policy{Method: TrimmedMean, Trim: 1}, []float64{50, 70, 72, 74, 99}, 72},
		{"trimmed mean of two judges falls back to median", Policy{Method: TrimmedMean, Trim: 1}, []float64{60, 70}, 65},
		{"trim wider than the panel falls back to median", Policy{Method: TrimmedMean, Trim: 2}, []float64{80, 60, 70}, 70},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.policy.Aggregate(tt.values)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestPolicyAggregateOrderIndependent(t *testing.T) {
	p := Policy{Method: Mean}
	a, err := p.Aggregate([]float64{0.1, 0.2, 0.3, 68.45})
	require.NoError(t, err)
	b, err := p.Aggregate([]float64{68.45, 0.3, 0.1, 0.2})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestPolicyAggregateErrors(t *testing.T) {
	t.Run("no values", func(t *testing.T) {
		_, err := DefaultPolicy().Aggregate(nil)
		assert.ErrorIs(t, err, ErrNoValues)
	})

	t.Run("NaN", func(t *testing.T) {
		_, err := DefaultPolicy().Aggregate([]float64{1, math.NaN()})
		assert.ErrorIs(t, err, ErrInvalidValue)
	})

	t.Run("unknown method", func(t *testing.T) {
		_, err := Policy{Method: "mode"}.Aggregate([]float64{1, 2})
		assert.Error(t, err)
	})
}

func TestPolicyValidate(t *testing.T) {
	assert.NoError(t, DefaultPolicy().Validate())
	assert.NoError(t, Policy{Method: TrimmedMean, Trim: 1}.Validate())
	assert.Error(t, Policy{Method: "mode"}.Validate())
	assert.Error(t, Policy{Method: Mean, Trim: -1}.Validate())
	assert.Error(t, Policy{}.Validate())
}
