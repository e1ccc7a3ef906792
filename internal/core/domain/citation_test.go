package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestThresholds_Classify(t *testing.T) {
	th := Thresholds{Pass: 0.80, Partial: 0.75}

	tests := []struct {
		score    float64
		expected Decision
	}{
		{0.82, DecisionPass},
		{0.80, DecisionPass},
		{0.77, DecisionPartial},
		{0.75, DecisionPartial},
		{0.50, DecisionFail},
		{0, DecisionFail},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, th.Classify(tt.score), "score %v", tt.score)
	}
}

func TestThresholds_Validate(t *testing.T) {
	assert.NoError(t, DefaultThresholds().Validate())
	assert.NoError(t, Thresholds{Pass: 0.8, Partial: 0.8}.Validate())

	assert.ErrorIs(t, Thresholds{Pass: 0.80, Partial: 0.85}.Validate(), ErrInvalidThresholdConfig)
	assert.ErrorIs(t, Thresholds{Pass: 1.2, Partial: 0.5}.Validate(), ErrInvalidThresholdConfig)
	assert.ErrorIs(t, Thresholds{Pass: 0.5, Partial: -0.1}.Validate(), ErrInvalidThresholdConfig)
	assert.ErrorIs(t, Thresholds{Pass: math.NaN(), Partial: 0.5}.Validate(), ErrInvalidThresholdConfig)
	assert.ErrorIs(t, Thresholds{Pass: 0.8, Partial: math.NaN()}.Validate(), ErrInvalidThresholdConfig)
}

func TestDecision_Weaker(t *testing.T) {
	assert.Equal(t, DecisionPartial, DecisionPass.Weaker(DecisionPartial))
	assert.Equal(t, DecisionFail, DecisionPartial.Weaker(DecisionFail))
	assert.Equal(t, DecisionFail, DecisionFail.Weaker(DecisionPass))
	assert.Equal(t, DecisionPass, DecisionPass.Weaker(DecisionPass))
}
