package metric

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistanceCosine(t *testing.T) {
	d, err := Distance(MetricCosine, []float32{1, 0}, []float32{1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 0, d, 1e-6)

	d, err = Distance(MetricCosine, []float32{1, 0}, []float32{0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 1, d, 1e-6)
}

func TestDistanceCosineZeroVectorIsInfinite(t *testing.T) {
	d, err := Distance(MetricCosine, []float32{0, 0}, []float32{1, 1})
	require.NoError(t, err)
	assert.True(t, math.IsInf(float64(d), 1))
}

func TestDistanceEuclidean(t *testing.T) {
	d, err := Distance(MetricEuclidean, []float32{0, 0}, []float32{3, 4})
	require.NoError(t, err)
	assert.InDelta(t, 5, d, 1e-6)
}

func TestDistanceDot(t *testing.T) {
	d, err := Distance(MetricDot, []float32{1, 2}, []float32{3, 4})
	require.NoError(t, err)
	assert.InDelta(t, -11, d, 1e-6)
}

func TestDistanceDimensionMismatch(t *testing.T) {
	_, err := Distance(MetricCosine, []float32{1, 2}, []float32{1})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestMetricStringRoundTrip(t *testing.T) {
	for _, m := range []Metric{MetricCosine, MetricEuclidean, MetricDot} {
		parsed, err := ParseMetric(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, parsed)
	}
	_, err := ParseMetric("nonsense")
	assert.Error(t, err)
}

func TestScoreMappingStringRoundTrip(t *testing.T) {
	for _, sm := range []ScoreMapping{ScoreOneMinusDistance, ScoreInverse} {
		parsed, err := ParseScoreMapping(sm.String())
		require.NoError(t, err)
		assert.Equal(t, sm, parsed)
	}
	_, err := ParseScoreMapping("nonsense")
	assert.Error(t, err)
}

func TestDefaultScoreMapping(t *testing.T) {
	assert.Equal(t, ScoreOneMinusDistance, DefaultScoreMapping(MetricCosine))
	assert.Equal(t, ScoreInverse, DefaultScoreMapping(MetricEuclidean))
	assert.Equal(t, ScoreInverse, DefaultScoreMapping(MetricDot))
}

func TestScore(t *testing.T) {
	assert.InDelta(t, 1, Score(0, ScoreOneMinusDistance), 1e-6)
	assert.InDelta(t, 0, Score(2, ScoreOneMinusDistance), 1e-6)
	assert.InDelta(t, 0.5, Score(1, ScoreInverse), 1e-6)
}

func TestNormalize(t *testing.T) {
	v := []float32{3, 4}
	Normalize(v)
	assert.InDelta(t, 1, Magnitude(v), 1e-6)

	zero := []float32{0, 0}
	Normalize(zero)
	assert.Equal(t, []float32{0, 0}, zero)
}

func TestCosineSimilarityZeroVector(t *testing.T) {
	sim, err := CosineSimilarity([]float32{0, 0}, []float32{1, 1})
	require.NoError(t, err)
	assert.Equal(t, float32(0), sim)
}
