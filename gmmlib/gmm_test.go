package gmmlib

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestNewGaussianMixtureValidates(t *testing.T) {

	means := mat.NewDense(2, 2, nil)
	covs := NewSphericalCovariances([]float64{1, 1}, 2)

	_, err := NewGaussianMixture([]float64{0.5, 0.5}, means, covs)
	assert.NoError(t, err)

	_, err = NewGaussianMixture([]float64{1}, means, covs)
	assert.ErrorIs(t, err, ErrWeightsShape)

	_, err = NewGaussianMixture([]float64{0.5, 0.5}, means, NewSphericalCovariances([]float64{1, 1, 1}, 2))
	assert.ErrorIs(t, err, ErrCovarianceShape)

	_, err = NewGaussianMixture([]float64{0.5, 0.5}, means, NewSphericalCovariances([]float64{1, 1}, 3))
	assert.ErrorIs(t, err, ErrCovarianceShape)

	_, err = NewGaussianMixture(nil, nil, covs)
	assert.ErrorIs(t, err, ErrNoComponents)

	_, err = NewGaussianMixture([]float64{-0.5, 1.5}, means, covs)
	assert.ErrorIs(t, err, ErrWeightsInvalid)

	_, err = NewGaussianMixture([]float64{0.5, 0.4}, means, covs)
	assert.ErrorIs(t, err, ErrWeightsInvalid)
}

func TestEstimateLogProbAddsLogWeight(t *testing.T) {

	// Two identical components, so the log probabilities differ only
	// by the log weight ratio.
	means := mat.NewDense(2, 1, []float64{0, 0})
	covs := NewSphericalCovariances([]float64{1, 1}, 1)

	gmm, err := NewGaussianMixture([]float64{0.3, 0.7}, means, covs)
	require.NoError(t, err)

	x := mat.NewDense(2, 1, []float64{-1, 2})
	lp := gmm.EstimateLogProb(x)

	for i := 0; i < 2; i++ {
		diff := lp.At(i, 0) - lp.At(i, 1)
		assert.InDelta(t, math.Log(0.3)-math.Log(0.7), diff, 1e-12)
	}
}

func TestEstimateLogProbSumsToLikelihood(t *testing.T) {

	// Single standard normal component; the row logsumexp is the
	// closed-form log density.
	means := mat.NewDense(1, 1, []float64{0})
	covs := NewSphericalCovariances([]float64{1}, 1)

	gmm, err := NewGaussianMixture([]float64{1}, means, covs)
	require.NoError(t, err)

	x := mat.NewDense(3, 1, []float64{-2, 0, 1.5})
	lp := gmm.EstimateLogProb(x)

	for i := 0; i < 3; i++ {
		v := x.At(i, 0)
		want := -0.5 * (math.Log(2*math.Pi) + v*v)
		assert.InDelta(t, want, logSumExp(lp.RawRowView(i)), 1e-12)
	}
}

func TestPredict(t *testing.T) {

	means := mat.NewDense(2, 2, []float64{
		0, 0,
		10, 10,
	})
	covs := NewSphericalCovariances([]float64{1, 1}, 2)

	gmm, err := NewGaussianMixture([]float64{0.5, 0.5}, means, covs)
	require.NoError(t, err)

	x := mat.NewDense(4, 2, []float64{
		0.3, -0.2,
		9.7, 10.4,
		1, 1,
		11, 9,
	})

	assert.Equal(t, []int{0, 1, 0, 1}, gmm.Predict(x))
}

func TestSampleMoments(t *testing.T) {

	means := mat.NewDense(1, 2, []float64{2, -1})
	covs := NewSphericalCovariances([]float64{4}, 2)

	gmm, err := NewGaussianMixture([]float64{1}, means, covs)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(99))
	n := 4000
	x := gmm.Sample(n, rng)

	var m0, m1 float64
	for i := 0; i < n; i++ {
		m0 += x.At(i, 0)
		m1 += x.At(i, 1)
	}
	m0 /= float64(n)
	m1 /= float64(n)

	assert.InDelta(t, 2, m0, 0.15)
	assert.InDelta(t, -1, m1, 0.15)

	var v0 float64
	for i := 0; i < n; i++ {
		z := x.At(i, 0) - m0
		v0 += z * z
	}
	v0 /= float64(n)

	assert.InDelta(t, 4, v0, 0.4)
}

func TestSampleFullCovariance(t *testing.T) {

	// Strongly correlated component; the sample correlation must
	// reflect the off-diagonal term.
	cov := mat.NewSymDense(2, []float64{1, 0.9, 0.9, 1})
	means := mat.NewDense(1, 2, []float64{0, 0})

	gmm, err := NewGaussianMixture([]float64{1}, means, NewFullCovariances([]*mat.SymDense{cov}))
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(12))
	n := 4000
	x := gmm.Sample(n, rng)

	var c01, v0, v1 float64
	for i := 0; i < n; i++ {
		c01 += x.At(i, 0) * x.At(i, 1)
		v0 += x.At(i, 0) * x.At(i, 0)
		v1 += x.At(i, 1) * x.At(i, 1)
	}

	r := c01 / math.Sqrt(v0*v1)
	assert.InDelta(t, 0.9, r, 0.05)
}
