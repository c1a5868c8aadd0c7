package gmmlib

import (
	"errors"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrNoComponents      = errors.New("Mixture must have at least one component")
	ErrWeightsShape      = errors.New("Number of weights does not match the number of components")
	ErrWeightsInvalid    = errors.New("Weights must be nonnegative with unit sum")
	ErrCovarianceShape   = errors.New("Covariance parameterization does not match the means")
	ErrDimensionMismatch = errors.New("Data dimension does not match the mixture dimension")
)

// GaussianMixture holds the parameters of a Gaussian mixture model: the
// mixing weights, the component means, and the covariance parameters.
// The covariance parameterization (full, tied, diagonal, or spherical)
// is determined by the concrete type stored in Covs.
//
// A GaussianMixture is treated as immutable once constructed.  The EM
// fitter never modifies the model it is given; each M-step builds a
// fresh value.
type GaussianMixture struct {

	// The mixing weights, nonnegative with unit sum
	Weights []float64

	// The component means, one row per component
	Means *mat.Dense

	// The covariance parameters for all components
	Covs Covariances
}

// NewGaussianMixture returns a mixture with the given parameters after
// checking that their shapes agree and that the weights are
// nonnegative with unit sum.
func NewGaussianMixture(weights []float64, means *mat.Dense, covs Covariances) (*GaussianMixture, error) {

	if means == nil || covs == nil {
		return nil, ErrNoComponents
	}

	ncomp, dim := means.Dims()
	if ncomp < 1 {
		return nil, ErrNoComponents
	}

	if len(weights) != ncomp {
		return nil, ErrWeightsShape
	}

	var wsum float64
	for _, w := range weights {
		if w < 0 {
			return nil, ErrWeightsInvalid
		}
		wsum += w
	}
	if math.Abs(wsum-1) > 1e-8 {
		return nil, ErrWeightsInvalid
	}

	if covs.NumComp() != ncomp || covs.Dim() != dim {
		return nil, ErrCovarianceShape
	}

	return &GaussianMixture{
		Weights: weights,
		Means:   means,
		Covs:    covs,
	}, nil
}

// NumComp returns the number of mixture components.
func (g *GaussianMixture) NumComp() int {
	n, _ := g.Means.Dims()
	return n
}

// Dim returns the dimension of the feature space.
func (g *GaussianMixture) Dim() int {
	_, d := g.Means.Dims()
	return d
}

// EstimateLogProb returns the weighted log density of every point under
// every component: the value at row i, column k is
// log w_k + log N(x_i; mu_k, Sigma_k).  Summing a row over k in the
// exponential domain gives the likelihood of point i under the mixture.
//
// Components with singular covariance produce NaN columns and a zero
// mixing weight produces a -Inf column; both propagate to the caller
// rather than being reported as errors.
func (g *GaussianMixture) EstimateLogProb(x *mat.Dense) *mat.Dense {

	n, d := x.Dims()
	if d != g.Dim() {
		panic(ErrDimensionMismatch)
	}

	logProb := mat.NewDense(n, g.NumComp(), nil)
	g.Covs.LogProbTo(logProb, x, g.Means)

	for k, w := range g.Weights {
		lw := math.Log(w)
		for i := 0; i < n; i++ {
			logProb.Set(i, k, logProb.At(i, k)+lw)
		}
	}

	return logProb
}

// Predict returns the index of the most probable component for each
// point in x.
func (g *GaussianMixture) Predict(x *mat.Dense) []int {

	logProb := g.EstimateLogProb(x)

	n, _ := x.Dims()
	ix := make([]int, n)
	for i := 0; i < n; i++ {
		ix[i] = argmax(logProb.RawRowView(i))
	}

	return ix
}

// Sample draws n points from the mixture using the given random source.
// Each point is generated by selecting a component according to the
// mixing weights and then drawing from its Gaussian density.
func (g *GaussianMixture) Sample(n int, rng *rand.Rand) *mat.Dense {

	d := g.Dim()
	x := mat.NewDense(n, d, nil)

	for i := 0; i < n; i++ {
		k := genDiscrete(g.Weights, rng)
		g.Covs.SampleTo(x.RawRowView(i), g.Means.RawRowView(k), k, rng)
	}

	return x
}

// Generate a discrete random variable from the given probability
// vector.  Rounding in the cumulative sum can leave u above the final
// total, in which case the last category is returned.
func genDiscrete(pr []float64, rng *rand.Rand) int {

	u := rng.Float64()
	p := 0.0
	for j := range pr {
		p += pr[j]
		if u < p {
			return j
		}
	}

	return len(pr) - 1
}
