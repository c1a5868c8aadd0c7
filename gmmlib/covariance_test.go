package gmmlib

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// onesResp returns a single-component responsibility matrix assigning
// every point fully to component 0, along with its effective count.
func onesResp(n int) (*mat.Dense, []float64) {

	resp := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		resp.Set(i, 0, 1)
	}

	return resp, []float64{float64(n)}
}

func TestDiagEstimate(t *testing.T) {

	x := mat.NewDense(2, 1, []float64{1, 3})
	means := mat.NewDense(1, 1, []float64{2})
	resp, nk := onesResp(2)

	c := NewDiagCovariances([]float64{1}, 1, 1)
	out := c.Estimate(x, means, resp, nk, 0.5).(*DiagCovariances)

	// ((1-2)^2 + (3-2)^2)/2 + 0.5
	assert.InDelta(t, 1.5, out.Component(0)[0], 1e-12)
}

func TestSphericalIsDiagMean(t *testing.T) {

	rng := rand.New(rand.NewSource(2))
	n, d := 40, 3

	x := mat.NewDense(n, d, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			x.Set(i, j, rng.NormFloat64()*float64(j+1))
		}
	}

	means := mat.NewDense(1, d, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			means.Set(0, j, means.At(0, j)+x.At(i, j)/float64(n))
		}
	}

	resp, nk := onesResp(n)

	dg := NewDiagCovariances(make([]float64, d), 1, d).Estimate(x, means, resp, nk, 1e-6).(*DiagCovariances)
	sp := NewSphericalCovariances([]float64{1}, d).Estimate(x, means, resp, nk, 1e-6).(*SphericalCovariances)

	var vm float64
	for _, v := range dg.Component(0) {
		vm += v
	}
	vm /= float64(d)

	assert.InDelta(t, vm, sp.Component(0), 1e-12)
}

func TestTiedEqualsFullSingleComponent(t *testing.T) {

	rng := rand.New(rand.NewSource(9))
	n, d := 30, 2

	x := mat.NewDense(n, d, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			x.Set(i, j, rng.NormFloat64()+float64(j))
		}
	}

	means := mat.NewDense(1, d, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			means.Set(0, j, means.At(0, j)+x.At(i, j)/float64(n))
		}
	}

	resp, nk := onesResp(n)

	fl := NewFullCovariances([]*mat.SymDense{mat.NewSymDense(d, nil)}).
		Estimate(x, means, resp, nk, 1e-6).(*FullCovariances)
	td := NewTiedCovariances(mat.NewSymDense(d, nil), 1).
		Estimate(x, means, resp, nk, 1e-6).(*TiedCovariances)

	for i := 0; i < d; i++ {
		for j := 0; j < d; j++ {
			assert.InDelta(t, fl.Component(0).At(i, j), td.Component().At(i, j), 1e-10)
		}
	}
}

func TestFullLogProbClosedForm(t *testing.T) {

	// Univariate normal with variance 4
	c := NewFullCovariances([]*mat.SymDense{mat.NewSymDense(1, []float64{4})})

	x := mat.NewDense(3, 1, []float64{-1, 0, 2.5})
	means := mat.NewDense(1, 1, []float64{1})

	dst := mat.NewDense(3, 1, nil)
	c.LogProbTo(dst, x, means)

	for i := 0; i < 3; i++ {
		z := x.At(i, 0) - 1
		want := -0.5 * (math.Log(2*math.Pi*4) + z*z/4)
		assert.InDelta(t, want, dst.At(i, 0), 1e-12)
	}
}

func TestFullLogProbMatchesDiag(t *testing.T) {

	rng := rand.New(rand.NewSource(21))
	n, d := 20, 3

	x := mat.NewDense(n, d, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			x.Set(i, j, 2*rng.NormFloat64())
		}
	}

	means := mat.NewDense(2, d, []float64{
		0, 1, -1,
		2, 0, 3,
	})

	vars := []float64{1, 2, 0.5, 3, 1, 2}

	mats := make([]*mat.SymDense, 2)
	for k := 0; k < 2; k++ {
		mats[k] = mat.NewSymDense(d, nil)
		for j := 0; j < d; j++ {
			mats[k].SetSym(j, j, vars[k*d+j])
		}
	}

	fdst := mat.NewDense(n, 2, nil)
	NewFullCovariances(mats).LogProbTo(fdst, x, means)

	ddst := mat.NewDense(n, 2, nil)
	NewDiagCovariances(vars, 2, d).LogProbTo(ddst, x, means)

	for i := 0; i < n; i++ {
		for k := 0; k < 2; k++ {
			assert.InDelta(t, ddst.At(i, k), fdst.At(i, k), 1e-9)
		}
	}
}

func TestSingularFullLogProbNaN(t *testing.T) {

	mats := []*mat.SymDense{
		mat.NewSymDense(2, nil), // singular
		mat.NewSymDense(2, []float64{1, 0, 0, 1}),
	}

	x := mat.NewDense(2, 2, []float64{0, 0, 1, 1})
	means := mat.NewDense(2, 2, []float64{0, 0, 0, 0})

	dst := mat.NewDense(2, 2, nil)
	NewFullCovariances(mats).LogProbTo(dst, x, means)

	for i := 0; i < 2; i++ {
		assert.True(t, math.IsNaN(dst.At(i, 0)))
		assert.False(t, math.IsNaN(dst.At(i, 1)))
	}
}

func TestFullEstimateAddsRegularization(t *testing.T) {

	// All points identical, so the scatter is zero and the estimated
	// covariance is exactly the regularizer on the diagonal.
	x := mat.NewDense(4, 2, []float64{1, 2, 1, 2, 1, 2, 1, 2})
	means := mat.NewDense(1, 2, []float64{1, 2})
	resp, nk := onesResp(4)

	out := NewFullCovariances([]*mat.SymDense{mat.NewSymDense(2, nil)}).
		Estimate(x, means, resp, nk, 1e-3).(*FullCovariances)

	cm := out.Component(0)
	assert.InDelta(t, 1e-3, cm.At(0, 0), 1e-15)
	assert.InDelta(t, 1e-3, cm.At(1, 1), 1e-15)
	assert.InDelta(t, 0, cm.At(0, 1), 1e-15)
}

func TestLogSumExp(t *testing.T) {

	assert.InDelta(t, math.Log(2), logSumExp([]float64{0, 0}), 1e-12)

	// Shift invariance keeps large inputs from overflowing
	assert.InDelta(t, 1000+math.Log(2), logSumExp([]float64{1000, 1000}), 1e-9)

	ninf := math.Inf(-1)
	require.True(t, math.IsInf(logSumExp([]float64{ninf, ninf}), -1))
}
