package gmmlib

import (
	"math"
	"math/rand"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Covariances holds the covariance parameters for every component of a
// mixture under one of the supported parameterizations (full, tied,
// diagonal, or spherical).  The EM fitter is agnostic to which
// parameterization is in use: it only evaluates log densities through
// LogProbTo and re-estimates the parameters through Estimate.
type Covariances interface {

	// NumComp returns the number of components covered.
	NumComp() int

	// Dim returns the dimension of the feature space.
	Dim() int

	// LogProbTo writes the unweighted Gaussian log density of every
	// point under every component into dst, one column per component.
	// Components with a singular covariance produce NaN columns.
	LogProbTo(dst *mat.Dense, x, means *mat.Dense)

	// Estimate returns new covariance parameters of the same
	// parameterization from the responsibility-weighted second
	// moments of x around means.  nk holds the effective count per
	// component and regCovar is added to every estimated variance to
	// keep it away from singularity.
	Estimate(x, means, resp *mat.Dense, nk []float64, regCovar float64) Covariances

	// SampleTo draws one point from component k centered at mean and
	// writes it into dst.
	SampleTo(dst, mean []float64, k int, rng *rand.Rand)
}

// FullCovariances stores one unconstrained symmetric covariance matrix
// per component.
type FullCovariances struct {
	mats []*mat.SymDense
	dim  int
}

// NewFullCovariances wraps one symmetric matrix per component.  All
// matrices must have the same order.
func NewFullCovariances(mats []*mat.SymDense) *FullCovariances {

	if len(mats) == 0 {
		panic(ErrNoComponents)
	}

	d := mats[0].SymmetricDim()
	for _, m := range mats {
		if m.SymmetricDim() != d {
			panic(ErrCovarianceShape)
		}
	}

	return &FullCovariances{mats: mats, dim: d}
}

// Component returns the covariance matrix of component k.
func (c *FullCovariances) Component(k int) *mat.SymDense {
	return c.mats[k]
}

func (c *FullCovariances) NumComp() int {
	return len(c.mats)
}

func (c *FullCovariances) Dim() int {
	return c.dim
}

// LogProbTo evaluates the component densities concurrently, one
// goroutine per component, each writing only its own column of dst.
func (c *FullCovariances) LogProbTo(dst *mat.Dense, x, means *mat.Dense) {

	var wg sync.WaitGroup

	for k := range c.mats {
		wg.Add(1)
		go c.logProbComp(dst, x, means, k, &wg)
	}

	wg.Wait()
}

func (c *FullCovariances) logProbComp(dst *mat.Dense, x, means *mat.Dense, k int, wg *sync.WaitGroup) {

	defer wg.Done()

	n, d := x.Dims()

	var chol mat.Cholesky
	if !chol.Factorize(c.mats[k]) {
		for i := 0; i < n; i++ {
			dst.Set(i, k, math.NaN())
		}
		return
	}

	cnst := float64(d)*log2Pi + chol.LogDet()

	// Due to concurrency, each component needs its own workspace
	diff := mat.NewVecDense(d, nil)
	sol := mat.NewVecDense(d, nil)
	mu := means.RawRowView(k)

	for i := 0; i < n; i++ {
		row := x.RawRowView(i)
		for j := 0; j < d; j++ {
			diff.SetVec(j, row[j]-mu[j])
		}
		_ = chol.SolveVecTo(sol, diff)
		dst.Set(i, k, -0.5*(cnst+mat.Dot(diff, sol)))
	}
}

// Estimate computes the responsibility-weighted covariance of each
// component and adds regCovar to its diagonal.
func (c *FullCovariances) Estimate(x, means, resp *mat.Dense, nk []float64, regCovar float64) Covariances {

	_, d := x.Dims()

	mats := make([]*mat.SymDense, len(c.mats))

	var wg sync.WaitGroup
	for k := range mats {
		mats[k] = mat.NewSymDense(d, nil)
		wg.Add(1)
		go estimateFullComp(mats[k], x, means, resp, nk[k], regCovar, k, &wg)
	}
	wg.Wait()

	return &FullCovariances{mats: mats, dim: d}
}

func estimateFullComp(dst *mat.SymDense, x, means, resp *mat.Dense, nk, regCovar float64, k int, wg *sync.WaitGroup) {

	defer wg.Done()

	n, d := x.Dims()
	diff := mat.NewVecDense(d, nil)
	mu := means.RawRowView(k)

	for i := 0; i < n; i++ {
		row := x.RawRowView(i)
		for j := 0; j < d; j++ {
			diff.SetVec(j, row[j]-mu[j])
		}
		dst.SymRankOne(dst, resp.At(i, k), diff)
	}

	dst.ScaleSym(1/nk, dst)

	for j := 0; j < d; j++ {
		dst.SetSym(j, j, dst.At(j, j)+regCovar)
	}
}

func (c *FullCovariances) SampleTo(dst, mean []float64, k int, rng *rand.Rand) {
	sampleMVN(dst, mean, c.mats[k], rng)
}

// TiedCovariances stores a single covariance matrix shared by all
// components.
type TiedCovariances struct {
	cov   *mat.SymDense
	ncomp int
}

// NewTiedCovariances wraps one symmetric matrix shared by ncomp
// components.
func NewTiedCovariances(cov *mat.SymDense, ncomp int) *TiedCovariances {

	if ncomp < 1 {
		panic(ErrNoComponents)
	}

	return &TiedCovariances{cov: cov, ncomp: ncomp}
}

// Component returns the shared covariance matrix.
func (c *TiedCovariances) Component() *mat.SymDense {
	return c.cov
}

func (c *TiedCovariances) NumComp() int {
	return c.ncomp
}

func (c *TiedCovariances) Dim() int {
	return c.cov.SymmetricDim()
}

func (c *TiedCovariances) LogProbTo(dst *mat.Dense, x, means *mat.Dense) {

	n, d := x.Dims()

	var chol mat.Cholesky
	if !chol.Factorize(c.cov) {
		for i := 0; i < n; i++ {
			for k := 0; k < c.ncomp; k++ {
				dst.Set(i, k, math.NaN())
			}
		}
		return
	}

	cnst := float64(d)*log2Pi + chol.LogDet()

	diff := mat.NewVecDense(d, nil)
	sol := mat.NewVecDense(d, nil)

	for k := 0; k < c.ncomp; k++ {
		mu := means.RawRowView(k)
		for i := 0; i < n; i++ {
			row := x.RawRowView(i)
			for j := 0; j < d; j++ {
				diff.SetVec(j, row[j]-mu[j])
			}
			_ = chol.SolveVecTo(sol, diff)
			dst.Set(i, k, -0.5*(cnst+mat.Dot(diff, sol)))
		}
	}
}

// Estimate computes the pooled covariance: the total scatter of x
// minus the between-component scatter of the weighted means, divided
// by the total effective count.
func (c *TiedCovariances) Estimate(x, means, resp *mat.Dense, nk []float64, regCovar float64) Covariances {

	n, d := x.Dims()

	cov := mat.NewSymDense(d, nil)

	for i := 0; i < n; i++ {
		cov.SymRankOne(cov, 1, x.RowView(i))
	}
	for k := 0; k < c.ncomp; k++ {
		cov.SymRankOne(cov, -nk[k], means.RowView(k))
	}

	cov.ScaleSym(1/floats.Sum(nk), cov)

	for j := 0; j < d; j++ {
		cov.SetSym(j, j, cov.At(j, j)+regCovar)
	}

	return &TiedCovariances{cov: cov, ncomp: c.ncomp}
}

func (c *TiedCovariances) SampleTo(dst, mean []float64, k int, rng *rand.Rand) {
	sampleMVN(dst, mean, c.cov, rng)
}

// DiagCovariances stores one variance per component and feature,
// packed by component.
type DiagCovariances struct {
	vars  []float64
	ncomp int
	dim   int
}

// NewDiagCovariances wraps a flat ncomp x dim variance array packed by
// component.
func NewDiagCovariances(vars []float64, ncomp, dim int) *DiagCovariances {

	if ncomp < 1 {
		panic(ErrNoComponents)
	}
	if len(vars) != ncomp*dim {
		panic(ErrCovarianceShape)
	}

	return &DiagCovariances{vars: vars, ncomp: ncomp, dim: dim}
}

// Component returns the variances of component k.
func (c *DiagCovariances) Component(k int) []float64 {
	return c.vars[k*c.dim : (k+1)*c.dim]
}

func (c *DiagCovariances) NumComp() int {
	return c.ncomp
}

func (c *DiagCovariances) Dim() int {
	return c.dim
}

func (c *DiagCovariances) LogProbTo(dst *mat.Dense, x, means *mat.Dense) {

	n, d := x.Dims()

	for k := 0; k < c.ncomp; k++ {

		v := c.Component(k)
		mu := means.RawRowView(k)

		cnst := float64(d) * log2Pi
		for j := 0; j < d; j++ {
			cnst += math.Log(v[j])
		}

		for i := 0; i < n; i++ {
			row := x.RawRowView(i)
			var maha float64
			for j := 0; j < d; j++ {
				z := row[j] - mu[j]
				maha += z * z / v[j]
			}
			dst.Set(i, k, -0.5*(cnst+maha))
		}
	}
}

func (c *DiagCovariances) Estimate(x, means, resp *mat.Dense, nk []float64, regCovar float64) Covariances {

	n, _ := x.Dims()

	vars := make([]float64, c.ncomp*c.dim)

	for k := 0; k < c.ncomp; k++ {
		v := vars[k*c.dim : (k+1)*c.dim]
		mu := means.RawRowView(k)
		for i := 0; i < n; i++ {
			r := resp.At(i, k)
			row := x.RawRowView(i)
			for j := 0; j < c.dim; j++ {
				z := row[j] - mu[j]
				v[j] += r * z * z
			}
		}
		floats.Scale(1/nk[k], v)
		floats.AddConst(regCovar, v)
	}

	return &DiagCovariances{vars: vars, ncomp: c.ncomp, dim: c.dim}
}

func (c *DiagCovariances) SampleTo(dst, mean []float64, k int, rng *rand.Rand) {

	v := c.Component(k)
	for j := range dst {
		dst[j] = mean[j] + math.Sqrt(v[j])*rng.NormFloat64()
	}
}

// SphericalCovariances stores a single isotropic variance per
// component.
type SphericalCovariances struct {
	vars []float64
	dim  int
}

// NewSphericalCovariances wraps one variance per component for a
// mixture over a dim-dimensional feature space.
func NewSphericalCovariances(vars []float64, dim int) *SphericalCovariances {

	if len(vars) < 1 {
		panic(ErrNoComponents)
	}

	return &SphericalCovariances{vars: vars, dim: dim}
}

// Component returns the variance of component k.
func (c *SphericalCovariances) Component(k int) float64 {
	return c.vars[k]
}

func (c *SphericalCovariances) NumComp() int {
	return len(c.vars)
}

func (c *SphericalCovariances) Dim() int {
	return c.dim
}

func (c *SphericalCovariances) LogProbTo(dst *mat.Dense, x, means *mat.Dense) {

	n, d := x.Dims()

	for k := range c.vars {

		v := c.vars[k]
		mu := means.RawRowView(k)
		cnst := float64(d) * (log2Pi + math.Log(v))

		for i := 0; i < n; i++ {
			row := x.RawRowView(i)
			var maha float64
			for j := 0; j < d; j++ {
				z := row[j] - mu[j]
				maha += z * z
			}
			dst.Set(i, k, -0.5*(cnst+maha/v))
		}
	}
}

// Estimate averages the per-feature weighted variances of each
// component into a single isotropic value.
func (c *SphericalCovariances) Estimate(x, means, resp *mat.Dense, nk []float64, regCovar float64) Covariances {

	n, d := x.Dims()

	vars := make([]float64, len(c.vars))

	for k := range vars {
		mu := means.RawRowView(k)
		var ss float64
		for i := 0; i < n; i++ {
			r := resp.At(i, k)
			row := x.RawRowView(i)
			for j := 0; j < d; j++ {
				z := row[j] - mu[j]
				ss += r * z * z
			}
		}
		vars[k] = ss/(nk[k]*float64(d)) + regCovar
	}

	return &SphericalCovariances{vars: vars, dim: c.dim}
}

func (c *SphericalCovariances) SampleTo(dst, mean []float64, k int, rng *rand.Rand) {

	sd := math.Sqrt(c.vars[k])
	for j := range dst {
		dst[j] = mean[j] + sd*rng.NormFloat64()
	}
}

// sampleMVN draws from N(mean, cov) via the Cholesky factor of cov.
func sampleMVN(dst, mean []float64, cov *mat.SymDense, rng *rand.Rand) {

	d := len(mean)

	var chol mat.Cholesky
	if !chol.Factorize(cov) {
		for j := range dst {
			dst[j] = math.NaN()
		}
		return
	}

	var l mat.TriDense
	chol.LTo(&l)

	z := mat.NewVecDense(d, nil)
	for j := 0; j < d; j++ {
		z.SetVec(j, rng.NormFloat64())
	}

	y := mat.NewVecDense(d, nil)
	y.MulVec(&l, z)

	for j := 0; j < d; j++ {
		dst[j] = mean[j] + y.AtVec(j)
	}
}
