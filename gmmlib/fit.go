package gmmlib

import (
	"io"
	"log"
	"math"

	"github.com/schollz/progressbar"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Starting value for the tracked log-likelihood.  Smaller than any
// attainable mean log-likelihood, so the first iteration always runs.
const llfInit = -1e25

var discardLogger = log.New(io.Discard, "", 0)

// EMFitterResult packages the output of one EM fit.
type EMFitterResult struct {

	// The feature matrix the model was fitted to
	X *mat.Dense

	// The fitted mixture
	GMM *GaussianMixture

	// The number of iterations executed
	NIter int

	// The mean per-point log-likelihood after the final E-step
	LogLikelihood float64

	// The absolute log-likelihood improvement on the final iteration
	LogLikelihoodDiff float64
}

// EMFitter estimates the parameters of a Gaussian mixture by
// expectation-maximization.  A fitter carries configuration only and
// may be reused across fits; Fit never modifies the model it is given
// and returns a freshly built one.
type EMFitter struct {

	// Maximum number of EM iterations
	MaxIter int

	// Stop once the absolute log-likelihood improvement is no larger
	// than this
	Tol float64

	// Added to every estimated variance to keep the covariance away
	// from singularity
	RegCovar float64

	// Show a progress bar during Fit
	Progress bool

	msglogger *log.Logger
}

// NewEMFitter returns an EMFitter with the standard settings.
func NewEMFitter() *EMFitter {

	return &EMFitter{
		MaxIter:  100,
		Tol:      1e-3,
		RegCovar: 1e-6,
	}
}

// SetLogger directs per-iteration fitting messages to the given
// logger.  By default they are discarded.
func (f *EMFitter) SetLogger(lg *log.Logger) {
	f.msglogger = lg
}

func (f *EMFitter) logger() *log.Logger {

	if f.msglogger != nil {
		return f.msglogger
	}

	return discardLogger
}

// EStep computes the log responsibility of every component for every
// point, and the mean per-point log-likelihood of the data under the
// current model.  Neither x nor gmm is modified.
//
// A point with zero density under every component normalizes to a NaN
// row; this is a defined numerical outcome that propagates to the
// caller rather than an error.
func (f *EMFitter) EStep(x *mat.Dense, gmm *GaussianMixture) (float64, *mat.Dense) {

	logResp := gmm.EstimateLogProb(x)

	n, _ := logResp.Dims()
	var total float64
	for i := 0; i < n; i++ {
		row := logResp.RawRowView(i)
		lpn := logSumExp(row)
		floats.AddConst(-lpn, row)
		total += lpn
	}

	return total / float64(n), logResp
}

// MStep returns a new mixture whose weights, means, and covariances
// maximize the expected log-likelihood under the given log
// responsibilities.  The current model only supplies the covariance
// parameterization; it is not modified.
//
// A component whose effective count nk falls to zero has collapsed.
// The update is not guarded against this: the division produces
// non-finite parameters that carry through later iterations, and a
// message is written to the fitter's logger.
func (f *EMFitter) MStep(x *mat.Dense, gmm *GaussianMixture, logResp *mat.Dense) *GaussianMixture {

	n, d := x.Dims()
	ncomp := gmm.NumComp()

	resp := mat.NewDense(n, ncomp, nil)
	nk := make([]float64, ncomp)
	for i := 0; i < n; i++ {
		for k := 0; k < ncomp; k++ {
			r := math.Exp(logResp.At(i, k))
			resp.Set(i, k, r)
			nk[k] += r
		}
	}

	means := mat.NewDense(ncomp, d, nil)
	means.Mul(resp.T(), x)
	for k := 0; k < ncomp; k++ {
		if nk[k] < 1e-10 {
			f.logger().Printf("Underflow in the update for component %d", k)
		}
		floats.Scale(1/nk[k], means.RawRowView(k))
	}

	covs := gmm.Covs.Estimate(x, means, resp, nk, f.RegCovar)

	total := floats.Sum(nk)
	weights := make([]float64, ncomp)
	for k := range weights {
		weights[k] = nk[k] / total
	}

	return &GaussianMixture{
		Weights: weights,
		Means:   means,
		Covs:    covs,
	}
}

// Fit runs EM from the starting model gmm, alternating EStep and MStep
// until the log-likelihood improvement drops to Tol or MaxIter
// iterations have run.  Reaching MaxIter without converging is a
// normal termination; the result then has NIter == MaxIter and
// LogLikelihoodDiff > Tol.
//
// Fit is deterministic: identical x, starting model, and settings give
// identical results.
func (f *EMFitter) Fit(x *mat.Dense, gmm *GaussianMixture) *EMFitterResult {

	var bar *progressbar.ProgressBar
	if f.Progress {
		bar = progressbar.New(f.MaxIter)
	}

	llf := llfInit
	diff := math.Inf(1)
	niter := 0

	for niter < f.MaxIter && diff > f.Tol {

		llfNew, logResp := f.EStep(x, gmm)
		gmm = f.MStep(x, gmm, logResp)

		niter++
		diff = math.Abs(llfNew - llf)
		llf = llfNew

		f.logger().Printf("iteration %d: llf=%f diff=%f", niter, llf, diff)
		if bar != nil {
			_ = bar.Add(1)
		}
	}

	return &EMFitterResult{
		X:                 x,
		GMM:               gmm,
		NIter:             niter,
		LogLikelihood:     llf,
		LogLikelihoodDiff: diff,
	}
}
