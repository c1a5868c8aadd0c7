package main

import (
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"os"

	"github.com/kshedden/gmm/gmmlib"
	"gonum.org/v1/gonum/mat"
)

var (
	logger *log.Logger

	out io.WriteCloser
)

type study struct {
	covtype string
	ncomp   int
	dim     int
	nobs    int
	sep     float64
	sd      float64
	maxiter int
	nrep    int
}

var (
	basestudy *study = &study{
		covtype: "full",
		ncomp:   3,
		dim:     2,
		nobs:    2000,
		sep:     8,
		sd:      1,
		maxiter: 100,
		nrep:    10,
	}
)

// truth builds the generating mixture for one study cell: uniform
// weights, means sep apart along the diagonal, isotropic variance.
func truth(s *study) *gmmlib.GaussianMixture {

	weights := make([]float64, s.ncomp)
	for k := range weights {
		weights[k] = 1 / float64(s.ncomp)
	}

	means := mat.NewDense(s.ncomp, s.dim, nil)
	for k := 0; k < s.ncomp; k++ {
		for j := 0; j < s.dim; j++ {
			means.Set(k, j, s.sep*float64(k))
		}
	}

	vars := make([]float64, s.ncomp)
	for k := range vars {
		vars[k] = s.sd * s.sd
	}

	gmm, err := gmmlib.NewGaussianMixture(weights, means, gmmlib.NewSphericalCovariances(vars, s.dim))
	if err != nil {
		panic(err)
	}

	return gmm
}

// startParams builds starting values for the fit: uniform weights,
// means from evenly spaced data rows, marginal variances under the
// study's covariance parameterization.
func startParams(x *mat.Dense, s *study) *gmmlib.GaussianMixture {

	n, d := x.Dims()

	vx := make([]float64, d)
	mean := make([]float64, d)
	for i := 0; i < n; i++ {
		row := x.RawRowView(i)
		for j := 0; j < d; j++ {
			mean[j] += row[j]
		}
	}
	for j := range mean {
		mean[j] /= float64(n)
	}
	for i := 0; i < n; i++ {
		row := x.RawRowView(i)
		for j := 0; j < d; j++ {
			z := row[j] - mean[j]
			vx[j] += z * z
		}
	}
	for j := range vx {
		vx[j] /= float64(n)
	}

	weights := make([]float64, s.ncomp)
	for k := range weights {
		weights[k] = 1 / float64(s.ncomp)
	}

	means := mat.NewDense(s.ncomp, d, nil)
	for k := 0; k < s.ncomp; k++ {
		means.SetRow(k, x.RawRowView((k+1)*n/(s.ncomp+1)))
	}

	var covs gmmlib.Covariances
	switch s.covtype {
	case "full":
		mats := make([]*mat.SymDense, s.ncomp)
		for k := range mats {
			mats[k] = mat.NewSymDense(d, nil)
			for j := 0; j < d; j++ {
				mats[k].SetSym(j, j, vx[j])
			}
		}
		covs = gmmlib.NewFullCovariances(mats)
	case "tied":
		cm := mat.NewSymDense(d, nil)
		for j := 0; j < d; j++ {
			cm.SetSym(j, j, vx[j])
		}
		covs = gmmlib.NewTiedCovariances(cm, s.ncomp)
	case "diag":
		vars := make([]float64, s.ncomp*d)
		for k := 0; k < s.ncomp; k++ {
			copy(vars[k*d:(k+1)*d], vx)
		}
		covs = gmmlib.NewDiagCovariances(vars, s.ncomp, d)
	case "spherical":
		var vm float64
		for _, v := range vx {
			vm += v
		}
		vm /= float64(d)
		vars := make([]float64, s.ncomp)
		for k := range vars {
			vars[k] = vm
		}
		covs = gmmlib.NewSphericalCovariances(vars, d)
	default:
		panic("unknown covariance type")
	}

	gmm, err := gmmlib.NewGaussianMixture(weights, means, covs)
	if err != nil {
		panic(err)
	}

	return gmm
}

// meanError returns the average distance from each true component mean
// to the closest estimated mean.
func meanError(est, tru *gmmlib.GaussianMixture) float64 {

	var tot float64

	for k := 0; k < tru.NumComp(); k++ {
		tm := tru.Means.RawRowView(k)
		best := math.Inf(1)
		for q := 0; q < est.NumComp(); q++ {
			em := est.Means.RawRowView(q)
			var ss float64
			for j := range tm {
				z := tm[j] - em[j]
				ss += z * z
			}
			if d := math.Sqrt(ss); d < best {
				best = d
			}
		}
		tot += best
	}

	return tot / float64(tru.NumComp())
}

func run(s *study, rng *rand.Rand) {

	tru := truth(s)

	for i := 0; i < s.nrep; i++ {

		x := tru.Sample(s.nobs, rng)

		fitter := gmmlib.NewEMFitter()
		fitter.MaxIter = s.maxiter
		fitter.SetLogger(logger)

		result := fitter.Fit(x, startParams(x, s))

		me := meanError(result.GMM, tru)
		logger.Printf("covtype=%s sep=%.1f rep=%d niter=%d llf=%f meanerr=%f",
			s.covtype, s.sep, i, result.NIter, result.LogLikelihood, me)

		_, _ = io.WriteString(out, fmt.Sprintf("%s,%.2f,%d,%d,%f,%f\n",
			s.covtype, s.sep, i, result.NIter, result.LogLikelihood, me))
	}
}

func main() {

	var err error
	out, err = os.Create("result.csv")
	if err != nil {
		panic(err)
	}
	defer out.Close()

	head := "CovType,Sep,Rep,NIter,LogLikelihood,MeanErr\n"
	_, _ = io.WriteString(out, head)

	lfid, err := os.Create("sim.log")
	if err != nil {
		panic(err)
	}
	defer lfid.Close()
	logger = log.New(lfid, "", log.Ltime)

	rng := rand.New(rand.NewSource(4523745))

	for _, ct := range []string{"full", "tied", "diag", "spherical"} {
		s := *basestudy
		s.covtype = ct
		for _, sep := range []float64{2, 4, 8} {
			s.sep = sep
			run(&s, rng)
		}
	}
}
