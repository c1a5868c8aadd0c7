package main

import (
	"bufio"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"strconv"

	"github.com/kshedden/gmm/gmmlib"
	"gonum.org/v1/gonum/mat"
)

var (
	logger *log.Logger
)

// readCSV loads a numeric CSV file into a matrix.  Rows containing a
// field that does not parse as a float are skipped.
func readCSV(fname string) (*mat.Dense, error) {

	fid, err := os.Open(fname)
	if err != nil {
		return nil, err
	}
	defer fid.Close()

	r := csv.NewReader(bufio.NewReader(fid))

	var data []float64
	var dim, n int

rows:
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}

		row := make([]float64, 0, len(record))
		for _, fld := range record {
			v, err := strconv.ParseFloat(fld, 64)
			if err != nil {
				continue rows
			}
			row = append(row, v)
		}

		if dim == 0 {
			dim = len(row)
		}
		data = append(data, row...)
		n++
	}

	if n == 0 {
		return nil, fmt.Errorf("%s contains no numeric rows", fname)
	}

	return mat.NewDense(n, dim, data), nil
}

// marginalMoments returns the per-column mean and variance of x.
func marginalMoments(x *mat.Dense) ([]float64, []float64) {

	n, d := x.Dims()

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

	vx := make([]float64, d)
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

	return mean, vx
}

// startParams builds a starting mixture for the data: uniform weights,
// means taken from evenly spaced data rows, and covariances from the
// marginal variances under the requested parameterization.
func startParams(x *mat.Dense, ncomp int, covtype string) *gmmlib.GaussianMixture {

	n, d := x.Dims()
	_, vx := marginalMoments(x)

	weights := make([]float64, ncomp)
	for k := range weights {
		weights[k] = 1 / float64(ncomp)
	}

	means := mat.NewDense(ncomp, d, nil)
	for k := 0; k < ncomp; k++ {
		i := (k + 1) * n / (ncomp + 1)
		means.SetRow(k, x.RawRowView(i))
	}

	var covs gmmlib.Covariances
	switch covtype {
	case "full":
		mats := make([]*mat.SymDense, ncomp)
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
		covs = gmmlib.NewTiedCovariances(cm, ncomp)
	case "diag":
		vars := make([]float64, ncomp*d)
		for k := 0; k < ncomp; k++ {
			copy(vars[k*d:(k+1)*d], vx)
		}
		covs = gmmlib.NewDiagCovariances(vars, ncomp, d)
	case "spherical":
		var vm float64
		for _, v := range vx {
			vm += v
		}
		vm /= float64(d)
		vars := make([]float64, ncomp)
		for k := range vars {
			vars[k] = vm
		}
		covs = gmmlib.NewSphericalCovariances(vars, d)
	default:
		panic(fmt.Sprintf("unknown covariance type '%s'", covtype))
	}

	gmm, err := gmmlib.NewGaussianMixture(weights, means, covs)
	if err != nil {
		panic(err)
	}

	return gmm
}

// writeSummary writes the mixture parameters to the logger.
func writeSummary(lg *log.Logger, gmm *gmmlib.GaussianMixture, title string) {

	lg.Printf("%s\n", title)

	lg.Printf("Mixing weights:\n")
	writeVector(lg, gmm.Weights)
	lg.Printf("\n")

	lg.Printf("Means:\n")
	for k := 0; k < gmm.NumComp(); k++ {
		writeVector(lg, gmm.Means.RawRowView(k))
	}
	lg.Printf("\n")

	switch cv := gmm.Covs.(type) {
	case *gmmlib.FullCovariances:
		for k := 0; k < cv.NumComp(); k++ {
			lg.Printf("Covariance of component %d:\n", k)
			cm := cv.Component(k)
			for i := 0; i < cv.Dim(); i++ {
				writeVector(lg, mat.Row(nil, i, cm))
			}
		}
	case *gmmlib.TiedCovariances:
		lg.Printf("Shared covariance:\n")
		cm := cv.Component()
		for i := 0; i < cv.Dim(); i++ {
			writeVector(lg, mat.Row(nil, i, cm))
		}
	case *gmmlib.DiagCovariances:
		lg.Printf("Variances:\n")
		for k := 0; k < cv.NumComp(); k++ {
			writeVector(lg, cv.Component(k))
		}
	case *gmmlib.SphericalCovariances:
		lg.Printf("Variances:\n")
		vars := make([]float64, cv.NumComp())
		for k := range vars {
			vars[k] = cv.Component(k)
		}
		writeVector(lg, vars)
	}
	lg.Printf("\n")
}

func writeVector(lg *log.Logger, v []float64) {

	var b []byte
	for _, u := range v {
		b = append(b, []byte(fmt.Sprintf("%12.4f ", u))...)
	}

	lg.Printf("%s", b)
}

// isFinite reports whether all weights and means of the mixture are
// finite.
func isFinite(gmm *gmmlib.GaussianMixture) bool {

	for _, w := range gmm.Weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return false
		}
	}

	for k := 0; k < gmm.NumComp(); k++ {
		for _, v := range gmm.Means.RawRowView(k) {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}

	return true
}

func main() {

	csvname := flag.String("csvfile", "", "The data file")
	ncomp := flag.Int("ncomp", 2, "Number of mixture components")
	covtype := flag.String("covtype", "full", "Covariance type: full, tied, diag, spherical")
	maxiter := flag.Int("maxiter", 100, "Maximum number of iterations")
	tol := flag.Float64("tol", 1e-3, "Convergence tolerance")
	regcovar := flag.Float64("regcovar", 1e-6, "Covariance regularization")
	logname := flag.String("logname", "gmm", "Prefix of log file")
	flag.Parse()

	if *csvname == "" {
		_, _ = io.WriteString(os.Stderr, "'csvfile' is a required argument")
		os.Exit(1)
	}

	fid, err := os.Create(*logname + "_msg.log")
	if err != nil {
		panic(err)
	}
	defer fid.Close()
	logger = log.New(fid, "", log.Ltime)

	pid, err := os.Create(*logname + "_par.log")
	if err != nil {
		panic(err)
	}
	defer pid.Close()
	parlogger := log.New(pid, "", 0)

	x, err := readCSV(*csvname)
	if err != nil {
		panic(err)
	}

	n, d := x.Dims()
	logger.Printf("%d observations\n", n)
	logger.Printf("%d variables\n", d)

	gmm := startParams(x, *ncomp, *covtype)
	writeSummary(parlogger, gmm, "Starting values:")

	fitter := gmmlib.NewEMFitter()
	fitter.MaxIter = *maxiter
	fitter.Tol = *tol
	fitter.RegCovar = *regcovar
	fitter.Progress = true
	fitter.SetLogger(logger)

	result := fitter.Fit(x, gmm)

	writeSummary(parlogger, result.GMM, "Estimated parameters:")

	logger.Printf("Stopped after %d iterations", result.NIter)
	logger.Printf("Final log-likelihood: %f", result.LogLikelihood)
	logger.Printf("Final improvement: %f", result.LogLikelihoodDiff)

	if !isFinite(result.GMM) {
		logger.Printf("Fit produced non-finite parameters, check for component collapse")
	}
}
