package main

import (
	"bufio"
	"encoding/csv"
	"flag"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/kshedden/gmm/gmmlib"
	"gonum.org/v1/gonum/mat"
)

func main() {

	var outname string
	flag.StringVar(&outname, "outname", "", "Output file name")

	var ncomp, dim, nobs int
	flag.IntVar(&ncomp, "ncomp", 2, "Number of mixture components")
	flag.IntVar(&dim, "dim", 2, "Dimension of the feature space")
	flag.IntVar(&nobs, "nobs", 1000, "Number of observations to draw")

	var sep, sd float64
	flag.Float64Var(&sep, "sep", 10, "Distance between adjacent component means")
	flag.Float64Var(&sd, "sd", 1, "Within-component standard deviation")

	var seed int64
	flag.Int64Var(&seed, "seed", 0, "Random seed, 0 seeds from the clock")
	flag.Parse()

	if outname == "" {
		panic("'outname' is required")
	}

	if seed == 0 {
		seed = time.Now().UTC().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	// Uniform mixing weights
	weights := make([]float64, ncomp)
	for k := range weights {
		weights[k] = 1 / float64(ncomp)
	}

	// Place the component means along the diagonal of the feature
	// space, sep apart.
	means := mat.NewDense(ncomp, dim, nil)
	for k := 0; k < ncomp; k++ {
		for j := 0; j < dim; j++ {
			means.Set(k, j, sep*float64(k))
		}
	}

	// Isotropic within-component variation
	vars := make([]float64, ncomp)
	for k := range vars {
		vars[k] = sd * sd
	}

	gmm, err := gmmlib.NewGaussianMixture(weights, means, gmmlib.NewSphericalCovariances(vars, dim))
	if err != nil {
		panic(err)
	}

	x := gmm.Sample(nobs, rng)

	fid, err := os.Create(outname)
	if err != nil {
		panic(err)
	}
	defer fid.Close()

	w := bufio.NewWriter(fid)
	defer w.Flush()

	cw := csv.NewWriter(w)
	defer cw.Flush()

	rec := make([]string, dim)
	for i := 0; i < nobs; i++ {
		row := x.RawRowView(i)
		for j := 0; j < dim; j++ {
			rec[j] = strconv.FormatFloat(row[j], 'f', -1, 64)
		}
		if err := cw.Write(rec); err != nil {
			panic(err)
		}
	}
}
