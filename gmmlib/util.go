package gmmlib

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

var log2Pi = math.Log(2 * math.Pi)

// logSumExp returns log(sum(exp(x))), shifting by the maximum so that
// the exponentials cannot overflow.  If every element is -Inf the
// result is -Inf.
func logSumExp(x []float64) float64 {

	mx := floats.Max(x)
	if math.IsInf(mx, -1) {
		return mx
	}

	var s float64
	for _, v := range x {
		s += math.Exp(v - mx)
	}

	return mx + math.Log(s)
}

func argmax(x []float64) int {

	j := 0
	v := x[0]
	for i := 1; i < len(x); i++ {
		if x[i] > v {
			v = x[i]
			j = i
		}
	}

	return j
}
