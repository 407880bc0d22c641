package estimator

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Degree of the polynomial fitted for each delay curve.
const DefaultDegree = 4

// A polynomial mapping a trip's departure time (seconds since
// midnight) to the delay (seconds) expected at one stop.
//
// The polynomial is kept in terms of u = (x - Shift) / Scale, which
// maps the fitted x range onto [-1, 1]. Raw departure times raised to
// the fourth power are too large for a well conditioned fit.
type DelayCurve struct {
	Degree int

	// Lowest order first.
	Coefficients []float64
	Shift        float64
	Scale        float64

	// Fit diagnostics.
	Samples int
	Rank    int
	MinX    float64
	MaxX    float64
	RMSE    float64
}

// Creates a curve from coefficients in x, lowest order first.
func Polynomial(coefficients ...float64) *DelayCurve {
	c := make([]float64, len(coefficients))
	copy(c, coefficients)
	degree := len(c) - 1
	if degree < 0 {
		degree = 0
	}
	return &DelayCurve{
		Degree:       degree,
		Coefficients: c,
		Scale:        1,
		Rank:         degree + 1,
		Samples:      degree + 1,
	}
}

// Fits a least squares polynomial of the given degree through (xs,
// ys).
//
// With fewer distinct x values than coefficients the problem has no
// unique solution, and the minimum norm solution is returned. Such
// curves report UnderDetermined().
func FitPolynomial(xs []float64, ys []float64, degree int) (*DelayCurve, error) {
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("%d x values but %d y values: %w", len(xs), len(ys), ErrInvalidArgument)
	}
	if len(xs) == 0 {
		return nil, fmt.Errorf("no samples: %w", ErrInvalidArgument)
	}
	if degree < 0 {
		return nil, fmt.Errorf("negative degree %d: %w", degree, ErrInvalidArgument)
	}

	minX, maxX := xs[0], xs[0]
	for _, x := range xs[1:] {
		minX = math.Min(minX, x)
		maxX = math.Max(maxX, x)
	}
	shift := (minX + maxX) / 2
	scale := (maxX - minX) / 2
	if scale == 0 {
		scale = 1
	}

	n := len(xs)
	a := mat.NewDense(n, degree+1, nil)
	for i, x := range xs {
		u := (x - shift) / scale
		p := 1.0
		for j := 0; j <= degree; j++ {
			a.Set(i, j, p)
			p *= u
		}
	}

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return nil, fmt.Errorf("factorizing %dx%d vandermonde matrix failed", n, degree+1)
	}

	// Same cutoff as numpy's polyfit.
	rank := svd.Rank(float64(n) * 2.220446049250313e-16)

	b := mat.NewVecDense(n, append([]float64(nil), ys...))
	var sol mat.VecDense
	svd.SolveVecTo(&sol, b, rank)

	curve := &DelayCurve{
		Degree:       degree,
		Coefficients: make([]float64, degree+1),
		Shift:        shift,
		Scale:        scale,
		Samples:      n,
		Rank:         rank,
		MinX:         minX,
		MaxX:         maxX,
	}
	for j := 0; j <= degree; j++ {
		curve.Coefficients[j] = sol.AtVec(j)
	}

	var sumSquaredError float64
	for i, x := range xs {
		e := ys[i] - curve.Evaluate(x)
		sumSquaredError += e * e
	}
	curve.RMSE = math.Sqrt(sumSquaredError / float64(n))

	return curve, nil
}

// Predicted delay, in seconds, for a trip departing x seconds after
// midnight. Values outside [MinX, MaxX] are extrapolated.
func (c *DelayCurve) Evaluate(x float64) float64 {
	scale := c.Scale
	if scale == 0 {
		scale = 1
	}
	u := (x - c.Shift) / scale

	y := 0.0
	for j := len(c.Coefficients) - 1; j >= 0; j-- {
		y = y*u + c.Coefficients[j]
	}
	return y
}

// True if the curve was fitted from fewer distinct departure times
// than it has coefficients.
func (c *DelayCurve) UnderDetermined() bool {
	return c.Rank < c.Degree+1
}
