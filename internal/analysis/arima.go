package analysis

import (
	"math"

	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

// arimaModel is an ARIMA(p,d,q) fitted by conditional sum of squares.
type arimaModel struct {
	order ARIMAOrder
	phi   []float64
	theta []float64
	mean  float64
	sigma float64

	// z is the demeaned differenced series and resid its in-sample residuals
	z     []float64
	resid []float64
	// tails[k] is the last value of the series differenced k times, k < d
	tails []float64
}

// fitARIMA estimates the model. AR and MA coefficients are searched through partial
// autocorrelations so every candidate is stationary and invertible.
func fitARIMA(closes []float64, cfg ForecastConfig) (*arimaModel, error) {
	order := cfg.Order
	m := &arimaModel{order: order}

	y := closes
	m.tails = make([]float64, order.D)
	for k := 0; k < order.D; k++ {
		m.tails[k] = y[len(y)-1]
		y = difference(y)
	}

	if order.D == 0 || cfg.Drift {
		m.mean = stat.Mean(y, nil)
	}
	m.z = make([]float64, len(y))
	for i, v := range y {
		m.z[i] = v - m.mean
	}

	nParams := order.P + order.Q
	if nParams > 0 {
		objective := func(u []float64) float64 {
			phi, theta := m.unpack(u)
			sse, count := cssResiduals(m.z, phi, theta, nil)
			if count == 0 || !isFinite(sse) {
				return math.MaxFloat64
			}
			return sse / float64(count)
		}

		settings := &optimize.Settings{
			MajorIterations: cfg.MaxIterations,
			Converger: &optimize.FunctionConverge{
				Absolute:   1e-10,
				Relative:   1e-10,
				Iterations: 50,
			},
		}
		result, err := optimize.Minimize(optimize.Problem{Func: objective}, make([]float64, nParams), settings, &optimize.NelderMead{})
		if err != nil {
			return nil, nonConvergencef("%s: %v", order, err)
		}
		switch result.Status {
		case optimize.IterationLimit, optimize.FunctionEvaluationLimit, optimize.RuntimeLimit, optimize.Failure:
			return nil, nonConvergencef("%s: optimizer stopped with status %v", order, result.Status)
		}
		if !allFinite(result.X) {
			return nil, nonConvergencef("%s: non-finite parameters", order)
		}
		m.phi, m.theta = m.unpack(result.X)
	}

	m.resid = make([]float64, len(m.z))
	sse, count := cssResiduals(m.z, m.phi, m.theta, m.resid)
	if count == 0 {
		return nil, insufficientDataf("%s: no residuals after conditioning", order)
	}
	variance := sse / float64(count)
	if !isFinite(variance) {
		return nil, nonConvergencef("%s: residual variance is not finite", order)
	}
	m.sigma = math.Sqrt(variance)
	return m, nil
}

func (m *arimaModel) unpack(u []float64) (phi, theta []float64) {
	phi = constrainStationary(u[:m.order.P])
	invertible := constrainStationary(u[m.order.P:])
	theta = make([]float64, len(invertible))
	for i, v := range invertible {
		theta[i] = -v
	}
	return phi, theta
}

// cssResiduals runs the ARMA recursion on z with pre-sample residuals set to zero and returns
// the sum of squared residuals from index p onward. resid is filled when non-nil.
func cssResiduals(z, phi, theta, resid []float64) (float64, int) {
	p, q := len(phi), len(theta)
	if resid == nil {
		resid = make([]float64, len(z))
	}
	var sse float64
	count := 0
	for t := range z {
		if t < p {
			resid[t] = 0
			continue
		}
		e := z[t]
		for i := 0; i < p; i++ {
			e -= phi[i] * z[t-1-i]
		}
		for j := 0; j < q && t-1-j >= 0; j++ {
			e -= theta[j] * resid[t-1-j]
		}
		resid[t] = e
		sse += e * e
		count++
	}
	return sse, count
}

// constrainStationary maps unconstrained values to the coefficients of a stationary AR
// polynomial via partial autocorrelations in (-1, 1) and the Durbin-Levinson recursion.
func constrainStationary(u []float64) []float64 {
	n := len(u)
	coef := make([]float64, n)
	prev := make([]float64, n)
	for k := 0; k < n; k++ {
		r := math.Tanh(u[k])
		copy(prev, coef)
		for j := 0; j < k; j++ {
			coef[j] = prev[j] - r*prev[k-1-j]
		}
		coef[k] = r
	}
	return coef
}

func difference(xs []float64) []float64 {
	if len(xs) < 2 {
		return nil
	}
	out := make([]float64, len(xs)-1)
	for i := 1; i < len(xs); i++ {
		out[i-1] = xs[i] - xs[i-1]
	}
	return out
}

// psiWeights returns the first n MA(∞) weights of the integrated model.
func (m *arimaModel) psiWeights(n int) []float64 {
	// (1 - Σ phi_i B^i)(1 - B)^d = 1 - Σ a_i B^i
	poly := make([]float64, len(m.phi)+1)
	poly[0] = 1
	for i, v := range m.phi {
		poly[i+1] = -v
	}
	for k := 0; k < m.order.D; k++ {
		next := make([]float64, len(poly)+1)
		for i, v := range poly {
			next[i] += v
			next[i+1] -= v
		}
		poly = next
	}
	a := make([]float64, len(poly)-1)
	for i := range a {
		a[i] = -poly[i+1]
	}

	psi := make([]float64, n)
	if n == 0 {
		return psi
	}
	psi[0] = 1
	for j := 1; j < n; j++ {
		var v float64
		if j <= len(m.theta) {
			v = m.theta[j-1]
		}
		for i := 1; i <= len(a) && i <= j; i++ {
			v += a[i-1] * psi[j-i]
		}
		psi[j] = v
	}
	return psi
}

func (m *arimaModel) forecast(horizon int, z float64) (predicted, lower, upper []float64) {
	p, q := len(m.phi), len(m.theta)

	hist := append([]float64(nil), m.z...)
	resid := append([]float64(nil), m.resid...)
	tails := append([]float64(nil), m.tails...)

	psi := m.psiWeights(horizon)
	predicted = make([]float64, horizon)
	lower = make([]float64, horizon)
	upper = make([]float64, horizon)

	var cumPsi float64
	for h := 0; h < horizon; h++ {
		t := len(hist)
		next := 0.0
		for i := 0; i < p; i++ {
			if t-1-i >= 0 {
				next += m.phi[i] * hist[t-1-i]
			}
		}
		for j := 0; j < q; j++ {
			if t-1-j >= 0 {
				next += m.theta[j] * resid[t-1-j]
			}
		}
		hist = append(hist, next)
		resid = append(resid, 0)

		// undo differencing from the highest order down to the price level
		level := next + m.mean
		for k := len(tails) - 1; k >= 0; k-- {
			level += tails[k]
			tails[k] = level
		}

		cumPsi += psi[h] * psi[h]
		half := z * m.sigma * math.Sqrt(cumPsi)
		predicted[h] = level
		lower[h] = level - half
		upper[h] = level + half
	}
	return predicted, lower, upper
}
