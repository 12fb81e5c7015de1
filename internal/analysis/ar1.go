package analysis

import (
	"math"
)

const ar1MinObservations = 10

// ar1Model is an AR(1) on log returns: r_t = c + phi*r_{t-1} + e_t.
type ar1Model struct {
	phi     float64
	c       float64
	sigma   float64
	lastLog float64
	lastRet float64
}

// fitAR1Model estimates the log-return AR(1) by ordinary least squares.
func fitAR1Model(closes []float64) (*ar1Model, error) {
	for i, v := range closes {
		if v <= 0 {
			return nil, NewValidationErrorf("closes", "AR(1) needs positive prices, got %g at index %d", v, i)
		}
	}
	rets := logReturns(closes)
	if len(rets) < 3 {
		return nil, insufficientDataf("AR(1) needs at least 3 log returns, got %d", len(rets))
	}

	phi, c := fitAR1(rets)
	if !isFinite(phi) || !isFinite(c) || math.Abs(phi) >= 1 {
		return nil, nonConvergencef("AR(1) coefficient %g is not stationary", phi)
	}

	var sse float64
	for i := 1; i < len(rets); i++ {
		e := rets[i] - c - phi*rets[i-1]
		sse += e * e
	}
	dof := len(rets) - 3
	if dof < 1 {
		dof = 1
	}

	return &ar1Model{
		phi:     phi,
		c:       c,
		sigma:   math.Sqrt(sse / float64(dof)),
		lastLog: math.Log(closes[len(closes)-1]),
		lastRet: rets[len(rets)-1],
	}, nil
}

// fitAR1 is the least-squares fit of y_t = c + phi*y_{t-1}.
func fitAR1(series []float64) (phi, c float64) {
	if len(series) < 2 {
		return 0, 0
	}

	var sumX, sumY, sumXX, sumXY float64
	for i := 1; i < len(series); i++ {
		x := series[i-1]
		y := series[i]
		sumX += x
		sumY += y
		sumXX += x * x
		sumXY += x * y
	}

	n := float64(len(series) - 1)
	denom := n*sumXX - sumX*sumX
	if math.Abs(denom) < 1e-18 {
		return 0, sumY / n
	}
	phi = (n*sumXY - sumX*sumY) / denom
	c = (sumY - phi*sumX) / n
	return phi, c
}

func logReturns(series []float64) []float64 {
	if len(series) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(series)-1)
	for i := 1; i < len(series); i++ {
		if series[i-1] <= 0 || series[i] <= 0 {
			continue
		}
		returns = append(returns, math.Log(series[i]/series[i-1]))
	}
	return returns
}

// forecast works in log-price space and maps back with exp, so bounds stay positive.
func (m *ar1Model) forecast(horizon int, z float64) (predicted, lower, upper []float64) {
	predicted = make([]float64, horizon)
	lower = make([]float64, horizon)
	upper = make([]float64, horizon)

	level := m.lastLog
	ret := m.lastRet
	// psi is the cumulative impulse response of the log price
	var psi, power, variance float64
	power = 1
	for h := 0; h < horizon; h++ {
		ret = m.c + m.phi*ret
		level += ret

		psi += power
		power *= m.phi
		variance += psi * psi
		half := z * m.sigma * math.Sqrt(variance)

		predicted[h] = math.Exp(level)
		lower[h] = math.Exp(level - half)
		upper[h] = math.Exp(level + half)
	}
	return predicted, lower, upper
}
