package forecast

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"

	"econdash/internal/model"
)

var errTooShort = errors.New("too few observations after differencing")

// ARIMA is a fitted ARIMA(p,d,q) model. Parameters are estimated by maximising
// the conditional Gaussian likelihood (conditional sum of squares) of the
// differenced series, with AR and MA coefficients kept inside the
// stationary and invertible regions.
type ARIMA struct {
	Order         model.Order
	AR            []float64
	MA            []float64
	Mean          float64
	Sigma2        float64
	LogLikelihood float64

	levels    [][]float64
	scale     float64
	scaled    []float64
	residuals []float64
}

func Fit(values []float64, order model.Order) (*ARIMA, error) {
	if !order.Valid() {
		return nil, fmt.Errorf("invalid order %s", order)
	}
	// Bounds each component by the sample size before anything is allocated.
	size := len(values)
	if order.D >= size || order.P > size || order.Q > size {
		return nil, errTooShort
	}

	levels := make([][]float64, order.D+1)
	levels[0] = append([]float64(nil), values...)
	for k := 1; k <= order.D; k++ {
		levels[k] = difference(levels[k-1])
	}
	w := levels[order.D]
	if len(w) <= order.P+order.Q+1 {
		return nil, errTooShort
	}

	scale := stat.StdDev(w, nil)
	if scale == 0 || math.IsNaN(scale) {
		scale = math.Max(math.Abs(stat.Mean(w, nil)), 1)
	}
	z := make([]float64, len(w))
	floats.ScaleTo(z, 1/scale, w)

	m := &ARIMA{
		Order:  order,
		levels: levels,
		scale:  scale,
		scaled: z,
	}
	withMean := order.D == 0
	dims := order.P + order.Q
	if withMean {
		dims++
	}

	x := make([]float64, dims)
	if withMean {
		x[dims-1] = stat.Mean(z, nil)
	}

	if dims > 0 {
		problem := optimize.Problem{
			Func: func(params []float64) float64 {
				m.unpack(params, withMean)
				css := m.conditionalSumOfSquares()
				return concentratedNegLogLikelihood(css, len(z)-order.P)
			},
		}
		settings := &optimize.Settings{
			MajorIterations: 10000,
			Converger: &optimize.FunctionConverge{
				Absolute:   1e-10,
				Relative:   1e-10,
				Iterations: 200,
			},
		}
		result, err := optimize.Minimize(problem, x, settings, &optimize.NelderMead{})
		if err != nil {
			return nil, err
		}
		if math.IsNaN(result.F) || math.IsInf(result.F, 0) {
			return nil, fmt.Errorf("likelihood did not converge (status %v)", result.Status)
		}
		x = result.X
	}

	m.unpack(x, withMean)
	css := m.conditionalSumOfSquares()
	n := float64(len(z) - order.P)
	m.Sigma2 = css / n * scale * scale
	if math.IsNaN(m.Sigma2) || math.IsInf(m.Sigma2, 0) {
		return nil, errors.New("residual variance is not finite")
	}
	m.LogLikelihood = -0.5 * n * (math.Log(2*math.Pi*math.Max(m.Sigma2, 1e-300)) + 1)
	return m, nil
}

// Forecast returns point forecasts for the next steps values on the original scale.
func (m *ARIMA) Forecast(steps int) []float64 {
	p, q := m.Order.P, m.Order.Q
	mean := m.Mean / m.scale

	extended := append([]float64(nil), m.scaled...)
	errs := append([]float64(nil), m.residuals...)
	for h := 0; h < steps; h++ {
		t := len(extended)
		prediction := mean
		for i := 1; i <= p; i++ {
			if t-i >= 0 {
				prediction += m.AR[i-1] * (extended[t-i] - mean)
			}
		}
		for j := 1; j <= q; j++ {
			if t-j >= 0 {
				prediction += m.MA[j-1] * errs[t-j]
			}
		}
		extended = append(extended, prediction)
		errs = append(errs, 0)
	}

	forecast := make([]float64, steps)
	floats.ScaleTo(forecast, m.scale, extended[len(m.scaled):])

	for k := m.Order.D; k >= 1; k-- {
		level := m.levels[k-1]
		last := level[len(level)-1]
		for h := range forecast {
			last += forecast[h]
			forecast[h] = last
		}
	}
	return forecast
}

// AIC is the Akaike information criterion of the conditional likelihood.
func (m *ARIMA) AIC() float64 {
	k := float64(m.Order.P + m.Order.Q + 1)
	if m.Order.D == 0 {
		k++
	}
	return 2*k - 2*m.LogLikelihood
}

func (m *ARIMA) unpack(params []float64, withMean bool) {
	p, q := m.Order.P, m.Order.Q
	m.AR = constrainStationary(params[:p])
	ma := constrainStationary(params[p : p+q])
	for i := range ma {
		ma[i] = -ma[i]
	}
	m.MA = ma
	m.Mean = 0
	if withMean {
		m.Mean = params[p+q] * m.scale
	}
}

// conditionalSumOfSquares fills m.residuals and returns the sum of squared
// residuals from index p on, on the scaled series.
func (m *ARIMA) conditionalSumOfSquares() float64 {
	p, q := m.Order.P, m.Order.Q
	z := m.scaled
	mean := m.Mean / m.scale
	if len(m.residuals) != len(z) {
		m.residuals = make([]float64, len(z))
	}
	e := m.residuals

	css := 0.0
	for t := range z {
		if t < p {
			e[t] = 0
			continue
		}
		prediction := mean
		for i := 1; i <= p; i++ {
			prediction += m.AR[i-1] * (z[t-i] - mean)
		}
		for j := 1; j <= q; j++ {
			if t-j >= 0 {
				prediction += m.MA[j-1] * e[t-j]
			}
		}
		e[t] = z[t] - prediction
		css += e[t] * e[t]
	}
	return css
}

func concentratedNegLogLikelihood(css float64, n int) float64 {
	if math.IsNaN(css) || math.IsInf(css, 0) {
		return math.MaxFloat64
	}
	css = math.Max(css, 1e-300)
	return 0.5 * float64(n) * math.Log(css/float64(n))
}

// constrainStationary maps unconstrained reals to coefficients of a
// stationary polynomial via partial autocorrelations (Monahan 1984).
func constrainStationary(unconstrained []float64) []float64 {
	n := len(unconstrained)
	if n == 0 {
		return nil
	}
	r := make([]float64, n)
	for i, v := range unconstrained {
		r[i] = v / math.Sqrt(1+v*v)
	}
	y := make([][]float64, n)
	for k := 0; k < n; k++ {
		y[k] = make([]float64, n)
		for i := 0; i < k; i++ {
			y[k][i] = y[k-1][i] + r[k]*y[k-1][k-i-1]
		}
		y[k][k] = r[k]
	}
	constrained := make([]float64, n)
	for i := range constrained {
		constrained[i] = -y[n-1][i]
	}
	return constrained
}

func difference(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	out := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		out[i-1] = values[i] - values[i-1]
	}
	return out
}
