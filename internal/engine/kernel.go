package engine

import "math"

// Below this |x*y| the series limit of expRatio is used.
const expRatioSeriesLimit = 1e-15

// Below this |q| the second primitive uses its series in q.
const secondPrimitiveSeriesLimit = 1e-5

// When either segment is shorter than this fraction of the gap between them,
// the double integral uses quadrature over the short segment instead of the
// four-term primitive difference.
const quadratureGapRatio = 0.25

// expRatio returns W(x, y) = (e^(x*y) - 1) / x, with W(0, y) = y exactly.
func expRatio(x, y float64) float64 {
	xy := x * y
	if math.Abs(xy) < expRatioSeriesLimit {
		return y * (1 + 0.5*xy)
	}
	return math.Expm1(xy) / x
}

// omoriKernel is (dt + c)^(-p) together with its time integrals. q = 1 - p.
type omoriKernel struct {
	p float64
	c float64
	q float64
	// c^q and c^(q+1)
	cq  float64
	cq1 float64
}

func newOmoriKernel(p, c float64) omoriKernel {
	q := 1 - p
	return omoriKernel{
		p:   p,
		c:   c,
		q:   q,
		cq:  math.Pow(c, q),
		cq1: math.Pow(c, q+1),
	}
}

// value returns (dt + c)^(-p).
func (k *omoriKernel) value(dt float64) float64 {
	return math.Pow(dt+k.c, -k.p)
}

// span returns the integral of u^(-p) for u in [a, b], 0 < a <= b.
func (k *omoriKernel) span(a, b float64) float64 {
	return math.Pow(a, k.q) * expRatio(k.q, math.Log(b/a))
}

// single returns the integral of the kernel over a source segment [s0, s1]
// seen from time t >= s1.
func (k *omoriKernel) single(t, s0, s1 float64) float64 {
	return k.span(t-s1+k.c, t-s0+k.c)
}

// primitive2 returns the integral over u in [c, x] of the integral over v in [c, u] of v^(-p).
func (k *omoriKernel) primitive2(x float64) float64 {
	if x <= k.c {
		return 0
	}
	return k.cq1 * secondPrimitive(k.q, math.Log(x/k.c))
}

// double returns the integral over t in [t0, t1] and tau in [s0, s1] of the
// kernel at t - tau, for a source segment ending no later than t0.
func (k *omoriKernel) double(t0, t1, s0, s1 float64) float64 {
	gap := t0 - s1 + k.c
	if t1-t0 <= quadratureGapRatio*gap {
		half := 0.5 * (t1 - t0)
		mid := 0.5 * (t1 + t0)
		sum := 0.0
		for i, x := range gaussNodes {
			sum += gaussWeights[i] * (k.single(mid-half*x, s0, s1) + k.single(mid+half*x, s0, s1))
		}
		return half * sum
	}
	if s1-s0 <= quadratureGapRatio*gap {
		half := 0.5 * (s1 - s0)
		mid := 0.5 * (s1 + s0)
		sum := 0.0
		for i, x := range gaussNodes {
			sum += gaussWeights[i] * (k.targetSpan(t0, t1, mid-half*x) + k.targetSpan(t0, t1, mid+half*x))
		}
		return half * sum
	}
	return k.primitive2(t1-s0+k.c) - k.primitive2(t0-s0+k.c) -
		k.primitive2(t1-s1+k.c) + k.primitive2(t0-s1+k.c)
}

// targetSpan returns the integral of the kernel over targets t in [t0, t1]
// from a point source at tau <= t0.
func (k *omoriKernel) targetSpan(t0, t1, tau float64) float64 {
	return k.span(t0-tau+k.c, t1-tau+k.c)
}

// self returns the integral of the kernel over the triangle tau <= t inside a
// segment of length d. It equals the integral over [0, d] of (d - x)(x + c)^(-p).
func (k *omoriKernel) self(d float64) float64 {
	return k.primitive2(d + k.c)
}

// secondPrimitive returns Y(q, L), the integral over s in [0, L] of e^s W(q, s).
// Away from q = 0 it is the divided difference (W(q+1, L) - W(1, L)) / q.
func secondPrimitive(q, l float64) float64 {
	if math.Abs(q) >= secondPrimitiveSeriesLimit {
		return (expRatio(q+1, l) - expRatio(1, l)) / q
	}
	// W(q, s) = s + q s^2/2 + q^2 s^3/6 + ...
	return expMoment(1, l) + q*expMoment(2, l)/2 + q*q*expMoment(3, l)/6
}

// expMoment returns the integral over s in [0, l] of s^n e^s, for n in 1..3.
func expMoment(n int, l float64) float64 {
	if math.Abs(l) < 1 {
		// sum over m of l^(n+m+1) / (m! (n+m+1))
		term := math.Pow(l, float64(n+1))
		sum := 0.0
		for m := 0; m < 40; m++ {
			add := term / float64(n+m+1)
			sum += add
			if math.Abs(add) <= 1e-17*math.Abs(sum) {
				break
			}
			term *= l / float64(m+1)
		}
		return sum
	}
	e := math.Exp(l)
	switch n {
	case 1:
		return e*(l-1) + 1
	case 2:
		return e*(l*l-2*l+2) - 2
	default:
		return e*(l*l*l-3*l*l+6*l-6) + 6
	}
}

// 8-point Gauss-Legendre rule on [-1, 1], positive half.
var (
	gaussNodes = [4]float64{
		0.1834346424956498,
		0.5255324099163290,
		0.7966664774136267,
		0.9602898564975363,
	}
	gaussWeights = [4]float64{
		0.3626837833783620,
		0.3137066458778873,
		0.2223810344533745,
		0.1012285362903763,
	}
)
