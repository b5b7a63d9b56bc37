package engine

import (
	"fmt"
	"math"
)

// ProductivityStage folds interval sources into a PairStage for one interval
// productivity scale. After Build, LogLike evaluates any pair of event scales
// in time linear in the number of target events.
type ProductivityStage struct {
	fitter *Fitter
	built  bool

	pair *PairStage
	bsq  float64

	// Per interval, unscaled productivity density by channel.
	prodNonPrimary []float64
	prodPrimary    []float64
	// Per target event, likelihood from all sources by channel.
	likeNonPrimary []float64
	likePrimary    []float64
	// Integral term from all sources by channel.
	totalNonPrimary float64
	totalPrimary    float64
}

func newProductivityStage(f *Fitter) *ProductivityStage {
	return &ProductivityStage{fitter: f}
}

// Build runs the interval recurrence with bsq = 10^aint * Q.
//
// Row j depends on the finished values of every earlier row, so the loop is
// strictly sequential. For each channel:
//
//	C_j = sum_{k<j} IvIv[j][k] P_k
//	P_j = (C_j f_j + E_j) bsq (1 + self_j f_j bsq)
//	T  += (P_j self_j + C_j) w_j
//
// where f is the interval productivity scale, E the event-source productivity
// from the pair stage and w the integral weight.
func (s *ProductivityStage) Build(pair *PairStage, bsq float64) error {
	s.built = false
	if pair == nil || !pair.built {
		return fmt.Errorf("productivity input not built: %w", ErrStageMismatch)
	}
	if pair.fitter != s.fitter {
		return fmt.Errorf("productivity input belongs to another fitter: %w", ErrStageMismatch)
	}
	if !(bsq >= 0) || math.IsInf(bsq, 0) {
		return fmt.Errorf("interval scale %g: %w", bsq, ErrInvalidParams)
	}
	s.pair = pair
	s.bsq = bsq
	mag := pair.mag
	om := pair.omori
	nEv := s.fitter.hist.EventCount()
	nIv := s.fitter.hist.IntervalCount()

	s.prodNonPrimary = growFloats(s.prodNonPrimary, nIv)
	s.prodPrimary = growFloats(s.prodPrimary, nIv)
	var totalN, totalP float64
	for j := 0; j < nIv; j++ {
		cN, cP := om.ivIv.RowDot2(j, s.prodNonPrimary, s.prodPrimary)
		f := mag.intervalProd[j]
		self := om.self[j]
		gain := bsq * (1 + self*f*bsq)
		pN := (cN*f + pair.prodNonPrimary[j]) * gain
		pP := (cP*f + pair.prodPrimary[j]) * gain
		s.prodNonPrimary[j] = pN
		s.prodPrimary[j] = pP
		wj := mag.intervalLike[j]
		totalN += (pN*self + cN) * wj
		totalP += (pP*self + cP) * wj
	}
	s.totalNonPrimary = pair.totalNonPrimary + totalN
	s.totalPrimary = pair.totalPrimary + totalP

	s.likeNonPrimary = growFloats(s.likeNonPrimary, nEv)
	s.likePrimary = growFloats(s.likePrimary, nEv)
	om.evIv.Apply2(s.prodNonPrimary, s.prodPrimary, mag.eventLike, s.likeNonPrimary, s.likePrimary)
	for i := 0; i < nEv; i++ {
		s.likeNonPrimary[i] += pair.likeNonPrimary[i]
		s.likePrimary[i] += pair.likePrimary[i]
	}

	s.built = true
	return nil
}

// LogLike returns the log-likelihood for event scales sb (non-primary) and sp
// (primary), each already multiplied by Q:
//
//	sum over target events of ln(sb L_N + sp L_P) - (sb T_N + sp T_P)
func (s *ProductivityStage) LogLike(sb, sp float64) (float64, error) {
	if !s.fitter.opts.Likelihood {
		return 0, ErrLikelihoodDisabled
	}
	if !s.built {
		return 0, fmt.Errorf("productivity stage not built: %w", ErrStageMismatch)
	}
	w := s.fitter.hist.Window
	sum := 0.0
	for i := w.EventBegin; i < w.EventEnd; i++ {
		sum += math.Log(sb*s.likeNonPrimary[i] + sp*s.likePrimary[i])
	}
	return sum - (sb*s.totalNonPrimary + sp*s.totalPrimary), nil
}

// LogLikeCombined evaluates the single-scale form with one scale x applied to
// every source. It agrees with LogLike(x, x).
func (s *ProductivityStage) LogLikeCombined(x float64) (float64, error) {
	if !s.fitter.opts.Likelihood {
		return 0, ErrLikelihoodDisabled
	}
	if !s.built {
		return 0, fmt.Errorf("productivity stage not built: %w", ErrStageMismatch)
	}
	w := s.fitter.hist.Window
	n := w.EventEnd - w.EventBegin
	sum := 0.0
	for i := w.EventBegin; i < w.EventEnd; i++ {
		sum += math.Log(s.likeNonPrimary[i] + s.likePrimary[i])
	}
	return sum + float64(n)*math.Log(x) - x*(s.totalNonPrimary+s.totalPrimary), nil
}

// IntervalProductivity writes sb*P_N[j] + sp*P_P[j] for every interval into dst,
// growing it when needed, and returns it.
func (s *ProductivityStage) IntervalProductivity(sb, sp float64, dst []float64) []float64 {
	dst = growFloats(dst, len(s.prodNonPrimary))
	for j := range s.prodNonPrimary {
		dst[j] = sb*s.prodNonPrimary[j] + sp*s.prodPrimary[j]
	}
	return dst
}

// Bsq returns the interval productivity scale the stage was built with.
func (s *ProductivityStage) Bsq() float64 { return s.bsq }

// ProdNonPrimary returns per-interval unscaled productivity of the non-primary channel.
func (s *ProductivityStage) ProdNonPrimary() []float64 { return s.prodNonPrimary }

// ProdPrimary returns per-interval unscaled productivity of the primary channel.
func (s *ProductivityStage) ProdPrimary() []float64 { return s.prodPrimary }

// LikeNonPrimary returns per-event likelihood from all non-primary sources.
func (s *ProductivityStage) LikeNonPrimary() []float64 { return s.likeNonPrimary }

// LikePrimary returns per-event likelihood from the primary channel.
func (s *ProductivityStage) LikePrimary() []float64 { return s.likePrimary }

// Totals returns the integral term from all sources, per channel.
func (s *ProductivityStage) Totals() (nonPrimary, primary float64) {
	return s.totalNonPrimary, s.totalPrimary
}
