package engine

import "fmt"

// PairStage combines one MagExpStage and one OmoriStage into the contributions
// of event sources, with no scale parameter applied. Both channels (non-primary
// and primary) are kept separate.
//
// The input stages are referenced, not copied: they must stay acquired while the
// pair stage, or any ProductivityStage built from it, is in use.
type PairStage struct {
	fitter *Fitter
	built  bool

	mag   *MagExpStage
	omori *OmoriStage

	// Per target event, likelihood from event sources.
	likeNonPrimary []float64
	likePrimary    []float64
	// Per interval, productivity from event sources.
	prodNonPrimary []float64
	prodPrimary    []float64
	// Integral term from event sources over all target intervals.
	totalNonPrimary float64
	totalPrimary    float64
}

func newPairStage(f *Fitter) *PairStage {
	return &PairStage{fitter: f}
}

// Build combines mag and omori.
func (s *PairStage) Build(mag *MagExpStage, omori *OmoriStage) error {
	s.built = false
	if mag == nil || omori == nil || !mag.built || !omori.built {
		return fmt.Errorf("pair inputs not built: %w", ErrStageMismatch)
	}
	if mag.fitter != s.fitter || omori.fitter != s.fitter {
		return fmt.Errorf("pair inputs belong to another fitter: %w", ErrStageMismatch)
	}
	s.mag = mag
	s.omori = omori
	nEv := s.fitter.hist.EventCount()
	nIv := s.fitter.hist.IntervalCount()

	s.likeNonPrimary = growFloats(s.likeNonPrimary, nEv)
	s.likePrimary = growFloats(s.likePrimary, nEv)
	omori.evEv.Apply2(mag.prodNonPrimary, mag.prodPrimary, mag.eventLike, s.likeNonPrimary, s.likePrimary)

	s.prodNonPrimary = growFloats(s.prodNonPrimary, nIv)
	s.prodPrimary = growFloats(s.prodPrimary, nIv)
	s.totalNonPrimary, s.totalPrimary = omori.ivEv.Apply2Dot(
		mag.prodNonPrimary, mag.prodPrimary, mag.intervalProd,
		s.prodNonPrimary, s.prodPrimary, mag.intervalLike,
	)

	s.built = true
	return nil
}

// Mag returns the magnitude stage this pair was built from.
func (s *PairStage) Mag() *MagExpStage { return s.mag }

// Omori returns the kernel stage this pair was built from.
func (s *PairStage) Omori() *OmoriStage { return s.omori }

// LikeNonPrimary returns per-event likelihood from non-primary event sources.
func (s *PairStage) LikeNonPrimary() []float64 { return s.likeNonPrimary }

// LikePrimary returns per-event likelihood from the primary event.
func (s *PairStage) LikePrimary() []float64 { return s.likePrimary }

// ProdNonPrimary returns per-interval productivity from non-primary event sources.
func (s *PairStage) ProdNonPrimary() []float64 { return s.prodNonPrimary }

// ProdPrimary returns per-interval productivity from the primary event.
func (s *PairStage) ProdPrimary() []float64 { return s.prodPrimary }

// Totals returns the integral term from event sources, per channel.
func (s *PairStage) Totals() (nonPrimary, primary float64) {
	return s.totalNonPrimary, s.totalPrimary
}
