package engine

import (
	"fmt"

	"github.com/verte-zerg/omorifit/internal/catalog"
)

// Shape is one combination of the four shape parameters.
type Shape struct {
	B     float64
	Alpha float64
	P     float64
	C     float64
}

// Fitter binds a prepared history to fitting options and owns the stage pools.
// It is safe for concurrent use; each goroutine acquires its own stages.
type Fitter struct {
	hist *catalog.History
	opts Options

	magPool   *Pool[MagExpStage]
	omoriPool *Pool[OmoriStage]
	pairPool  *Pool[PairStage]
	prodPool  *Pool[ProductivityStage]
}

// NewFitter validates h and opts. h must not be modified afterwards.
func NewFitter(h *catalog.History, opts Options) (*Fitter, error) {
	if h == nil {
		return nil, fmt.Errorf("history is nil: %w", catalog.ErrInvalidHistory)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if !h.Prepared() {
		if err := h.Prepare(); err != nil {
			return nil, err
		}
	}
	f := &Fitter{hist: h, opts: opts}
	f.magPool = NewPool(func() *MagExpStage { return newMagExpStage(f) })
	f.omoriPool = NewPool(func() *OmoriStage { return newOmoriStage(f) })
	f.pairPool = NewPool(func() *PairStage { return newPairStage(f) })
	f.prodPool = NewPool(func() *ProductivityStage { return newProductivityStage(f) })
	return f, nil
}

// History returns the fitted history.
func (f *Fitter) History() *catalog.History { return f.hist }

// Options returns the fitter options.
func (f *Fitter) Options() Options { return f.opts }

// AcquireMagExp returns a magnitude stage handle. Release it when done.
func (f *Fitter) AcquireMagExp() *Handle[MagExpStage] { return f.magPool.Acquire() }

// AcquireOmori returns a kernel stage handle. Release it when done.
func (f *Fitter) AcquireOmori() *Handle[OmoriStage] { return f.omoriPool.Acquire() }

// AcquirePair returns a pair stage handle. Release it when done.
func (f *Fitter) AcquirePair() *Handle[PairStage] { return f.pairPool.Acquire() }

// AcquireProductivity returns a productivity stage handle. Release it when done.
func (f *Fitter) AcquireProductivity() *Handle[ProductivityStage] { return f.prodPool.Acquire() }

// Result is the outcome of a single evaluation.
type Result struct {
	// LogLike is set only when HasLogLike is true.
	LogLike    float64
	HasLogLike bool
	Q          float64
	// IntervalProductivity is the per-interval productivity density at the
	// evaluated scales.
	IntervalProductivity []float64
}

// Evaluate builds every stage for one parameter point and returns the
// log-likelihood with log-productivities aint (intervals), a (non-primary
// events) and ams (primary event).
func (f *Fitter) Evaluate(shape Shape, aint, a, ams float64) (Result, error) {
	magH := f.AcquireMagExp()
	defer magH.Release()
	omH := f.AcquireOmori()
	defer omH.Release()
	pairH := f.AcquirePair()
	defer pairH.Release()
	prodH := f.AcquireProductivity()
	defer prodH.Release()

	mag := magH.Get()
	if err := mag.Build(shape.B, shape.Alpha); err != nil {
		return Result{}, err
	}
	om := omH.Get()
	if err := om.Build(shape.P, shape.C); err != nil {
		return Result{}, err
	}
	pair := pairH.Get()
	if err := pair.Build(mag, om); err != nil {
		return Result{}, err
	}
	prod := prodH.Get()
	if err := prod.Build(pair, mag.TenQ(aint)); err != nil {
		return Result{}, err
	}

	sb := mag.TenQ(a)
	sp := mag.TenQ(ams)
	res := Result{
		Q:                    mag.Q(),
		IntervalProductivity: prod.IntervalProductivity(sb, sp, nil),
	}
	if f.opts.Likelihood {
		ll, err := prod.LogLike(sb, sp)
		if err != nil {
			return Result{}, err
		}
		res.LogLike = ll
		res.HasLogLike = true
	}
	return res, nil
}
