package engine

import (
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/omorifit/internal/catalog"
)

var scenarioShape = Shape{B: 1.0, Alpha: 1.0, P: 1.0, C: 0.01}

func scenarioOptions(useIntervals bool) Options {
	return Options{
		Range:        MagRange{Ref: 3.0, Sup: 9.5, Min: 2.0, Max: 9.5},
		UseIntervals: useIntervals,
		Likelihood:   true,
		LMR:          LMRTimeDepInf,
	}
}

// twoEventHistory is a primary at t=0 (M6) and a secondary at t=1 (M4),
// optionally with one filler interval [0.5, 1.0) of completeness 3.0.
func twoEventHistory(t *testing.T, withInterval bool) *catalog.History {
	t.Helper()
	h := &catalog.History{
		Events: []catalog.Event{
			{Time: 0, Mag: 6.0, Mc: 3.0},
			{Time: 1.0, Mag: 4.0, Mc: 3.0},
		},
		Primary: 0,
		MagCat:  3.0,
		Window:  catalog.Window{EventBegin: 1, EventEnd: 2},
	}
	if withInterval {
		h.Intervals = []catalog.Interval{{Begin: 0.5, End: 1.0, Mc: 3.0}}
		h.Window.IntervalEnd = 1
	}
	require.NoError(t, h.Prepare())
	return h
}

// randomHistory builds a valid history with n events and filler intervals
// between consecutive events.
func randomHistory(t testing.TB, n int, seed int64) *catalog.History {
	t.Helper()
	rnd := rand.New(rand.NewSource(seed))
	h := &catalog.History{Primary: 0, MagCat: 2.5}
	tm := 0.0
	for i := 0; i < n; i++ {
		mag := 2.5 - math.Log10(1-rnd.Float64())
		if i == 0 {
			mag = 6.5
		}
		h.Events = append(h.Events, catalog.Event{Time: tm, Mag: mag, Mc: 2.5 + rnd.Float64()})
		gap := 0.01 + rnd.ExpFloat64()*0.5
		h.Intervals = append(h.Intervals, catalog.Interval{Begin: tm, End: tm + gap, Mc: 2.5 + rnd.Float64()})
		tm += gap
	}
	h.Window = h.FullWindow()
	h.Window.EventBegin = 1
	require.NoError(t, h.Prepare())
	return h
}

type builtStages struct {
	mag   *MagExpStage
	omori *OmoriStage
	pair  *PairStage
	prod  *ProductivityStage
}

func buildAll(t *testing.T, f *Fitter, shape Shape, aint float64) builtStages {
	t.Helper()
	magH := f.AcquireMagExp()
	omH := f.AcquireOmori()
	pairH := f.AcquirePair()
	prodH := f.AcquireProductivity()
	t.Cleanup(func() {
		prodH.Release()
		pairH.Release()
		omH.Release()
		magH.Release()
	})
	s := builtStages{mag: magH.Get(), omori: omH.Get(), pair: pairH.Get(), prod: prodH.Get()}
	require.NoError(t, s.mag.Build(shape.B, shape.Alpha))
	require.NoError(t, s.omori.Build(shape.P, shape.C))
	require.NoError(t, s.pair.Build(s.mag, s.omori))
	require.NoError(t, s.prod.Build(s.pair, s.mag.TenQ(aint)))
	return s
}

func TestScenarioTwoEvents(t *testing.T) {
	f, err := NewFitter(twoEventHistory(t, false), scenarioOptions(true))
	require.NoError(t, err)
	s := buildAll(t, f, scenarioShape, -1)

	// alpha == b, so Q reduces to (Sup - Ref) / (Max - Min).
	q := (9.5 - 3.0) / (9.5 - 2.0)
	assert.InEpsilon(t, q, s.mag.Q(), 1e-12)

	a, ams := -0.7, 0.4
	sb := math.Pow(10, a) * q
	sp := math.Pow(10, ams) * q
	// Only the primary explains the secondary: 10^(alpha(6-3)) (1 + c)^-1 10^(b(3-3)).
	want := math.Log(sp * 1000 / 1.01)

	got, err := s.prod.LogLike(sb, sp)
	require.NoError(t, err)
	assert.InEpsilon(t, want, got, 1e-9)

	res, err := f.Evaluate(scenarioShape, -1, a, ams)
	require.NoError(t, err)
	assert.InEpsilon(t, want, res.LogLike, 1e-9)
	assert.Empty(t, res.IntervalProductivity)
}

func TestScenarioFillerIntervalIntegralOnly(t *testing.T) {
	base, err := NewFitter(twoEventHistory(t, false), scenarioOptions(false))
	require.NoError(t, err)
	withIv, err := NewFitter(twoEventHistory(t, true), scenarioOptions(false))
	require.NoError(t, err)
	s0 := buildAll(t, base, scenarioShape, -1)
	s1 := buildAll(t, withIv, scenarioShape, -1)

	q := s1.mag.Q()
	sb, sp := s1.mag.TenQ(-0.5), s1.mag.TenQ(0.3)
	ll0, err := s0.prod.LogLike(sb, sp)
	require.NoError(t, err)
	ll1, err := s1.prod.LogLike(sb, sp)
	require.NoError(t, err)

	// Density of the primary's kernel over [0.5, 1.0).
	density := math.Log(1.01/0.51) / 0.5
	integral := 0.5 * 1000 * density
	assert.InEpsilon(t, ll0-sp*integral, ll1, 1e-12)

	// Interval productivity: beta 10^((alpha-b)(Min-Ref)) W(0, 3-2) = ln10.
	bsq := math.Pow(10, -1.0) * q
	wantProd := sp * bsq * math.Ln10 * 1000 * density
	prod := s1.prod.IntervalProductivity(sb, sp, nil)
	require.Len(t, prod, 1)
	assert.InEpsilon(t, wantProd, prod[0], 1e-12)
}

func TestScenarioFillerIntervalAsSource(t *testing.T) {
	f, err := NewFitter(twoEventHistory(t, true), scenarioOptions(true))
	require.NoError(t, err)
	s := buildAll(t, f, scenarioShape, -1)

	c := 0.01
	density := math.Log((1+c)/(0.5+c)) / 0.5
	self := ((0.5+c)*math.Log((0.5+c)/c) - 0.5) / 0.5
	scale := math.Ln10
	bsq := math.Pow(10, -1.0) * s.mag.Q()
	pPrimary := scale * 1000 * density * bsq * (1 + self*scale*bsq)

	require.Len(t, s.prod.ProdPrimary(), 1)
	assert.InEpsilon(t, pPrimary, s.prod.ProdPrimary()[0], 1e-12)
	assert.Zero(t, s.prod.ProdNonPrimary()[0])

	// The secondary sees the primary directly and the interval [0.5, 1.0).
	fromInterval := math.Log((0.5 + c) / c)
	wantLike := 1000/1.01 + fromInterval*pPrimary
	assert.InEpsilon(t, wantLike, s.prod.LikePrimary()[1], 1e-12)

	_, totalP := s.prod.Totals()
	wantTotal := 0.5*1000*density + pPrimary*self*0.5
	assert.InEpsilon(t, wantTotal, totalP, 1e-12)

	sb, sp := s.mag.TenQ(-0.5), s.mag.TenQ(0.3)
	got, err := s.prod.LogLike(sb, sp)
	require.NoError(t, err)
	assert.InEpsilon(t, math.Log(sp*wantLike)-sp*wantTotal, got, 1e-12)
}

func TestLogLikeEqualScalesMatchesCombined(t *testing.T) {
	f, err := NewFitter(randomHistory(t, 60, 7), DefaultOptions())
	require.NoError(t, err)
	s := buildAll(t, f, Shape{B: 1.0, Alpha: 0.8, P: 1.1, C: 0.02}, -2)
	for _, x := range []float64{1e-4, 0.003, 0.1, 1, 12} {
		got, err := s.prod.LogLike(x, x)
		require.NoError(t, err)
		want, err := s.prod.LogLikeCombined(x)
		require.NoError(t, err)
		assert.InEpsilon(t, want, got, 1e-10, "x=%g", x)
	}
}

func TestKernelMatricesTriangular(t *testing.T) {
	h := randomHistory(t, 40, 3)
	f, err := NewFitter(h, DefaultOptions())
	require.NoError(t, err)
	s := buildAll(t, f, Shape{B: 1.0, Alpha: 1.0, P: 1.05, C: 0.01}, -2)

	ee := s.omori.EventEvent()
	for i := 0; i < ee.Rows(); i++ {
		assert.LessOrEqual(t, ee.RowLen(i), i, "event row %d", i)
	}
	ii := s.omori.IntervalInterval()
	for j := 0; j < ii.Rows(); j++ {
		assert.LessOrEqual(t, ii.RowLen(j), j, "interval row %d", j)
	}
	ei := s.omori.EventInterval()
	for i := 0; i < ei.Rows(); i++ {
		for src := 0; src < ei.RowLen(i); src++ {
			assert.LessOrEqual(t, h.Intervals[src].End, h.Events[i].Time)
		}
	}
	ie := s.omori.IntervalEvent()
	for j := 0; j < ie.Rows(); j++ {
		for src := 0; src < ie.RowLen(j); src++ {
			assert.LessOrEqual(t, h.Events[src].Time, h.Intervals[j].Begin)
		}
	}
}

func TestRebuildIsBitIdentical(t *testing.T) {
	f, err := NewFitter(randomHistory(t, 50, 11), DefaultOptions())
	require.NoError(t, err)
	shape := Shape{B: 0.9, Alpha: 1.1, P: 1.2, C: 0.005}
	first := buildAll(t, f, shape, -1.5)
	ll1, err := first.prod.LogLike(0.01, 0.2)
	require.NoError(t, err)
	prod1 := append([]float64(nil), first.prod.ProdNonPrimary()...)
	self1 := append([]float64(nil), first.omori.Self()...)

	// Rebuild the same objects after an unrelated build.
	require.NoError(t, first.omori.Build(0.8, 0.1))
	require.NoError(t, first.omori.Build(shape.P, shape.C))
	require.NoError(t, first.pair.Build(first.mag, first.omori))
	require.NoError(t, first.prod.Build(first.pair, first.mag.TenQ(-1.5)))
	ll2, err := first.prod.LogLike(0.01, 0.2)
	require.NoError(t, err)

	assert.Equal(t, math.Float64bits(ll1), math.Float64bits(ll2))
	assert.Equal(t, prod1, first.prod.ProdNonPrimary())
	assert.Equal(t, self1, first.omori.Self())

	second := buildAll(t, f, shape, -1.5)
	ll3, err := second.prod.LogLike(0.01, 0.2)
	require.NoError(t, err)
	assert.Equal(t, math.Float64bits(ll1), math.Float64bits(ll3))
}

func TestZeroMatricesWhenIntervalsDisabled(t *testing.T) {
	opts := DefaultOptions()
	opts.UseIntervals = false
	f, err := NewFitter(randomHistory(t, 20, 5), opts)
	require.NoError(t, err)
	s := buildAll(t, f, Shape{B: 1, Alpha: 1, P: 1.1, C: 0.01}, -1)

	assert.True(t, s.omori.EventInterval().IsZero())
	assert.True(t, s.omori.IntervalInterval().IsZero())
	assert.Zero(t, s.omori.IntervalInterval().Entries())
	assert.False(t, s.omori.IntervalEvent().IsZero())
	assert.Equal(t, f.History().IntervalCount(), s.omori.IntervalInterval().Rows())
	for _, v := range s.omori.Self() {
		assert.Zero(t, v)
	}
	// Without interval sources the likelihood comes from events only.
	assert.Equal(t, s.pair.LikeNonPrimary(), s.prod.LikeNonPrimary())
}

func TestLikelihoodDisabled(t *testing.T) {
	opts := DefaultOptions()
	opts.Likelihood = false
	f, err := NewFitter(randomHistory(t, 15, 9), opts)
	require.NoError(t, err)
	s := buildAll(t, f, Shape{B: 1, Alpha: 1, P: 1.1, C: 0.01}, -1)

	assert.True(t, s.omori.EventEvent().IsZero())
	assert.True(t, s.omori.EventInterval().IsZero())
	_, err = s.prod.LogLike(1, 1)
	assert.ErrorIs(t, err, ErrLikelihoodDisabled)
	prod := s.prod.IntervalProductivity(0.1, 0.1, nil)
	assert.Len(t, prod, f.History().IntervalCount())

	res, err := f.Evaluate(Shape{B: 1, Alpha: 1, P: 1.1, C: 0.01}, -1, -1, 0)
	require.NoError(t, err)
	assert.False(t, res.HasLogLike)
	assert.Len(t, res.IntervalProductivity, f.History().IntervalCount())

	on, err := NewFitter(randomHistory(t, 15, 9), DefaultOptions())
	require.NoError(t, err)
	res, err = on.Evaluate(Shape{B: 1, Alpha: 1, P: 1.1, C: 0.01}, -1, -1, 0)
	require.NoError(t, err)
	assert.True(t, res.HasLogLike)
}

func TestBuildRejectsInvalidParams(t *testing.T) {
	f, err := NewFitter(twoEventHistory(t, true), scenarioOptions(true))
	require.NoError(t, err)
	magH := f.AcquireMagExp()
	defer magH.Release()
	omH := f.AcquireOmori()
	defer omH.Release()
	pairH := f.AcquirePair()
	defer pairH.Release()

	assert.ErrorIs(t, magH.Get().Build(0, 1), ErrInvalidParams)
	assert.ErrorIs(t, magH.Get().Build(1, math.NaN()), ErrInvalidParams)
	assert.ErrorIs(t, omH.Get().Build(1.1, 0), ErrInvalidParams)
	assert.ErrorIs(t, pairH.Get().Build(magH.Get(), omH.Get()), ErrStageMismatch)

	other, err := NewFitter(twoEventHistory(t, true), scenarioOptions(true))
	require.NoError(t, err)
	otherMag := other.AcquireMagExp()
	defer otherMag.Release()
	require.NoError(t, otherMag.Get().Build(1, 1))
	require.NoError(t, omH.Get().Build(1.1, 0.01))
	assert.ErrorIs(t, pairH.Get().Build(otherMag.Get(), omH.Get()), ErrStageMismatch)
}

func TestPartialLikePolicies(t *testing.T) {
	h := twoEventHistory(t, true)
	h.MagCat = 2.5
	cases := []struct {
		lmr  LMROption
		max  float64
		want float64
	}{
		{LMRTimeDepInf, 9.5, 1},
		{LMRTimeDepMax, 9.5, 1 - math.Pow(10, -6.5)},
		{LMRCatInf, 9.5, math.Pow(10, 0.5)},
		{LMRCatMax, 9.5, math.Pow(10, 0.5) * (1 - math.Pow(10, -7))},
		// The upper bound stays half a magnitude above completeness.
		{LMRTimeDepMax, 3.2, 1 - math.Pow(10, -0.5)},
	}
	for _, tc := range cases {
		opts := scenarioOptions(true)
		opts.LMR = tc.lmr
		opts.Range.Max = tc.max
		f, err := NewFitter(h, opts)
		require.NoError(t, err)
		magH := f.AcquireMagExp()
		require.NoError(t, magH.Get().Build(1, 1))
		assert.InEpsilon(t, tc.want, magH.Get().EventLike()[1], 1e-12, "%s max=%g", tc.lmr, tc.max)
		assert.Zero(t, magH.Get().EventLike()[0], "event outside the window")
		assert.InEpsilon(t, 0.5*tc.want, magH.Get().IntervalLike()[0], 1e-12, "%s max=%g", tc.lmr, tc.max)
		magH.Release()
	}
}

func TestMagExpSplitsChannels(t *testing.T) {
	h := randomHistory(t, 10, 2)
	f, err := NewFitter(h, DefaultOptions())
	require.NoError(t, err)
	magH := f.AcquireMagExp()
	defer magH.Release()
	mag := magH.Get()
	require.NoError(t, mag.Build(1.0, 0.9))
	for i, ev := range h.Events {
		k := math.Pow(10, 0.9*(ev.Mag-3.0))
		if i == h.Primary {
			assert.Zero(t, mag.ProdNonPrimary()[i])
			assert.InEpsilon(t, k, mag.ProdPrimary()[i], 1e-12)
			continue
		}
		assert.InEpsilon(t, k, mag.ProdNonPrimary()[i], 1e-12)
		assert.Zero(t, mag.ProdPrimary()[i])
	}
}

func TestIntervalProdZeroBelowFloor(t *testing.T) {
	h := twoEventHistory(t, true)
	opts := scenarioOptions(true)
	opts.Range.Min = 3.0
	f, err := NewFitter(h, opts)
	require.NoError(t, err)
	magH := f.AcquireMagExp()
	defer magH.Release()
	require.NoError(t, magH.Get().Build(1, 1.2))
	assert.Zero(t, magH.Get().IntervalProd()[0])
}

func TestParseLMR(t *testing.T) {
	for _, name := range []string{"td-inf", "td-max", "cat-inf", "CAT-MAX"} {
		opt, err := ParseLMR(name)
		require.NoError(t, err)
		assert.Equal(t, strings.ToLower(name), opt.String())
	}
	_, err := ParseLMR("bogus")
	assert.ErrorIs(t, err, ErrInvalidOptions)
}

func TestOptionsValidate(t *testing.T) {
	opts := DefaultOptions()
	require.NoError(t, opts.Validate())
	opts.Range.Min, opts.Range.Max = opts.Range.Max, opts.Range.Min
	assert.ErrorIs(t, opts.Validate(), ErrInvalidOptions)
	_, err := NewFitter(twoEventHistory(t, false), opts)
	assert.ErrorIs(t, err, ErrInvalidOptions)
}
