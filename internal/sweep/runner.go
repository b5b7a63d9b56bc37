// Package sweep evaluates parameter grids and reports on the results.
package sweep

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/verte-zerg/omorifit/internal/engine"
	"github.com/verte-zerg/omorifit/internal/model"
)

// Options configures Run.
type Options struct {
	// Workers bounds the number of kernel cells evaluated at once.
	// Zero means GOMAXPROCS.
	Workers int
	// Progress is called after each finished (p, c) cell. Calls are serialized.
	Progress func(done, total int)
}

// EngineOptions converts a fit config into engine options.
func EngineOptions(cfg model.FitConfig) (engine.Options, error) {
	lmr, err := engine.ParseLMR(cfg.LMR)
	if err != nil {
		return engine.Options{}, err
	}
	opts := engine.Options{
		Range: engine.MagRange{
			Ref: cfg.Ref,
			Sup: cfg.Sup,
			Min: cfg.MagMin,
			Max: cfg.MagMax,
		},
		UseIntervals: cfg.UseIntervals,
		Likelihood:   cfg.Likelihood,
		LMR:          lmr,
	}
	if err := opts.Validate(); err != nil {
		return engine.Options{}, err
	}
	return opts, nil
}

// Run evaluates every grid point.
//
// Magnitude stages are built once up front and shared read-only. Each (p, c)
// cell runs on its own goroutine with its own kernel, pair and productivity
// stages, so the scale axes (a, ams) cost one LogLike each. Points are ordered
// by (p, c) cell, then b, alpha, aint, a, ams.
func Run(ctx context.Context, f *engine.Fitter, grid model.Grid, opts Options) (model.SweepResult, error) {
	if !f.Options().Likelihood {
		return model.SweepResult{}, engine.ErrLikelihoodDisabled
	}
	for i, r := range grid.Ranges() {
		if err := r.Validate(); err != nil {
			return model.SweepResult{}, fmt.Errorf("grid %s: %w", model.ParamNames[i], err)
		}
	}
	start := time.Now()

	var mags []*engine.Handle[engine.MagExpStage]
	defer func() {
		for _, h := range mags {
			h.Release()
		}
	}()
	for _, b := range grid.B.Values() {
		for _, alpha := range grid.Alpha.Values() {
			h := f.AcquireMagExp()
			mags = append(mags, h)
			if err := h.Get().Build(b, alpha); err != nil {
				return model.SweepResult{}, fmt.Errorf("failed to build magnitude stage: %w", err)
			}
		}
	}

	type cell struct{ p, c float64 }
	var cells []cell
	for _, p := range grid.P.Values() {
		for _, c := range grid.C.Values() {
			cells = append(cells, cell{p: p, c: c})
		}
	}
	scales := cellScales{
		aint: grid.Aint.Values(),
		a:    grid.A.Values(),
		ams:  grid.Ams.Values(),
	}
	perCell := len(mags) * len(scales.aint) * len(scales.a) * len(scales.ams)
	points := make([]model.SweepPoint, len(cells)*perCell)

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	var progressMu sync.Mutex
	done := 0
	for ci, cl := range cells {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out := points[ci*perCell : (ci+1)*perCell]
			if err := evalCell(f, mags, cl.p, cl.c, scales, out); err != nil {
				return err
			}
			if opts.Progress != nil {
				progressMu.Lock()
				done++
				opts.Progress(done, len(cells))
				progressMu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.SweepResult{}, err
	}

	res := model.SweepResult{Points: points, Elapsed: time.Since(start)}
	for _, pt := range points {
		if math.IsNaN(pt.LogLike) || math.IsInf(pt.LogLike, 0) {
			res.NonFinite++
			continue
		}
		if !res.HasBest || pt.LogLike > res.Best.LogLike {
			res.Best = pt
			res.HasBest = true
		}
	}
	return res, nil
}

type cellScales struct {
	aint []float64
	a    []float64
	ams  []float64
}

func evalCell(f *engine.Fitter, mags []*engine.Handle[engine.MagExpStage], p, c float64, scales cellScales, out []model.SweepPoint) error {
	omH := f.AcquireOmori()
	defer omH.Release()
	pairH := f.AcquirePair()
	defer pairH.Release()
	prodH := f.AcquireProductivity()
	defer prodH.Release()

	om := omH.Get()
	if err := om.Build(p, c); err != nil {
		return fmt.Errorf("failed to build kernel stage: %w", err)
	}
	pair := pairH.Get()
	prod := prodH.Get()
	k := 0
	for _, magH := range mags {
		mag := magH.Get()
		if err := pair.Build(mag, om); err != nil {
			return fmt.Errorf("failed to build pair stage: %w", err)
		}
		for _, aint := range scales.aint {
			if err := prod.Build(pair, mag.TenQ(aint)); err != nil {
				return fmt.Errorf("failed to build productivity stage: %w", err)
			}
			for _, a := range scales.a {
				sb := mag.TenQ(a)
				for _, ams := range scales.ams {
					ll, err := prod.LogLike(sb, mag.TenQ(ams))
					if err != nil {
						return err
					}
					out[k] = model.SweepPoint{
						B:       mag.B(),
						Alpha:   mag.Alpha(),
						P:       p,
						C:       c,
						Aint:    aint,
						A:       a,
						Ams:     ams,
						LogLike: ll,
					}
					k++
				}
			}
		}
	}
	return nil
}
