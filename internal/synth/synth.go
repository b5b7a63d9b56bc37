// Package synth builds random event histories for benchmarks and tests.
package synth

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/verte-zerg/omorifit/internal/catalog"
)

// Config controls the shape of a generated history.
type Config struct {
	// Events is the total event count, primary included.
	Events int
	// Duration is the time span after the primary.
	Duration float64
	// B is the Gutenberg-Richter slope of the secondary magnitudes.
	B float64
	// MagCat is the long-run completeness magnitude.
	MagCat float64
	// MainMag is the primary magnitude.
	MainMag float64
	// McBoost raises completeness right after the primary; it decays with time
	// constant McDecay.
	McBoost float64
	McDecay float64
	// Clustering > 1 packs events toward the primary.
	Clustering float64
}

// DefaultConfig returns a small aftershock-like sequence.
func DefaultConfig() Config {
	return Config{
		Events:     200,
		Duration:   30,
		B:          1.0,
		MagCat:     3.0,
		MainMag:    6.5,
		McBoost:    1.5,
		McDecay:    0.5,
		Clustering: 3,
	}
}

// Validate rejects configs that cannot produce a history.
func (c Config) Validate() error {
	switch {
	case c.Events < 1:
		return fmt.Errorf("events must be >= 1, got %d", c.Events)
	case !(c.Duration > 0):
		return fmt.Errorf("duration must be > 0, got %g", c.Duration)
	case !(c.B > 0):
		return fmt.Errorf("b must be > 0, got %g", c.B)
	case c.McBoost < 0:
		return fmt.Errorf("mc boost must be >= 0, got %g", c.McBoost)
	case c.McBoost > 0 && !(c.McDecay > 0):
		return fmt.Errorf("mc decay must be > 0, got %g", c.McDecay)
	case c.Clustering < 1:
		return fmt.Errorf("clustering must be >= 1, got %g", c.Clustering)
	}
	return nil
}

// Generator produces random histories from a seeded source.
type Generator struct {
	rnd *rand.Rand
}

// New returns a Generator with a fixed seed.
func New(seed int64) *Generator {
	return &Generator{rnd: rand.New(rand.NewSource(seed))}
}

// Generate draws a prepared history: a primary at time 0, secondary events
// above the time-dependent completeness, and one filler interval between each
// pair of consecutive events. The window covers every secondary event and
// every interval.
func (g *Generator) Generate(cfg Config) (*catalog.History, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	mc := func(t float64) float64 {
		if cfg.McBoost == 0 {
			return cfg.MagCat
		}
		return cfg.MagCat + cfg.McBoost*math.Exp(-t/cfg.McDecay)
	}

	times := make([]float64, cfg.Events-1)
	for i := range times {
		times[i] = cfg.Duration * math.Pow(g.rnd.Float64(), cfg.Clustering)
	}
	sort.Float64s(times)

	h := &catalog.History{
		Primary: 0,
		MagCat:  cfg.MagCat,
		Events:  make([]catalog.Event, 0, cfg.Events),
	}
	h.Events = append(h.Events, catalog.Event{Time: 0, Mag: cfg.MainMag, Mc: cfg.MagCat})
	for _, t := range times {
		floor := mc(t)
		mag := floor - math.Log10(1-g.rnd.Float64())/cfg.B
		h.Events = append(h.Events, catalog.Event{Time: t, Mag: round2(mag), Mc: floor})
	}
	for i := 1; i < len(h.Events); i++ {
		begin, end := h.Events[i-1].Time, h.Events[i].Time
		if end <= begin {
			continue
		}
		h.Intervals = append(h.Intervals, catalog.Interval{
			Begin: begin,
			End:   end,
			Mc:    mc(0.5 * (begin + end)),
		})
	}
	h.Window = h.FullWindow()
	if len(h.Events) > 1 {
		h.Window.EventBegin = 1
	}
	if err := h.Prepare(); err != nil {
		return nil, fmt.Errorf("generated history is invalid: %w", err)
	}
	return h, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
