package sweep

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/verte-zerg/omorifit/internal/catalog"
	"github.com/verte-zerg/omorifit/internal/model"
)

const sparkChars = " .:-=+*#%@"

// Profile is the profile log-likelihood of one parameter: for each distinct
// value, the best log-likelihood over all other parameters.
type Profile struct {
	Name    string
	Values  []float64
	LogLike []float64
}

// Varies reports whether the parameter took more than one value.
func (p Profile) Varies() bool {
	return len(p.Values) > 1
}

// Argmax returns the value with the highest profile log-likelihood.
func (p Profile) Argmax() (float64, bool) {
	best := -1
	for i, ll := range p.LogLike {
		if math.IsInf(ll, -1) {
			continue
		}
		if best < 0 || ll > p.LogLike[best] {
			best = i
		}
	}
	if best < 0 {
		return 0, false
	}
	return p.Values[best], true
}

// Profiles computes one profile per parameter, in grid order. Non-finite
// points are ignored; a value seen only at non-finite points gets -Inf.
func Profiles(points []model.SweepPoint) []Profile {
	out := make([]Profile, len(model.ParamNames))
	for k, name := range model.ParamNames {
		best := map[float64]float64{}
		for _, pt := range points {
			v := pt.Params()[k]
			cur, seen := best[v]
			if !seen {
				cur = math.Inf(-1)
			}
			if !math.IsNaN(pt.LogLike) && !math.IsInf(pt.LogLike, 0) && pt.LogLike > cur {
				cur = pt.LogLike
			}
			best[v] = cur
		}
		values := make([]float64, 0, len(best))
		for v := range best {
			values = append(values, v)
		}
		sort.Float64s(values)
		lls := make([]float64, len(values))
		for i, v := range values {
			lls[i] = best[v]
		}
		out[k] = Profile{Name: name, Values: values, LogLike: lls}
	}
	return out
}

// Summarize builds the stored summary of a finished sweep.
func Summarize(name, historyPath string, h *catalog.History, cfg model.FitConfig, res model.SweepResult) model.SweepSummary {
	return model.SweepSummary{
		Name:        name,
		HistoryPath: historyPath,
		CreatedAt:   time.Now().UTC(),
		Events:      h.EventCount(),
		Intervals:   h.IntervalCount(),
		Points:      len(res.Points),
		DurationMs:  res.Elapsed.Milliseconds(),
		Config:      cfg,
		Best:        res.Best,
		NonFinite:   res.NonFinite,
	}
}

// Sparkline renders a single-line ASCII sparkline for the values.
// Non-finite values render as blanks.
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	minVal, maxVal := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		minVal = math.Min(minVal, v)
		maxVal = math.Max(maxVal, v)
	}
	if math.IsInf(minVal, 1) {
		return strings.Repeat(" ", len(values))
	}
	flat := math.Abs(maxVal-minVal) < 1e-9
	var b strings.Builder
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			b.WriteByte(' ')
			continue
		}
		if flat {
			b.WriteByte(sparkChars[len(sparkChars)/2])
			continue
		}
		pos := (v - minVal) / (maxVal - minVal)
		idx := int(math.Round(pos * float64(len(sparkChars)-1)))
		idx = min(max(idx, 1), len(sparkChars)-1)
		b.WriteByte(sparkChars[idx])
	}
	return b.String()
}
