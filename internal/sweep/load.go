package sweep

import (
	"context"

	"github.com/verte-zerg/omorifit/internal/model"
	"github.com/verte-zerg/omorifit/internal/store"
)

// Stored is a sweep loaded back from the store.
type Stored struct {
	Summary model.SweepSummary
	Points  []model.SweepPoint
}

// Load reads a stored sweep and its points.
func Load(ctx context.Context, st *store.Store, id int64) (Stored, error) {
	summary, err := st.GetSweep(ctx, id)
	if err != nil {
		return Stored{}, err
	}
	points, err := st.ListSweepPoints(ctx, id)
	if err != nil {
		return Stored{}, err
	}
	return Stored{Summary: summary, Points: points}, nil
}

// Save stores a finished sweep and returns its id.
func Save(ctx context.Context, st *store.Store, summary model.SweepSummary, res model.SweepResult) (int64, error) {
	return st.InsertSweep(ctx, summary, res.Points)
}
