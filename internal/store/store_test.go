package store

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/verte-zerg/omorifit/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "nested", "omorifit.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

func testSummary(name string, created time.Time) model.SweepSummary {
	return model.SweepSummary{
		Name:        name,
		HistoryPath: "hist.toml",
		CreatedAt:   created,
		Events:      12,
		Intervals:   11,
		DurationMs:  42,
		NonFinite:   1,
		Config: model.FitConfig{
			Ref: 3, Sup: 9.5, MagMin: 2, MagMax: 9.5,
			LMR: "td-max", UseIntervals: true, Likelihood: true, Workers: 4,
		},
		Best: model.SweepPoint{B: 1, Alpha: 0.9, P: 1.1, C: 0.01, Aint: -2, A: -1, Ams: 0.5, LogLike: -3.25},
	}
}

func TestInsertAndReadSweep(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	points := []model.SweepPoint{
		{B: 1, Alpha: 0.9, P: 1.1, C: 0.01, Aint: -2, A: -1, Ams: 0.5, LogLike: -3.25},
		{B: 1, Alpha: 0.9, P: 1.1, C: 0.01, Aint: -2, A: -1, Ams: 1.5, LogLike: math.Inf(-1)},
		{B: 1, Alpha: 0.9, P: 1.1, C: 0.01, Aint: -2, A: 0, Ams: 0.5, LogLike: -7},
	}
	id, err := st.InsertSweep(ctx, testSummary("first", created), points)
	if err != nil {
		t.Fatalf("insert sweep: %v", err)
	}

	got, err := st.GetSweep(ctx, id)
	if err != nil {
		t.Fatalf("get sweep: %v", err)
	}
	if got.ID != id || got.Name != "first" || got.Points != 3 || got.NonFinite != 1 {
		t.Fatalf("unexpected summary: %+v", got)
	}
	if !got.CreatedAt.Equal(created) {
		t.Fatalf("expected created %v, got %v", created, got.CreatedAt)
	}
	want := testSummary("first", created).Config
	if got.Config != want {
		t.Fatalf("expected config %+v, got %+v", want, got.Config)
	}
	if got.Best != points[0] {
		t.Fatalf("expected best %+v, got %+v", points[0], got.Best)
	}

	stored, err := st.ListSweepPoints(ctx, id)
	if err != nil {
		t.Fatalf("list points: %v", err)
	}
	if len(stored) != len(points) {
		t.Fatalf("expected %d points, got %d", len(points), len(stored))
	}
	for i := range points {
		if stored[i] != points[i] {
			t.Fatalf("point %d: expected %+v, got %+v", i, points[i], stored[i])
		}
	}
}

func TestListSweepsNewestFirst(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"a", "b", "c"} {
		if _, err := st.InsertSweep(ctx, testSummary(name, base.Add(time.Duration(i)*time.Hour)), nil); err != nil {
			t.Fatalf("insert sweep: %v", err)
		}
	}
	sweeps, err := st.ListSweeps(ctx)
	if err != nil {
		t.Fatalf("list sweeps: %v", err)
	}
	if len(sweeps) != 3 {
		t.Fatalf("expected 3 sweeps, got %d", len(sweeps))
	}
	if sweeps[0].Name != "c" || sweeps[2].Name != "a" {
		t.Fatalf("unexpected order: %s, %s, %s", sweeps[0].Name, sweeps[1].Name, sweeps[2].Name)
	}
}

func TestDeleteSweep(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	id, err := st.InsertSweep(ctx, testSummary("gone", time.Now()), []model.SweepPoint{{LogLike: -1}})
	if err != nil {
		t.Fatalf("insert sweep: %v", err)
	}
	if err := st.DeleteSweep(ctx, id); err != nil {
		t.Fatalf("delete sweep: %v", err)
	}
	if _, err := st.GetSweep(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	points, err := st.ListSweepPoints(ctx, id)
	if err != nil {
		t.Fatalf("list points: %v", err)
	}
	if len(points) != 0 {
		t.Fatalf("expected points to be deleted, got %d", len(points))
	}
	if err := st.DeleteSweep(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestNonFiniteBestRoundTrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	sum := testSummary("empty", time.Now())
	sum.Best = model.SweepPoint{LogLike: math.NaN()}
	id, err := st.InsertSweep(ctx, sum, nil)
	if err != nil {
		t.Fatalf("insert sweep: %v", err)
	}
	got, err := st.GetSweep(ctx, id)
	if err != nil {
		t.Fatalf("get sweep: %v", err)
	}
	if !math.IsInf(got.Best.LogLike, -1) {
		t.Fatalf("expected -Inf best, got %v", got.Best.LogLike)
	}
}
