package engine

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolReusesReleasedObjects(t *testing.T) {
	calls := 0
	p := NewPool(func() *[]float64 {
		calls++
		buf := make([]float64, 4)
		return &buf
	})

	h := p.Acquire()
	first := h.Get()
	require.NotNil(t, first)
	h.Release()
	assert.Nil(t, h.Get())
	h.Release()
	assert.Equal(t, 1, p.Idle(), "double release must not push twice")

	h2 := p.Acquire()
	assert.Same(t, first, h2.Get())
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, p.Idle())

	h3 := p.Acquire()
	assert.NotSame(t, first, h3.Get())
	assert.Equal(t, 2, p.Allocated())
	h2.Release()
	h3.Release()
	assert.Equal(t, 2, p.Idle())
}

func TestHeldStagesDoNotShareStorage(t *testing.T) {
	f, err := NewFitter(randomHistory(t, 12, 4), DefaultOptions())
	require.NoError(t, err)

	// Warm the pool so concurrent acquires race over reused objects too.
	for _, h := range []*Handle[OmoriStage]{f.AcquireOmori(), f.AcquireOmori(), f.AcquireOmori()} {
		require.NoError(t, h.Get().Build(1.5, 0.1))
		h.Release()
	}

	const n = 8
	handles := make([]*Handle[OmoriStage], n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for g := 0; g < n; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			h := f.AcquireOmori()
			handles[g] = h
			errs[g] = h.Get().Build(0.9+0.05*float64(g), 0.01*float64(g+1))
		}(g)
	}
	wg.Wait()

	seen := make(map[*float64]int, n)
	for g, h := range handles {
		require.NoError(t, errs[g])
		first := &h.Get().Self()[0]
		if prev, ok := seen[first]; ok {
			t.Fatalf("handles %d and %d share storage", prev, g)
		}
		seen[first] = g
	}
	for g := 1; g < n; g++ {
		assert.NotEqual(t, handles[0].Get().Self()[0], handles[g].Get().Self()[0], "handle %d", g)
	}
	h1, h2 := handles[0], handles[1]
	for _, h := range handles[2:] {
		h.Release()
	}

	// Releasing one handle leaves the other's values intact.
	want := append([]float64(nil), h2.Get().Self()...)
	h1.Release()
	h3 := f.AcquireOmori()
	require.NoError(t, h3.Get().Build(2.0, 0.5))
	assert.Equal(t, want, h2.Get().Self())
	h2.Release()
	h3.Release()
}

func TestEvaluateConcurrent(t *testing.T) {
	f, err := NewFitter(randomHistory(t, 30, 21), DefaultOptions())
	require.NoError(t, err)
	shapes := []Shape{
		{B: 1.0, Alpha: 1.0, P: 1.1, C: 0.01},
		{B: 0.9, Alpha: 0.7, P: 1.3, C: 0.05},
		{B: 1.2, Alpha: 1.1, P: 0.95, C: 0.002},
	}
	want := make([]float64, len(shapes))
	for i, s := range shapes {
		res, err := f.Evaluate(s, -2, -1, 0.5)
		require.NoError(t, err)
		want[i] = res.LogLike
	}

	var wg sync.WaitGroup
	got := make([][]float64, 8)
	for g := range got {
		got[g] = make([]float64, len(shapes))
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i, s := range shapes {
				res, err := f.Evaluate(s, -2, -1, 0.5)
				if err != nil {
					got[g][i] = math.NaN()
					continue
				}
				got[g][i] = res.LogLike
			}
		}(g)
	}
	wg.Wait()
	for g := range got {
		for i := range shapes {
			assert.Equal(t, math.Float64bits(want[i]), math.Float64bits(got[g][i]), "goroutine %d shape %d", g, i)
		}
	}
}
