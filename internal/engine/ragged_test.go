package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lowerTriangle fills a 3-row matrix whose row i holds i entries 1, 2, ...
func lowerTriangle() *RaggedMatrix {
	m := &RaggedMatrix{}
	m.reset(3, func(i int) int { return i })
	for i := 0; i < m.Rows(); i++ {
		row := m.Row(i)
		for j := range row {
			row[j] = float64(j + 1)
		}
	}
	return m
}

func TestRowDot2(t *testing.T) {
	m := lowerTriangle()
	x1 := []float64{1, 10, 100}
	x2 := []float64{2, 20, 200}

	r1, r2 := m.RowDot2(0, x1, x2)
	assert.Zero(t, r1)
	assert.Zero(t, r2)

	r1, r2 = m.RowDot2(2, x1, x2)
	assert.Equal(t, 21.0, r1)
	assert.Equal(t, 42.0, r2)
}

func TestApply2DotScalesAndReduces(t *testing.T) {
	m := lowerTriangle()
	x1 := []float64{1, 10, 100}
	x2 := []float64{2, 20, 200}
	out1 := make([]float64, 3)
	out2 := make([]float64, 3)

	t1, t2 := m.Apply2Dot(x1, x2, []float64{5, 5, 0.5}, out1, out2, []float64{1, 1, 2})
	assert.Equal(t, []float64{0, 5, 10.5}, out1)
	assert.Equal(t, []float64{0, 10, 21}, out2)
	// Totals use the unscaled row products.
	assert.Equal(t, 1+2*21.0, t1)
	assert.Equal(t, 2+2*42.0, t2)

	m.Apply2(x1, x2, nil, out1, out2)
	assert.Equal(t, []float64{0, 1, 21}, out1)
	assert.Equal(t, []float64{0, 2, 42}, out2)
}

func TestZeroMatrixWritesZeros(t *testing.T) {
	m := lowerTriangle()
	m.resetZero(3)
	require.True(t, m.IsZero())
	assert.Equal(t, 3, m.Rows())
	assert.Equal(t, 0, m.Entries())

	out1 := []float64{7, 7, 7}
	out2 := []float64{7, 7, 7}
	t1, t2 := m.Apply2Dot([]float64{1}, []float64{1}, nil, out1, out2, []float64{1, 1, 1})
	assert.Equal(t, []float64{0, 0, 0}, out1)
	assert.Equal(t, []float64{0, 0, 0}, out2)
	assert.Zero(t, t1)
	assert.Zero(t, t2)
}
