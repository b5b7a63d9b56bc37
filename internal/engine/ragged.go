package engine

// RaggedMatrix stores a lower-triangular kernel matrix row by row in one packed
// slice. Row i holds columns [0, RowLen(i)); every other entry is zero and not stored.
// A zero matrix keeps its row count but stores nothing.
type RaggedMatrix struct {
	rowStart []int
	rowLen   []int
	data     []float64
	zero     bool
}

// reset shapes the matrix for rows rows with the given lengths, reusing storage.
func (m *RaggedMatrix) reset(rows int, rowLen func(i int) int) {
	m.zero = false
	m.rowStart = growInts(m.rowStart, rows)
	m.rowLen = growInts(m.rowLen, rows)
	total := 0
	for i := 0; i < rows; i++ {
		n := rowLen(i)
		m.rowStart[i] = total
		m.rowLen[i] = n
		total += n
	}
	m.data = growFloats(m.data, total)
}

// resetZero turns m into a zero matrix with rows rows.
func (m *RaggedMatrix) resetZero(rows int) {
	m.reset(rows, func(int) int { return 0 })
	m.zero = true
}

// Rows returns the number of target rows.
func (m *RaggedMatrix) Rows() int {
	return len(m.rowLen)
}

// RowLen returns the number of stored source columns in row i.
func (m *RaggedMatrix) RowLen(i int) int {
	return m.rowLen[i]
}

// Row returns the stored entries of row i. The slice aliases the matrix.
func (m *RaggedMatrix) Row(i int) []float64 {
	start := m.rowStart[i]
	return m.data[start : start+m.rowLen[i]]
}

// IsZero reports whether the matrix was built as the zero matrix.
func (m *RaggedMatrix) IsZero() bool {
	return m.zero
}

// Entries returns the number of stored entries.
func (m *RaggedMatrix) Entries() int {
	return len(m.data)
}

// RowDot2 returns the products of row i with x1 and x2.
func (m *RaggedMatrix) RowDot2(i int, x1, x2 []float64) (r1, r2 float64) {
	for j, v := range m.Row(i) {
		r1 += v * x1[j]
		r2 += v * x2[j]
	}
	return r1, r2
}

// Apply2 sets out1[i] = rowScale[i] * RowDot2(i) for the first channel and out2
// likewise for the second. A nil rowScale means 1.
func (m *RaggedMatrix) Apply2(x1, x2, rowScale, out1, out2 []float64) {
	m.Apply2Dot(x1, x2, rowScale, out1, out2, nil)
}

// Apply2Dot is Apply2 that also returns, for each channel, the sum over rows of
// weight[i] times the unscaled row product. A nil weight skips the reduction.
func (m *RaggedMatrix) Apply2Dot(x1, x2, rowScale, out1, out2, weight []float64) (total1, total2 float64) {
	rows := m.Rows()
	if m.zero {
		clear(out1[:rows])
		clear(out2[:rows])
		return 0, 0
	}
	for i := 0; i < rows; i++ {
		r1, r2 := m.RowDot2(i, x1, x2)
		if weight != nil {
			total1 += weight[i] * r1
			total2 += weight[i] * r2
		}
		if rowScale != nil {
			r1 *= rowScale[i]
			r2 *= rowScale[i]
		}
		out1[i] = r1
		out2[i] = r2
	}
	return total1, total2
}

func growFloats(buf []float64, n int) []float64 {
	if cap(buf) >= n {
		return buf[:n]
	}
	return make([]float64, n)
}

func growInts(buf []int, n int) []int {
	if cap(buf) >= n {
		return buf[:n]
	}
	return make([]int, n)
}
