// Package num provides the dense matrix type, automatic differentiation
// graph and compute device selection used to build and train networks.
// Matrices are float64 row major with gradient storage alongside the
// values. Batches are laid out one sample per column.
package num

import (
	"fmt"
	"math"
	"math/rand"
	"strings"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
)

// Parameters for matrix printing
var (
	PrintThreshold = 12
	PrintEdgeitems = 4
)

// Mat is a dense matrix holding values and gradients.
type Mat struct {
	Rows, Cols int
	W          []float64
	Dw         []float64
}

// NewMat creates a zero filled matrix of the given shape.
func NewMat(rows, cols int) *Mat {
	if rows < 1 || cols < 1 {
		panic(fmt.Sprintf("num: invalid matrix shape %dx%d", rows, cols))
	}
	return &Mat{Rows: rows, Cols: cols, W: make([]float64, rows*cols), Dw: make([]float64, rows*cols)}
}

// NewMatValues creates a matrix initialised with a copy of vals in row major order.
func NewMatValues(rows, cols int, vals []float64) *Mat {
	m := NewMat(rows, cols)
	if len(vals) != rows*cols {
		panic(fmt.Sprintf("num: got %d values for %dx%d matrix", len(vals), rows, cols))
	}
	copy(m.W, vals)
	return m
}

// NewRandMat creates a matrix with values drawn from a gaussian with the given std deviation.
func NewRandMat(rows, cols int, std float64, rng *rand.Rand) *Mat {
	m := NewMat(rows, cols)
	for i := range m.W {
		m.W[i] = rng.NormFloat64() * std
	}
	return m
}

// At returns the value at row r column c.
func (m *Mat) At(r, c int) float64 { return m.W[r*m.Cols+c] }

// Set assigns the value at row r column c.
func (m *Mat) Set(r, c int, v float64) { m.W[r*m.Cols+c] = v }

// Size is the total number of elements.
func (m *Mat) Size() int { return m.Rows * m.Cols }

// Copy returns a deep copy of the values, gradients are zeroed.
func (m *Mat) Copy() *Mat {
	c := NewMat(m.Rows, m.Cols)
	copy(c.W, m.W)
	return c
}

// Col returns a copy of column c.
func (m *Mat) Col(c int) []float64 {
	col := make([]float64, m.Rows)
	for r := 0; r < m.Rows; r++ {
		col[r] = m.W[r*m.Cols+c]
	}
	return col
}

// ZeroGrad resets the gradient storage.
func (m *Mat) ZeroGrad() {
	for i := range m.Dw {
		m.Dw[i] = 0
	}
}

func (m *Mat) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%dx%d", m.Rows, m.Cols)
	rows := edgeIndexes(m.Rows)
	for _, r := range rows {
		if r < 0 {
			sb.WriteString("\n  ...")
			continue
		}
		sb.WriteString("\n  [")
		for i, c := range edgeIndexes(m.Cols) {
			if i > 0 {
				sb.WriteString(" ")
			}
			if c < 0 {
				sb.WriteString("...")
			} else {
				fmt.Fprintf(&sb, "%.4g", m.At(r, c))
			}
		}
		sb.WriteString("]")
	}
	return sb.String()
}

// indexes to print, -1 marks elided entries
func edgeIndexes(n int) []int {
	if n <= PrintThreshold {
		ix := make([]int, n)
		for i := range ix {
			ix[i] = i
		}
		return ix
	}
	ix := make([]int, 0, 2*PrintEdgeitems+1)
	for i := 0; i < PrintEdgeitems; i++ {
		ix = append(ix, i)
	}
	ix = append(ix, -1)
	for i := n - PrintEdgeitems; i < n; i++ {
		ix = append(ix, i)
	}
	return ix
}

// Axpy updates y += alpha*x element wise.
func Axpy(alpha float64, x, y []float64) {
	if len(x) != len(y) {
		panic(fmt.Sprintf("num: axpy length mismatch %d != %d", len(x), len(y)))
	}
	for i, v := range x {
		y[i] += alpha * v
	}
}

// Softmax returns column wise softmax of the input. No gradient is recorded.
func Softmax(m *Mat) *Mat {
	out := NewMat(m.Rows, m.Cols)
	for c := 0; c < m.Cols; c++ {
		max := math.Inf(-1)
		for r := 0; r < m.Rows; r++ {
			if v := m.At(r, c); v > max {
				max = v
			}
		}
		sum := 0.0
		for r := 0; r < m.Rows; r++ {
			e := math.Exp(m.At(r, c) - max)
			out.Set(r, c, e)
			sum += e
		}
		for r := 0; r < m.Rows; r++ {
			out.Set(r, c, out.At(r, c)/sum)
		}
	}
	return out
}

// Argmax returns the row index of the maximum value in each column.
func Argmax(m *Mat) []int {
	ix := make([]int, m.Cols)
	for c := 0; c < m.Cols; c++ {
		best := math.Inf(-1)
		for r := 0; r < m.Rows; r++ {
			if v := m.At(r, c); v > best {
				best, ix[c] = v, r
			}
		}
	}
	return ix
}

// GradNorm returns the l2 norm over the gradients of all the given matrices.
func GradNorm(mats []*Mat) float64 {
	sum := 0.0
	for _, m := range mats {
		for _, v := range m.Dw {
			sum += v * v
		}
	}
	return math.Sqrt(sum)
}

// ClipGradients rescales gradients in place so their global l2 norm does
// not exceed maxNorm. Returns the norm prior to clipping.
func ClipGradients(mats []*Mat, maxNorm float64) float64 {
	norm := GradNorm(mats)
	if norm > maxNorm && norm > 0 {
		scale := maxNorm / norm
		for _, m := range mats {
			for i := range m.Dw {
				m.Dw[i] *= scale
			}
		}
	}
	return norm
}

func general(rows, cols int, data []float64) blas64.General {
	return blas64.General{Rows: rows, Cols: cols, Stride: cols, Data: data}
}

// gemm computes c += op(a)*op(b) using BLAS dgemm on the given value slices.
func gemm(aTrans, bTrans bool, a, b, c *Mat, aData, bData, cData []float64, beta float64) {
	ta, tb := blas.NoTrans, blas.NoTrans
	if aTrans {
		ta = blas.Trans
	}
	if bTrans {
		tb = blas.Trans
	}
	blas64.Gemm(ta, tb, 1,
		general(a.Rows, a.Cols, aData),
		general(b.Rows, b.Cols, bData),
		beta,
		general(c.Rows, c.Cols, cData))
}
