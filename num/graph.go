package num

import (
	"fmt"
	"math"
)

// Graph records operations applied to matrices so that gradients can be
// accumulated by replaying the recorded steps in reverse. Forward values
// are computed immediately; when needGrad is set each operation appends
// a closure which propagates gradients from its output to its inputs.
type Graph struct {
	dev      Device
	needGrad bool
	tape     []func()
}

// NewGraph creates a graph running on the given device. Pass needGrad
// false for inference so no tape is recorded.
func NewGraph(dev Device, needGrad bool) *Graph {
	return &Graph{dev: dev, needGrad: needGrad}
}

// Backward replays the recorded operations in reverse, accumulating
// gradients into the Dw storage of every matrix involved.
func (g *Graph) Backward() {
	for i := len(g.tape) - 1; i >= 0; i-- {
		g.tape[i]()
	}
	g.tape = g.tape[:0]
}

func (g *Graph) addBackward(fn func()) {
	if g.needGrad {
		g.tape = append(g.tape, fn)
	}
}

// Mul returns the matrix product a*b.
func (g *Graph) Mul(a, b *Mat) *Mat {
	if a.Cols != b.Rows {
		panic(fmt.Sprintf("num: mul shape mismatch %dx%d * %dx%d", a.Rows, a.Cols, b.Rows, b.Cols))
	}
	out := NewMat(a.Rows, b.Cols)
	gemm(false, false, a, b, out, a.W, b.W, out.W, 0)
	g.addBackward(func() {
		gemm(false, true, out, b, a, out.Dw, b.W, a.Dw, 1)
		gemm(true, false, a, out, b, a.W, out.Dw, b.Dw, 1)
	})
	return out
}

// Add returns the element wise sum of two equal shaped matrices.
func (g *Graph) Add(a, b *Mat) *Mat {
	sameShape("add", a, b)
	out := NewMat(a.Rows, a.Cols)
	g.dev.apply(len(out.W), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			out.W[i] = a.W[i] + b.W[i]
		}
	})
	g.addBackward(func() {
		for i, d := range out.Dw {
			a.Dw[i] += d
			b.Dw[i] += d
		}
	})
	return out
}

// AddCol adds a column vector bias to every column of a.
func (g *Graph) AddCol(a, bias *Mat) *Mat {
	if bias.Rows != a.Rows || bias.Cols != 1 {
		panic(fmt.Sprintf("num: addcol wants %dx1 bias, got %dx%d", a.Rows, bias.Rows, bias.Cols))
	}
	out := NewMat(a.Rows, a.Cols)
	g.dev.apply(len(out.W), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			out.W[i] = a.W[i] + bias.W[i/a.Cols]
		}
	})
	g.addBackward(func() {
		for i, d := range out.Dw {
			a.Dw[i] += d
			bias.Dw[i/a.Cols] += d
		}
	})
	return out
}

// Eltmul returns the element wise product of two equal shaped matrices.
func (g *Graph) Eltmul(a, b *Mat) *Mat {
	sameShape("eltmul", a, b)
	out := NewMat(a.Rows, a.Cols)
	g.dev.apply(len(out.W), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			out.W[i] = a.W[i] * b.W[i]
		}
	})
	g.addBackward(func() {
		for i, d := range out.Dw {
			a.Dw[i] += b.W[i] * d
			b.Dw[i] += a.W[i] * d
		}
	})
	return out
}

// OneMinus returns 1 - a element wise.
func (g *Graph) OneMinus(a *Mat) *Mat {
	out := NewMat(a.Rows, a.Cols)
	g.dev.apply(len(out.W), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			out.W[i] = 1 - a.W[i]
		}
	})
	g.addBackward(func() {
		for i, d := range out.Dw {
			a.Dw[i] -= d
		}
	})
	return out
}

// Sigmoid applies the logistic function element wise.
func (g *Graph) Sigmoid(a *Mat) *Mat {
	return g.activation(a,
		func(x float64) float64 { return 1 / (1 + math.Exp(-x)) },
		func(y float64) float64 { return y * (1 - y) })
}

// Tanh applies the hyperbolic tangent element wise.
func (g *Graph) Tanh(a *Mat) *Mat {
	return g.activation(a,
		math.Tanh,
		func(y float64) float64 { return 1 - y*y })
}

// activation applies fn element wise, dfn gives the derivative in terms
// of the forward output.
func (g *Graph) activation(a *Mat, fn, dfn func(float64) float64) *Mat {
	out := NewMat(a.Rows, a.Cols)
	g.dev.apply(len(out.W), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			out.W[i] = fn(a.W[i])
		}
	})
	g.addBackward(func() {
		for i, d := range out.Dw {
			a.Dw[i] += dfn(out.W[i]) * d
		}
	})
	return out
}

// Lookup gathers rows of table by id into the columns of the output, so
// column j of the result is table row ids[j]. Used for embedding lookup
// with one token id per sample.
func (g *Graph) Lookup(table *Mat, ids []int64) *Mat {
	out := NewMat(table.Cols, len(ids))
	for j, id := range ids {
		if id < 0 || int(id) >= table.Rows {
			panic(fmt.Sprintf("num: lookup id %d out of range [0,%d)", id, table.Rows))
		}
		row := table.W[int(id)*table.Cols : (int(id)+1)*table.Cols]
		for r, v := range row {
			out.W[r*out.Cols+j] = v
		}
	}
	g.addBackward(func() {
		for j, id := range ids {
			grad := table.Dw[int(id)*table.Cols : (int(id)+1)*table.Cols]
			for r := range grad {
				grad[r] += out.Dw[r*out.Cols+j]
			}
		}
	})
	return out
}

// Where selects per column between two equal shaped matrices: column j of
// the result is taken from a when cond[j] is true, from b otherwise.
// Gradients flow only to the selected operand, so recurrent state can be
// carried unchanged past the end of a shorter sequence in the batch.
func (g *Graph) Where(cond []bool, a, b *Mat) *Mat {
	sameShape("where", a, b)
	if len(cond) != a.Cols {
		panic(fmt.Sprintf("num: where wants %d conditions, got %d", a.Cols, len(cond)))
	}
	out := NewMat(a.Rows, a.Cols)
	for r := 0; r < a.Rows; r++ {
		base := r * a.Cols
		for j, ok := range cond {
			if ok {
				out.W[base+j] = a.W[base+j]
			} else {
				out.W[base+j] = b.W[base+j]
			}
		}
	}
	g.addBackward(func() {
		for r := 0; r < a.Rows; r++ {
			base := r * a.Cols
			for j, ok := range cond {
				if ok {
					a.Dw[base+j] += out.Dw[base+j]
				} else {
					b.Dw[base+j] += out.Dw[base+j]
				}
			}
		}
	})
	return out
}

func sameShape(op string, a, b *Mat) {
	if a.Rows != b.Rows || a.Cols != b.Cols {
		panic(fmt.Sprintf("num: %s shape mismatch %dx%d != %dx%d", op, a.Rows, a.Cols, b.Rows, b.Cols))
	}
}
