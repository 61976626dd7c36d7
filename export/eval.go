package export

import (
	"errors"
	"fmt"

	"github.com/naimnv/dganet/num"
)

// ErrInvalidGraph reports a graph the evaluator cannot execute.
var ErrInvalidGraph = errors.New("invalid graph")

// Run executes the graph over a batch of encoded sequences and returns
// the class scores per sample, in input order. Every sequence must be
// padded to exactly the frozen step width; true lengths control the
// recurrent state carry exactly as in the training runtime, so Run on
// an exported graph reproduces the model scores.
func Run(g *Graph, dev num.Device, seqs [][]int64, lengths []int) ([][]float64, error) {
	if len(seqs) == 0 {
		return nil, nil
	}
	nb := len(seqs)
	steps, err := frozenSteps(g)
	if err != nil {
		return nil, err
	}
	if len(g.Outputs) != 1 {
		return nil, fmt.Errorf("%w: want one graph output, got %d", ErrInvalidGraph, len(g.Outputs))
	}
	if len(lengths) != nb {
		return nil, fmt.Errorf("%w: %d sequences with %d lengths", ErrInvalidGraph, nb, len(lengths))
	}
	toks := make([][]int64, steps)
	active := make([][]bool, steps)
	for t := range toks {
		toks[t] = make([]int64, nb)
		active[t] = make([]bool, nb)
	}
	for j, seq := range seqs {
		if len(seq) != steps {
			return nil, fmt.Errorf("%w: sequence %d has width %d, graph is frozen at %d",
				ErrInvalidGraph, j, len(seq), steps)
		}
		if lengths[j] < 0 || lengths[j] > steps {
			return nil, fmt.Errorf("%w: sequence %d length %d out of range", ErrInvalidGraph, j, lengths[j])
		}
		for t, id := range seq {
			toks[t][j] = id
			active[t][j] = t < lengths[j]
		}
	}
	env := map[string][]*num.Mat{}
	tg := num.NewGraph(dev, false)
	for _, node := range g.Nodes {
		switch node.Op {
		case "Gather":
			if err := checkArity(node, 2, 1); err != nil {
				return nil, err
			}
			table, err := initMat(g, node.Inputs[0])
			if err != nil {
				return nil, err
			}
			out := make([]*num.Mat, steps)
			for t := range toks {
				for j, id := range toks[t] {
					if id < 0 || id >= int64(table.Rows) {
						return nil, fmt.Errorf("%w: token %d of sequence %d outside table %s",
							ErrInvalidGraph, id, j, node.Inputs[0])
					}
				}
				out[t] = tg.Lookup(table, toks[t])
			}
			env[node.Outputs[0]] = out
		case "GRU":
			if err := checkArity(node, 6, 2); err != nil {
				return nil, err
			}
			x, ok := env[node.Inputs[0]]
			if !ok {
				return nil, fmt.Errorf("%w: node %s input %s undefined", ErrInvalidGraph, node.Name, node.Inputs[0])
			}
			cell, err := splitGRU(g, node)
			if err != nil {
				return nil, err
			}
			if cell.wxr.Cols != x[0].Rows {
				return nil, fmt.Errorf("%w: node %s wants input size %d, got %d",
					ErrInvalidGraph, node.Name, cell.wxr.Cols, x[0].Rows)
			}
			h := num.NewMat(cell.hidden, nb)
			seq := make([]*num.Mat, steps)
			for t := range x {
				h = tg.Where(active[t], cell.forward(tg, x[t], h), h)
				seq[t] = h
			}
			env[node.Outputs[0]] = seq
			env[node.Outputs[1]] = []*num.Mat{h}
		case "Gemm":
			if err := checkArity(node, 3, 1); err != nil {
				return nil, err
			}
			if node.Attrs["transB"] != 1 {
				return nil, fmt.Errorf("%w: node %s: only transB is supported", ErrInvalidGraph, node.Name)
			}
			a, ok := env[node.Inputs[0]]
			if !ok {
				return nil, fmt.Errorf("%w: node %s input %s undefined", ErrInvalidGraph, node.Name, node.Inputs[0])
			}
			w, err := initMat(g, node.Inputs[1])
			if err != nil {
				return nil, err
			}
			b, err := initMat(g, node.Inputs[2])
			if err != nil {
				return nil, err
			}
			in := a[len(a)-1]
			if w.Cols != in.Rows || b.Rows != w.Rows || b.Cols != 1 {
				return nil, fmt.Errorf("%w: node %s weight %dx%d and bias %dx%d do not fit input of %d rows",
					ErrInvalidGraph, node.Name, w.Rows, w.Cols, b.Rows, b.Cols, in.Rows)
			}
			env[node.Outputs[0]] = []*num.Mat{tg.AddCol(tg.Mul(w, in), b)}
		default:
			return nil, fmt.Errorf("%w: unknown op %s", ErrInvalidGraph, node.Op)
		}
	}
	out, ok := env[g.Outputs[0].Name]
	if !ok {
		return nil, fmt.Errorf("%w: output %s never produced", ErrInvalidGraph, g.Outputs[0].Name)
	}
	m := out[0]
	scores := make([][]float64, nb)
	for j := range scores {
		scores[j] = make([]float64, m.Rows)
		for r := 0; r < m.Rows; r++ {
			scores[j][r] = m.At(r, j)
		}
	}
	return scores, nil
}

func frozenSteps(g *Graph) (int, error) {
	for _, in := range g.Inputs {
		if in.Name == "domains" && len(in.Dims) == 2 && in.Dims[1].Size > 0 {
			return in.Dims[1].Size, nil
		}
	}
	return 0, fmt.Errorf("%w: no domains input with a frozen width", ErrInvalidGraph)
}

func checkArity(node Node, ins, outs int) error {
	if len(node.Inputs) != ins || len(node.Outputs) != outs {
		return fmt.Errorf("%w: node %s has %d inputs and %d outputs, want %d and %d",
			ErrInvalidGraph, node.Name, len(node.Inputs), len(node.Outputs), ins, outs)
	}
	return nil
}

func initMat(g *Graph, name string) (*num.Mat, error) {
	t, ok := g.Tensor(name)
	if !ok {
		return nil, fmt.Errorf("%w: missing initializer %s", ErrInvalidGraph, name)
	}
	if t.Rows < 1 || t.Cols < 1 || len(t.Data) != t.Rows*t.Cols {
		return nil, fmt.Errorf("%w: initializer %s has %d values for %dx%d",
			ErrInvalidGraph, name, len(t.Data), t.Rows, t.Cols)
	}
	return num.NewMatValues(t.Rows, t.Cols, t.Data), nil
}

// gruLayer holds the per gate matrices recovered from the fused tensors.
type gruLayer struct {
	wxr, whr, bxr, bhr *num.Mat
	wxz, whz, bxz, bhz *num.Mat
	wxn, whn, bxn, bhn *num.Mat
	hidden             int
}

func splitGRU(g *Graph, node Node) (*gruLayer, error) {
	h := node.Attrs["hidden_size"]
	if h < 1 {
		return nil, fmt.Errorf("%w: node %s has no hidden_size", ErrInvalidGraph, node.Name)
	}
	if node.Attrs["linear_before_reset"] != 1 {
		return nil, fmt.Errorf("%w: node %s: reset after the recurrent bias is required", ErrInvalidGraph, node.Name)
	}
	parts := make([][3]*num.Mat, 4)
	for i, name := range node.Inputs[1:5] {
		t, ok := g.Tensor(name)
		if !ok {
			return nil, fmt.Errorf("%w: missing initializer %s", ErrInvalidGraph, name)
		}
		// R must be square and the biases column vectors; W keeps its input width
		cols := t.Cols
		if i == 1 {
			cols = h
		} else if i >= 2 {
			cols = 1
		}
		if t.Rows != 3*h || t.Cols != cols || t.Cols < 1 || len(t.Data) != t.Rows*t.Cols {
			return nil, fmt.Errorf("%w: initializer %s is %dx%d with %d values",
				ErrInvalidGraph, name, t.Rows, t.Cols, len(t.Data))
		}
		for k := 0; k < 3; k++ {
			parts[i][k] = num.NewMatValues(h, t.Cols, t.Data[k*h*t.Cols:(k+1)*h*t.Cols])
		}
	}
	return &gruLayer{
		wxr: parts[0][0], wxz: parts[0][1], wxn: parts[0][2],
		whr: parts[1][0], whz: parts[1][1], whn: parts[1][2],
		bxr: parts[2][0], bxz: parts[2][1], bxn: parts[2][2],
		bhr: parts[3][0], bhz: parts[3][1], bhn: parts[3][2],
		hidden: h,
	}, nil
}

func (c *gruLayer) forward(g *num.Graph, x, h *num.Mat) *num.Mat {
	r := g.Sigmoid(g.Add(g.AddCol(g.Mul(c.wxr, x), c.bxr), g.AddCol(g.Mul(c.whr, h), c.bhr)))
	z := g.Sigmoid(g.Add(g.AddCol(g.Mul(c.wxz, x), c.bxz), g.AddCol(g.Mul(c.whz, h), c.bhz)))
	n := g.Tanh(g.Add(g.AddCol(g.Mul(c.wxn, x), c.bxn), g.Eltmul(r, g.AddCol(g.Mul(c.whn, h), c.bhn))))
	return g.Add(g.Eltmul(g.OneMinus(z), n), g.Eltmul(z, h))
}
