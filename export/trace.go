package export

import (
	"fmt"

	"github.com/naimnv/dganet/nnet"
	"github.com/naimnv/dganet/num"
)

// Trace records the network's forward computation as a static graph,
// built from the model weights and the batch shape. The step count is
// frozen from the traced batch, so the batch should be as wide as the
// longest input the graph must accept. The batch size itself is not
// frozen, and the network is left untouched.
func Trace(net *nnet.Network, batch *nnet.Batch, runID string) *Graph {
	steps := len(batch.Tokens)
	g := &Graph{
		Version:  Version,
		Producer: "dganet",
		RunID:    runID,
		Inputs: []Value{
			{Name: "domains", DType: "int64", Dims: []Dim{{Param: BatchDim}, {Size: steps}}},
			{Name: "seq_lengths", DType: "int64", Dims: []Dim{{Param: BatchDim}}},
		},
		Outputs: []Value{
			{Name: "output", DType: "float64", Dims: []Dim{{Param: BatchDim}, {Size: net.Classes}}},
		},
	}
	g.Inits = append(g.Inits, tensor("embed", net.Embed))
	g.Nodes = append(g.Nodes, Node{
		Op: "Gather", Name: "embed",
		Inputs:  []string{"embed", "domains"},
		Outputs: []string{"x0"},
	})
	x := "x0"
	for i, cell := range net.Cells {
		name := fmt.Sprintf("gru%d", i)
		g.Inits = append(g.Inits,
			fused(name+".W", cell.Wxr, cell.Wxz, cell.Wxn),
			fused(name+".R", cell.Whr, cell.Whz, cell.Whn),
			fused(name+".Wb", cell.Bxr, cell.Bxz, cell.Bxn),
			fused(name+".Rb", cell.Bhr, cell.Bhz, cell.Bhn))
		seq, last := name+".seq", name+".last"
		g.Nodes = append(g.Nodes, Node{
			Op: "GRU", Name: name,
			Inputs:  []string{x, name + ".W", name + ".R", name + ".Wb", name + ".Rb", "seq_lengths"},
			Outputs: []string{seq, last},
			Attrs:   map[string]int{"hidden_size": net.HiddenSize, "linear_before_reset": 1},
		})
		x = seq
	}
	g.Inits = append(g.Inits, tensor("out.w", net.Wout), tensor("out.b", net.Bout))
	last := fmt.Sprintf("gru%d.last", len(net.Cells)-1)
	g.Nodes = append(g.Nodes, Node{
		Op: "Gemm", Name: "out",
		Inputs:  []string{last, "out.w", "out.b"},
		Outputs: []string{"output"},
		Attrs:   map[string]int{"transB": 1},
	})
	return g
}

func tensor(name string, m *num.Mat) Tensor {
	return Tensor{Name: name, Rows: m.Rows, Cols: m.Cols, Data: append([]float64{}, m.W...)}
}

// fused stacks the per gate matrices along the row axis.
func fused(name string, gates ...*num.Mat) Tensor {
	t := Tensor{Name: name, Cols: gates[0].Cols}
	for _, m := range gates {
		t.Rows += m.Rows
		t.Data = append(t.Data, m.W...)
	}
	return t
}
