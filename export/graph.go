// Package export captures a trained domain classifier as a static
// compute graph for serving outside the training runtime.
//
// The graph is traced from one forward pass at a fixed shape: the step
// count T is frozen from the traced batch and the graph always runs
// exactly T steps. Callers pad or truncate inputs to width T and pass
// the true lengths separately; a sample keeps its final recurrent state
// once its true length is reached, so right padding cannot change the
// scores. The batch axis of the graph inputs and output is symbolic and
// bound at run time.
//
// Values are batch major. Gate weights of a recurrent layer are fused
// with the gates stacked in reset, update, candidate order, and the
// candidate applies the reset gate to the recurrent term after its bias
// (linear_before_reset).
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Version of the graph file format.
const Version = 1

// BatchDim names the symbolic batch axis shared by all graph inputs
// and the output.
const BatchDim = "N"

// Graph is a serialized compute graph: typed inputs and outputs, nodes
// in execution order and the weight initializers they reference.
type Graph struct {
	Version  int      `json:"version"`
	Producer string   `json:"producer"`
	RunID    string   `json:"run_id,omitempty"`
	Inputs   []Value  `json:"inputs"`
	Outputs  []Value  `json:"outputs"`
	Nodes    []Node   `json:"nodes"`
	Inits    []Tensor `json:"initializers"`
}

// Value describes one graph input or output.
type Value struct {
	Name  string `json:"name"`
	DType string `json:"dtype"`
	Dims  []Dim  `json:"dims"`
}

// Dim is one axis of a value shape: a fixed Size, or a named Param for
// an axis bound when the graph is run.
type Dim struct {
	Size  int    `json:"size,omitempty"`
	Param string `json:"param,omitempty"`
}

// Node is one operation. Inputs name either graph inputs, initializers
// or outputs of earlier nodes.
type Node struct {
	Op      string         `json:"op"`
	Name    string         `json:"name"`
	Inputs  []string       `json:"inputs"`
	Outputs []string       `json:"outputs"`
	Attrs   map[string]int `json:"attrs,omitempty"`
}

// Tensor is a weight initializer in row major order.
type Tensor struct {
	Name string    `json:"name"`
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float64 `json:"data"`
}

// Tensor returns the named initializer.
func (g *Graph) Tensor(name string) (Tensor, bool) {
	for _, t := range g.Inits {
		if t.Name == name {
			return t, true
		}
	}
	return Tensor{}, false
}

// Save writes the graph as indented JSON, creating parent directories
// as needed.
func (g *Graph) Save(path string) error {
	data, err := json.MarshalIndent(g, "", " ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

// Load reads a graph written by Save.
func Load(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	g := new(Graph)
	if err := json.Unmarshal(data, g); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if g.Version != Version {
		return nil, fmt.Errorf("%s: unsupported graph version %d", path, g.Version)
	}
	return g, nil
}
