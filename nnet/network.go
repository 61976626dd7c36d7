// Package nnet contains routines for constructing, training and testing
// the recurrent domain classifier network.
package nnet

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/naimnv/dganet/domains"
	"github.com/naimnv/dganet/num"
)

// Param is a named weight matrix. Parameter order is fixed and shared by
// the checkpoint format and graph export.
type Param struct {
	Name string
	M    *num.Mat
}

// GRUCell holds the parameters of one gated recurrent layer: reset and
// update gates plus the candidate state, each with input weights,
// recurrent weights and the two bias vectors.
type GRUCell struct {
	Wxr, Whr, Bxr, Bhr *num.Mat
	Wxz, Whz, Bxz, Bhz *num.Mat
	Wxn, Whn, Bxn, Bhn *num.Mat
	inSize             int
}

func newGRUCell(inSize, hidden int) *GRUCell {
	return &GRUCell{
		Wxr: num.NewMat(hidden, inSize), Whr: num.NewMat(hidden, hidden),
		Bxr: num.NewMat(hidden, 1), Bhr: num.NewMat(hidden, 1),
		Wxz: num.NewMat(hidden, inSize), Whz: num.NewMat(hidden, hidden),
		Bxz: num.NewMat(hidden, 1), Bhz: num.NewMat(hidden, 1),
		Wxn: num.NewMat(hidden, inSize), Whn: num.NewMat(hidden, hidden),
		Bxn: num.NewMat(hidden, 1), Bhn: num.NewMat(hidden, 1),
		inSize: inSize,
	}
}

func (c *GRUCell) initWeights(rng *rand.Rand) {
	h := c.Whr.Rows
	xs := 1 / math.Sqrt(float64(c.inSize))
	hs := 1 / math.Sqrt(float64(h))
	c.Wxr = num.NewRandMat(h, c.inSize, xs, rng)
	c.Wxz = num.NewRandMat(h, c.inSize, xs, rng)
	c.Wxn = num.NewRandMat(h, c.inSize, xs, rng)
	c.Whr = num.NewRandMat(h, h, hs, rng)
	c.Whz = num.NewRandMat(h, h, hs, rng)
	c.Whn = num.NewRandMat(h, h, hs, rng)
	c.Bxr, c.Bhr = num.NewMat(h, 1), num.NewMat(h, 1)
	c.Bxz, c.Bhz = num.NewMat(h, 1), num.NewMat(h, 1)
	c.Bxn, c.Bhn = num.NewMat(h, 1), num.NewMat(h, 1)
}

// forward applies the cell for one timestep. x is the input columns,
// h the previous hidden state, both with one sample per column.
func (c *GRUCell) forward(g *num.Graph, x, h *num.Mat) *num.Mat {
	r := g.Sigmoid(g.Add(g.AddCol(g.Mul(c.Wxr, x), c.Bxr), g.AddCol(g.Mul(c.Whr, h), c.Bhr)))
	z := g.Sigmoid(g.Add(g.AddCol(g.Mul(c.Wxz, x), c.Bxz), g.AddCol(g.Mul(c.Whz, h), c.Bhz)))
	n := g.Tanh(g.Add(g.AddCol(g.Mul(c.Wxn, x), c.Bxn), g.Eltmul(r, g.AddCol(g.Mul(c.Whn, h), c.Bhn))))
	return g.Add(g.Eltmul(g.OneMinus(z), n), g.Eltmul(z, h))
}

func (c *GRUCell) params(prefix string) []Param {
	return []Param{
		{prefix + ".wxr", c.Wxr}, {prefix + ".whr", c.Whr},
		{prefix + ".bxr", c.Bxr}, {prefix + ".bhr", c.Bhr},
		{prefix + ".wxz", c.Wxz}, {prefix + ".whz", c.Whz},
		{prefix + ".bxz", c.Bxz}, {prefix + ".bhz", c.Bhz},
		{prefix + ".wxn", c.Wxn}, {prefix + ".whn", c.Whn},
		{prefix + ".bxn", c.Bxn}, {prefix + ".bhn", c.Bhn},
	}
}

// Network type represents the domain classifier model: character
// embedding, stacked GRU layers and a linear projection to class logits.
type Network struct {
	Config
	Embed *num.Mat
	Cells []*GRUCell
	Wout  *num.Mat
	Bout  *num.Mat

	// OnBatch, when not nil, is called after each training batch.
	OnBatch func(batch, batches int)

	dev num.Device
}

// New function creates a network of the configured shape with zero weights.
func New(dev num.Device, conf Config) *Network {
	n := &Network{Config: conf, dev: dev}
	n.Embed = num.NewMat(conf.VocabSize, conf.EmbedSize)
	in := conf.EmbedSize
	for i := 0; i < conf.HiddenLayers; i++ {
		n.Cells = append(n.Cells, newGRUCell(in, conf.HiddenSize))
		in = conf.HiddenSize
	}
	n.Wout = num.NewMat(conf.Classes, conf.HiddenSize)
	n.Bout = num.NewMat(conf.Classes, 1)
	return n
}

// Device returns the compute device the network was built for.
func (n *Network) Device() num.Device { return n.dev }

// Initialise network weights from the rng.
// Weights for each layer are scaled by 1/sqrt(nin), biases start at zero.
func (n *Network) InitWeights(rng *rand.Rand) {
	n.Embed = num.NewRandMat(n.VocabSize, n.EmbedSize, 1/math.Sqrt(float64(n.EmbedSize)), rng)
	for _, cell := range n.Cells {
		cell.initWeights(rng)
	}
	n.Wout = num.NewRandMat(n.Classes, n.HiddenSize, 1/math.Sqrt(float64(n.HiddenSize)), rng)
	n.Bout = num.NewMat(n.Classes, 1)
}

// Params lists the named parameters in their fixed order.
func (n *Network) Params() []Param {
	ps := []Param{{"embed", n.Embed}}
	for i, cell := range n.Cells {
		ps = append(ps, cell.params(fmt.Sprintf("gru%d", i))...)
	}
	return append(ps, Param{"out.w", n.Wout}, Param{"out.b", n.Bout})
}

func (n *Network) paramMats() []*num.Mat {
	ps := n.Params()
	mats := make([]*num.Mat, len(ps))
	for i, p := range ps {
		mats[i] = p.M
	}
	return mats
}

// Fprop feeds one batch forward and returns the class logits with one
// column per sample. The recurrent state of a sample is carried
// unchanged past its true length, so right padding never enters the
// recurrence.
func (n *Network) Fprop(g *num.Graph, b *Batch) *num.Mat {
	h := make([]*num.Mat, len(n.Cells))
	for i := range h {
		h[i] = num.NewMat(n.HiddenSize, b.Size)
	}
	for t, tokens := range b.Tokens {
		on := b.active(t)
		x := g.Lookup(n.Embed, tokens)
		for i, cell := range n.Cells {
			h[i] = g.Where(on, cell.forward(g, x, h[i]), h[i])
			x = h[i]
		}
	}
	top := h[len(h)-1]
	return g.AddCol(g.Mul(n.Wout, top), n.Bout)
}

// Forward runs inference with no gradient tape.
func (n *Network) Forward(b *Batch) *num.Mat {
	return n.Fprop(num.NewGraph(n.dev, false), b)
}

// Predict returns the most likely class per sample in batch order.
// Model state is not modified.
func (n *Network) Predict(b *Batch) []int {
	return num.Argmax(n.Forward(b))
}

// Classify encodes and scores raw domain strings, returning the
// predicted class and its probability per input, in input order.
func (n *Network) Classify(ss []string) ([]int, []float64, error) {
	if len(ss) == 0 {
		return nil, nil, nil
	}
	enc := domains.Encoder{MaxLen: n.MaxSeqLen}
	chunk := n.TestBatch
	if chunk <= 0 {
		chunk = len(ss)
	}
	classes := make([]int, 0, len(ss))
	probs := make([]float64, 0, len(ss))
	for start := 0; start < len(ss); start += chunk {
		end := min(start+chunk, len(ss))
		seqs, lens, err := enc.EncodeAll(ss[start:end])
		if err != nil {
			return nil, nil, err
		}
		p := num.Softmax(n.Forward(NewBatch(seqs, lens, nil)))
		for j, class := range num.Argmax(p) {
			classes = append(classes, class)
			probs = append(probs, p.At(class, j))
		}
	}
	return classes, probs, nil
}

// CrossEntropy computes the mean softmax cross entropy between logits
// and labels. When grad is set the loss gradient is accumulated into
// logits.Dw ready for backpropagation.
func CrossEntropy(logits *num.Mat, labels []int, grad bool) float64 {
	probs := num.Softmax(logits)
	loss := 0.0
	for j, label := range labels {
		loss -= math.Log(math.Max(probs.At(label, j), 1e-12))
	}
	nb := float64(len(labels))
	if grad {
		for j, label := range labels {
			for r := 0; r < logits.Rows; r++ {
				d := probs.At(r, j)
				if r == label {
					d--
				}
				logits.Dw[r*logits.Cols+j] += d / nb
			}
		}
	}
	return loss / nb
}

// Update applies one gradient descent step at the fixed learning rate
// with optional weight decay, then clears the gradients.
func (n *Network) Update() {
	for _, m := range n.paramMats() {
		if n.Lambda != 0 {
			num.Axpy(n.Lambda, m.W, m.Dw)
		}
		num.Axpy(-n.Eta, m.Dw, m.W)
		m.ZeroGrad()
	}
}

// Accuracy runs a no gradient pass over all batches and returns the
// exact match fraction of predicted versus true classes. If pred is not
// nil it is filled with the predicted class per sample.
func (n *Network) Accuracy(dset *Dataset, pred []int) float64 {
	if dset.Samples == 0 {
		return 0
	}
	correct := 0
	for b := 0; b < dset.Batches; b++ {
		batch := dset.Batch(b)
		classes := n.Predict(batch)
		for j, class := range classes {
			if class == batch.Labels[j] {
				correct++
			}
		}
		if pred != nil {
			copy(pred[b*dset.BatchSize:], classes)
		}
	}
	return float64(correct) / float64(dset.Samples)
}

// Print network description
func (n *Network) String() string {
	s := []string{fmt.Sprintf("%2d: embedding %d x %d", 0, n.VocabSize, n.EmbedSize)}
	in := n.EmbedSize
	for i := range n.Cells {
		s = append(s, fmt.Sprintf("%2d: gru %d to %d", i+1, in, n.HiddenSize))
		in = n.HiddenSize
	}
	s = append(s, fmt.Sprintf("%2d: linear %d to %d", len(n.Cells)+1, n.HiddenSize, n.Classes))
	return fmt.Sprintf("%s\n== Network ==\n%s", n.Config, strings.Join(s, "\n"))
}

// NewRNG returns a seeded random source. A seed <= 0 draws the seed
// from the clock; the seed actually used is returned alongside.
func NewRNG(seed int64) (*rand.Rand, int64) {
	if seed <= 0 {
		seed = time.Now().UTC().UnixNano()
	}
	return rand.New(rand.NewSource(seed)), seed
}
