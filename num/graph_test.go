package num

import (
	"math"
	"math/rand"
	"testing"
)

const (
	gradStep = 1e-5
	gradTol  = 1e-5
)

var testDev = Device{Workers: 1}

// checkGrads compares tape gradients for each parameter against central
// finite differences of the scalar objective sum(coef * out).
func checkGrads(t *testing.T, name string, build func(g *Graph) *Mat, params ...*Mat) {
	t.Helper()
	rng := rand.New(rand.NewSource(99))
	for _, p := range params {
		p.ZeroGrad()
	}
	g := NewGraph(testDev, true)
	out := build(g)
	coef := make([]float64, len(out.W))
	for i := range coef {
		coef[i] = rng.NormFloat64()
	}
	copy(out.Dw, coef)
	g.Backward()

	score := func() float64 {
		o := build(NewGraph(testDev, false))
		s := 0.0
		for i, v := range o.W {
			s += coef[i] * v
		}
		return s
	}
	for pi, p := range params {
		for i := range p.W {
			old := p.W[i]
			p.W[i] = old + gradStep
			plus := score()
			p.W[i] = old - gradStep
			minus := score()
			p.W[i] = old
			want := (plus - minus) / (2 * gradStep)
			got := p.Dw[i]
			if math.Abs(got-want) > gradTol*(1+math.Abs(want)) {
				t.Errorf("%s: param %d element %d grad %g want %g", name, pi, i, got, want)
			}
		}
	}
}

func randMats(rng *rand.Rand, shapes ...[2]int) []*Mat {
	mats := make([]*Mat, len(shapes))
	for i, s := range shapes {
		mats[i] = NewRandMat(s[0], s[1], 0.5, rng)
	}
	return mats
}

func TestMulForward(t *testing.T) {
	g := NewGraph(testDev, false)
	a := NewMatValues(2, 3, []float64{1, 2, 3, 4, 5, 6})
	b := NewMatValues(3, 2, []float64{7, 8, 9, 10, 11, 12})
	c := g.Mul(a, b)
	want := []float64{58, 64, 139, 154}
	compareVals(t, "mul", c.W, want, eps)
}

func TestMulGrad(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	m := randMats(rng, [2]int{3, 4}, [2]int{4, 2})
	checkGrads(t, "mul", func(g *Graph) *Mat { return g.Mul(m[0], m[1]) }, m...)
}

func TestAddGrad(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	m := randMats(rng, [2]int{3, 4}, [2]int{3, 4})
	checkGrads(t, "add", func(g *Graph) *Mat { return g.Add(m[0], m[1]) }, m...)
}

func TestAddColForward(t *testing.T) {
	g := NewGraph(testDev, false)
	a := NewMatValues(2, 3, []float64{1, 2, 3, 4, 5, 6})
	bias := NewMatValues(2, 1, []float64{10, 20})
	c := g.AddCol(a, bias)
	compareVals(t, "addcol", c.W, []float64{11, 12, 13, 24, 25, 26}, eps)
}

func TestAddColGrad(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	m := randMats(rng, [2]int{3, 5}, [2]int{3, 1})
	checkGrads(t, "addcol", func(g *Graph) *Mat { return g.AddCol(m[0], m[1]) }, m...)
}

func TestEltmulGrad(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	m := randMats(rng, [2]int{4, 3}, [2]int{4, 3})
	checkGrads(t, "eltmul", func(g *Graph) *Mat { return g.Eltmul(m[0], m[1]) }, m...)
}

func TestOneMinusGrad(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	m := randMats(rng, [2]int{3, 3})
	checkGrads(t, "oneminus", func(g *Graph) *Mat { return g.OneMinus(m[0]) }, m...)
}

func TestSigmoidGrad(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	m := randMats(rng, [2]int{4, 4})
	checkGrads(t, "sigmoid", func(g *Graph) *Mat { return g.Sigmoid(m[0]) }, m...)
}

func TestTanhGrad(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	m := randMats(rng, [2]int{4, 4})
	checkGrads(t, "tanh", func(g *Graph) *Mat { return g.Tanh(m[0]) }, m...)
}

func TestLookupForward(t *testing.T) {
	g := NewGraph(testDev, false)
	table := NewMatValues(3, 2, []float64{
		0.1, 0.2,
		1.1, 1.2,
		2.1, 2.2,
	})
	out := g.Lookup(table, []int64{2, 0, 2})
	if out.Rows != 2 || out.Cols != 3 {
		t.Fatalf("lookup shape %dx%d", out.Rows, out.Cols)
	}
	compareVals(t, "lookup", out.W, []float64{2.1, 0.1, 2.1, 2.2, 0.2, 2.2}, eps)
}

func TestLookupGrad(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	m := randMats(rng, [2]int{5, 3})
	ids := []int64{4, 0, 0, 2}
	checkGrads(t, "lookup", func(g *Graph) *Mat { return g.Lookup(m[0], ids) }, m...)
}

func TestWhereForward(t *testing.T) {
	g := NewGraph(testDev, false)
	a := NewMatValues(2, 3, []float64{1, 2, 3, 4, 5, 6})
	b := NewMatValues(2, 3, []float64{-1, -2, -3, -4, -5, -6})
	out := g.Where([]bool{true, false, true}, a, b)
	compareVals(t, "where", out.W, []float64{1, -2, 3, 4, -5, 6}, eps)
}

func TestWhereGrad(t *testing.T) {
	rng := rand.New(rand.NewSource(10))
	m := randMats(rng, [2]int{3, 4}, [2]int{3, 4})
	cond := []bool{true, false, false, true}
	checkGrads(t, "where", func(g *Graph) *Mat { return g.Where(cond, m[0], m[1]) }, m...)
}

// Composite chain covering the op mix used by a gated recurrent cell.
func TestGateChainGrad(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	m := randMats(rng, [2]int{3, 2}, [2]int{3, 3}, [2]int{3, 1}, [2]int{3, 2})
	x, w, b, h := m[0], m[1], m[2], m[3]
	build := func(g *Graph) *Mat {
		z := g.Sigmoid(g.AddCol(g.Mul(w, x), b))
		n := g.Tanh(g.Eltmul(z, h))
		return g.Add(g.Eltmul(g.OneMinus(z), n), g.Eltmul(z, h))
	}
	checkGrads(t, "gate chain", build, m...)
}

// Reusing a matrix in several operations must accumulate its gradient.
func TestGradAccumulation(t *testing.T) {
	a := NewMatValues(1, 1, []float64{0.5})
	g := NewGraph(testDev, true)
	out := g.Add(g.Eltmul(a, a), a)
	out.Dw[0] = 1
	g.Backward()
	// d(a*a + a)/da = 2a + 1
	if math.Abs(a.Dw[0]-2) > eps {
		t.Errorf("accumulated grad %g want 2", a.Dw[0])
	}
}
