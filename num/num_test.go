package num

import (
	"math"
	"math/rand"
	"testing"
)

const eps = 1e-9

func compareVals(t *testing.T, title string, got, want []float64, tol float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: length %d != %d", title, len(got), len(want))
	}
	for i := range got {
		if math.Abs(got[i]-want[i]) > tol {
			t.Errorf("%s: element %d got %g want %g", title, i, got[i], want[i])
		}
	}
}

func TestMatBasics(t *testing.T) {
	m := NewMatValues(2, 3, []float64{1, 2, 3, 4, 5, 6})
	if m.At(0, 2) != 3 || m.At(1, 0) != 4 {
		t.Errorf("At: got %g %g", m.At(0, 2), m.At(1, 0))
	}
	m.Set(1, 1, -5)
	if m.At(1, 1) != -5 {
		t.Errorf("Set: got %g", m.At(1, 1))
	}
	compareVals(t, "col", m.Col(1), []float64{2, -5}, 0)
	c := m.Copy()
	c.Set(0, 0, 99)
	if m.At(0, 0) != 1 {
		t.Error("Copy: backing array is shared")
	}
	m.Dw[0] = 1
	m.ZeroGrad()
	if m.Dw[0] != 0 {
		t.Error("ZeroGrad: gradient not cleared")
	}
}

func TestAxpy(t *testing.T) {
	x := []float64{1, 2, 3}
	y := []float64{10, 20, 30}
	Axpy(2, x, y)
	compareVals(t, "axpy", y, []float64{12, 24, 36}, 0)
}

func TestSoftmax(t *testing.T) {
	m := NewMatValues(3, 2, []float64{
		1, 1000,
		2, 1001,
		3, 1002,
	})
	p := Softmax(m)
	// large offsets cancel, both columns give the same distribution
	e1, e2, e3 := math.Exp(1.0), math.Exp(2.0), math.Exp(3.0)
	z := e1 + e2 + e3
	want := []float64{e1 / z, e1 / z, e2 / z, e2 / z, e3 / z, e3 / z}
	compareVals(t, "softmax", p.W, want, eps)
	for c := 0; c < p.Cols; c++ {
		sum := 0.0
		for r := 0; r < p.Rows; r++ {
			sum += p.At(r, c)
		}
		if math.Abs(sum-1) > eps {
			t.Errorf("softmax column %d sums to %g", c, sum)
		}
	}
}

func TestArgmax(t *testing.T) {
	m := NewMatValues(3, 4, []float64{
		1, 9, -1, 0,
		5, 2, -2, 1,
		3, 4, -3, -1,
	})
	got := Argmax(m)
	want := []int{1, 0, 0, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("argmax col %d: got %d want %d", i, got[i], want[i])
		}
	}
}

func TestClipGradients(t *testing.T) {
	a := NewMat(1, 2)
	b := NewMat(1, 2)
	a.Dw = []float64{3, 0}
	b.Dw = []float64{0, 4}
	norm := ClipGradients([]*Mat{a, b}, 1)
	if math.Abs(norm-5) > eps {
		t.Errorf("norm: got %g want 5", norm)
	}
	compareVals(t, "clipped a", a.Dw, []float64{0.6, 0}, eps)
	compareVals(t, "clipped b", b.Dw, []float64{0, 0.8}, eps)

	c := NewMat(1, 1)
	c.Dw[0] = 0.5
	ClipGradients([]*Mat{c}, 1)
	if c.Dw[0] != 0.5 {
		t.Error("gradient below the limit was rescaled")
	}
}

func TestDeviceSelect(t *testing.T) {
	for _, name := range []string{"", "auto", "parallel", "serial"} {
		dev, err := Select(name)
		if err != nil {
			t.Errorf("Select(%q): %v", name, err)
		}
		if dev.Workers < 1 {
			t.Errorf("Select(%q): workers = %d", name, dev.Workers)
		}
	}
	if _, err := Select("gpu"); err == nil {
		t.Error("Select(gpu): expected error")
	}
	dev, _ := Select("serial")
	if dev.Workers != 1 {
		t.Errorf("serial workers = %d", dev.Workers)
	}
}

// Parallel and serial devices must produce identical values.
func TestDeviceEquivalence(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	a := NewRandMat(80, 80, 1, rng)
	b := NewRandMat(80, 80, 1, rng)
	serial := NewGraph(Device{Workers: 1}, false)
	parallel := NewGraph(Device{Workers: 4}, false)
	s := serial.Sigmoid(serial.Add(a, b))
	p := parallel.Sigmoid(parallel.Add(a, b))
	for i := range s.W {
		if s.W[i] != p.W[i] {
			t.Fatalf("element %d: serial %v != parallel %v", i, s.W[i], p.W[i])
		}
	}
}
