// Package stats collects training run statistics: per epoch histories,
// running averages and binary classification metrics.
package stats

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Calc exponential moving average over approximately the last n values
type EMA float64

func (e EMA) Add(val, n float64) float64 {
	if e == 0 {
		return val
	}
	k := 2.0 / (n + 1.0)
	return val*k + float64(e)*(1-k)
}

// Running mean and stddev as per http://www.johndcook.com/blog/standard_deviation/
type Average struct {
	Count, Mean float64
	Var, StdDev float64
	oldM, oldV  float64
}

func (s *Average) Add(x float64) {
	s.Count++
	if s.Count == 1 {
		s.oldM, s.Mean = x, x
		s.oldV = 0
	} else {
		s.Mean = s.oldM + (x-s.oldM)/s.Count
		s.Var = s.oldV + (x-s.oldM)*(x-s.Mean)
		s.oldM, s.oldV = s.Mean, s.Var
		if s.Count > 1 {
			s.StdDev = math.Sqrt(s.Var / (s.Count - 1))
		}
	}
}

func (s *Average) String() string {
	if s.StdDev < 0.01 {
		return fmt.Sprintf("%.3g", s.Mean)
	}
	return fmt.Sprintf("%.3g (sd %.2g)", s.Mean, s.StdDev)
}

// Stats holds the values recorded after one training epoch. Values[0] is
// the training loss, following entries are accuracies in [0,1] keyed by
// the Headers the trainer reports.
type Stats struct {
	Epoch     int
	Values    []float64
	BestSince int
	Elapsed   time.Duration
}

func (s Stats) Format() []string {
	str := []string{fmt.Sprintf("%7.4f", s.Values[0])}
	for _, v := range s.Values[1:] {
		str = append(str, fmt.Sprintf("%6.2f%%", v*100))
	}
	return str
}

// Confusion is a binary confusion matrix with class 1 as the positive.
type Confusion struct {
	TP, FP, TN, FN int
}

// Add records one prediction against the true label.
func (c *Confusion) Add(pred, label int) {
	switch {
	case pred == 1 && label == 1:
		c.TP++
	case pred == 1 && label == 0:
		c.FP++
	case pred == 0 && label == 0:
		c.TN++
	case pred == 0 && label == 1:
		c.FN++
	}
}

func (c Confusion) Total() int { return c.TP + c.FP + c.TN + c.FN }

func (c Confusion) Accuracy() float64 {
	if c.Total() == 0 {
		return 0
	}
	return float64(c.TP+c.TN) / float64(c.Total())
}

func (c Confusion) Precision() float64 {
	if c.TP+c.FP == 0 {
		return 0
	}
	return float64(c.TP) / float64(c.TP+c.FP)
}

func (c Confusion) Recall() float64 {
	if c.TP+c.FN == 0 {
		return 0
	}
	return float64(c.TP) / float64(c.TP+c.FN)
}

func (c Confusion) F1() float64 {
	p, r := c.Precision(), c.Recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

func (c Confusion) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%16s%10s\n", "pred benign", "pred dga")
	fmt.Fprintf(&sb, "benign%10d%10d\n", c.TN, c.FP)
	fmt.Fprintf(&sb, "dga   %10d%10d", c.FN, c.TP)
	return sb.String()
}
