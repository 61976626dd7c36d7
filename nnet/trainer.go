package nnet

import (
	"strings"
	"time"

	"github.com/naimnv/dganet/logger"
	"github.com/naimnv/dganet/num"
	"github.com/naimnv/dganet/stats"
)

// window for the smoothed accuracy moving average
const emaN = 10

// StatsHeaders lists the metric names recorded after each epoch.
func StatsHeaders() []string {
	return []string{"loss", "test accuracy", "accuracy avg"}
}

// Tester interface to evaluate performance after each epoch, Test method
// returns true if training should stop.
type Tester interface {
	Test(net *Network, epoch int, loss float64, start time.Time) bool
}

// Tester which evaluates held out accuracy each epoch and keeps the
// per epoch history.
type TestBase struct {
	Data    *Dataset
	Pred    []int
	Stats   []stats.Stats
	Headers []string
}

// Create a new base tester evaluating against the given dataset.
func NewTestBase(dset *Dataset) *TestBase {
	return &TestBase{Data: dset, Headers: StatsHeaders(), Stats: []stats.Stats{}}
}

// Generate the predicted classes when the test is next run.
func (t *TestBase) Predict() *TestBase {
	t.Pred = make([]int, t.Data.Samples)
	return t
}

// Reset stats prior to a new run.
func (t *TestBase) Reset() {
	t.Stats = t.Stats[:0]
}

// Test the network performance, called from the Train function on
// completion of each epoch.
func (t *TestBase) Test(net *Network, epoch int, loss float64, start time.Time) bool {
	acc := net.Accuracy(t.Data, t.Pred)
	s := stats.Stats{Epoch: epoch, Values: []float64{loss, acc}, BestSince: -1}
	// smoothed accuracy and the number of epochs since it last improved
	avg := 0.0
	if epoch > 1 {
		avg = t.Stats[epoch-2].Values[2]
	}
	avg = stats.EMA(avg).Add(acc, emaN)
	s.Values = append(s.Values, avg)
	for ep := epoch - 1; ep >= 1; ep-- {
		if t.Stats[ep-1].Values[2] < avg {
			s.BestSince = epoch - ep - 1
			break
		}
	}
	s.Elapsed = time.Since(start)
	t.Stats = append(t.Stats, s)
	return epoch >= net.MaxEpoch || loss <= net.MinLoss ||
		(net.StopAfter > 0 && s.BestSince >= net.StopAfter)
}

// TestLogger wraps TestBase to report the stats for each epoch and the
// mean epoch time once training ends.
type TestLogger struct {
	*TestBase
	log       logger.Logger
	epochTime stats.Average
	prev      time.Duration
}

func NewTestLogger(dset *Dataset, log logger.Logger) *TestLogger {
	return &TestLogger{TestBase: NewTestBase(dset), log: log}
}

func (t *TestLogger) Test(net *Network, epoch int, loss float64, start time.Time) bool {
	done := t.TestBase.Test(net, epoch, loss, start)
	s := t.Stats[len(t.Stats)-1]
	t.epochTime.Add((s.Elapsed - t.prev).Seconds())
	t.prev = s.Elapsed
	if done || net.LogEvery == 0 || epoch%net.LogEvery == 0 {
		ev := t.log.Info().Int("epoch", epoch)
		for i, val := range s.Format() {
			ev = ev.Str(t.Headers[i], strings.TrimSpace(val))
		}
		ev.Msg("epoch complete")
	}
	if done {
		t.log.Info().Str("run time", s.Elapsed.Round(10*time.Millisecond).String()).
			Str("epoch sec", t.epochTime.String()).Msg("training finished")
	}
	return done
}

// Train the network on the training set by updating the weights for at
// most MaxEpoch epochs. The tester decides early termination.
func Train(net *Network, dset *Dataset, test Tester) {
	done := false
	start := time.Now()
	for epoch := 1; epoch <= net.MaxEpoch && !done; epoch++ {
		loss := TrainEpoch(net, dset)
		done = test.Test(net, epoch, loss, start)
	}
}

// Perform one training epoch over the dataset, returns the mean loss.
// Each batch is encoded, fed forward, backpropagated and applied before
// the next batch starts.
func TrainEpoch(net *Network, dset *Dataset) float64 {
	if dset.Samples == 0 {
		return 0
	}
	if net.Shuffle {
		dset.Shuffle()
	}
	total := 0.0
	for b := 0; b < dset.Batches; b++ {
		batch := dset.Batch(b)
		g := num.NewGraph(net.dev, true)
		logits := net.Fprop(g, batch)
		loss := CrossEntropy(logits, batch.Labels, true)
		g.Backward()
		if net.MaxNorm > 0 {
			num.ClipGradients(net.paramMats(), net.MaxNorm)
		}
		net.Update()
		total += loss * float64(batch.Size)
		if net.OnBatch != nil {
			net.OnBatch(b+1, dset.Batches)
		}
	}
	return total / float64(dset.Samples)
}
