package nnet

import (
	"math"
	"math/rand"

	"github.com/naimnv/dganet/domains"
)

// Batch is one mini batch of encoded domains. Tokens is time major:
// Tokens[t][j] is the character code of sample j at step t, trimmed to
// the longest true length in the batch. Lengths holds true lengths and
// Labels the class per sample. Batches are materialized on demand and
// discarded after the step.
type Batch struct {
	Tokens  [][]int64
	Lengths []int
	Labels  []int
	Size    int
}

// active reports which samples are still within their true length at step t.
func (b *Batch) active(t int) []bool {
	on := make([]bool, b.Size)
	for j, n := range b.Lengths {
		on[j] = t < n
	}
	return on
}

// NewBatch assembles time major token codes from per sample sequences.
// labels may be nil for inference input.
func NewBatch(seqs [][]int64, lengths []int, labels []int) *Batch {
	size := len(seqs)
	steps := 0
	for _, n := range lengths {
		if n > steps {
			steps = n
		}
	}
	tokens := make([][]int64, steps)
	for t := range tokens {
		row := make([]int64, size)
		for j, seq := range seqs {
			row[j] = seq[t]
		}
		tokens[t] = row
	}
	return &Batch{Tokens: tokens, Lengths: lengths, Labels: labels, Size: size}
}

// Dataset type encapsulates a set of training or test records and
// produces encoded batches. Encoding is recomputed for each batch,
// batches are served strictly one at a time.
type Dataset struct {
	Samples   int
	BatchSize int
	Batches   int
	recs      domains.Records
	enc       domains.Encoder
	indexes   []int
	rng       *rand.Rand
}

// NewDataset creates a dataset over the records with the given encoder
// width and batch size. A batch size of 0, or one larger than the
// record count, yields a single batch. rng is used only by Shuffle and
// may be nil to keep the presented order.
func NewDataset(recs domains.Records, maxLen, batchSize int, rng *rand.Rand) *Dataset {
	d := &Dataset{recs: recs, enc: domains.Encoder{MaxLen: maxLen}, Samples: len(recs), rng: rng}
	if batchSize <= 0 || batchSize > d.Samples {
		d.BatchSize = d.Samples
	} else {
		d.BatchSize = batchSize
	}
	if d.BatchSize > 0 {
		d.Batches = d.Samples / d.BatchSize
		if d.Samples%d.BatchSize != 0 {
			d.Batches++
		}
	}
	d.indexes = make([]int, d.Samples)
	for i := range d.indexes {
		d.indexes[i] = i
	}
	return d
}

// Shuffle permutes the sample order for subsequent batches.
func (d *Dataset) Shuffle() {
	if d.rng != nil {
		d.indexes = d.rng.Perm(d.Samples)
	}
}

// Batch encodes and returns batch i. Records were validated on load so
// encoding cannot fail here.
func (d *Dataset) Batch(i int) *Batch {
	start := i * d.BatchSize
	end := start + d.BatchSize
	if end > d.Samples {
		end = d.Samples
	}
	idx := d.indexes[start:end]
	seqs := make([][]int64, len(idx))
	lengths := make([]int, len(idx))
	labels := make([]int, len(idx))
	for j, ix := range idx {
		rec := d.recs[ix]
		seq, n, err := d.enc.Encode(rec.Domain)
		if err != nil {
			panic(err)
		}
		seqs[j], lengths[j], labels[j] = seq, n, rec.Label
	}
	return NewBatch(seqs, lengths, labels)
}

// Split partitions records into train and test sets once, drawing the
// test set as a random testFrac fraction clamped to [0,1]. The
// permutation comes from rng so a pinned seed gives a reproducible
// split.
func Split(recs domains.Records, testFrac float64, rng *rand.Rand) (train, test domains.Records) {
	testFrac = math.Max(0, math.Min(1, testFrac))
	perm := rng.Perm(len(recs))
	nTest := int(float64(len(recs)) * testFrac)
	test = make(domains.Records, 0, nTest)
	train = make(domains.Records, 0, len(recs)-nTest)
	for i, ix := range perm {
		if i < nTest {
			test = append(test, recs[ix])
		} else {
			train = append(train, recs[ix])
		}
	}
	return train, test
}
