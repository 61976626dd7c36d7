package domains

import (
	"errors"
	"testing"
)

func TestEncode(t *testing.T) {
	enc := Encoder{MaxLen: 20}
	inputs := []string{"google", "xkqjzwpqor"}
	wantLen := []int{6, 10}
	seqs, lens, err := enc.EncodeAll(inputs)
	if err != nil {
		t.Fatal(err)
	}
	for i, s := range inputs {
		if lens[i] != wantLen[i] {
			t.Errorf("%q: length %d want %d", s, lens[i], wantLen[i])
		}
		if len(seqs[i]) != 20 {
			t.Errorf("%q: sequence width %d want 20", s, len(seqs[i]))
		}
		for j := 0; j < len(seqs[i]); j++ {
			want := int64(0)
			if j < len(s) {
				want = int64(s[j])
			}
			if seqs[i][j] != want {
				t.Errorf("%q: code %d got %d want %d", s, j, seqs[i][j], want)
			}
		}
	}
}

func TestEncodeTruncates(t *testing.T) {
	enc := Encoder{MaxLen: 4}
	seq, n, err := enc.Encode("abcdefgh")
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Errorf("length %d want 4", n)
	}
	if len(seq) != 4 {
		t.Fatalf("width %d want 4", len(seq))
	}
	for i, c := range []int64{'a', 'b', 'c', 'd'} {
		if seq[i] != c {
			t.Errorf("code %d got %d want %d", i, seq[i], c)
		}
	}
}

func TestEncodeEmpty(t *testing.T) {
	enc := Encoder{MaxLen: 5}
	seq, n, err := enc.Encode("")
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("length %d want 0", n)
	}
	for i, c := range seq {
		if c != 0 {
			t.Errorf("code %d got %d want 0", i, c)
		}
	}
}

func TestEncodeRejectsNonASCII(t *testing.T) {
	enc := Encoder{MaxLen: 10}
	if _, _, err := enc.Encode("google\x80x"); !errors.Is(err, ErrNotASCII) {
		t.Errorf("got %v want ErrNotASCII", err)
	}
	// validation covers the whole string, not just the truncated prefix
	enc = Encoder{MaxLen: 2}
	if _, _, err := enc.Encode("abc\xffd"); !errors.Is(err, ErrNotASCII) {
		t.Errorf("got %v want ErrNotASCII", err)
	}
}

func TestEncodeDeterministic(t *testing.T) {
	enc := Encoder{MaxLen: 100}
	a, na, err := enc.Encode("cdn.weather-checker.info")
	if err != nil {
		t.Fatal(err)
	}
	b, nb, err := enc.Encode("cdn.weather-checker.info")
	if err != nil {
		t.Fatal(err)
	}
	if na != nb {
		t.Errorf("lengths differ: %d != %d", na, nb)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("code %d differs: %d != %d", i, a[i], b[i])
		}
	}
}
