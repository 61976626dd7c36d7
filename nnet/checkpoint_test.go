package nnet

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/naimnv/dganet/num"
)

func TestCheckpointRoundTrip(t *testing.T) {
	net := testNet(t, 21)
	b := testBatch()
	pred := net.Predict(b)
	path := filepath.Join(t.TempDir(), "runs", "a", "model.ckpt")
	if err := SaveCheckpoint(net, path, "run-21"); err != nil {
		t.Fatal("save error:", err)
	}
	dev, _ := num.Select("serial")
	net2, info, err := LoadCheckpoint(path, dev)
	if err != nil {
		t.Fatal("load error:", err)
	}
	if info.RunID != "run-21" {
		t.Error("run id: expected run-21 got", info.RunID)
	}
	if time.Since(info.SavedAt) > time.Minute || info.SavedAt.IsZero() {
		t.Error("implausible save time:", info.SavedAt)
	}
	if net2.Config != net.Config {
		t.Errorf("config mismatch:\nsaved  %+v\nloaded %+v", net.Config, net2.Config)
	}
	ps, ps2 := net.Params(), net2.Params()
	for i, p := range ps {
		for j, w := range p.M.W {
			if ps2[i].M.W[j] != w {
				t.Fatalf("%s[%d]: value changed in round trip", p.Name, j)
			}
		}
	}
	pred2 := net2.Predict(b)
	for j := range pred {
		if pred[j] != pred2[j] {
			t.Error("prediction changed after reload at sample", j)
		}
	}
}

func TestSaveTimestamped(t *testing.T) {
	net := testNet(t, 22)
	dir := t.TempDir()
	path, err := SaveTimestamped(net, dir, "")
	if err != nil {
		t.Fatal("save error:", err)
	}
	name := filepath.Base(path)
	if !strings.HasPrefix(name, "dga_") || !strings.HasSuffix(name, ".ckpt") {
		t.Error("unexpected checkpoint name:", name)
	}
	if fi, err := os.Stat(path); err != nil || fi.Size() == 0 {
		t.Error("checkpoint not written:", err)
	}
}

func TestLoadCheckpointErrors(t *testing.T) {
	dir := t.TempDir()
	dev, _ := num.Select("serial")
	if _, _, err := LoadCheckpoint(filepath.Join(dir, "none.ckpt"), dev); err == nil {
		t.Error("expected error for missing file")
	}

	junk := filepath.Join(dir, "junk.ckpt")
	os.WriteFile(junk, []byte("NOPEnope"), 0644)
	if _, _, err := LoadCheckpoint(junk, dev); !errors.Is(err, ErrBadCheckpoint) {
		t.Error("bad magic: expected ErrBadCheckpoint got", err)
	}

	net := testNet(t, 23)
	good := filepath.Join(dir, "good.ckpt")
	if err := SaveCheckpoint(net, good, ""); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(good)
	if err != nil {
		t.Fatal(err)
	}
	cut := filepath.Join(dir, "cut.ckpt")
	os.WriteFile(cut, data[:len(data)/2], 0644)
	if _, _, err := LoadCheckpoint(cut, dev); !errors.Is(err, ErrBadCheckpoint) {
		t.Error("truncated: expected ErrBadCheckpoint got", err)
	}

	buf := &bytes.Buffer{}
	buf.Write(ckptMagic[:])
	binary.Write(buf, binary.LittleEndian, uint32(99))
	binary.Write(buf, binary.LittleEndian, uint32(2))
	buf.WriteString("{}")
	vers := filepath.Join(dir, "vers.ckpt")
	os.WriteFile(vers, buf.Bytes(), 0644)
	if _, _, err := LoadCheckpoint(vers, dev); !errors.Is(err, ErrBadCheckpoint) {
		t.Error("future version: expected ErrBadCheckpoint got", err)
	}
}

// writeRawCheckpoint assembles a checkpoint file straight from a header
// and tensor list, bypassing SaveCheckpoint so tests can store headers
// the writer would never produce.
func writeRawCheckpoint(t *testing.T, path string, hdr ckptHeader, params []Param) {
	t.Helper()
	hdrData, err := json.Marshal(hdr)
	if err != nil {
		t.Fatal(err)
	}
	buf := &bytes.Buffer{}
	buf.Write(ckptMagic[:])
	binary.Write(buf, binary.LittleEndian, uint32(ckptVersion))
	binary.Write(buf, binary.LittleEndian, uint32(len(hdrData)))
	buf.Write(hdrData)
	for _, p := range params {
		binary.Write(buf, binary.LittleEndian, p.M.W)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadCheckpointShapeMismatch(t *testing.T) {
	net := testNet(t, 24)
	hdr := ckptHeader{SavedAt: time.Now().UTC(), Config: net.Config}
	for _, p := range net.Params() {
		hdr.Params = append(hdr.Params, paramInfo{Name: p.Name, Rows: p.M.Rows, Cols: p.M.Cols})
	}
	// stored manifest disagrees with the shape its own config implies
	hdr.Params[0].Rows++
	path := filepath.Join(t.TempDir(), "bad.ckpt")
	writeRawCheckpoint(t, path, hdr, net.Params())
	dev, _ := num.Select("serial")
	if _, _, err := LoadCheckpoint(path, dev); !errors.Is(err, ErrShapeMismatch) {
		t.Error("expected ErrShapeMismatch got", err)
	}
}

func TestLoadCheckpointBadConfig(t *testing.T) {
	net := testNet(t, 25)
	dev, _ := num.Select("serial")
	confs := []Config{{}, net.Config, net.Config}
	confs[1].HiddenSize = 0
	confs[2].HiddenLayers = -1
	for i, conf := range confs {
		hdr := ckptHeader{SavedAt: time.Now().UTC(), Config: conf}
		path := filepath.Join(t.TempDir(), "bad.ckpt")
		writeRawCheckpoint(t, path, hdr, nil)
		if _, _, err := LoadCheckpoint(path, dev); !errors.Is(err, ErrBadCheckpoint) {
			t.Error("config", i, ": expected ErrBadCheckpoint got", err)
		}
	}
}

func TestConfigCompatible(t *testing.T) {
	c := DefaultConfig()
	stored := c
	stored.HiddenSize = 32
	if err := c.Compatible(stored); err != nil {
		t.Error("hidden size should not matter:", err)
	}
	stored = c
	stored.VocabSize = 64
	if err := c.Compatible(stored); !errors.Is(err, ErrShapeMismatch) {
		t.Error("vocab: expected ErrShapeMismatch got", err)
	}
	stored = c
	stored.Classes = 3
	if err := c.Compatible(stored); !errors.Is(err, ErrShapeMismatch) {
		t.Error("classes: expected ErrShapeMismatch got", err)
	}
}
