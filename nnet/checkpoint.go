package nnet

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/naimnv/dganet/num"
)

// Checkpoint file layout: the magic bytes, a format version, a little
// endian uint32 header length, a JSON header carrying the settings and
// tensor manifest, then the raw little endian float64 tensor values in
// manifest order. Float64 bits are preserved so a save/load round trip
// reproduces predictions exactly.
var ckptMagic = [4]byte{'D', 'G', 'A', 'N'}

const (
	ckptVersion   = 1
	maxHeaderSize = 1 << 24
)

var (
	// ErrBadCheckpoint reports a missing, corrupt or truncated file.
	ErrBadCheckpoint = errors.New("invalid checkpoint")
	// ErrShapeMismatch reports settings incompatible with the stored tensors.
	ErrShapeMismatch = errors.New("checkpoint shape mismatch")
)

type ckptHeader struct {
	SavedAt time.Time   `json:"saved_at"`
	RunID   string      `json:"run_id,omitempty"`
	Config  Config      `json:"config"`
	Params  []paramInfo `json:"params"`
}

type paramInfo struct {
	Name string `json:"name"`
	Rows int    `json:"rows"`
	Cols int    `json:"cols"`
}

// CheckpointInfo describes a loaded checkpoint.
type CheckpointInfo struct {
	SavedAt time.Time
	RunID   string
}

// SaveCheckpoint serializes the network parameters and settings to a
// binary file, creating parent directories as needed. The file is
// written to a temporary name and renamed into place so a crash never
// leaves a partial checkpoint behind.
func SaveCheckpoint(net *Network, path, runID string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".ckpt-")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := writeCheckpoint(tmp, net, runID); err != nil {
		tmp.Close()
		return fmt.Errorf("save checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// SaveTimestamped writes a checkpoint under dir named by the model and
// the current UTC time, returning the path. The timestamp avoids
// collisions between runs without guaranteeing uniqueness.
func SaveTimestamped(net *Network, dir, runID string) (string, error) {
	name := fmt.Sprintf("%s_%s.ckpt", net.Model, time.Now().UTC().Format("20060102-150405"))
	path := filepath.Join(dir, name)
	return path, SaveCheckpoint(net, path, runID)
}

func writeCheckpoint(f io.Writer, net *Network, runID string) error {
	w := bufio.NewWriter(f)
	params := net.Params()
	hdr := ckptHeader{SavedAt: time.Now().UTC(), RunID: runID, Config: net.Config}
	for _, p := range params {
		hdr.Params = append(hdr.Params, paramInfo{Name: p.Name, Rows: p.M.Rows, Cols: p.M.Cols})
	}
	hdrData, err := json.Marshal(hdr)
	if err != nil {
		return err
	}
	if _, err := w.Write(ckptMagic[:]); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(ckptVersion)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(hdrData))); err != nil {
		return err
	}
	if _, err := w.Write(hdrData); err != nil {
		return err
	}
	for _, p := range params {
		if err := binary.Write(w, binary.LittleEndian, p.M.W); err != nil {
			return err
		}
	}
	return w.Flush()
}

// LoadCheckpoint reconstructs a network of the stored shape on the given
// device and fills in its parameters.
func LoadCheckpoint(path string, dev num.Device) (*Network, CheckpointInfo, error) {
	var info CheckpointInfo
	f, err := os.Open(path)
	if err != nil {
		return nil, info, err
	}
	defer f.Close()
	net, info, err := readCheckpoint(bufio.NewReader(f), dev)
	if err != nil {
		return nil, info, fmt.Errorf("%s: %w", path, err)
	}
	return net, info, nil
}

func readCheckpoint(r io.Reader, dev num.Device) (*Network, CheckpointInfo, error) {
	var info CheckpointInfo
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, info, fmt.Errorf("%w: %v", ErrBadCheckpoint, err)
	}
	if magic != ckptMagic {
		return nil, info, fmt.Errorf("%w: bad magic %q", ErrBadCheckpoint, magic[:])
	}
	var version, hdrLen uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, info, fmt.Errorf("%w: %v", ErrBadCheckpoint, err)
	}
	if version != ckptVersion {
		return nil, info, fmt.Errorf("%w: unsupported version %d", ErrBadCheckpoint, version)
	}
	if err := binary.Read(r, binary.LittleEndian, &hdrLen); err != nil {
		return nil, info, fmt.Errorf("%w: %v", ErrBadCheckpoint, err)
	}
	if hdrLen == 0 || hdrLen > maxHeaderSize {
		return nil, info, fmt.Errorf("%w: header length %d", ErrBadCheckpoint, hdrLen)
	}
	hdrData := make([]byte, hdrLen)
	if _, err := io.ReadFull(r, hdrData); err != nil {
		return nil, info, fmt.Errorf("%w: %v", ErrBadCheckpoint, err)
	}
	var hdr ckptHeader
	if err := json.Unmarshal(hdrData, &hdr); err != nil {
		return nil, info, fmt.Errorf("%w: %v", ErrBadCheckpoint, err)
	}
	info.SavedAt, info.RunID = hdr.SavedAt, hdr.RunID
	if !shapeValid(hdr.Config) {
		return nil, info, fmt.Errorf("%w: invalid model shape in header", ErrBadCheckpoint)
	}
	net := New(dev, hdr.Config)
	params := net.Params()
	if len(params) != len(hdr.Params) {
		return nil, info, fmt.Errorf("%w: %d tensors stored, %d expected",
			ErrShapeMismatch, len(hdr.Params), len(params))
	}
	for i, p := range params {
		pi := hdr.Params[i]
		if pi.Name != p.Name || pi.Rows != p.M.Rows || pi.Cols != p.M.Cols {
			return nil, info, fmt.Errorf("%w: tensor %s %dx%d, want %s %dx%d",
				ErrShapeMismatch, pi.Name, pi.Rows, pi.Cols, p.Name, p.M.Rows, p.M.Cols)
		}
		if err := binary.Read(r, binary.LittleEndian, p.M.W); err != nil {
			return nil, info, fmt.Errorf("%w: tensor %s: %v", ErrBadCheckpoint, p.Name, err)
		}
	}
	return net, info, nil
}

// shapeValid reports whether stored dimensions describe a model that
// can be built.
func shapeValid(c Config) bool {
	return c.VocabSize > 0 && c.EmbedSize > 0 && c.HiddenSize > 0 &&
		c.HiddenLayers > 0 && c.Classes > 0 && c.MaxSeqLen > 0
}

// Compatible reports whether a stored configuration can serve a caller
// expecting this vocabulary and class configuration.
func (c Config) Compatible(stored Config) error {
	if c.VocabSize != stored.VocabSize {
		return fmt.Errorf("%w: vocab size %d, want %d", ErrShapeMismatch, stored.VocabSize, c.VocabSize)
	}
	if c.Classes != stored.Classes {
		return fmt.Errorf("%w: classes %d, want %d", ErrShapeMismatch, stored.Classes, c.Classes)
	}
	return nil
}
