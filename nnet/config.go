package nnet

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/naimnv/dganet/domains"
)

// Training configuration settings
type Config struct {
	Model        string
	Eta          float64
	Lambda       float64
	MaxNorm      float64
	TrainBatch   int
	TestBatch    int
	MaxEpoch     int
	TestSplit    float64
	MaxSeqLen    int
	VocabSize    int
	EmbedSize    int
	HiddenSize   int
	HiddenLayers int
	Classes      int
	Shuffle      bool
	RandSeed     int64
	Device       string
	LogEvery     int
	MinLoss      float64
	StopAfter    int
}

// DefaultConfig returns the standard settings for domain classifier training.
func DefaultConfig() Config {
	return Config{
		Model:        "dga",
		Eta:          0.1,
		TrainBatch:   10000,
		TestBatch:    10000,
		MaxEpoch:     25,
		TestSplit:    0.3,
		MaxSeqLen:    100,
		VocabSize:    domains.VocabSize,
		EmbedSize:    100,
		HiddenSize:   100,
		HiddenLayers: 2,
		Classes:      2,
		Device:       "auto",
	}
}

// LoadConfig reads settings from a JSON file, or YAML when the file name
// ends in .yaml or .yml. Absent keys keep their default values.
func LoadConfig(path string) (Config, error) {
	c := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &c)
	default:
		err = json.Unmarshal(data, &c)
	}
	if err != nil {
		return c, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Save writes the config to file, as YAML when the file name ends in
// .yaml or .yml and indented JSON otherwise.
func (c Config) Save(path string) error {
	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c Config) Fields() []string {
	st := reflect.TypeOf(c)
	fld := make([]string, st.NumField())
	for i := range fld {
		fld[i] = st.Field(i).Name
	}
	return fld
}

func (c Config) Get(key string) interface{} {
	s := reflect.ValueOf(c)
	return s.FieldByName(key).Interface()
}

func (c Config) String() string {
	str := []string{"== Config =="}
	for _, key := range c.Fields() {
		str = append(str, fmt.Sprintf("%-14s: %v", key, c.Get(key)))
	}
	return strings.Join(str, "\n")
}

// SetString assigns a config field from its string representation, as
// used for key=value command line overrides. Field names are matched
// case insensitively.
func (c Config) SetString(key, val string) (Config, error) {
	s := reflect.ValueOf(&c).Elem()
	f := s.FieldByNameFunc(func(name string) bool { return strings.EqualFold(name, key) })
	if !f.IsValid() {
		return c, fmt.Errorf("unknown config field %q", key)
	}
	var err error
	switch f.Type().Kind() {
	case reflect.Int, reflect.Int64:
		var x int64
		if x, err = strconv.ParseInt(val, 10, 64); err == nil {
			f.SetInt(x)
		}
	case reflect.Float64:
		var x float64
		if x, err = strconv.ParseFloat(val, 64); err == nil {
			f.SetFloat(x)
		}
	case reflect.Bool:
		var x bool
		if x, err = strconv.ParseBool(val); err == nil {
			f.SetBool(x)
		}
	case reflect.String:
		f.SetString(val)
	default:
		return c, fmt.Errorf("invalid type for SetString: %v", f.Type().Kind())
	}
	if err != nil {
		return c, fmt.Errorf("config field %s: %w", key, err)
	}
	return c, nil
}
