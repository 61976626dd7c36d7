package domains

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// Record is one labeled domain: 0 benign, 1 generated.
type Record struct {
	Domain string
	Label  int
}

// Records is an immutable set of labeled domains in file order.
type Records []Record

// Strings returns the domain names in order.
func (rs Records) Strings() []string {
	ss := make([]string, len(rs))
	for i, r := range rs {
		ss[i] = r.Domain
	}
	return ss
}

// Labels returns the class labels in order.
func (rs Records) Labels() []int {
	ls := make([]int, len(rs))
	for i, r := range rs {
		ls[i] = r.Label
	}
	return ls
}

// ClassCounts returns how many records carry each label in [0,classes).
func (rs Records) ClassCounts(classes int) []int {
	counts := make([]int, classes)
	for _, r := range rs {
		if r.Label >= 0 && r.Label < classes {
			counts[r.Label]++
		}
	}
	return counts
}

// Load reads a labeled domain CSV file.
func Load(path string) (Records, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	recs, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return recs, nil
}

// Read parses CSV input with a header row naming at least the domain and
// type columns, in any order; extra columns are ignored. The type column
// holds 0/1 or the strings benign/dga. Any malformed row, unknown label
// or non-ascii domain aborts the read, nothing is partially ingested.
func Read(r io.Reader) (Records, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("csv is empty")
	}
	if err != nil {
		return nil, err
	}
	domainIx, typeIx := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "domain":
			domainIx = i
		case "type":
			typeIx = i
		}
	}
	if domainIx < 0 {
		return nil, fmt.Errorf("csv header missing domain column")
	}
	if typeIx < 0 {
		return nil, fmt.Errorf("csv header missing type column")
	}
	var recs Records
	for {
		row, err := cr.Read()
		if err == io.EOF {
			return recs, nil
		}
		if err != nil {
			return nil, err
		}
		line, _ := cr.FieldPos(0)
		domain := row[domainIx]
		for i := 0; i < len(domain); i++ {
			if domain[i] >= VocabSize {
				return nil, fmt.Errorf("line %d: %w: %q", line, ErrNotASCII, domain)
			}
		}
		label, err := parseLabel(row[typeIx])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		recs = append(recs, Record{Domain: domain, Label: label})
	}
}

func parseLabel(s string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "0", "benign":
		return 0, nil
	case "1", "dga":
		return 1, nil
	}
	return 0, fmt.Errorf("unknown label %q", s)
}
