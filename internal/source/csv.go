package source

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// LoadCSV reads the discovery CSV (one endpoint per row, with a
// service_endpoint column and an optional kind column) and returns the
// valid sources sorted by ID. Duplicate identities collapse to one
// source; invalid rows are skipped and reported through warn.
func LoadCSV(path string, warn func(row []string, err error)) ([]Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseCSV(f, warn)
}

// ParseCSV is LoadCSV over an arbitrary reader.
func ParseCSV(r io.Reader, warn func(row []string, err error)) ([]Source, error) {
	if warn == nil {
		warn = func([]string, error) {}
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("source: read csv header: %w", err)
	}
	addrCol, kindCol := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(strings.ToLower(name)) {
		case "service_endpoint", "endpoint", "address":
			addrCol = i
		case "kind":
			kindCol = i
		}
	}
	if addrCol < 0 {
		return nil, fmt.Errorf("source: csv has no service_endpoint column (header %v)", header)
	}

	byID := make(map[string]Source)
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("source: read csv row: %w", err)
		}
		if addrCol >= len(row) {
			continue
		}
		kind := Kind("")
		if kindCol >= 0 && kindCol < len(row) {
			kind = Kind(strings.TrimSpace(row[kindCol]))
		}
		src, err := New(row[addrCol], kind)
		if err != nil {
			warn(row, err)
			continue
		}
		if _, dup := byID[src.ID]; dup {
			warn(row, fmt.Errorf("source: duplicate endpoint %s", src.ID))
			continue
		}
		byID[src.ID] = src
	}

	out := make([]Source, 0, len(byID))
	for _, s := range byID {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// LoadOverrides reads an optional JSON file mapping source IDs to
// explicit resume sequence numbers. Keys are normalized before lookup so
// operators may write addresses in any equivalent form.
func LoadOverrides(path string) (map[string]uint64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw := map[string]uint64{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("source: parse overrides %s: %w", path, err)
	}
	out := make(map[string]uint64, len(raw))
	for k, v := range raw {
		id, err := Normalize(k)
		if err != nil {
			return nil, fmt.Errorf("source: override key %q: %w", k, err)
		}
		out[id] = v
	}
	return out, nil
}
