package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"k8s.io/klog/v2"

	"github.com/guimove/fleetfit/internal/model"
)

// Column names of the instance catalog export.
const (
	colAPIName = "API Name"
	colName    = "Name"
	colVCPUs   = "vCPUs"
	colMemory  = "Memory"
	colCost    = "Linux Reserved cost"
)

// ErrMissingColumn is returned when a required CSV column is absent.
var ErrMissingColumn = errors.New("missing column")

// LoadCSVFile reads a catalog export from path.
func LoadCSVFile(path string) ([]RawNodeType, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}
	defer func() { _ = f.Close() }()
	return LoadCSV(f)
}

// LoadCSV parses an instance catalog with the columns "API Name", "Name",
// "vCPUs", "Memory" (GiB) and "Linux Reserved cost" (hourly). Other columns
// are ignored. Numeric cells may carry units ("4 vCPUs", "16 GiB",
// "$0.192 hourly"); rows whose numbers cannot be parsed are dropped.
//
// vCPUs are converted to millis (×1000) and memory to MB (×1000).
func LoadCSV(r io.Reader) ([]RawNodeType, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading catalog header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(h)] = i
	}
	for _, want := range []string{colAPIName, colVCPUs, colMemory, colCost} {
		if _, ok := cols[want]; !ok {
			return nil, fmt.Errorf("%w %q in catalog", ErrMissingColumn, want)
		}
	}

	cell := func(rec []string, col string) string {
		i, ok := cols[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var out []RawNodeType
	line := 1
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("reading catalog line %d: %w", line, err)
		}

		id := cell(rec, colAPIName)
		vcpus, okCPU := parseNumber(cell(rec, colVCPUs))
		mem, okMem := parseNumber(cell(rec, colMemory))
		cost, okCost := parseNumber(cell(rec, colCost))
		if id == "" || !okCPU || !okMem || !okCost {
			klog.V(4).InfoS("Dropping catalog row", "line", line, "id", id)
			continue
		}

		family, _, _ := strings.Cut(id, ".")
		out = append(out, RawNodeType{
			ID:        id,
			Name:      cell(rec, colName),
			CPUMillis: vcpus * 1000,
			MemoryMB:  mem * 1000,
			UnitCost:  cost,
			Family:    family,
			Arch:      archFromFamily(family),
		})
	}
	return out, nil
}

// parseNumber extracts the leading number from a cell such as "16 GiB" or
// "$0.0960 hourly".
func parseNumber(s string) (float64, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "$")
	if fields := strings.Fields(s); len(fields) > 0 {
		s = fields[0]
	}
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// archFromFamily guesses the architecture from an EC2 family name: Graviton
// families carry a "g" after the generation digit (m7g, c6gn, r8gd).
func archFromFamily(family string) model.Architecture {
	for i := 0; i < len(family); i++ {
		if family[i] >= '0' && family[i] <= '9' {
			if i+1 < len(family) && family[i+1] == 'g' {
				return model.ArchARM64
			}
			return model.ArchAMD64
		}
	}
	return ""
}
