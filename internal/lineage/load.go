package lineage

import (
	"bytes"
	_ "embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultLineagesYAML is the bundled mapping of modern MLB franchises.
//
//go:embed default_lineages.yaml
var DefaultLineagesYAML []byte

type yamlArtifact struct {
	Version  string        `yaml:"version"`
	Lineages []yamlLineage `yaml:"lineages"`
}

type yamlLineage struct {
	CanonicalID string        `yaml:"canonical_id"`
	Name        string        `yaml:"name"`
	Notes       string        `yaml:"notes"`
	Segments    []yamlSegment `yaml:"segments"`
}

type yamlSegment struct {
	RawTeamID string `yaml:"raw_team_id"`
	City      string `yaml:"city"`
	Start     int    `yaml:"start_year"`
	End       *int   `yaml:"end_year"`
}

// LoadFile reads a lineage artifact. Files ending in .csv are read as flat
// segment rows; anything else is parsed as the versioned YAML document.
func LoadFile(path string) (Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("reading lineage file: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".csv") {
		a, err := ParseCSV(bytes.NewReader(data))
		if err != nil {
			return Artifact{}, err
		}
		if a.Version == "" {
			a.Version = filepath.Base(path)
		}
		return a, nil
	}
	return ParseYAML(data)
}

// ParseYAML parses the versioned YAML lineage document.
func ParseYAML(data []byte) (Artifact, error) {
	var doc yamlArtifact
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Artifact{}, &ConfigError{Reason: fmt.Sprintf("parsing lineage yaml: %v", err)}
	}

	a := Artifact{Version: doc.Version}
	for _, yl := range doc.Lineages {
		def := Definition{
			CanonicalID: yl.CanonicalID,
			Name:        yl.Name,
			Notes:       yl.Notes,
		}
		for _, ys := range yl.Segments {
			def.Segments = append(def.Segments, Segment{
				RawTeamID: ys.RawTeamID,
				City:      ys.City,
				Start:     ys.Start,
				End:       ys.End,
			})
		}
		a.Definitions = append(a.Definitions, def)
	}
	return a, nil
}

// ParseCSV reads rows of canonical_id, raw_team_id, city, start_year,
// end_year_or_open with an optional name column. A blank end or "open" marks
// an open segment. Rows are grouped by canonical id in first-seen order.
func ParseCSV(r io.Reader) (Artifact, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Artifact{}, &ConfigError{Reason: "lineage csv is empty"}
		}
		return Artifact{}, fmt.Errorf("reading lineage csv header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if h == "end_year_or_open" {
			h = "end_year"
		}
		cols[h] = i
	}
	for _, req := range []string{"canonical_id", "raw_team_id", "city", "start_year", "end_year"} {
		if _, ok := cols[req]; !ok {
			return Artifact{}, &ConfigError{Reason: "lineage csv missing column " + req}
		}
	}

	field := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var a Artifact
	index := make(map[string]int)
	line := 1
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return Artifact{}, fmt.Errorf("reading lineage csv: %w", err)
		}

		id := field(row, "canonical_id")
		raw := field(row, "raw_team_id")

		start, err := strconv.Atoi(field(row, "start_year"))
		if err != nil {
			return Artifact{}, &ConfigError{CanonicalID: id, RawTeamID: raw,
				Reason: fmt.Sprintf("line %d: invalid start_year %q", line, field(row, "start_year"))}
		}

		var end *int
		if s := field(row, "end_year"); s != "" && !strings.EqualFold(s, "open") {
			v, err := strconv.Atoi(s)
			if err != nil {
				return Artifact{}, &ConfigError{CanonicalID: id, RawTeamID: raw, Year: start,
					Reason: fmt.Sprintf("line %d: invalid end_year %q", line, s)}
			}
			end = &v
		}

		idx, ok := index[id]
		if !ok {
			idx = len(a.Definitions)
			index[id] = idx
			a.Definitions = append(a.Definitions, Definition{CanonicalID: id})
		}
		def := &a.Definitions[idx]
		if def.Name == "" {
			def.Name = field(row, "name")
		}
		def.Segments = append(def.Segments, Segment{
			RawTeamID: raw,
			City:      field(row, "city"),
			Start:     start,
			End:       end,
		})
	}
	return a, nil
}

// Load reads and builds a lineage table from path in one step.
func Load(path string, modernEraStart int) (*Table, error) {
	a, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return Build(a, modernEraStart)
}

// LoadDefault builds the table from the embedded default artifact.
func LoadDefault(modernEraStart int) (*Table, error) {
	a, err := ParseYAML(DefaultLineagesYAML)
	if err != nil {
		return nil, err
	}
	return Build(a, modernEraStart)
}
