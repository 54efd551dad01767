package workbook

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"

	"covreport/grading"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Purpose: Render the workbook and, when jsonPath is set, the JSON sidecar,
// then replace both targets.
// Key aspects: Both files are fully written to temp files before either
// target is touched; any render or write failure leaves previous outputs intact.
// Upstream: covreport.Generate.
// Downstream: Build, encodeSidecar, stage, staged.commit.
func Emit(path, jsonPath string, doc Document, grader *grading.Grader) error {
	f, err := Build(doc, grader)
	if err != nil {
		return err
	}
	defer f.Close()
	book, err := stage(path, "covreport-*.xlsx.tmp", func(w io.Writer) error {
		return f.Write(w)
	})
	if err != nil {
		return err
	}
	defer book.discard()

	var sidecar *staged
	if jsonPath != "" {
		payload, err := encodeSidecar(doc, grader)
		if err != nil {
			return err
		}
		sc, err := stage(jsonPath, "covreport-*.json.tmp", writePayload(payload))
		if err != nil {
			return err
		}
		defer sc.discard()
		sidecar = &sc
	}

	if err := book.commit(); err != nil {
		return err
	}
	if sidecar != nil {
		return sidecar.commit()
	}
	return nil
}

// SidecarCell is one operator value with its band.
type SidecarCell struct {
	Operator string   `json:"operator"`
	Value    *float64 `json:"value"`
	Display  string   `json:"display"`
	Band     string   `json:"band"`
}

// SidecarRow mirrors one summary row.
type SidecarRow struct {
	Area        string        `json:"area"`
	Technology  string        `json:"technology"`
	TariffClass string        `json:"tariff_class"`
	Coverage    []SidecarCell `json:"coverage"`
}

// SidecarAreaRow mirrors one line of an area table.
type SidecarAreaRow struct {
	Operator   string   `json:"operator"`
	Technology string   `json:"technology"`
	Channel    *int     `json:"channel"`
	Mean       *float64 `json:"mean"`
	Band       string   `json:"band"`
}

// Sidecar is the JSON form of a document.
type Sidecar struct {
	Areas   map[string][]SidecarAreaRow `json:"areas"`
	Order   []string                    `json:"area_order"`
	Summary []SidecarRow                `json:"summary"`
}

// NewSidecar grades every cell of doc for the JSON summary.
func NewSidecar(doc Document, grader *grading.Grader) Sidecar {
	if grader == nil {
		grader = grading.Default()
	}
	sc := Sidecar{Areas: make(map[string][]SidecarAreaRow, len(doc.Areas))}
	for _, area := range doc.Areas {
		rows := make([]SidecarAreaRow, 0, len(area.Rows))
		for _, r := range area.Rows {
			rows = append(rows, SidecarAreaRow{
				Operator:   string(r.Operator),
				Technology: string(r.Technology),
				Channel:    r.Channel,
				Mean:       r.Mean,
				Band:       grader.Grade(string(r.Technology), r.Mean).String(),
			})
		}
		sc.Areas[area.Name] = rows
		sc.Order = append(sc.Order, area.Name)
	}
	for _, rr := range doc.Summary {
		row := SidecarRow{Area: rr.Area, Technology: string(rr.Technology), TariffClass: rr.TariffClass}
		for _, c := range rr.Coverage {
			row.Coverage = append(row.Coverage, SidecarCell{
				Operator: string(c.Operator),
				Value:    c.Value,
				Display:  c.Display(),
				Band:     grader.Grade(string(rr.Technology), c.Value).String(),
			})
		}
		sc.Summary = append(sc.Summary, row)
	}
	return sc
}

func encodeSidecar(doc Document, grader *grading.Grader) ([]byte, error) {
	payload, err := json.MarshalIndent(NewSidecar(doc, grader), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("workbook: encode sidecar: %w", err)
	}
	return append(payload, '\n'), nil
}

func writePayload(payload []byte) func(io.Writer) error {
	return func(w io.Writer) error {
		_, err := w.Write(payload)
		return err
	}
}

// staged is a fully written temp file waiting to replace path.
type staged struct {
	tmp  string
	path string
}

func (s staged) commit() error {
	if err := os.Rename(s.tmp, s.path); err != nil {
		return fmt.Errorf("workbook: replace %s: %w", s.path, err)
	}
	return nil
}

// discard removes the temp file; a no-op after commit.
func (s staged) discard() {
	os.Remove(s.tmp)
}

func stage(path, pattern string, fill func(io.Writer) error) (staged, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return staged{}, fmt.Errorf("workbook: create directory: %w", err)
		}
	}
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return staged{}, fmt.Errorf("workbook: create temp file: %w", err)
	}
	s := staged{tmp: tmp.Name(), path: path}

	if err := fill(tmp); err != nil {
		tmp.Close()
		s.discard()
		return staged{}, fmt.Errorf("workbook: write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		s.discard()
		return staged{}, fmt.Errorf("workbook: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		s.discard()
		return staged{}, fmt.Errorf("workbook: finalize temp file: %w", err)
	}
	return s, nil
}
