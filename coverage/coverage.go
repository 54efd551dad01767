// Package coverage completes per-area measurement tables and folds them into
// summary rows, one per (area, technology).
package coverage

import (
	"strconv"
	"strings"

	"covreport/aggregate"
	"covreport/freqplan"
)

// Absent is rendered in place of a missing measurement.
const Absent = "/"

// Row is one (operator, technology) line of an area table. Channel and Mean
// are nil for backfilled combinations.
type Row struct {
	Operator   freqplan.Operator
	Technology freqplan.Technology
	Channel    *int
	Mean       *float64
}

// Backfilled reports whether the row was synthesized without a measurement.
func (r Row) Backfilled() bool {
	return r.Mean == nil
}

// FromMeasurements converts aggregator output into table rows, preserving order.
func FromMeasurements(ms []aggregate.Measurement) []Row {
	rows := make([]Row, 0, len(ms))
	for _, m := range ms {
		ch, mean := m.Channel, m.Mean
		rows = append(rows, Row{Operator: m.Operator, Technology: m.Technology, Channel: &ch, Mean: &mean})
	}
	return rows
}

// Completion is the ordered, backfilled table for one area. Extra holds the
// input rows that do not fit the grid: Unknown operators and technologies
// outside the required list. Callers report them as data-integrity warnings.
type Completion struct {
	Operators []freqplan.Operator
	Rows      []Row
	Extra     []Row
}

type gridKey struct {
	op   freqplan.Operator
	tech freqplan.Technology
}

// Purpose: Backfill and order one area's rows.
// Key aspects: Operators are taken in first-seen order (Unknown excluded);
// technologies follow the required list. The result holds exactly
// |operators| x |required| rows and completing it again changes nothing.
// Upstream: covreport per-source processing.
// Downstream: none.
func Complete(rows []Row, required []freqplan.Technology) Completion {
	position := make(map[freqplan.Technology]int, len(required))
	for i, tech := range required {
		if _, dup := position[tech]; !dup {
			position[tech] = i
		}
	}

	var out Completion
	seenOp := make(map[freqplan.Operator]bool)
	measured := make(map[gridKey]Row)
	for _, r := range rows {
		if r.Operator == freqplan.OperatorUnknown || r.Operator == "" {
			out.Extra = append(out.Extra, r)
			continue
		}
		if !seenOp[r.Operator] {
			seenOp[r.Operator] = true
			out.Operators = append(out.Operators, r.Operator)
		}
		if _, ok := position[r.Technology]; !ok {
			out.Extra = append(out.Extra, r)
			continue
		}
		key := gridKey{r.Operator, r.Technology}
		if prev, dup := measured[key]; dup && (prev.Mean != nil || r.Mean == nil) {
			// the aggregator emits each key once; keep the first measured row
			continue
		}
		measured[key] = r
	}

	out.Rows = make([]Row, 0, len(out.Operators)*len(position))
	for _, op := range out.Operators {
		for i, tech := range required {
			if position[tech] != i {
				continue
			}
			if r, ok := measured[gridKey{op, tech}]; ok {
				out.Rows = append(out.Rows, r)
				continue
			}
			out.Rows = append(out.Rows, Row{Operator: op, Technology: tech})
		}
	}
	return out
}

// Cell is one operator's coverage value on a summary row.
type Cell struct {
	Operator freqplan.Operator
	Value    *float64
}

// Display renders the value in its shortest form, or Absent.
func (c Cell) Display() string {
	if c.Value == nil {
		return Absent
	}
	return strconv.FormatFloat(*c.Value, 'f', -1, 64)
}

// ReportRow is one (area, technology) line of the consolidated summary.
type ReportRow struct {
	Area        string
	Technology  freqplan.Technology
	TariffClass string
	Coverage    []Cell
}

// Value returns the coverage value for op, or nil.
func (r ReportRow) Value(op freqplan.Operator) *float64 {
	for _, c := range r.Coverage {
		if c.Operator == op {
			return c.Value
		}
	}
	return nil
}

// Summarize emits one ReportRow per required technology with a cell for every
// operator in operators, in that order. Operators without a row in the area
// table get an absent cell.
func Summarize(area string, rows []Row, required []freqplan.Technology, operators []freqplan.Operator) []ReportRow {
	if len(operators) == 0 {
		operators = freqplan.Operators()
	}
	values := make(map[gridKey]*float64, len(rows))
	for _, r := range rows {
		if r.Mean != nil {
			v := *r.Mean
			values[gridKey{r.Operator, r.Technology}] = &v
		}
	}
	out := make([]ReportRow, 0, len(required))
	for _, tech := range required {
		row := ReportRow{Area: area, Technology: tech, TariffClass: TariffClass(tech)}
		for _, op := range operators {
			row.Coverage = append(row.Coverage, Cell{Operator: op, Value: values[gridKey{op, tech}]})
		}
		out = append(out, row)
	}
	return out
}

// TariffClass maps a technology to its commercial listing.
func TariffClass(tech freqplan.Technology) string {
	t := strings.ToUpper(string(tech))
	switch {
	case strings.HasPrefix(t, "NR"):
		return "5G"
	case strings.Contains(t, "G900"):
		return "VOCE"
	case strings.Contains(t, "L800"):
		return "DATI"
	case strings.Contains(t, "L1800"):
		return "DATI PLUS"
	default:
		return "Altro"
	}
}
