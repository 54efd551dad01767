// Package workbook renders a finished coverage report as an .xlsx workbook
// (one sheet per area plus a summary sheet) and as a JSON sidecar.
package workbook

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"covreport/coverage"
	"covreport/freqplan"
	"covreport/grading"
)

// DefaultSummarySheet names the consolidated sheet.
const DefaultSummarySheet = "Summary"

const (
	maxSheetName   = 31
	headerFill     = "#D9E1F2"
	legendTitle    = "Legenda Copertura"
	legendRow      = 3
	minLegendCol   = 9
	borderThin     = 1
	borderDouble   = 6
	borderColor    = "000000"
	columnPadding  = 2
	minColumnWidth = 8
)

var (
	areaHeaders    = []string{"Operatore", "Tecnologia", "Ch/ARFCN", "Misura"}
	summaryHeaders = []string{"Area Misurata", "Tecnologia", "Listino Inwit"}
)

// Area is one measured area: its completed (operator, technology) table.
type Area struct {
	Name string
	Rows []coverage.Row
}

// Document is everything one report run renders.
type Document struct {
	Areas        []Area
	Summary      []coverage.ReportRow
	Operators    []freqplan.Operator
	Families     []grading.Family
	SummarySheet string
}

// ErrEmptyDocument is returned when there is nothing to render.
var ErrEmptyDocument = errors.New("workbook: document has no areas")

type styleKey struct {
	fill      string
	bold      bool
	center    bool
	separator bool
}

type styler struct {
	f     *excelize.File
	cache map[styleKey]int
}

func (s *styler) id(k styleKey) (int, error) {
	if id, ok := s.cache[k]; ok {
		return id, nil
	}
	top := borderThin
	if k.separator {
		top = borderDouble
	}
	st := &excelize.Style{
		Border: []excelize.Border{
			{Type: "left", Color: borderColor, Style: borderThin},
			{Type: "right", Color: borderColor, Style: borderThin},
			{Type: "bottom", Color: borderColor, Style: borderThin},
			{Type: "top", Color: borderColor, Style: top},
		},
	}
	if k.fill != "" {
		st.Fill = excelize.Fill{Type: "pattern", Color: []string{k.fill}, Pattern: 1}
	}
	if k.bold {
		st.Font = &excelize.Font{Bold: true}
	}
	if k.center {
		st.Alignment = &excelize.Alignment{Horizontal: "center"}
	}
	id, err := s.f.NewStyle(st)
	if err != nil {
		return 0, fmt.Errorf("new style: %w", err)
	}
	s.cache[k] = id
	return id, nil
}

// sheetWriter tracks widths while cells are written so columns can be sized
// to their longest value.
type sheetWriter struct {
	f      *excelize.File
	st     *styler
	sheet  string
	widths map[int]int
}

func (w *sheetWriter) set(col, row int, value any, k styleKey) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	if err := w.f.SetCellValue(w.sheet, cell, value); err != nil {
		return fmt.Errorf("set %s!%s: %w", w.sheet, cell, err)
	}
	id, err := w.st.id(k)
	if err != nil {
		return err
	}
	if err := w.f.SetCellStyle(w.sheet, cell, cell, id); err != nil {
		return fmt.Errorf("style %s!%s: %w", w.sheet, cell, err)
	}
	n := utf8.RuneCountInString(fmt.Sprint(value))
	if value == nil {
		n = 0
	}
	if n > w.widths[col] {
		w.widths[col] = n
	}
	return nil
}

func (w *sheetWriter) applyWidths() error {
	for col, n := range w.widths {
		name, err := excelize.ColumnNumberToName(col)
		if err != nil {
			return err
		}
		width := n + columnPadding
		if width < minColumnWidth {
			width = minColumnWidth
		}
		if err := w.f.SetColWidth(w.sheet, name, name, float64(width)); err != nil {
			return err
		}
	}
	return nil
}

// Purpose: Render the report into an in-memory workbook.
// Key aspects: Area sheets first, summary last; fills come from the grader at
// render time; a double top border marks each change of area in the summary.
// Upstream: Write, tests.
// Downstream: writeArea, writeSummary, writeLegend.
func Build(doc Document, grader *grading.Grader) (*excelize.File, error) {
	if len(doc.Areas) == 0 {
		return nil, ErrEmptyDocument
	}
	if grader == nil {
		grader = grading.Default()
	}
	if len(doc.Operators) == 0 {
		doc.Operators = freqplan.Operators()
	}
	summaryName := doc.SummarySheet
	if strings.TrimSpace(summaryName) == "" {
		summaryName = DefaultSummarySheet
	}
	summaryName = sanitizeSheetName(summaryName)

	f := excelize.NewFile()
	st := &styler{f: f, cache: make(map[styleKey]int)}
	used := map[string]bool{strings.ToLower(summaryName): true}
	first := true
	for i, area := range doc.Areas {
		name := uniqueSheetName(area.Name, i+1, used)
		if first {
			if err := f.SetSheetName(f.GetSheetName(0), name); err != nil {
				f.Close()
				return nil, fmt.Errorf("rename first sheet: %w", err)
			}
			first = false
		} else if _, err := f.NewSheet(name); err != nil {
			f.Close()
			return nil, fmt.Errorf("add sheet %q: %w", name, err)
		}
		w := &sheetWriter{f: f, st: st, sheet: name, widths: map[int]int{}}
		if err := writeArea(w, area, grader); err != nil {
			f.Close()
			return nil, err
		}
	}

	if _, err := f.NewSheet(summaryName); err != nil {
		f.Close()
		return nil, fmt.Errorf("add sheet %q: %w", summaryName, err)
	}
	w := &sheetWriter{f: f, st: st, sheet: summaryName, widths: map[int]int{}}
	if err := writeSummary(w, doc, grader); err != nil {
		f.Close()
		return nil, err
	}
	families := doc.Families
	if len(families) == 0 {
		families = familiesOf(doc.Summary)
	}
	legendCol := len(summaryHeaders) + len(doc.Operators) + 2
	if legendCol < minLegendCol {
		legendCol = minLegendCol
	}
	if err := writeLegend(w, grader, families, legendCol); err != nil {
		f.Close()
		return nil, err
	}
	if err := w.applyWidths(); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func writeArea(w *sheetWriter, area Area, grader *grading.Grader) error {
	for i, h := range areaHeaders {
		if err := w.set(i+1, 1, h, styleKey{fill: headerFill, bold: true, center: true}); err != nil {
			return err
		}
	}
	for i, r := range area.Rows {
		row := i + 2
		var channel, mean any
		if r.Channel != nil {
			channel = *r.Channel
		}
		if r.Mean != nil {
			mean = *r.Mean
		}
		cells := []struct {
			value any
			key   styleKey
		}{
			{string(r.Operator), styleKey{}},
			{string(r.Technology), styleKey{}},
			{channel, styleKey{}},
			{mean, styleKey{fill: grader.Grade(string(r.Technology), r.Mean).Color()}},
		}
		for col, c := range cells {
			if err := w.set(col+1, row, c.value, c.key); err != nil {
				return err
			}
		}
	}
	return w.applyWidths()
}

func writeSummary(w *sheetWriter, doc Document, grader *grading.Grader) error {
	headers := append([]string{}, summaryHeaders...)
	for _, op := range doc.Operators {
		headers = append(headers, "Copertura "+string(op))
	}
	for i, h := range headers {
		if err := w.set(i+1, 1, h, styleKey{fill: headerFill, bold: true, center: true}); err != nil {
			return err
		}
	}
	prevArea := ""
	for i, rr := range doc.Summary {
		row := i + 2
		separator := i > 0 && rr.Area != prevArea
		prevArea = rr.Area
		fixed := []any{rr.Area, string(rr.Technology), rr.TariffClass}
		for col, v := range fixed {
			if err := w.set(col+1, row, v, styleKey{separator: separator}); err != nil {
				return err
			}
		}
		for j, op := range doc.Operators {
			value := rr.Value(op)
			var cell any = coverage.Absent
			if value != nil {
				cell = *value
			}
			k := styleKey{fill: grader.Grade(string(rr.Technology), value).Color(), center: value == nil, separator: separator}
			if err := w.set(len(fixed)+j+1, row, cell, k); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeLegend(w *sheetWriter, grader *grading.Grader, families []grading.Family, col int) error {
	header := styleKey{fill: headerFill, bold: true, center: true}
	lastCol := col + len(families)
	first, err := excelize.CoordinatesToCellName(col, legendRow)
	if err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(lastCol, legendRow)
	if err != nil {
		return err
	}
	for c := col; c <= lastCol; c++ {
		var v any
		if c == col {
			v = legendTitle
		}
		if err := w.set(c, legendRow, v, header); err != nil {
			return err
		}
	}
	if lastCol > col {
		if err := w.f.MergeCell(w.sheet, first, last); err != nil {
			return fmt.Errorf("merge legend title: %w", err)
		}
	}
	// the merged title spans several columns; keep it out of width sizing
	w.widths[col] = 0

	if err := w.set(col, legendRow+1, "Colore", header); err != nil {
		return err
	}
	for i, fam := range families {
		if err := w.set(col+i+1, legendRow+1, "Intervallo "+string(fam), header); err != nil {
			return err
		}
	}
	for i, lr := range grader.Legend(families) {
		row := legendRow + 2 + i
		if err := w.set(col, row, lr.Band.String(), styleKey{fill: lr.Band.Color(), center: true}); err != nil {
			return err
		}
		for j, text := range lr.Ranges {
			if err := w.set(col+j+1, row, text, styleKey{center: true}); err != nil {
				return err
			}
		}
	}
	return nil
}

// familiesOf lists the graded families present in the summary, in legend order.
// A report with no recognizable technology still gets the legacy legend.
func familiesOf(rows []coverage.ReportRow) []grading.Family {
	present := map[grading.Family]bool{}
	for _, r := range rows {
		present[grading.FamilyOf(string(r.Technology))] = true
	}
	var out []grading.Family
	for _, f := range grading.Families() {
		if present[f] {
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		out = []grading.Family{grading.Family2G, grading.Family3G, grading.Family4G}
	}
	return out
}

var sheetNameReplacer = strings.NewReplacer(":", "_", "\\", "_", "/", "_", "?", "_", "*", "_", "[", "(", "]", ")")

func sanitizeSheetName(name string) string {
	name = strings.TrimSpace(sheetNameReplacer.Replace(name))
	name = strings.Trim(name, "'")
	if utf8.RuneCountInString(name) > maxSheetName {
		name = string([]rune(name)[:maxSheetName])
	}
	return name
}

func uniqueSheetName(name string, ordinal int, used map[string]bool) string {
	base := sanitizeSheetName(name)
	if base == "" {
		base = fmt.Sprintf("Area %d", ordinal)
	}
	candidate := base
	for n := 2; used[strings.ToLower(candidate)]; n++ {
		suffix := fmt.Sprintf(" (%d)", n)
		runes := []rune(base)
		if len(runes)+len(suffix) > maxSheetName {
			runes = runes[:maxSheetName-len(suffix)]
		}
		candidate = string(runes) + suffix
	}
	used[strings.ToLower(candidate)] = true
	return candidate
}
