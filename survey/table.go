// Package survey reads drive-test exports (.xlsx or delimited text) into a
// header-addressed table and extracts channel samples from it.
package survey

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
)

// DefaultMinHeaderCells is the number of non-empty cells a row needs to be
// taken as the header row.
const DefaultMinHeaderCells = 2

// ReadOptions controls how a source file is opened.
type ReadOptions struct {
	// Sheet selects a worksheet in a workbook; empty means the first sheet.
	Sheet string
	// Encoding forces a text encoding for delimited files ("utf-8", "latin1",
	// "cp1252", "cp1250"); empty means detect.
	Encoding string
	// MinHeaderCells overrides DefaultMinHeaderCells when positive.
	MinHeaderCells int
}

// Row is one data row. Line is the 1-based row (or line) number in the source.
type Row struct {
	Line   int
	Values []string
}

// Value returns the cell at column index idx, or "" when the row is short.
func (r Row) Value(idx int) string {
	if idx < 0 || idx >= len(r.Values) {
		return ""
	}
	return r.Values[idx]
}

// Table is a materialized source: unique column names plus data rows.
type Table struct {
	Path      string
	Sheet     string
	Encoding  string
	HeaderRow int
	Columns   []string
	Rows      []Row
}

// Index returns the position of a column by exact name, or -1.
func (t *Table) Index(column string) int {
	for i, c := range t.Columns {
		if c == column {
			return i
		}
	}
	return -1
}

// ErrNoHeader is returned when no row qualifies as a header.
var ErrNoHeader = errors.New("survey: no header row found")

// Purpose: Open a survey export and return its table.
// Key aspects: Reads the file once and hands the bytes to Parse.
// Upstream: cmd tools and tests.
// Downstream: Parse.
func ReadFile(path string, opts ReadOptions) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("survey: read %s: %w", path, err)
	}
	return Parse(path, raw, opts)
}

// Purpose: Parse an in-memory survey export.
// Key aspects: Dispatches on the extension of name; workbooks go through
// excelize, delimited text through charset detection and delimiter sniffing.
// The header is the first row with at least MinHeaderCells non-empty cells.
// Upstream: ReadFile, covreport per-source processing (after fingerprinting).
// Downstream: readWorkbook, readDelimited, findHeader.
func Parse(name string, raw []byte, opts ReadOptions) (*Table, error) {
	var (
		records [][]string
		lines   []int
		table   = &Table{Path: name}
		err     error
	)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		table.Sheet, records, err = readWorkbook(raw, opts.Sheet)
	case ".csv", ".txt", ".tsv":
		table.Encoding, records, lines, err = readDelimited(raw, opts.Encoding)
	default:
		return nil, fmt.Errorf("survey: %s: unsupported file type %q", name, filepath.Ext(name))
	}
	if err != nil {
		return nil, fmt.Errorf("survey: %s: %w", name, err)
	}

	minCells := opts.MinHeaderCells
	if minCells <= 0 {
		minCells = DefaultMinHeaderCells
	}
	header := findHeader(records, minCells)
	if header < 0 {
		return nil, fmt.Errorf("survey: %s: %w", name, ErrNoHeader)
	}
	table.HeaderRow = lineOf(lines, header)
	table.Columns = uniqueColumnNames(records[header])
	for i := header + 1; i < len(records); i++ {
		if blankRecord(records[i]) {
			continue
		}
		table.Rows = append(table.Rows, Row{Line: lineOf(lines, i), Values: records[i]})
	}
	return table, nil
}

func readWorkbook(raw []byte, sheet string) (string, [][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return "", nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return "", nil, errors.New("workbook has no sheets")
		}
		sheet = sheets[0]
	} else if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return "", nil, fmt.Errorf("sheet %q not found", sheet)
	}
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return "", nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return sheet, rows, nil
}

type textDecoder struct {
	name   string
	decode func([]byte) (string, error)
}

func decodeUTF8(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", errors.New("invalid utf-8")
	}
	return strings.TrimPrefix(string(data), "\ufeff"), nil
}

func charmapDecoder(name string, cm *charmap.Charmap) textDecoder {
	return textDecoder{name: name, decode: func(b []byte) (string, error) {
		return cm.NewDecoder().String(string(b))
	}}
}

// Latin1 decodes any byte sequence, so it closes the list.
func textDecoders() []textDecoder {
	return []textDecoder{
		{name: "utf-8", decode: decodeUTF8},
		charmapDecoder("cp1252", charmap.Windows1252),
		charmapDecoder("cp1250", charmap.Windows1250),
		charmapDecoder("latin1", charmap.ISO8859_1),
	}
}

func decodeText(raw []byte, forced string) (string, string, error) {
	forced = strings.ToLower(strings.TrimSpace(forced))
	switch forced {
	case "utf8":
		forced = "utf-8"
	case "iso-8859-1":
		forced = "latin1"
	case "windows-1252":
		forced = "cp1252"
	case "windows-1250":
		forced = "cp1250"
	}
	for _, dec := range textDecoders() {
		if forced != "" && dec.name != forced {
			continue
		}
		text, err := dec.decode(raw)
		if err != nil {
			if forced != "" {
				return "", "", fmt.Errorf("decode as %s: %w", forced, err)
			}
			continue
		}
		return text, dec.name, nil
	}
	if forced != "" {
		return "", "", fmt.Errorf("unsupported encoding %q", forced)
	}
	return "", "", errors.New("unable to decode text with supported encodings")
}

// sniffDelimiter picks the candidate that splits the first non-empty lines
// most consistently. Semicolon wins ties, matching regional spreadsheet exports.
func sniffDelimiter(text string) rune {
	candidates := []rune{';', '\t', ','}
	sample := make([]string, 0, 10)
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		sample = append(sample, line)
		if len(sample) == cap(sample) {
			break
		}
	}
	best, bestScore := ';', 0
	for _, c := range candidates {
		score := 0
		for _, line := range sample {
			score += strings.Count(line, string(c))
		}
		if score > bestScore {
			best, bestScore = c, score
		}
	}
	return best
}

func readDelimited(raw []byte, encoding string) (string, [][]string, []int, error) {
	text, name, err := decodeText(raw, encoding)
	if err != nil {
		return "", nil, nil, err
	}
	r := csv.NewReader(strings.NewReader(text))
	r.Comma = sniffDelimiter(text)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	var (
		records [][]string
		lines   []int
	)
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", nil, nil, fmt.Errorf("parse delimited text: %w", err)
		}
		line, _ := r.FieldPos(0)
		records = append(records, trimTrailingEmpty(rec))
		lines = append(lines, line)
	}
	return name, records, lines, nil
}

func trimTrailingEmpty(rec []string) []string {
	for len(rec) > 0 && strings.TrimSpace(rec[len(rec)-1]) == "" {
		rec = rec[:len(rec)-1]
	}
	return rec
}

func findHeader(records [][]string, minCells int) int {
	for i, rec := range records {
		n := 0
		for _, cell := range rec {
			if strings.TrimSpace(cell) != "" {
				n++
			}
		}
		if n >= minCells {
			return i
		}
	}
	return -1
}

func blankRecord(rec []string) bool {
	for _, cell := range rec {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func lineOf(lines []int, idx int) int {
	if idx < len(lines) {
		return lines[idx]
	}
	return idx + 1
}

func uniqueColumnNames(columns []string) []string {
	result := make([]string, 0, len(columns))
	seen := map[string]int{}
	for i, raw := range columns {
		base := strings.TrimSpace(raw)
		if base == "" {
			base = fmt.Sprintf("column_%d", i+1)
		}
		seen[base]++
		if seen[base] == 1 {
			result = append(result, base)
		} else {
			result = append(result, fmt.Sprintf("%s_%d", base, seen[base]))
		}
	}
	return result
}
