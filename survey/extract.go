package survey

import (
	"math"
	"strconv"
	"strings"

	"covreport/aggregate"
)

// ExtractStats counts what happened to each data row.
type ExtractStats struct {
	Rows       int
	Samples    int
	NoChannel  int
	BadChannel int
	NoMetric   int
	Fallback   int
}

// Skipped is the number of rows that produced no sample.
func (s ExtractStats) Skipped() int {
	return s.NoChannel + s.BadChannel + s.NoMetric
}

// Purpose: Turn table rows into channel samples.
// Key aspects: Uses the primary channel column when the cell is filled, the
// fallback column otherwise, never both. Rows without an integral channel id
// or without any numeric metric are counted and skipped.
// Upstream: covreport per-source processing.
// Downstream: ParseChannel, ParseLevel.
func Extract(t *Table, b Binding) ([]aggregate.Sample, ExtractStats) {
	stats := ExtractStats{Rows: len(t.Rows)}
	samples := make([]aggregate.Sample, 0, len(t.Rows))
	for _, row := range t.Rows {
		raw := strings.TrimSpace(row.Value(b.Channel))
		if raw == "" && b.Fallback >= 0 {
			raw = strings.TrimSpace(row.Value(b.Fallback))
			if raw != "" {
				stats.Fallback++
			}
		}
		if raw == "" {
			stats.NoChannel++
			continue
		}
		channel, ok := ParseChannel(raw)
		if !ok {
			stats.BadChannel++
			continue
		}
		values := make([]float64, 0, len(b.Metrics))
		for _, m := range b.Metrics {
			if v, ok := ParseLevel(row.Value(m.Index)); ok {
				values = append(values, v)
			}
		}
		if len(values) == 0 {
			stats.NoMetric++
			continue
		}
		samples = append(samples, aggregate.Sample{Channel: channel, Values: values, Row: row.Line})
	}
	stats.Samples = len(samples)
	return samples, stats
}

// ParseChannel accepts integral ids, including workbook renderings such as "6300.0".
func ParseChannel(raw string) (int, bool) {
	v, ok := ParseLevel(raw)
	if !ok || v != math.Trunc(v) || v < 0 || v > math.MaxInt32 {
		return 0, false
	}
	return int(v), true
}

// ParseLevel parses a numeric cell. A lone comma is read as the decimal
// separator ("-72,5").
func ParseLevel(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
