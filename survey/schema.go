package survey

import (
	"fmt"
	"strings"

	lev "github.com/agnivade/levenshtein"

	"covreport/freqplan"
)

// DefaultMaxDistance is the edit distance tolerated between a normalized
// header and an alias before the column is considered missing.
const DefaultMaxDistance = 2

// fuzzy matching is skipped for aliases shorter than this ("Ch" would match
// almost any two-letter header).
const minFuzzyLength = 5

// siblingMetrics are quality figures exported next to the level columns.
// A header naming one of them is never a near miss for a level metric.
var siblingMetrics = []string{"rsrq", "sinr", "cinr", "snr", "ecno", "ecio", "rssi", "rxqual", "cqi", "bler"}

// Metric names one signal metric and the headers it may appear under.
type Metric struct {
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`
}

// Schema lists the header aliases for the channel id, its fallback and the
// signal metrics of one export flavor.
type Schema struct {
	Channel  []string `yaml:"channel"`
	Fallback []string `yaml:"fallback"`
	Metrics  []Metric `yaml:"metrics"`
}

// DefaultSchema returns the column layout of the drive-test exports for gen.
func DefaultSchema(gen freqplan.Generation) Schema {
	if gen == freqplan.FifthGen {
		return Schema{
			Channel:  []string{"NR-ARFCN", "SSB NR-ARFCN", "NR ARFCN"},
			Fallback: []string{"ARFCN"},
			Metrics: []Metric{
				{Name: "SS-RSRP", Aliases: []string{"1. best SS-RSRP", "SS-RSRP", "SSS-RSRP", "SS RSRP"}},
			},
		}
	}
	return Schema{
		Channel:  []string{"Ch"},
		Fallback: []string{"ARFCN", "UARFCN", "EARFCN"},
		Metrics: []Metric{
			{Name: "RSRP", Aliases: []string{"1. best RSRP", "RSRP"}},
			{Name: "RSCP", Aliases: []string{"1. best RSCP", "RSCP"}},
			{Name: "RxLevel", Aliases: []string{"1. best Rx Level", "Rx Level", "RxLev"}},
		},
	}
}

// Binding is a schema resolved against one table's columns. Indices are -1
// when the column is absent.
type Binding struct {
	Channel  int
	Fallback int
	Metrics  []BoundMetric
}

// BoundMetric is a metric column located in the table.
type BoundMetric struct {
	Name   string
	Column string
	Index  int
}

// MissingColumnError reports a required column that could not be bound.
type MissingColumnError struct {
	Column  string
	Aliases []string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("survey: missing column %s (looked for %s)", e.Column, strings.Join(e.Aliases, ", "))
}

// Purpose: Resolve schema aliases to column indices.
// Key aspects: Exact match on normalized header tokens first, then the
// closest header within maxDistance edits. A column binds at most once.
// Headers that exactly name another field of the schema, or a sibling
// quality metric, are excluded from the fuzzy pass.
// Requires a channel id (primary or fallback) and at least one metric.
// Upstream: covreport per-source processing.
// Downstream: normalizeHeaderToken, lev.ComputeDistance.
func (s Schema) Bind(columns []string, maxDistance int) (Binding, error) {
	if maxDistance < 0 {
		maxDistance = 0
	}
	m := newMatcher(columns, maxDistance)
	m.reserve(s.Channel)
	m.reserve(s.Fallback)
	for _, metric := range s.Metrics {
		m.reserve(metric.Aliases)
	}

	b := Binding{
		Channel:  m.take(s.Channel),
		Fallback: m.take(s.Fallback),
	}
	if b.Channel < 0 && b.Fallback < 0 {
		aliases := append(append([]string{}, s.Channel...), s.Fallback...)
		return Binding{}, &MissingColumnError{Column: "channel", Aliases: aliases}
	}
	var metricAliases []string
	for _, metric := range s.Metrics {
		metricAliases = append(metricAliases, metric.Aliases...)
		if idx := m.take(metric.Aliases); idx >= 0 {
			b.Metrics = append(b.Metrics, BoundMetric{Name: metric.Name, Column: columns[idx], Index: idx})
		}
	}
	if len(b.Metrics) == 0 {
		return Binding{}, &MissingColumnError{Column: "signal metric", Aliases: metricAliases}
	}
	return b, nil
}

type matcher struct {
	tokens      []string
	used        []bool
	reserved    map[string]bool
	maxDistance int
}

func newMatcher(columns []string, maxDistance int) *matcher {
	m := &matcher{
		tokens:      make([]string, len(columns)),
		used:        make([]bool, len(columns)),
		reserved:    make(map[string]bool),
		maxDistance: maxDistance,
	}
	for i, c := range columns {
		m.tokens[i] = normalizeHeaderToken(c)
	}
	return m
}

func (m *matcher) reserve(aliases []string) {
	for _, alias := range aliases {
		if tok := normalizeHeaderToken(alias); tok != "" {
			m.reserved[tok] = true
		}
	}
}

// fuzzyCandidate reports whether column i may be bound by edit distance.
func (m *matcher) fuzzyCandidate(i int) bool {
	tok := m.tokens[i]
	if m.used[i] || len(tok) < minFuzzyLength || m.reserved[tok] {
		return false
	}
	for _, sibling := range siblingMetrics {
		if strings.Contains(tok, sibling) {
			return false
		}
	}
	return true
}

func (m *matcher) take(aliases []string) int {
	for _, alias := range aliases {
		want := normalizeHeaderToken(alias)
		for i, tok := range m.tokens {
			if !m.used[i] && tok != "" && tok == want {
				m.used[i] = true
				return i
			}
		}
	}
	best, bestDist := -1, m.maxDistance+1
	for _, alias := range aliases {
		want := normalizeHeaderToken(alias)
		if len(want) < minFuzzyLength {
			continue
		}
		for i, tok := range m.tokens {
			if !m.fuzzyCandidate(i) {
				continue
			}
			if d := lev.ComputeDistance(want, tok); d < bestDist {
				best, bestDist = i, d
			}
		}
	}
	if best >= 0 {
		m.used[best] = true
	}
	return best
}

func normalizeHeaderToken(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range strings.ToLower(strings.TrimSpace(value)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
