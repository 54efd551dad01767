// Package grading assigns a severity band to a signal level according to the
// thresholds of its technology family.
package grading

import (
	"fmt"
	"math"
	"strings"

	"covreport/freqplan"
)

// Band is a severity class. Bands order from Gray (no usable reading) up to Green.
type Band int

const (
	Gray Band = iota
	Red
	Yellow
	Green
)

func (b Band) String() string {
	switch b {
	case Green:
		return "Verde"
	case Yellow:
		return "Giallo"
	case Red:
		return "Rosso"
	default:
		return "Grigio"
	}
}

// Color is the cell fill used for the band.
func (b Band) Color() string {
	switch b {
	case Green:
		return "#99FF99"
	case Yellow:
		return "#FFFF99"
	case Red:
		return "#FFCCCC"
	default:
		return "#BFBFBF"
	}
}

// Bands lists every band from best to worst, the order the legend uses.
func Bands() []Band {
	return []Band{Green, Yellow, Red, Gray}
}

// Family groups technologies that share thresholds.
type Family string

const (
	Family2G      Family = "2G"
	Family3G      Family = "3G"
	Family4G      Family = "4G"
	Family5G      Family = "5G"
	FamilyUnknown Family = ""
)

// Families returns the graded families in legend order.
func Families() []Family {
	return []Family{Family2G, Family3G, Family4G, Family5G}
}

// ParseFamily accepts "2G".."5G" case-insensitively.
func ParseFamily(label string) (Family, bool) {
	for _, f := range Families() {
		if strings.EqualFold(strings.TrimSpace(label), string(f)) {
			return f, true
		}
	}
	return FamilyUnknown, false
}

// FamilyOf classifies a technology label by prefix: a band letter (G, U, L,
// N) followed by a digit, or NR. Anything else, the Unknown sentinel
// included, has no family.
func FamilyOf(tech string) Family {
	t := strings.ToUpper(strings.TrimSpace(tech))
	if t == "" || t == strings.ToUpper(string(freqplan.TechnologyUnknown)) {
		return FamilyUnknown
	}
	if strings.HasPrefix(t, "NR") {
		return Family5G
	}
	if len(t) < 2 || t[1] < '0' || t[1] > '9' {
		return FamilyUnknown
	}
	switch t[0] {
	case 'G':
		return Family2G
	case 'U':
		return Family3G
	case 'L':
		return Family4G
	case 'N':
		return Family5G
	default:
		return FamilyUnknown
	}
}

// Thresholds are the lower bounds (dBm, inclusive) of Green and Yellow.
type Thresholds struct {
	GreenMin  float64 `yaml:"green_min"`
	YellowMin float64 `yaml:"yellow_min"`
}

// DefaultThresholds returns the cut points of the coverage legend.
func DefaultThresholds() map[Family]Thresholds {
	return map[Family]Thresholds{
		Family2G: {GreenMin: -80, YellowMin: -90},
		Family3G: {GreenMin: -85, YellowMin: -95},
		Family4G: {GreenMin: -95, YellowMin: -105},
		Family5G: {GreenMin: -95, YellowMin: -105},
	}
}

// DefaultDeadZone is the half-width of the near-zero band treated as a
// placeholder reading.
const DefaultDeadZone = 1.0

// Grader is immutable once built and safe for concurrent use.
type Grader struct {
	thresholds map[Family]Thresholds
	deadZone   float64
}

// New validates thresholds and builds a Grader. Families missing from
// thresholds keep their defaults.
func New(thresholds map[Family]Thresholds, deadZone float64) (*Grader, error) {
	if deadZone < 0 || math.IsNaN(deadZone) {
		return nil, fmt.Errorf("grading: dead zone must be >= 0, got %v", deadZone)
	}
	merged := DefaultThresholds()
	for fam, th := range thresholds {
		canonical, ok := ParseFamily(string(fam))
		if !ok {
			return nil, fmt.Errorf("grading: unknown family %q", fam)
		}
		merged[canonical] = th
	}
	for _, fam := range Families() {
		th := merged[fam]
		if !(th.GreenMin > th.YellowMin) {
			return nil, fmt.Errorf("grading: %s green_min (%v) must be above yellow_min (%v)", fam, th.GreenMin, th.YellowMin)
		}
		if th.GreenMin >= 0 || th.YellowMin >= 0 {
			return nil, fmt.Errorf("grading: %s thresholds must be negative dBm", fam)
		}
	}
	return &Grader{thresholds: merged, deadZone: deadZone}, nil
}

var defaultGrader = func() *Grader {
	g, err := New(nil, DefaultDeadZone)
	if err != nil {
		panic(err)
	}
	return g
}()

// Default returns the Grader with the legend thresholds.
func Default() *Grader {
	return defaultGrader
}

// Thresholds returns the cut points for a family.
func (g *Grader) Thresholds(f Family) (Thresholds, bool) {
	th, ok := g.thresholds[f]
	return th, ok
}

// Purpose: Grade one rendered cell.
// Key aspects: nil or dead-zone values are Gray, as are values of a
// technology whose family has no thresholds. Never mutates the input.
// Upstream: workbook cell rendering, covreport JSON sidecar.
// Downstream: FamilyOf.
func (g *Grader) Grade(tech string, value *float64) Band {
	if value == nil {
		return Gray
	}
	v := *value
	if math.IsNaN(v) || math.Abs(v) <= g.deadZone {
		return Gray
	}
	th, ok := g.thresholds[FamilyOf(tech)]
	if !ok {
		return Gray
	}
	switch {
	case v >= th.GreenMin:
		return Green
	case v >= th.YellowMin:
		return Yellow
	default:
		return Red
	}
}

// LegendRow is one line of the legend block: a band and its range text per family.
type LegendRow struct {
	Band   Band
	Ranges []string
}

// Legend describes every band for the given families, best band first.
func (g *Grader) Legend(families []Family) []LegendRow {
	rows := make([]LegendRow, 0, 4)
	for _, b := range Bands() {
		row := LegendRow{Band: b}
		for _, f := range families {
			th := g.thresholds[f]
			var text string
			switch b {
			case Green:
				text = fmt.Sprintf(" > %s dBm", formatDBm(th.GreenMin))
			case Yellow:
				text = fmt.Sprintf("%s ÷ %s dBm", formatDBm(th.GreenMin), formatDBm(th.YellowMin))
			case Red:
				text = fmt.Sprintf("< %s dBm", formatDBm(th.YellowMin))
			default:
				text = "Assente"
			}
			row.Ranges = append(row.Ranges, text)
		}
		rows = append(rows, row)
	}
	return rows
}

func formatDBm(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%d", int(v))
	}
	return fmt.Sprintf("%.1f", v)
}
