// Package freqplan maps raw channel identifiers (Ch, UARFCN, EARFCN, NR-ARFCN)
// to the operator and technology that own them according to a static
// frequency plan.
package freqplan

import (
	"fmt"
	"sort"
	"strings"
)

// Operator names a mobile network operator in the plan.
type Operator string

// Known operators. OperatorUnknown marks a channel that no table entry covers.
const (
	OperatorTIM     Operator = "TIM"
	OperatorVF      Operator = "VF"
	OperatorW3      Operator = "W3"
	OperatorIliad   Operator = "Iliad"
	OperatorUnknown Operator = "Unknown"
)

// Operators returns the fixed operator enumeration in report order.
func Operators() []Operator {
	return []Operator{OperatorTIM, OperatorVF, OperatorW3, OperatorIliad}
}

// ParseOperator matches a label case-insensitively against the known operators.
func ParseOperator(label string) (Operator, bool) {
	cleaned := strings.TrimSpace(label)
	for _, op := range Operators() {
		if strings.EqualFold(string(op), cleaned) {
			return op, true
		}
	}
	return OperatorUnknown, false
}

// Valid reports whether o is one of the enumerated operators.
func (o Operator) Valid() bool {
	for _, op := range Operators() {
		if o == op {
			return true
		}
	}
	return false
}

// Technology is a band label such as "G900", "L800" or "NR3500-643296".
type Technology string

// TechnologyUnknown is paired with OperatorUnknown for unmapped channels.
const TechnologyUnknown Technology = "Unknown"

// Assignment is the (operator, technology) pair a channel belongs to.
type Assignment struct {
	Operator   Operator
	Technology Technology
}

// Unknown is returned for channels outside every table and range.
var Unknown = Assignment{Operator: OperatorUnknown, Technology: TechnologyUnknown}

// IsUnknown reports whether the assignment is the Unknown sentinel.
func (a Assignment) IsUnknown() bool {
	return a.Operator == OperatorUnknown || a.Technology == TechnologyUnknown
}

func (a Assignment) valid() bool {
	return a.Operator.Valid() && a.Technology != "" && a.Technology != TechnologyUnknown
}

func (a Assignment) String() string {
	return string(a.Operator) + "/" + string(a.Technology)
}

// Generation selects which table set a channel id is interpreted against.
type Generation int

const (
	// Legacy covers 2G (Ch ranges), 3G (UARFCN) and 4G (EARFCN).
	Legacy Generation = iota
	// FifthGen covers NR-ARFCN identifiers.
	FifthGen
)

func (g Generation) String() string {
	switch g {
	case Legacy:
		return "legacy"
	case FifthGen:
		return "5g"
	default:
		return fmt.Sprintf("generation(%d)", int(g))
	}
}

// ParseGeneration accepts the labels used in config files and on the command line.
func ParseGeneration(label string) (Generation, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "", "legacy", "2g/3g/4g", "2g3g4g", "lte":
		return Legacy, nil
	case "5g", "nr", "fifth_gen", "fifthgen":
		return FifthGen, nil
	default:
		return Legacy, fmt.Errorf("unknown generation %q (want legacy or 5g)", label)
	}
}

// ChannelRange maps the half-open channel interval [From, To) to an assignment.
// Legacy plans use ranges for 2G BCCH channels.
type ChannelRange struct {
	From int
	To   int
	Assignment
}

// Contains reports whether the channel falls inside the range.
func (r ChannelRange) Contains(channel int) bool {
	return channel >= r.From && channel < r.To
}

func (r ChannelRange) overlaps(other ChannelRange) bool {
	return r.From < other.To && other.From < r.To
}

// PlanError reports an invalid plan definition.
type PlanError struct {
	Generation Generation
	Reason     string
}

func (e *PlanError) Error() string {
	return fmt.Sprintf("freqplan: invalid %s plan: %s", e.Generation, e.Reason)
}

// Plan is an immutable channel table for one generation. Exact channel entries
// take precedence over ranges.
type Plan struct {
	generation Generation
	channels   map[int]Assignment
	ranges     []ChannelRange
	required   []Technology
}

// Purpose: Build a validated, immutable plan from table data.
// Key aspects: Copies inputs, sorts ranges, and rejects overlapping ranges so
// classification never depends on evaluation order. Several ranges may share
// one assignment (union semantics).
// Upstream: Default tables and LoadFile.
// Downstream: PlanError.
func NewPlan(gen Generation, channels map[int]Assignment, ranges []ChannelRange, required []Technology) (*Plan, error) {
	p := &Plan{
		generation: gen,
		channels:   make(map[int]Assignment, len(channels)),
		ranges:     append([]ChannelRange(nil), ranges...),
		required:   make([]Technology, 0, len(required)),
	}
	for ch, a := range channels {
		if !a.valid() {
			return nil, &PlanError{Generation: gen, Reason: fmt.Sprintf("channel %d has invalid assignment %s", ch, a)}
		}
		p.channels[ch] = a
	}
	for _, r := range p.ranges {
		if r.From >= r.To {
			return nil, &PlanError{Generation: gen, Reason: fmt.Sprintf("range [%d,%d) is empty", r.From, r.To)}
		}
		if !r.valid() {
			return nil, &PlanError{Generation: gen, Reason: fmt.Sprintf("range [%d,%d) has invalid assignment %s", r.From, r.To, r.Assignment)}
		}
	}
	sort.SliceStable(p.ranges, func(i, j int) bool { return p.ranges[i].From < p.ranges[j].From })
	for i := 1; i < len(p.ranges); i++ {
		prev, cur := p.ranges[i-1], p.ranges[i]
		if prev.overlaps(cur) {
			return nil, &PlanError{Generation: gen, Reason: fmt.Sprintf("ranges [%d,%d) %s and [%d,%d) %s overlap",
				prev.From, prev.To, prev.Assignment, cur.From, cur.To, cur.Assignment)}
		}
	}
	seen := make(map[Technology]struct{}, len(required))
	for _, tech := range required {
		tech = Technology(strings.TrimSpace(string(tech)))
		if tech == "" {
			continue
		}
		if _, dup := seen[tech]; dup {
			return nil, &PlanError{Generation: gen, Reason: fmt.Sprintf("required technology %s listed twice", tech)}
		}
		seen[tech] = struct{}{}
		p.required = append(p.required, tech)
	}
	if len(p.required) == 0 {
		return nil, &PlanError{Generation: gen, Reason: "required technology list is empty"}
	}
	return p, nil
}

// Generation returns the generation the plan was built for.
func (p *Plan) Generation() Generation {
	return p.generation
}

// Classify returns the assignment for a channel, or Unknown when neither an
// exact entry nor a range matches.
func (p *Plan) Classify(channel int) Assignment {
	if p == nil {
		return Unknown
	}
	if a, ok := p.channels[channel]; ok {
		return a
	}
	// ranges are sorted and disjoint
	idx := sort.Search(len(p.ranges), func(i int) bool { return p.ranges[i].To > channel })
	if idx < len(p.ranges) && p.ranges[idx].Contains(channel) {
		return p.ranges[idx].Assignment
	}
	return Unknown
}

// Required returns the ordered technology list every operator must report.
func (p *Plan) Required() []Technology {
	return append([]Technology(nil), p.required...)
}

// Ranges returns a copy of the range table sorted by start channel.
func (p *Plan) Ranges() []ChannelRange {
	return append([]ChannelRange(nil), p.ranges...)
}

// Channels returns the exact-match channel ids in ascending order.
func (p *Plan) Channels() []int {
	out := make([]int, 0, len(p.channels))
	for ch := range p.channels {
		out = append(out, ch)
	}
	sort.Ints(out)
	return out
}

// Classify looks a channel up in the compiled default plan for gen.
func Classify(channel int, gen Generation) Assignment {
	return Default(gen).Classify(channel)
}
