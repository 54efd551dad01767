package freqplan

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
	"howett.net/plist"
)

// File is the on-disk representation of a plan. YAML and plist files share
// the same field names.
type File struct {
	Generation string      `yaml:"generation" plist:"generation"`
	Required   []string    `yaml:"required" plist:"required"`
	Channels   []FileEntry `yaml:"channels" plist:"channels"`
	Ranges     []FileRange `yaml:"ranges,omitempty" plist:"ranges,omitempty"`
}

// FileEntry is one exact-match channel.
type FileEntry struct {
	Channel    int    `yaml:"channel" plist:"channel"`
	Operator   string `yaml:"operator" plist:"operator"`
	Technology string `yaml:"technology" plist:"technology"`
}

// FileRange is one half-open channel range [From, To).
type FileRange struct {
	From       int    `yaml:"from" plist:"from"`
	To         int    `yaml:"to" plist:"to"`
	Operator   string `yaml:"operator" plist:"operator"`
	Technology string `yaml:"technology" plist:"technology"`
}

// Purpose: Load and validate a plan file for the requested generation.
// Key aspects: Dispatches on extension (.yaml/.yml or .plist) and rejects a
// file that declares a different generation.
// Upstream: covreport plan selection, cmd/planlookup.
// Downstream: DecodeYAML, DecodePlist, NewPlan.
func LoadFile(path string, gen Generation) (*Plan, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open plan file: %w", err)
	}
	defer f.Close()

	var file File
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		file, err = DecodeYAML(f)
	case ".plist":
		file, err = DecodePlist(f)
	default:
		return nil, fmt.Errorf("plan file %s: unsupported extension (want .yaml, .yml or .plist)", path)
	}
	if err != nil {
		return nil, fmt.Errorf("plan file %s: %w", path, err)
	}
	plan, err := file.Plan(gen)
	if err != nil {
		return nil, fmt.Errorf("plan file %s: %w", path, err)
	}
	return plan, nil
}

// DecodeYAML reads a plan file in YAML form.
func DecodeYAML(r io.Reader) (File, error) {
	var file File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return File{}, fmt.Errorf("decode yaml: %w", err)
	}
	return file, nil
}

// DecodePlist reads a plan file in XML or binary plist form.
func DecodePlist(r io.ReadSeeker) (File, error) {
	var file File
	if err := plist.NewDecoder(r).Decode(&file); err != nil {
		return File{}, fmt.Errorf("decode plist: %w", err)
	}
	return file, nil
}

// Plan converts the file into a validated plan for gen.
func (f File) Plan(gen Generation) (*Plan, error) {
	if strings.TrimSpace(f.Generation) != "" {
		declared, err := ParseGeneration(f.Generation)
		if err != nil {
			return nil, err
		}
		if declared != gen {
			return nil, fmt.Errorf("file declares generation %s, want %s", declared, gen)
		}
	}
	channels := make(map[int]Assignment, len(f.Channels))
	for _, e := range f.Channels {
		if _, dup := channels[e.Channel]; dup {
			return nil, &PlanError{Generation: gen, Reason: fmt.Sprintf("channel %d listed twice", e.Channel)}
		}
		channels[e.Channel] = assignmentFromFile(e.Operator, e.Technology)
	}
	ranges := make([]ChannelRange, 0, len(f.Ranges))
	for _, r := range f.Ranges {
		ranges = append(ranges, ChannelRange{From: r.From, To: r.To, Assignment: assignmentFromFile(r.Operator, r.Technology)})
	}
	required := make([]Technology, 0, len(f.Required))
	for _, tech := range f.Required {
		required = append(required, Technology(tech))
	}
	return NewPlan(gen, channels, ranges, required)
}

func assignmentFromFile(operator, technology string) Assignment {
	op, ok := ParseOperator(operator)
	if !ok {
		// Keep the label so NewPlan can report it; only the four known operators are valid.
		op = Operator(strings.TrimSpace(operator))
		if op == "" {
			op = OperatorUnknown
		}
	}
	return Assignment{Operator: op, Technology: Technology(strings.TrimSpace(technology))}
}

// Export converts a plan back into its file form, channels in ascending order.
func Export(p *Plan) File {
	file := File{Generation: p.generation.String()}
	for _, tech := range p.required {
		file.Required = append(file.Required, string(tech))
	}
	for _, ch := range p.Channels() {
		a := p.channels[ch]
		file.Channels = append(file.Channels, FileEntry{Channel: ch, Operator: string(a.Operator), Technology: string(a.Technology)})
	}
	for _, r := range p.ranges {
		file.Ranges = append(file.Ranges, FileRange{From: r.From, To: r.To, Operator: string(r.Operator), Technology: string(r.Technology)})
	}
	sort.SliceStable(file.Ranges, func(i, j int) bool { return file.Ranges[i].From < file.Ranges[j].From })
	return file
}

// MarshalYAML renders a plan as an editable YAML plan file.
func MarshalYAML(p *Plan) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(Export(p)); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalPlist renders a plan as an XML plist plan file.
func MarshalPlist(p *Plan) ([]byte, error) {
	return plist.MarshalIndent(Export(p), plist.XMLFormat, "\t")
}
