package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultDir is used when neither -config nor COVREPORT_CONFIG_PATH is set.
const DefaultDir = "data/config"

// EnvConfigPath overrides DefaultDir.
const EnvConfigPath = "COVREPORT_CONFIG_PATH"

// Config represents the complete report generator configuration
type Config struct {
	Report  ReportConfig   `yaml:"report"`
	Input   InputConfig    `yaml:"input"`
	Plan    PlanConfig     `yaml:"plan"`
	Grading GradingConfig  `yaml:"grading"`
	Logging LoggingConfig  `yaml:"logging"`
	Archive ArchiveConfig  `yaml:"archive"`
	Watch   WatchConfig    `yaml:"watch"`
	Sources []SourceConfig `yaml:"sources"`

	// LoadedFrom is the directory the configuration was merged from.
	LoadedFrom string `yaml:"-"`
}

// ReportConfig controls what is generated and where it goes
type ReportConfig struct {
	Output         string   `yaml:"output"`
	JSONOutput     string   `yaml:"json_output"`
	Generation     string   `yaml:"generation"`
	SummarySheet   string   `yaml:"summary_sheet"`
	Precision      int      `yaml:"precision"`
	Operators      []string `yaml:"operators"`
	SkipDuplicates bool     `yaml:"skip_duplicates"`
}

// InputConfig controls how survey exports are read
type InputConfig struct {
	Sheet             string        `yaml:"sheet"`
	Encoding          string        `yaml:"encoding"`
	MinHeaderCells    int           `yaml:"min_header_cells"`
	MaxHeaderDistance int           `yaml:"max_header_distance"`
	Legacy            ColumnsConfig `yaml:"legacy_columns"`
	FifthGen          ColumnsConfig `yaml:"fifth_gen_columns"`
}

// ColumnsConfig overrides the header aliases of one export flavor. Empty
// lists keep the built-in aliases.
type ColumnsConfig struct {
	Channel  []string       `yaml:"channel"`
	Fallback []string       `yaml:"fallback"`
	Metrics  []MetricConfig `yaml:"metrics"`
}

// MetricConfig names one signal metric column and its aliases
type MetricConfig struct {
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`
}

// PlanConfig points at optional plan files replacing the compiled tables
type PlanConfig struct {
	LegacyFile   string `yaml:"legacy_file"`
	FifthGenFile string `yaml:"fifth_gen_file"`
}

// GradingConfig holds severity thresholds per family ("2G".."5G")
type GradingConfig struct {
	DeadZone   float64                    `yaml:"dead_zone"`
	Thresholds map[string]ThresholdConfig `yaml:"thresholds"`
}

// ThresholdConfig is one family's inclusive lower bounds in dBm
type ThresholdConfig struct {
	GreenMin  float64 `yaml:"green_min"`
	YellowMin float64 `yaml:"yellow_min"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Dir           string `yaml:"dir"`
	RetentionDays int    `yaml:"retention_days"`
	Progress      bool   `yaml:"progress"`
}

// ArchiveConfig controls the run history database
type ArchiveConfig struct {
	Enabled       bool   `yaml:"enabled"`
	DBPath        string `yaml:"db_path"`
	RetentionRuns int    `yaml:"retention_runs"`
	BusyTimeoutMS int    `yaml:"busy_timeout_ms"`
	Synchronous   string `yaml:"synchronous"`
}

// WatchConfig controls regeneration on input changes
type WatchConfig struct {
	DebounceMS int `yaml:"debounce_ms"`
}

// SourceConfig is one measured area and its export file
type SourceConfig struct {
	Area  string `yaml:"area"`
	Path  string `yaml:"path"`
	Sheet string `yaml:"sheet"`
}

// Defaults returns the configuration used before any file is merged.
func Defaults() Config {
	return Config{
		Report: ReportConfig{
			Output:         "data/reports/coverage.xlsx",
			Generation:     "legacy",
			SummarySheet:   "Summary",
			Precision:      2,
			Operators:      []string{"TIM", "VF", "W3", "Iliad"},
			SkipDuplicates: true,
		},
		Input: InputConfig{
			MinHeaderCells:    2,
			MaxHeaderDistance: 2,
		},
		Grading: GradingConfig{
			DeadZone: 1,
		},
		Logging: LoggingConfig{
			Enabled:       false,
			Dir:           "data/logs",
			RetentionDays: 7,
			Progress:      true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			DBPath:        "data/archive/runs.db",
			RetentionRuns: 500,
			BusyTimeoutMS: 5000,
			Synchronous:   "normal",
		},
		Watch: WatchConfig{
			DebounceMS: 750,
		},
	}
}

// ResolveDir picks the config directory: explicit flag, then env, then default.
func ResolveDir(flagValue string) string {
	if v := strings.TrimSpace(flagValue); v != "" {
		return v
	}
	if v := strings.TrimSpace(os.Getenv(EnvConfigPath)); v != "" {
		return v
	}
	return DefaultDir
}

// Purpose: Load configuration from a directory of YAML files.
// Key aspects: Files are decoded in lexical order on top of Defaults, so later
// files override earlier ones key by key and explicit zero values survive.
// Unknown keys are rejected. A missing default directory yields Defaults.
// Upstream: main startup, watch reloads.
// Downstream: yaml.Decoder, normalize.
func Load(dir string) (*Config, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && filepath.Clean(dir) == filepath.Clean(DefaultDir) {
			cfg := Defaults()
			if err := cfg.normalize(); err != nil {
				return nil, err
			}
			return &cfg, nil
		}
		return nil, fmt.Errorf("failed to read config directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("config path %s is not a directory", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list config directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	cfg := Defaults()
	for _, path := range files {
		if err := decodeInto(path, &cfg); err != nil {
			return nil, err
		}
	}
	cfg.LoadedFrom = dir
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeInto(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("failed to parse config file %s: %w", filepath.Base(path), err)
	}
	return nil
}

func (c *Config) normalize() error {
	if c.Report.Precision < 0 || c.Report.Precision > 6 {
		return fmt.Errorf("report.precision must be between 0 and 6, got %d", c.Report.Precision)
	}
	if strings.TrimSpace(c.Report.SummarySheet) == "" {
		c.Report.SummarySheet = "Summary"
	}
	if len(c.Report.Operators) == 0 {
		c.Report.Operators = Defaults().Report.Operators
	}
	if c.Input.MinHeaderCells <= 0 {
		c.Input.MinHeaderCells = 2
	}
	if c.Input.MaxHeaderDistance < 0 {
		c.Input.MaxHeaderDistance = 0
	}
	if c.Grading.DeadZone < 0 {
		return fmt.Errorf("grading.dead_zone must be >= 0, got %v", c.Grading.DeadZone)
	}
	for fam, th := range c.Grading.Thresholds {
		if !(th.GreenMin > th.YellowMin) {
			return fmt.Errorf("grading.thresholds.%s: green_min must be above yellow_min", fam)
		}
	}
	if c.Logging.RetentionDays <= 0 {
		c.Logging.RetentionDays = 7
	}
	if c.Archive.RetentionRuns < 0 {
		c.Archive.RetentionRuns = 0
	}
	if c.Archive.BusyTimeoutMS <= 0 {
		c.Archive.BusyTimeoutMS = 5000
	}
	switch strings.ToLower(strings.TrimSpace(c.Archive.Synchronous)) {
	case "", "normal":
		c.Archive.Synchronous = "normal"
	case "off", "full":
		c.Archive.Synchronous = strings.ToLower(strings.TrimSpace(c.Archive.Synchronous))
	default:
		return fmt.Errorf("archive.synchronous must be off, normal or full, got %q", c.Archive.Synchronous)
	}
	if c.Watch.DebounceMS <= 0 {
		c.Watch.DebounceMS = 750
	}
	for i := range c.Sources {
		src := &c.Sources[i]
		src.Path = strings.TrimSpace(src.Path)
		if src.Path == "" {
			return fmt.Errorf("sources[%d]: path is required", i)
		}
		if strings.TrimSpace(src.Area) == "" {
			src.Area = AreaFromPath(src.Path)
		}
	}
	return nil
}

// AreaFromPath derives an area label from a file name.
func AreaFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Print displays the configuration
func (c *Config) Print() {
	fmt.Printf("Config: %s\n", c.LoadedFrom)
	fmt.Printf("Report: %s (generation %s, precision %d, summary sheet %q)\n", c.Report.Output, c.Report.Generation, c.Report.Precision, c.Report.SummarySheet)
	if c.Report.JSONOutput != "" {
		fmt.Printf("JSON sidecar: %s\n", c.Report.JSONOutput)
	}
	fmt.Printf("Operators: %s\n", strings.Join(c.Report.Operators, ", "))
	if c.Plan.LegacyFile != "" {
		fmt.Printf("Legacy plan: %s\n", c.Plan.LegacyFile)
	}
	if c.Plan.FifthGenFile != "" {
		fmt.Printf("5G plan: %s\n", c.Plan.FifthGenFile)
	}
	if c.Archive.Enabled {
		fmt.Printf("Archive: %s (keep %d runs)\n", c.Archive.DBPath, c.Archive.RetentionRuns)
	}
	for _, src := range c.Sources {
		fmt.Printf("Source: %s <- %s\n", src.Area, src.Path)
	}
}
