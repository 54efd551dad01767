package covreport

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/zeebo/xxh3"

	"covreport/aggregate"
	"covreport/archive"
	"covreport/coverage"
	"covreport/freqplan"
	"covreport/grading"
	"covreport/stats"
	"covreport/survey"
	"covreport/workbook"
)

type Logger interface {
	Printf(format string, args ...any)
}

// Source is one measured area and the export it is read from.
type Source struct {
	Area  string
	Path  string
	Sheet string
}

type Options struct {
	Sources           []Source
	Generation        freqplan.Generation
	Plan              *freqplan.Plan
	Schema            *survey.Schema
	Read              survey.ReadOptions
	MaxHeaderDistance int
	// Precision is the number of decimals means are rounded to; negative
	// selects aggregate.DefaultPrecision.
	Precision      int
	Operators      []freqplan.Operator
	Grader         *grading.Grader
	Output         string
	JSONOut        string
	SummarySheet   string
	SkipDuplicates bool
	Archive        *archive.Store
	Stats          *stats.Tracker
	Logger         Logger
	// Progress is called after each source with the number processed so far.
	Progress func(done, total int)
	Now      func() time.Time
}

// SourceFailure is a source skipped because it could not be turned into a table.
type SourceFailure struct {
	Area string
	Path string
	Err  error
}

func (f SourceFailure) Error() string {
	return fmt.Sprintf("%s (%s): %v", f.Area, f.Path, f.Err)
}

func (f SourceFailure) Unwrap() error { return f.Err }

// SourceResult describes a processed source.
type SourceResult struct {
	Area         string
	Path         string
	Fingerprint  string
	Bytes        int
	Extract      survey.ExtractStats
	Unclassified []aggregate.ChannelMean
	Extra        []coverage.Row
	DuplicateOf  string
}

type Result struct {
	OutputPath  string
	JSONPath    string
	Fingerprint string
	RunID       int64
	Document    workbook.Document
	Sources     []SourceResult
	Duplicates  []SourceResult
	Failed      []SourceFailure
}

var (
	// ErrNoSources is returned when Options.Sources is empty.
	ErrNoSources = errors.New("covreport: no sources given")
	// ErrNoUsableSources is returned when every source failed; nothing is written.
	ErrNoUsableSources = errors.New("covreport: no source produced a table")
	// ErrDuplicateArea is returned when two sources share an area label.
	ErrDuplicateArea = errors.New("covreport: duplicate area")
)

// CheckAreas rejects empty area labels and labels used by more than one
// source. Labels compare case-insensitively, as worksheet names do.
func CheckAreas(sources []Source) error {
	seen := make(map[string]string, len(sources))
	for _, src := range sources {
		area := strings.TrimSpace(src.Area)
		if area == "" {
			return fmt.Errorf("covreport: source %s has no area label", src.Path)
		}
		key := strings.ToLower(area)
		if prev, ok := seen[key]; ok {
			return fmt.Errorf("%w %q (%s and %s)", ErrDuplicateArea, area, prev, src.Path)
		}
		seen[key] = src.Path
	}
	return nil
}

type areaTable struct {
	rows    []coverage.Row
	summary []coverage.ReportRow
	result  SourceResult
}

// Purpose: Run the whole batch and emit the consolidated report.
// Key aspects: Sources are processed one at a time in order; cancellation is
// checked between sources; a failing source is logged and skipped; the
// workbook and its sidecar are rendered together at the end and replace the
// previous outputs only when both rendered.
// Upstream: main (single run and watch mode).
// Downstream: buildTable, workbook.Emit, archive.Store.Record.
func Generate(ctx context.Context, opts Options) (Result, error) {
	var result Result
	logf := func(format string, args ...any) {
		if opts.Logger != nil {
			opts.Logger.Printf(format, args...)
		}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	started := now().UTC()

	if len(opts.Sources) == 0 {
		return result, ErrNoSources
	}
	if err := CheckAreas(opts.Sources); err != nil {
		return result, err
	}
	output := strings.TrimSpace(opts.Output)
	if output == "" {
		return result, errors.New("covreport: output path is required")
	}
	plan := opts.Plan
	if plan == nil {
		plan = freqplan.Default(opts.Generation)
	}
	if plan.Generation() != opts.Generation {
		return result, fmt.Errorf("covreport: plan is for %s, run is %s", plan.Generation(), opts.Generation)
	}
	schema := survey.DefaultSchema(opts.Generation)
	if opts.Schema != nil {
		schema = *opts.Schema
	}
	grader := opts.Grader
	if grader == nil {
		grader = grading.Default()
	}
	operators := opts.Operators
	if len(operators) == 0 {
		operators = freqplan.Operators()
	}
	tracker := opts.Stats
	if tracker == nil {
		tracker = stats.NewTracker()
	}
	precision := opts.Precision
	if precision < 0 {
		precision = aggregate.DefaultPrecision
	}

	var (
		tables  []areaTable
		seen    = make(map[uint64]string)
		fpParts = make([]string, 0, len(opts.Sources))
	)
	for i, src := range opts.Sources {
		if err := ctx.Err(); err != nil {
			logf("Report cancelled before source %d/%d; nothing written", i+1, len(opts.Sources))
			return result, err
		}
		raw, err := os.ReadFile(src.Path)
		if err != nil {
			result.Failed = append(result.Failed, fail(src, err, tracker, logf))
			progress(opts, i)
			continue
		}
		hash := xxh3.Hash(raw)
		fingerprint := fmt.Sprintf("%016x", hash)
		if first, dup := seen[hash]; dup && opts.SkipDuplicates {
			result.Duplicates = append(result.Duplicates, SourceResult{
				Area: src.Area, Path: src.Path, Fingerprint: fingerprint, Bytes: len(raw), DuplicateOf: first,
			})
			tracker.Duplicate()
			logf("Warning: source %s (%s) has the same content as area %s; skipped", src.Area, src.Path, first)
			progress(opts, i)
			continue
		}
		table, err := buildTable(src, raw, opts, plan, schema, operators, precision, tracker, logf)
		if err != nil {
			result.Failed = append(result.Failed, fail(src, err, tracker, logf))
			progress(opts, i)
			continue
		}
		table.result.Fingerprint = fingerprint
		seen[hash] = src.Area
		fpParts = append(fpParts, fingerprint)
		tables = append(tables, table)
		result.Sources = append(result.Sources, table.result)
		progress(opts, i)
	}
	if err := ctx.Err(); err != nil {
		logf("Report cancelled; nothing written")
		return result, err
	}
	if len(tables) == 0 {
		return result, fmt.Errorf("%w (%d failed)", ErrNoUsableSources, len(result.Failed))
	}

	doc := workbook.Document{
		Operators:    operators,
		SummarySheet: opts.SummarySheet,
	}
	for _, t := range tables {
		doc.Areas = append(doc.Areas, workbook.Area{Name: t.result.Area, Rows: t.rows})
		doc.Summary = append(doc.Summary, t.summary...)
	}
	jsonOut := strings.TrimSpace(opts.JSONOut)
	if err := workbook.Emit(output, jsonOut, doc, grader); err != nil {
		return result, fmt.Errorf("covreport: write report: %w", err)
	}
	result.OutputPath = output
	result.JSONPath = jsonOut
	result.Document = doc
	logf("Report written to %s (%d areas, %d summary rows)", output, len(doc.Areas), len(doc.Summary))

	result.Fingerprint = runFingerprint(opts.Generation, fpParts)
	if opts.Archive != nil {
		if prev, ok, err := opts.Archive.LastWithFingerprint(ctx, result.Fingerprint); err == nil && ok {
			logf("Inputs unchanged since archived run #%d (%s)", prev.ID, humanize.Time(prev.FinishedAt))
		}
		id, err := opts.Archive.Record(ctx, archiveRun(result, opts.Generation, grader, started, now().UTC()))
		if err != nil {
			logf("Warning: archive record failed: %v", err)
		} else {
			result.RunID = id
		}
	}
	for _, line := range tracker.SnapshotLines() {
		logf("%s", line)
	}
	return result, nil
}

func progress(opts Options, i int) {
	if opts.Progress != nil {
		opts.Progress(i+1, len(opts.Sources))
	}
}

func fail(src Source, err error, tracker *stats.Tracker, logf func(string, ...any)) SourceFailure {
	failure := SourceFailure{Area: src.Area, Path: src.Path, Err: err}
	tracker.SourceFailed()
	logf("Warning: skipping source %s", failure.Error())
	return failure
}

// Purpose: Turn one source file into its completed area table and summary rows.
// Key aspects: Unclassified channels and rows outside the grid are reported
// as warnings and kept out of the table.
// Upstream: Generate.
// Downstream: survey.Parse, Schema.Bind, survey.Extract, aggregate.Aggregate,
// coverage.Complete, coverage.Summarize.
func buildTable(src Source, raw []byte, opts Options, plan *freqplan.Plan, schema survey.Schema, operators []freqplan.Operator, precision int, tracker *stats.Tracker, logf func(string, ...any)) (areaTable, error) {
	read := opts.Read
	if strings.TrimSpace(src.Sheet) != "" {
		read.Sheet = src.Sheet
	}
	table, err := survey.Parse(src.Path, raw, read)
	if err != nil {
		return areaTable{}, err
	}
	binding, err := schema.Bind(table.Columns, opts.MaxHeaderDistance)
	if err != nil {
		return areaTable{}, err
	}
	samples, extracted := survey.Extract(table, binding)
	agg, err := aggregate.Aggregate(samples, plan, precision)
	if err != nil {
		return areaTable{}, err
	}
	completion := coverage.Complete(coverage.FromMeasurements(agg.Measurements), plan.Required())

	res := SourceResult{
		Area:         src.Area,
		Path:         src.Path,
		Bytes:        len(raw),
		Extract:      extracted,
		Unclassified: agg.Unclassified(),
		Extra:        completion.Extra,
	}
	if len(res.Unclassified) > 0 {
		logf("Warning: %s: %d channel(s) not in the %s plan: %s", src.Area, len(res.Unclassified), plan.Generation(), channelList(res.Unclassified))
	}
	for _, row := range completion.Extra {
		logf("Warning: %s: %s/%s outside the report grid (mean %s)", src.Area, row.Operator, row.Technology, coverage.Cell{Value: row.Mean}.Display())
	}
	if extracted.Skipped() > 0 {
		logf("%s: %d of %d rows skipped (no channel %d, bad channel %d, no metric %d)",
			src.Area, extracted.Skipped(), extracted.Rows, extracted.NoChannel, extracted.BadChannel, extracted.NoMetric)
	}

	tracker.SourceDone(len(raw))
	tracker.Add(src.Area, stats.Rows, extracted.Rows)
	tracker.Add(src.Area, stats.Samples, extracted.Samples)
	tracker.Add(src.Area, stats.Skipped, extracted.Skipped())
	tracker.Add(src.Area, stats.Fallback, extracted.Fallback)
	tracker.Add(src.Area, stats.Unclassified, len(res.Unclassified))
	tracker.Add(src.Area, stats.Extra, len(completion.Extra))

	return areaTable{
		rows:    completion.Rows,
		summary: coverage.Summarize(src.Area, completion.Rows, plan.Required(), operators),
		result:  res,
	}, nil
}

func channelList(cms []aggregate.ChannelMean) string {
	channels := make([]int, 0, len(cms))
	for _, cm := range cms {
		channels = append(channels, cm.Channel)
	}
	sort.Ints(channels)
	parts := make([]string, 0, len(channels))
	for _, ch := range channels {
		parts = append(parts, strconv.Itoa(ch))
	}
	return strings.Join(parts, ", ")
}

// runFingerprint combines the per-source fingerprints into one run key.
func runFingerprint(gen freqplan.Generation, parts []string) string {
	return fmt.Sprintf("%016x", xxh3.HashString(gen.String()+"|"+strings.Join(parts, "|")))
}

func archiveRun(result Result, gen freqplan.Generation, grader *grading.Grader, started, finished time.Time) archive.Run {
	run := archive.Run{
		StartedAt:   started,
		FinishedAt:  finished,
		Output:      result.OutputPath,
		Generation:  gen.String(),
		Fingerprint: result.Fingerprint,
	}
	for _, src := range result.Sources {
		run.Sources = append(run.Sources, archive.SourceRecord{
			Area: src.Area, Path: src.Path, Fingerprint: src.Fingerprint,
			Rows: src.Extract.Rows, Samples: src.Extract.Samples, Status: "ok",
		})
	}
	for _, dup := range result.Duplicates {
		run.Sources = append(run.Sources, archive.SourceRecord{
			Area: dup.Area, Path: dup.Path, Fingerprint: dup.Fingerprint,
			Status: "duplicate", Reason: "same content as " + dup.DuplicateOf,
		})
	}
	for _, f := range result.Failed {
		run.Sources = append(run.Sources, archive.SourceRecord{
			Area: f.Area, Path: f.Path, Status: "failed", Reason: f.Err.Error(),
		})
	}
	for _, row := range result.Document.Summary {
		for _, cell := range row.Coverage {
			run.Measurements = append(run.Measurements, archive.MeasurementRecord{
				Area:        row.Area,
				Technology:  string(row.Technology),
				TariffClass: row.TariffClass,
				Operator:    string(cell.Operator),
				Value:       cell.Value,
				Band:        grader.Grade(string(row.Technology), cell.Value).String(),
			})
		}
	}
	return run
}
