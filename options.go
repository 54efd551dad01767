package main

import (
	"fmt"
	"strings"

	"covreport/config"
	"covreport/freqplan"
	"covreport/grading"
	"covreport/internal/covreport"
	"covreport/survey"
)

// cliOverrides are the command-line values that replace config entries.
type cliOverrides struct {
	Output     string
	JSONOutput string
	Generation string
	Sheet      string
	Sources    []string
}

// Purpose: Build the report options from the merged config and CLI flags.
// Key aspects: Flags win over config; positional sources replace the
// configured list; plan files, column aliases, operators and thresholds are
// validated here so a bad config fails before any source is read.
// Upstream: main startup, watch reloads.
// Downstream: freqplan.LoadFile, grading.New, schemaFromConfig.
func buildOptions(cfg *config.Config, cli cliOverrides) (covreport.Options, error) {
	var opts covreport.Options

	genLabel := cfg.Report.Generation
	if strings.TrimSpace(cli.Generation) != "" {
		genLabel = cli.Generation
	}
	gen, err := freqplan.ParseGeneration(genLabel)
	if err != nil {
		return opts, err
	}
	opts.Generation = gen

	planFile := cfg.Plan.LegacyFile
	if gen == freqplan.FifthGen {
		planFile = cfg.Plan.FifthGenFile
	}
	if strings.TrimSpace(planFile) != "" {
		plan, err := freqplan.LoadFile(planFile, gen)
		if err != nil {
			return opts, err
		}
		opts.Plan = plan
	} else {
		opts.Plan = freqplan.Default(gen)
	}

	columns := cfg.Input.Legacy
	if gen == freqplan.FifthGen {
		columns = cfg.Input.FifthGen
	}
	schema := schemaFromConfig(gen, columns)
	opts.Schema = &schema
	opts.Read = survey.ReadOptions{
		Sheet:          cfg.Input.Sheet,
		Encoding:       cfg.Input.Encoding,
		MinHeaderCells: cfg.Input.MinHeaderCells,
	}
	if strings.TrimSpace(cli.Sheet) != "" {
		opts.Read.Sheet = cli.Sheet
	}
	opts.MaxHeaderDistance = cfg.Input.MaxHeaderDistance
	opts.Precision = cfg.Report.Precision

	for _, label := range cfg.Report.Operators {
		op, ok := freqplan.ParseOperator(label)
		if !ok {
			return opts, fmt.Errorf("report.operators: unknown operator %q", label)
		}
		opts.Operators = append(opts.Operators, op)
	}

	thresholds := make(map[grading.Family]grading.Thresholds, len(cfg.Grading.Thresholds))
	for label, th := range cfg.Grading.Thresholds {
		fam, ok := grading.ParseFamily(label)
		if !ok {
			return opts, fmt.Errorf("grading.thresholds: unknown family %q", label)
		}
		thresholds[fam] = grading.Thresholds{GreenMin: th.GreenMin, YellowMin: th.YellowMin}
	}
	grader, err := grading.New(thresholds, cfg.Grading.DeadZone)
	if err != nil {
		return opts, err
	}
	opts.Grader = grader

	opts.Output = cfg.Report.Output
	if strings.TrimSpace(cli.Output) != "" {
		opts.Output = cli.Output
	}
	opts.JSONOut = cfg.Report.JSONOutput
	if strings.TrimSpace(cli.JSONOutput) != "" {
		opts.JSONOut = cli.JSONOutput
	}
	opts.SummarySheet = cfg.Report.SummarySheet
	opts.SkipDuplicates = cfg.Report.SkipDuplicates

	if len(cli.Sources) > 0 {
		for _, arg := range cli.Sources {
			src, err := parseSourceArg(arg)
			if err != nil {
				return opts, err
			}
			opts.Sources = append(opts.Sources, src)
		}
	} else {
		for _, sc := range cfg.Sources {
			opts.Sources = append(opts.Sources, covreport.Source{Area: sc.Area, Path: sc.Path, Sheet: sc.Sheet})
		}
	}
	if len(opts.Sources) == 0 {
		return opts, fmt.Errorf("no sources: pass AREA=path arguments or configure sources")
	}
	if err := covreport.CheckAreas(opts.Sources); err != nil {
		return opts, err
	}
	return opts, nil
}

// parseSourceArg accepts "AREA=path" or a bare path whose file name becomes
// the area label.
func parseSourceArg(arg string) (covreport.Source, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return covreport.Source{}, fmt.Errorf("empty source argument")
	}
	if area, path, ok := strings.Cut(arg, "="); ok {
		area, path = strings.TrimSpace(area), strings.TrimSpace(path)
		if area == "" || path == "" {
			return covreport.Source{}, fmt.Errorf("source %q: want AREA=path", arg)
		}
		return covreport.Source{Area: area, Path: path}, nil
	}
	return covreport.Source{Area: config.AreaFromPath(arg), Path: arg}, nil
}

// schemaFromConfig overlays configured aliases on the built-in schema.
func schemaFromConfig(gen freqplan.Generation, cc config.ColumnsConfig) survey.Schema {
	schema := survey.DefaultSchema(gen)
	if len(cc.Channel) > 0 {
		schema.Channel = append([]string(nil), cc.Channel...)
	}
	if len(cc.Fallback) > 0 {
		schema.Fallback = append([]string(nil), cc.Fallback...)
	}
	if len(cc.Metrics) > 0 {
		schema.Metrics = schema.Metrics[:0:0]
		for _, m := range cc.Metrics {
			aliases := m.Aliases
			if len(aliases) == 0 {
				aliases = []string{m.Name}
			}
			schema.Metrics = append(schema.Metrics, survey.Metric{Name: m.Name, Aliases: append([]string(nil), aliases...)})
		}
	}
	return schema
}
