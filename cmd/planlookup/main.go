package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"covreport/coverage"
	"covreport/freqplan"
	"covreport/survey"
)

func main() {
	genLabel := flag.String("gen", "legacy", "generation: legacy or 5g")
	planPath := flag.String("plan", "", "optional plan file (.yaml or .plist); default is the built-in table")
	dump := flag.String("dump", "", "print the plan as yaml or plist and exit")
	flag.Parse()

	gen, err := freqplan.ParseGeneration(*genLabel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
	plan := freqplan.Default(gen)
	if strings.TrimSpace(*planPath) != "" {
		plan, err = freqplan.LoadFile(*planPath, gen)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error loading plan: %v\n", err)
			os.Exit(1)
		}
	}

	if *dump != "" {
		if err := dumpPlan(os.Stdout, plan, *dump); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	fmt.Printf("loaded %s plan: %d channels, %d ranges, %d required technologies\n",
		gen, len(plan.Channels()), len(plan.Ranges()), len(plan.Required()))
	fmt.Println("enter channel ids (Ctrl+C to quit)")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fmt.Println(lookup(plan, line))
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "input error: %v\n", err)
	}
}

func lookup(plan *freqplan.Plan, raw string) string {
	ch, ok := survey.ParseChannel(raw)
	if !ok {
		return fmt.Sprintf("%q is not a channel id", raw)
	}
	a := plan.Classify(ch)
	if a.IsUnknown() {
		return fmt.Sprintf("%d -> not in the %s plan", ch, plan.Generation())
	}
	return fmt.Sprintf("%d -> operator=%s, technology=%s, tariff=%s", ch, a.Operator, a.Technology, coverage.TariffClass(a.Technology))
}

func dumpPlan(w io.Writer, plan *freqplan.Plan, format string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "yaml", "yml":
		data, err = freqplan.MarshalYAML(plan)
	case "plist":
		data, err = freqplan.MarshalPlist(plan)
	default:
		return fmt.Errorf("unknown dump format %q (want yaml or plist)", format)
	}
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
