// Command analyze runs the ledger analysis on a local file and prints the
// text report. With -question and a configured LLM provider it also prints
// the model's feedback.
//
//	analyze [-rules rules.yaml] [-dependents n] [-children n] [-elderly n]
//	        [-json] [-question "..."] <ledger-file>
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"bookkeeper/internal/analysis"
	"bookkeeper/internal/config"
	"bookkeeper/internal/feedback"
	"bookkeeper/internal/ledger"
	"bookkeeper/internal/log"
)

func main() {
	_ = godotenv.Load()
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "analyze:", err)
		os.Exit(1)
	}
}

type options struct {
	rules     string
	question  string
	asJSON    bool
	household analysis.Household
	path      string
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.rules, "rules", os.Getenv("RULES_FILE"), "YAML rule file (default: built-in rules)")
	fs.StringVar(&o.question, "question", "", "ask the configured LLM provider about the report")
	fs.BoolVar(&o.asJSON, "json", false, "print the report as JSON instead of text")
	fs.IntVar(&o.household.Dependents, "dependents", 0, "number of dependents")
	fs.IntVar(&o.household.Children, "children", 0, "number of children")
	fs.IntVar(&o.household.Elderly, "elderly", 0, "number of elderly dependents")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: analyze [flags] <ledger-file>")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return o, errors.New("exactly one ledger file is required")
	}
	if o.household.Dependents < 0 || o.household.Children < 0 || o.household.Elderly < 0 {
		return o, errors.New("household counts must be non-negative")
	}
	o.path = fs.Arg(0)
	return o, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	o, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	cfg := config.Load()
	lvl, _ := log.ParseLevel(cfg.LogLevel)
	logger := log.New(log.Config{Level: lvl, Format: cfg.LogFormat, Component: log.ComponentCLI, Output: stderr})

	data, err := os.ReadFile(o.path)
	if err != nil {
		return fmt.Errorf("read ledger: %w", err)
	}
	l, stats, err := ledger.ParseFile(filepath.Base(o.path), data)
	if err != nil {
		return fmt.Errorf("parse %s: %w", o.path, err)
	}
	logger.Debug("Ledger parsed",
		log.FieldSource, o.path,
		log.FieldRows, stats.Accepted,
		log.FieldDropped, stats.Dropped,
		"repaired_amounts", stats.RepairedAmounts,
		"invalid_dates", stats.InvalidDates)

	rules, err := config.LoadRules(o.rules)
	if err != nil {
		return err
	}
	report := analysis.NewAnalyzer(rules).Analyze(ctx, l, o.household)
	text := analysis.RenderText(report)

	if o.asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(struct {
			Stats  ledger.Stats    `json:"stats"`
			Report analysis.Report `json:"report"`
		}{stats, report}); err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
	} else {
		fmt.Fprint(stdout, text)
	}

	if strings.TrimSpace(o.question) == "" {
		return nil
	}
	provider, err := feedback.NewProviderFromConfig(ctx, cfg)
	if errors.Is(err, feedback.ErrNoProvider) {
		logger.Warn("No LLM provider configured, skipping question", log.FieldProvider, cfg.LLMProvider)
		return nil
	}
	if err != nil {
		return err
	}
	answer, err := feedback.Advisor{Provider: provider}.Answer(ctx, strings.TrimSpace(o.question), text, true)
	if err != nil {
		return fmt.Errorf("ask %s: %w", provider.Name(), err)
	}
	fmt.Fprintf(stdout, "\n%s\n", answer)
	return nil
}
