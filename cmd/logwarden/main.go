package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"unicode"

	"logwarden/internal/config"
	"logwarden/internal/feature"
	"logwarden/internal/pipeline"
	"logwarden/internal/report"
	"logwarden/internal/state"
	"logwarden/internal/types"

	"github.com/sirupsen/logrus"
)

const defaultConfigPath = "logwarden.yml"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	switch cmd {
	case "parse":
		parseCommand(os.Args[2:])
	case "detect":
		detectCommand(os.Args[2:])
	case "run":
		runCommand(os.Args[2:])
	case "stats":
		statsCommand(os.Args[2:])
	case "history":
		historyCommand(os.Args[2:])
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: logwarden <command> [flags]")
	fmt.Println("Commands:")
	fmt.Println("  parse     Parse the access log into reports/parsed_logs.csv")
	fmt.Println("  detect    Detect suspicious requests in the parsed logs")
	fmt.Println("  run       Parse, then detect")
	fmt.Println("  stats     Print traffic statistics of the last parse")
	fmt.Println("  history   List recent runs and top attacking IPs (-run <id> for one run)")
}

// setup parses the common flags, loads the configuration and builds the logger
func setup(fs *flag.FlagSet, args []string) (*types.Config, *logrus.Logger) {
	configPath := fs.String("config", defaultConfigPath, "Path to config file")
	input := fs.String("input", "", "Access log to parse (overrides input.log_path)")
	fs.Parse(args)

	log := logrus.New()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to load config")
	}
	if *input != "" {
		cfg.Input.LogPath = *input
	}

	if cfg.Logging.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		log.WithError(err).Warn("Unknown log level, using info")
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	return cfg, log
}

func parseCommand(args []string) {
	cfg, log := setup(flag.NewFlagSet("parse", flag.ExitOnError), args)

	res, err := pipeline.New(cfg, log).Parse()
	if err != nil {
		fatal(log, err)
	}

	fmt.Printf("Parsed %d records from %s (%d lines skipped)\n",
		len(res.Records), sanitize(res.Input), res.Stats.Skipped())
	fmt.Printf("Saved: %s\n", sanitize(res.Output))
}

func detectCommand(args []string) {
	cfg, log := setup(flag.NewFlagSet("detect", flag.ExitOnError), args)

	p := pipeline.New(cfg, log)
	res, err := p.Detect()
	if err != nil {
		fatal(log, err)
	}
	printDetect(p, res)
}

func runCommand(args []string) {
	cfg, log := setup(flag.NewFlagSet("run", flag.ExitOnError), args)

	p := pipeline.New(cfg, log)
	parsed, detected, err := p.Run()
	if err != nil {
		fatal(log, err)
	}

	fmt.Printf("Parsed %d records from %s (%d lines skipped)\n",
		len(parsed.Records), sanitize(parsed.Input), parsed.Stats.Skipped())
	printDetect(p, detected)
}

func statsCommand(args []string) {
	cfg, log := setup(flag.NewFlagSet("stats", flag.ExitOnError), args)

	s, err := pipeline.New(cfg, log).Stats()
	if err != nil {
		fatal(log, err)
	}
	printStats(s)
}

func historyCommand(args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	limit := fs.Int("limit", 10, "Number of runs and IPs to list")
	runID := fs.String("run", "", "Show the statistics of one stored run")
	cfg, log := setup(fs, args)
	if *limit <= 0 {
		log.Fatalf("-limit must be positive, got %d", *limit)
	}

	p := pipeline.New(cfg, log)

	if *runID != "" {
		run, s, err := p.RunSummary(*runID)
		if err != nil {
			log.WithError(err).Fatal("Failed to load run")
		}
		printRun(run)
		fmt.Println()
		printStats(s)
		return
	}

	runs, top, err := p.History(*limit)
	if err != nil {
		log.WithError(err).Fatal("Failed to read run history")
	}

	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return
	}

	fmt.Println("Recent runs:")
	for _, r := range runs {
		fmt.Print("  ")
		printRun(r)
	}

	fmt.Println("\nTop attacking IPs:")
	for _, a := range top {
		fmt.Printf("  %-15s %d\n", sanitize(a.IP), a.Count)
	}
}

func printRun(r state.Run) {
	skipped := "-"
	if r.Skipped != nil {
		skipped = fmt.Sprint(*r.Skipped)
	}
	fmt.Printf("%s  %s  records=%d skipped=%s events=%d ips=%d\n",
		r.ID, r.StartedAt.Local().Format(types.TimeLayout), r.Records, skipped, r.Events, r.DistinctIPs)
}

func printDetect(p *pipeline.Pipeline, res *pipeline.DetectResult) {
	if len(res.Events) == 0 {
		fmt.Println("No suspicious logs detected.")
	} else {
		fmt.Printf("Suspicious logs saved: %s\n", sanitize(p.SuspiciousPath()))
	}
	fmt.Printf("Incident report saved: %s\n\n", sanitize(p.ReportPath()))

	fmt.Print(report.RenderSummary(sanitizeReport(res.Report)))
}

func printStats(s feature.Summary) {
	fmt.Printf("Total requests: %d\n", s.TotalRequests)

	fmt.Println("\nTop IPs:")
	for _, c := range s.TopIPs {
		fmt.Printf("  %-15s %d\n", sanitize(c.Key), c.Count)
	}

	fmt.Println("\nStatus codes:")
	for _, c := range s.StatusCodes {
		fmt.Printf("  %d  %d\n", c.Key, c.Count)
	}

	fmt.Println("\nAttacks:")
	if len(s.Attacks) == 0 {
		fmt.Println("  none")
	}
	for _, c := range s.Attacks {
		fmt.Printf("  %-40s %d\n", c.Key, c.Count)
	}

	fmt.Println("\nRequests per minute:")
	for _, c := range s.RequestsPerMinute {
		fmt.Printf("  %s  %d\n", c.Key.Format(types.TimeLayout), c.Count)
	}

	fmt.Printf("\nDoS candidates (> %d requests):\n", s.DoSThreshold)
	if len(s.DoSCandidates) == 0 {
		fmt.Println("  none")
	}
	for _, c := range s.DoSCandidates {
		fmt.Printf("  %-15s %d\n", sanitize(c.Key), c.Count)
	}
}

// fatal logs a diagnostic naming the input condition and exits non-zero
func fatal(log *logrus.Logger, err error) {
	switch {
	case errors.Is(err, types.ErrMissingInput):
		log.WithError(err).Fatal("Input not found; run `logwarden parse` first or check input.log_path")
	case errors.Is(err, types.ErrUnreadableInput):
		log.WithError(err).Fatal("Input could not be read")
	case errors.Is(err, types.ErrEmptyInput):
		log.WithError(err).Fatal("Input is empty, no logs to analyze")
	default:
		log.WithError(err).Fatal("Run failed")
	}
}

// sanitizeReport copies the report with log-derived fields sanitized
func sanitizeReport(r types.IncidentReport) types.IncidentReport {
	out := r
	out.Sections = make([]types.ReportSection, len(r.Sections))
	for i, s := range r.Sections {
		events := make([]types.SuspiciousEvent, len(s.Events))
		for j, e := range s.Events {
			e.IP = sanitize(e.IP)
			e.URL = sanitize(e.URL)
			e.Method = sanitize(e.Method)
			events[j] = e
		}
		out.Sections[i] = types.ReportSection{Reason: s.Reason, Events: events}
	}
	return out
}

// sanitize strips control characters (except newline) to prevent terminal injection
func sanitize(s string) string {
	var builder strings.Builder
	for _, r := range s {
		// C0, DEL and C1 (including the 8-bit CSI) are dropped
		if !unicode.IsControl(r) || r == '\n' || r == '\t' {
			builder.WriteRune(r)
		}
	}
	return builder.String()
}
