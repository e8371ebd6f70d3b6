// Package main provides the trc-update CLI: merge one or more log groups
// into a database, propose expectation updates (optionally rule-driven),
// collapse single-axis wildcards, and commit the result (SPEC_FULL.md
// §4.H, §6).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/trc-go/trc/internal/config"
	"github.com/trc-go/trc/internal/matcher"
	"github.com/trc-go/trc/internal/tagexpr"
	"github.com/trc-go/trc/internal/trcio"
	"github.com/trc-go/trc/internal/trcupdate"
)

const (
	version = "1.0.0-dev"
	name    = "trc-update"
)

type logFlags []string

func (f *logFlags) String() string { return fmt.Sprint([]string(*f)) }
func (f *logFlags) Set(v string) error {
	*f = append(*f, v)
	return nil
}

func main() {
	var (
		versionFlag = flag.Bool("version", false, "show version information")
		dbPath      = flag.String("db", "", "database file")
		tagsExpr    = flag.String("tags", "", "active tags for this log group's observations, comma-separated")
		rulesPath   = flag.String("rules", "", "substitution rules file")
		rulesSave   = flag.String("rules-save", "", "write the effective rules file back out to FILE")
		noWilds     = flag.Bool("no-wilds", false, "skip wildcard generation (phase 3)")
		comparison  = flag.String("comparison", string(matcher.Exact), "argument comparator: exact|casefold|normalised|tokens")
		update      = flag.Bool("update", false, "commit the database in place after planning")

		logs logFlags
	)

	flag.Var(&logs, "log", "log FILE to merge (repeatable)")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.GetEnvLogLevel("TRC_LOG_LEVEL", slog.LevelInfo),
	}))

	if *dbPath == "" {
		log.Fatal("trc-update: --db is required")
	}

	if len(logs) == 0 {
		log.Fatal("trc-update: at least one --log is required")
	}

	m, err := matcher.Get(matcher.Name(*comparison))
	if err != nil {
		log.Fatalf("trc-update: %v", err)
	}

	var rules *trcupdate.RuleFile

	if *rulesPath != "" {
		rules, err = trcupdate.LoadRules(*rulesPath)
		if err != nil {
			log.Fatalf("trc-update: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.GetEnvDuration("TRC_DB_TIMEOUT", 30*time.Second))
	defer cancel()

	db, err := trcio.Load(ctx, *dbPath)
	if err != nil {
		log.Fatalf("trc-update: loading %s: %v", *dbPath, err)
	}

	activeTags := tagexpr.NewSet()
	for _, t := range config.ParseCommaSeparatedList(*tagsExpr) {
		activeTags.Add(t)
	}

	plan := trcupdate.NewPlan(db, m, rules)

	if err := plan.ValidateRules(); err != nil {
		log.Fatalf("trc-update: %v", err)
	}

	group := trcupdate.LogGroup{Name: "cli", Tags: activeTags, Logs: logs}
	if err := plan.Ingest(ctx, group); err != nil {
		log.Fatalf("trc-update: %v", err)
	}

	if err := plan.Propose(); err != nil {
		log.Fatalf("trc-update: %v", err)
	}

	if !*noWilds {
		plan.GenerateWildcards()
	}

	for _, d := range plan.Diagnostics {
		logger.Warn("wildcard generation skipped a partition", slog.String("detail", d))
	}

	proposed, rewritten, unchanged := 0, 0, 0

	for _, e := range plan.SortedEntries() {
		switch e.State {
		case trcupdate.StateProposed:
			proposed++
		case trcupdate.StateRewritten:
			rewritten++
		case trcupdate.StateUnchanged:
			unchanged++
		}
	}

	logger.Info("update plan built",
		slog.Int("proposed", proposed),
		slog.Int("rewritten", rewritten),
		slog.Int("unchanged", unchanged),
	)

	if *rulesSave != "" && rules != nil {
		if err := saveRules(*rulesSave, rules); err != nil {
			log.Fatalf("trc-update: %v", err)
		}
	}

	if !*update {
		return
	}

	if err := plan.Commit(ctx, *dbPath); err != nil {
		log.Fatalf("trc-update: committing %s: %v", *dbPath, err)
	}

	logger.Info("committed database", slog.String("db", *dbPath))
}

// saveRules writes rules back out, useful after LoadRules has minted uuids
// for rules the operator left unnamed so later runs see stable ids.
func saveRules(path string, rules *trcupdate.RuleFile) error {
	data, err := yaml.Marshal(rules)
	if err != nil {
		return fmt.Errorf("trc-update: marshaling rules: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("trc-update: writing %s: %w", path, err)
	}

	return nil
}
