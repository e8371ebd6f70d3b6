// Package main provides the trc-report CLI: load a database, optionally
// merge log observations into it, and print a status-totals / per-package /
// key-occurrence report (SPEC_FULL.md §6).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/trc-go/trc/internal/config"
	"github.com/trc-go/trc/internal/logintake"
	"github.com/trc-go/trc/internal/matcher"
	"github.com/trc-go/trc/internal/render"
	"github.com/trc-go/trc/internal/reportwalk"
	"github.com/trc-go/trc/internal/tagexpr"
	"github.com/trc-go/trc/internal/tagrules"
	"github.com/trc-go/trc/internal/trcio"
)

const (
	version = "1.0.0-dev"
	name    = "trc-report"
)

type tagFlags []string

func (f *tagFlags) String() string     { return strings.Join(*f, ",") }
func (f *tagFlags) Set(v string) error { *f = append(*f, v); return nil }

type logFlags []string

func (f *logFlags) String() string     { return strings.Join(*f, ",") }
func (f *logFlags) Set(v string) error { *f = append(*f, v); return nil }

func main() {
	var (
		versionFlag     = flag.Bool("version", false, "show version information")
		dbPath          = flag.String("db", "", "database file")
		comparison      = flag.String("comparison", string(matcher.Exact), "argument comparator: exact|casefold|normalised|tokens")
		ignoreLogTags   = flag.Bool("ignore-log-tags", false, "do not harvest tags from the log")
		htmlOut         = flag.String("html", "", "write HTML report to FILE")
		txtOut          = flag.String("txt", "", "write text report to FILE")
		totalsOnly      = flag.Bool("totals-only", false, "emit only the status totals section")
		packagesOnly    = flag.Bool("packages-only", false, "emit only the per-package section")
		keysOnly        = flag.Bool("keys-only", false, "emit only the key-occurrence section")
		noSkipped       = flag.Bool("no-skipped", false, "omit the skipped status column")
		rulesSubst      = flag.String("rules-subst", "", "apply key/test-path substitution rules from FILE")
		tags            tagFlags
		logs            logFlags
	)

	flag.Var(&tags, "tag", "activate tag NAME[:VAL] (repeatable)")
	flag.Var(&logs, "log", "merge observations from log FILE (repeatable)")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.GetEnvLogLevel("TRC_LOG_LEVEL", slog.LevelInfo),
	}))

	if *dbPath == "" {
		log.Fatal("trc-report: --db is required")
	}

	activeTags := tagexpr.NewSet()
	for _, t := range tags {
		activeTags.Add(t)
	}

	m, err := matcher.Get(matcher.Name(*comparison))
	if err != nil {
		log.Fatalf("trc-report: %v", err)
	}

	rules, err := tagrules.Init(*rulesSubst)
	if err != nil {
		log.Fatalf("trc-report: %v", err)
	}
	defer rules.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.GetEnvDuration("TRC_DB_TIMEOUT", 30*time.Second))
	defer cancel()

	db, err := trcio.Load(ctx, *dbPath)
	if err != nil {
		log.Fatalf("trc-report: loading %s: %v", *dbPath, err)
	}

	if len(logs) > 0 {
		streams, err := logintake.ReadLogs(ctx, logs)
		if err != nil {
			log.Fatalf("trc-report: reading logs: %v", err)
		}

		uid := db.NewUserID()
		ing := logintake.NewIngestor(db, uid, activeTags, logintake.Options{
			Matcher:       m,
			IgnoreLogTags: *ignoreLogTags,
		})

		for _, tokens := range streams {
			if err := ing.Feed(tokens); err != nil {
				log.Fatalf("trc-report: ingesting logs: %v", err)
			}
		}
	}

	logger.Info("building report",
		slog.String("db", *dbPath),
		slog.Int("logs", len(logs)),
	)

	report := reportwalk.Build(db, activeTags)

	sections := render.Sections{
		TotalsOnly:   *totalsOnly,
		PackagesOnly: *packagesOnly,
		KeysOnly:     *keysOnly,
		NoSkipped:    *noSkipped,
	}

	if *txtOut != "" {
		if err := writeTo(*txtOut, func(w *os.File) error { return render.WriteText(w, report, sections, rules) }); err != nil {
			log.Fatalf("trc-report: writing %s: %v", *txtOut, err)
		}
	}

	if *htmlOut != "" {
		if err := writeTo(*htmlOut, func(w *os.File) error { return render.WriteHTML(w, report, sections, rules) }); err != nil {
			log.Fatalf("trc-report: writing %s: %v", *htmlOut, err)
		}
	}

	if *txtOut == "" && *htmlOut == "" {
		if err := render.WriteText(os.Stdout, report, sections, rules); err != nil {
			log.Fatalf("trc-report: %v", err)
		}
	}
}

func writeTo(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return write(f)
}
