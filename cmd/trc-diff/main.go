// Package main provides the trc-diff CLI: compare two or more named tag
// views of the same database and print the resulting counter matrix and
// key tables (SPEC_FULL.md §4.G, §6).
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
	"github.com/trc-go/trc/internal/tagexpr"
	"github.com/trc-go/trc/internal/tagrules"
	"github.com/trc-go/trc/internal/trcdb"
	"github.com/trc-go/trc/internal/trcdiff"
	"github.com/trc-go/trc/internal/trcio"
)

const (
	version = "1.0.0-dev"
	name    = "trc-diff"
)

// directive is one --set/--ignore/--log occurrence, kept in command-line
// order so --ignore and --log can be attributed to the --set preceding them.
type directive struct {
	kind  string
	value string
}

type directiveFlag struct {
	kind string
	list *[]directive
}

func (f directiveFlag) String() string { return "" }

func (f directiveFlag) Set(v string) error {
	*f.list = append(*f.list, directive{kind: f.kind, value: v})
	return nil
}

// setBuilder accumulates one --set declaration's name, tags and ignored
// keys as directives are replayed in order.
type setBuilder struct {
	name    string
	tags    *tagexpr.Set
	ignored map[string]bool
	logs    []string
}

func buildSets(directives []directive) ([]*setBuilder, error) {
	var sets []*setBuilder

	var current *setBuilder

	for _, d := range directives {
		switch d.kind {
		case "set":
			parts := strings.Split(d.value, ",")
			if len(parts) == 0 || parts[0] == "" {
				return nil, fmt.Errorf("trc-diff: --set requires a name: %q", d.value)
			}

			current = &setBuilder{name: parts[0], tags: tagexpr.NewSet(), ignored: make(map[string]bool)}
			for _, tag := range parts[1:] {
				current.tags.Add(tag)
			}

			sets = append(sets, current)
		case "ignore":
			if current == nil {
				return nil, fmt.Errorf("trc-diff: --ignore %q precedes any --set", d.value)
			}

			current.ignored[d.value] = true
		case "log":
			if current == nil {
				return nil, fmt.Errorf("trc-diff: --log %q precedes any --set", d.value)
			}

			current.logs = append(current.logs, d.value)
		}
	}

	return sets, nil
}

func main() {
	var (
		versionFlag = flag.Bool("version", false, "show version information")
		dbPath      = flag.String("db", "", "database file")
		comparison  = flag.String("comparison", string(matcher.Exact), "argument comparator: exact|casefold|normalised|tokens")
		txtOut      = flag.String("txt", "", "write diff report to FILE as text")
		htmlOut     = flag.String("html", "", "write diff report to FILE as HTML")
		rulesSubst  = flag.String("rules-subst", "", "apply key substitution rules from FILE")

		directives []directive
	)

	flag.Var(directiveFlag{kind: "set", list: &directives}, "set", "NAME,tag1,tag2:val (repeatable, at least two required)")
	flag.Var(directiveFlag{kind: "ignore", list: &directives}, "ignore", "KEY to ignore for the preceding --set")
	flag.Var(directiveFlag{kind: "log", list: &directives}, "log", "FILE to merge observations from into the preceding --set")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.GetEnvLogLevel("TRC_LOG_LEVEL", slog.LevelInfo),
	}))

	if *dbPath == "" {
		log.Fatal("trc-diff: --db is required")
	}

	sets, err := buildSets(directives)
	if err != nil {
		log.Fatal(err)
	}

	if len(sets) < 2 {
		log.Fatal("trc-diff: at least two --set declarations are required")
	}

	m, err := matcher.Get(matcher.Name(*comparison))
	if err != nil {
		log.Fatalf("trc-diff: %v", err)
	}

	rules, err := tagrules.Init(*rulesSubst)
	if err != nil {
		log.Fatalf("trc-diff: %v", err)
	}
	defer rules.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.GetEnvDuration("TRC_DB_TIMEOUT", 30*time.Second))
	defer cancel()

	db, err := trcio.Load(ctx, *dbPath)
	if err != nil {
		log.Fatalf("trc-diff: loading %s: %v", *dbPath, err)
	}

	for _, sb := range sets {
		if len(sb.logs) == 0 {
			continue
		}

		if err := mergeLogs(ctx, db, m, sb); err != nil {
			log.Fatalf("trc-diff: %v", err)
		}
	}

	logger.Info("comparing sets", slog.Int("count", len(sets)), slog.String("db", *dbPath))

	for i := 0; i+1 < len(sets); i++ {
		x := toTrcdiffSet(sets[i])
		y := toTrcdiffSet(sets[i+1])

		matrix, err := trcdiff.Compare(db, x, y)
		if err != nil {
			log.Fatalf("trc-diff: comparing %s/%s: %v", x.Name, y.Name, err)
		}

		if *txtOut != "" {
			if err := writeTo(*txtOut, func(w *os.File) error { return render.WriteDiffText(w, matrix, x.Name, y.Name, rules) }); err != nil {
				log.Fatalf("trc-diff: writing %s: %v", *txtOut, err)
			}
		}

		if *htmlOut != "" {
			if err := writeTo(*htmlOut, func(w *os.File) error { return render.WriteDiffHTML(w, matrix, x.Name, y.Name, rules) }); err != nil {
				log.Fatalf("trc-diff: writing %s: %v", *htmlOut, err)
			}
		}

		if *txtOut == "" && *htmlOut == "" {
			if err := render.WriteDiffText(os.Stdout, matrix, x.Name, y.Name, rules); err != nil {
				log.Fatalf("trc-diff: %v", err)
			}
		}
	}
}

// mergeLogs folds a set's --log observations into db under a fresh user id,
// so the set's tag view reflects observed results rather than only the
// database's pre-declared expectations, the same merge trc-report does.
func mergeLogs(ctx context.Context, db *trcdb.Database, m trcdb.ArgMatcher, sb *setBuilder) error {
	streams, err := logintake.ReadLogs(ctx, sb.logs)
	if err != nil {
		return fmt.Errorf("trc-diff: reading logs for set %q: %w", sb.name, err)
	}

	uid := db.NewUserID()
	ing := logintake.NewIngestor(db, uid, sb.tags, logintake.Options{Matcher: m})

	for _, tokens := range streams {
		if err := ing.Feed(tokens); err != nil {
			return fmt.Errorf("trc-diff: ingesting logs for set %q: %w", sb.name, err)
		}
	}

	return nil
}

func toTrcdiffSet(sb *setBuilder) trcdiff.Set {
	return trcdiff.Set{Name: sb.name, Tags: sb.tags, Ignored: sb.ignored}
}

func writeTo(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return write(f)
}
