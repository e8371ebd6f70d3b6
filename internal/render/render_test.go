package render_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trc-go/trc/internal/render"
	"github.com/trc-go/trc/internal/tagrules"
	"github.com/trc-go/trc/internal/trcdiff"
	"github.com/trc-go/trc/internal/trcresult"
)

func TestWriteTextTotalsOnlyOmitsOtherSections(t *testing.T) {
	report := render.Report{
		Totals: map[trcresult.Status]int{trcresult.StatusPassed: 3, trcresult.StatusFailed: 1},
		Packages: []render.PackageRow{
			{Path: "/suite/basic", Counts: map[trcresult.Status]int{trcresult.StatusPassed: 3}},
		},
		Keys: []trcdiff.KeyCount{{Key: "BUG-1", Count: 1}},
	}

	var buf bytes.Buffer
	require.NoError(t, render.WriteText(&buf, report, render.Sections{TotalsOnly: true}, nil))

	out := buf.String()
	require.Contains(t, out, "PASSED")
	require.NotContains(t, out, "/suite/basic")
	require.NotContains(t, out, "BUG-1")
}

func TestWriteTextNoSkippedOmitsSkippedColumn(t *testing.T) {
	report := render.Report{Totals: map[trcresult.Status]int{trcresult.StatusSkipped: 2}}

	var buf bytes.Buffer
	require.NoError(t, render.WriteText(&buf, report, render.Sections{TotalsOnly: true, NoSkipped: true}, nil))

	require.NotContains(t, buf.String(), "SKIPPED")
}

func TestWriteHTMLProducesTableMarkup(t *testing.T) {
	report := render.Report{Totals: map[trcresult.Status]int{trcresult.StatusPassed: 1}}

	var buf bytes.Buffer
	require.NoError(t, render.WriteHTML(&buf, report, render.Sections{}, nil))

	require.Contains(t, buf.String(), "<table")
}

func TestWriteTextSubstitutesKeysAndPackagePathsThroughRules(t *testing.T) {
	doc := `
namespaces:
  - name: URL
    rules:
      - pattern: '^BUG-(\d+)$'
        template: 'https://tracker.example.com/issue/$1'
  - name: SCRIPT
    rules:
      - pattern: '^/(.*)$'
        template: 'scripts/$1.py'
`
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	rules, err := tagrules.Init(path)
	require.NoError(t, err)

	report := render.Report{
		Packages: []render.PackageRow{
			{Path: "/suite/basic", Counts: map[trcresult.Status]int{trcresult.StatusPassed: 1}},
		},
		Keys: []trcdiff.KeyCount{{Key: "BUG-1234", Count: 1}},
	}

	var buf bytes.Buffer
	require.NoError(t, render.WriteText(&buf, report, render.Sections{}, rules))

	out := buf.String()
	require.Contains(t, out, "scripts/suite/basic.py")
	require.Contains(t, out, "https://tracker.example.com/issue/1234")
}

func TestWriteDiffTextIncludesMatrixAndDiagnostics(t *testing.T) {
	m := &trcdiff.Matrix{
		Counters: map[trcresult.Status]map[trcresult.Status]map[trcdiff.MatchStatus]int{
			trcresult.StatusPassed: {trcresult.StatusFailed: {trcdiff.NoMatch: 1}},
		},
		KeysX:       map[string]int{"BUG-1": 1},
		KeysY:       map[string]int{},
		Diagnostics: []string{"/suite/basic(x): ambiguous alternatives, compared first of each"},
	}

	var buf bytes.Buffer
	require.NoError(t, render.WriteDiffText(&buf, m, "baseline", "candidate", nil))

	out := buf.String()
	require.Contains(t, out, "baseline")
	require.Contains(t, out, "BUG-1")
	require.Contains(t, out, "ambiguous alternatives")
}
