// Package render turns the diff engine's Matrix and the report walk's
// per-package tallies into the table output trc-report and trc-diff print,
// using jedib0t/go-pretty tables.
package render

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/trc-go/trc/internal/tagrules"
	"github.com/trc-go/trc/internal/trcdiff"
	"github.com/trc-go/trc/internal/trcresult"
)

// substitute applies rules' namespace substitution to in, tolerating a nil
// table so callers that never configured key-substitution rules still
// render plain output.
func substitute(rules *tagrules.Table, namespace, in string) string {
	if rules == nil {
		return in
	}

	return rules.Substitute(namespace, in)
}

// PackageRow tallies one test path's iteration outcomes for the
// "--packages-only" report section.
type PackageRow struct {
	Path   string
	Counts map[trcresult.Status]int
}

// Sections selects which parts of a report to emit, mirroring trc-report's
// --totals-only/--packages-only/--keys-only/--no-skipped flags.
type Sections struct {
	TotalsOnly   bool
	PackagesOnly bool
	KeysOnly     bool
	NoSkipped    bool
}

func (s Sections) showTotals() bool   { return !s.PackagesOnly && !s.KeysOnly }
func (s Sections) showPackages() bool { return !s.TotalsOnly && !s.KeysOnly }
func (s Sections) showKeys() bool     { return !s.TotalsOnly && !s.PackagesOnly }

// Report is the data a report walk collects: overall status totals,
// per-package breakdowns, and the key-occurrence table (bug ids, etc).
type Report struct {
	Totals   map[trcresult.Status]int
	Packages []PackageRow
	Keys     []trcdiff.KeyCount
}

func statusColumns(noSkipped bool) []trcresult.Status {
	cols := make([]trcresult.Status, 0, len(trcresult.ValidStatuses()))

	for _, s := range trcresult.ValidStatuses() {
		if noSkipped && s == trcresult.StatusSkipped {
			continue
		}

		cols = append(cols, s)
	}

	return cols
}

func newStyledWriter() table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	return tw
}

func totalsTable(totals map[trcresult.Status]int, noSkipped bool) table.Writer {
	cols := statusColumns(noSkipped)

	tw := newStyledWriter()

	header := make(table.Row, 0, len(cols))
	row := make(table.Row, 0, len(cols))

	for _, s := range cols {
		header = append(header, s.String())
		row = append(row, totals[s])
	}

	tw.AppendHeader(header)
	tw.AppendRow(row)

	configs := make([]table.ColumnConfig, len(cols))
	for i := range cols {
		configs[i] = table.ColumnConfig{Number: i + 1, Align: text.AlignRight, AlignHeader: text.AlignLeft}
	}

	tw.SetColumnConfigs(configs)

	return tw
}

func packagesTable(rows []PackageRow, noSkipped bool, rules *tagrules.Table) table.Writer {
	cols := statusColumns(noSkipped)

	tw := newStyledWriter()

	header := table.Row{"package"}
	for _, s := range cols {
		header = append(header, s.String())
	}

	tw.AppendHeader(header)

	for _, r := range rows {
		row := table.Row{substitute(rules, "SCRIPT", r.Path)}
		for _, s := range cols {
			row = append(row, r.Counts[s])
		}

		tw.AppendRow(row)
	}

	configs := []table.ColumnConfig{{Number: 1, Align: text.AlignLeft}}
	for i := range cols {
		configs = append(configs, table.ColumnConfig{Number: i + 2, Align: text.AlignRight})
	}

	tw.SetColumnConfigs(configs)

	return tw
}

func keysTable(keys []trcdiff.KeyCount, rules *tagrules.Table) table.Writer {
	tw := newStyledWriter()
	tw.AppendHeader(table.Row{"key", "count"})

	for _, k := range keys {
		tw.AppendRow(table.Row{substitute(rules, "URL", k.Key), k.Count})
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft},
		{Number: 2, Align: text.AlignRight},
	})

	return tw
}

// WriteText renders the selected sections of report as plain-text tables.
// rules may be nil, in which case keys and package paths render unchanged.
func WriteText(w io.Writer, report Report, sections Sections, rules *tagrules.Table) error {
	return writeSections(w, report, sections, rules, func(tw table.Writer) string { return tw.Render() })
}

// WriteHTML renders the selected sections of report as self-contained HTML
// tables (go-pretty's own RenderHTML, not a hand-rolled template).
func WriteHTML(w io.Writer, report Report, sections Sections, rules *tagrules.Table) error {
	return writeSections(w, report, sections, rules, func(tw table.Writer) string { return tw.RenderHTML() })
}

func writeSections(w io.Writer, report Report, sections Sections, rules *tagrules.Table, render func(table.Writer) string) error {
	var out []string

	if sections.showTotals() {
		out = append(out, render(totalsTable(report.Totals, sections.NoSkipped)))
	}

	if sections.showPackages() {
		out = append(out, render(packagesTable(report.Packages, sections.NoSkipped, rules)))
	}

	if sections.showKeys() {
		out = append(out, render(keysTable(report.Keys, rules)))
	}

	for _, s := range out {
		if _, err := io.WriteString(w, s+"\n"); err != nil {
			return err
		}
	}

	return nil
}
