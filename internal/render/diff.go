package render

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/trc-go/trc/internal/tagrules"
	"github.com/trc-go/trc/internal/trcdiff"
	"github.com/trc-go/trc/internal/trcresult"
)

func matrixTable(m *trcdiff.Matrix, xName, yName string) table.Writer {
	statuses := trcresult.ValidStatuses()
	matchStates := []trcdiff.MatchStatus{trcdiff.Match, trcdiff.NoMatch, trcdiff.NoMatchIgnored}

	tw := newStyledWriter()

	header := table.Row{xName + " \\ " + yName}
	for _, sy := range statuses {
		for _, ms := range matchStates {
			header = append(header, sy.String()+" "+ms.String())
		}
	}

	tw.AppendHeader(header)

	for _, sx := range statuses {
		row := table.Row{sx.String()}

		for _, sy := range statuses {
			for _, ms := range matchStates {
				row = append(row, m.Count(sx, sy, ms))
			}
		}

		tw.AppendRow(row)
	}

	configs := []table.ColumnConfig{{Number: 1, Align: text.AlignLeft}}
	for i := 0; i < len(statuses)*len(matchStates); i++ {
		configs = append(configs, table.ColumnConfig{Number: i + 2, Align: text.AlignRight})
	}

	tw.SetColumnConfigs(configs)

	return tw
}

func diffKeysTable(m *trcdiff.Matrix, xName, yName string, rules *tagrules.Table) table.Writer {
	tw := newStyledWriter()
	tw.AppendHeader(table.Row{"set", "key", "count"})

	for _, kc := range trcdiff.SortedKeys(m.KeysX) {
		tw.AppendRow(table.Row{xName, substitute(rules, "URL", kc.Key), kc.Count})
	}

	for _, kc := range trcdiff.SortedKeys(m.KeysY) {
		tw.AppendRow(table.Row{yName, substitute(rules, "URL", kc.Key), kc.Count})
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft},
		{Number: 2, Align: text.AlignLeft},
		{Number: 3, Align: text.AlignRight},
	})

	return tw
}

// WriteDiffText renders m's counter matrix and key tables as plain text.
// rules may be nil, in which case keys render unchanged.
func WriteDiffText(w io.Writer, m *trcdiff.Matrix, xName, yName string, rules *tagrules.Table) error {
	return writeDiffSections(w, m, xName, yName, rules, func(tw table.Writer) string { return tw.Render() })
}

// WriteDiffHTML renders m's counter matrix and key tables as HTML.
func WriteDiffHTML(w io.Writer, m *trcdiff.Matrix, xName, yName string, rules *tagrules.Table) error {
	return writeDiffSections(w, m, xName, yName, rules, func(tw table.Writer) string { return tw.RenderHTML() })
}

func writeDiffSections(w io.Writer, m *trcdiff.Matrix, xName, yName string, rules *tagrules.Table, render func(table.Writer) string) error {
	tables := []string{
		render(matrixTable(m, xName, yName)),
		render(diffKeysTable(m, xName, yName, rules)),
	}

	for _, s := range tables {
		if _, err := io.WriteString(w, s+"\n"); err != nil {
			return err
		}
	}

	for _, d := range m.Diagnostics {
		if _, err := io.WriteString(w, colorize(IsTerminal(w), ansiYellow, d)+"\n"); err != nil {
			return err
		}
	}

	return nil
}
