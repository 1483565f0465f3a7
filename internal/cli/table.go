package cli

import (
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/roach88/flatten/internal/ir"
)

// truncateAt caps a cell's width. Nested collections are rendered inline
// and can get long.
const truncateAt = 80

// ResultTable renders result rows as a markdown table. Record rows get one
// column per record field, named by the first row; any other row value is
// rendered in a single "value" column.
func ResultTable(w io.Writer, rows []ir.Value) error {
	headers := []string{"value"}
	if len(rows) > 0 {
		if rec, ok := rows[0].(*ir.Record); ok {
			headers = rec.Names
		}
	}

	alignment := make([]tw.Align, len(headers))
	for i := range alignment {
		alignment[i] = tw.AlignNone
	}

	table := tablewriter.NewTable(w,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithAlignment(alignment),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	table.Header(headers)

	for _, row := range rows {
		if err := table.Append(tableRow(headers, row)); err != nil {
			return err
		}
	}
	return table.Render()
}

func tableRow(headers []string, row ir.Value) []string {
	rec, ok := row.(*ir.Record)
	if !ok {
		return []string{formatCell(row)}
	}
	cells := make([]string, len(headers))
	for i, h := range headers {
		if v, ok := rec.Get(h); ok {
			cells[i] = formatCell(v)
		}
	}
	return cells
}

func formatCell(v ir.Value) string {
	s := ir.Format(v)
	if r := []rune(s); len(r) > truncateAt {
		return string(r[:truncateAt-3]) + "..."
	}
	return s
}
