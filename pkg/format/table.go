// Package format renders catalog entries, results and the risk matrix as
// terminal or Markdown tables.
package format

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Mode controls the output format.
type Mode int

const (
	ASCII    Mode = iota // box-drawn terminal tables
	Markdown             // GitHub-flavoured Markdown tables
)

// Table collects rows and renders them in one Mode.
type Table struct {
	w     table.Writer
	mode  Mode
	title string
}

// NewTable returns an empty table rendering in m.
func NewTable(m Mode) *Table {
	w := table.NewWriter()
	if m == ASCII {
		w.SetStyle(table.StyleLight)
	}
	return &Table{w: w, mode: m}
}

// Title sets a caption printed on its own line above the table. It never
// shares the table's width, so long captions are not wrapped.
func (t *Table) Title(s string) { t.title = s }

// Header sets the column headers.
func (t *Table) Header(cols ...any) { t.w.AppendHeader(table.Row(cols)) }

// Row appends a data row.
func (t *Table) Row(vals ...any) { t.w.AppendRow(table.Row(vals)) }

// Separator draws a rule before the next row.
func (t *Table) Separator() { t.w.AppendSeparator() }

// AlignRight right-aligns the given 1-based columns.
func (t *Table) AlignRight(cols ...int) {
	cfgs := make([]table.ColumnConfig, len(cols))
	for i, c := range cols {
		cfgs[i] = table.ColumnConfig{Number: c, Align: text.AlignRight}
	}
	t.w.SetColumnConfigs(cfgs)
}

// String renders the table.
func (t *Table) String() string {
	if t.mode == Markdown {
		if t.title == "" {
			return t.w.RenderMarkdown()
		}
		return "**" + t.title + "**\n\n" + t.w.RenderMarkdown()
	}
	if t.title == "" {
		return t.w.Render()
	}
	return t.title + "\n" + t.w.Render()
}
