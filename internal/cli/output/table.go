package output

import (
	"io"

	"github.com/olekukonko/tablewriter"
)

// TableRenderer is implemented by results that render as columns.
type TableRenderer interface {
	Headers() []string
	Rows() [][]string
}

// PrintTable writes data as borderless, left-aligned columns with
// upper-cased headers.
func PrintTable(w io.Writer, data TableRenderer) error {
	table := newTable(w)
	table.SetHeader(data.Headers())
	table.SetAutoFormatHeaders(true)
	table.AppendBulk(data.Rows())
	table.Render()
	return nil
}

// SimpleTable prints "key:  value" lines with the values aligned, as used
// for link and configuration summaries.
func SimpleTable(w io.Writer, pairs [][2]string) error {
	table := newTable(w)
	for _, pair := range pairs {
		table.Append([]string{pair[0] + ":", pair[1]})
	}
	table.Render()
	return nil
}

// newTable returns a borderless writer. In no-whitespace mode tablewriter
// ignores the column separator, so columns are split by padding only.
func newTable(w io.Writer) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)
	return table
}
