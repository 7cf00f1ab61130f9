package stats

import (
	"strings"

	"github.com/olekukonko/tablewriter"
)

// renderTable formats rows as an ASCII table. Shared by the grouped store
// and the SQL-backed store so both report surfaces look alike.
func renderTable(headers []string, rows [][]string) string {
	var sb strings.Builder
	table := tablewriter.NewWriter(&sb)
	table.SetHeader(headers)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	for _, row := range rows {
		table.Append(row)
	}
	table.Render()
	return sb.String()
}
