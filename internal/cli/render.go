package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/koustreak/sqlgate/internal/dialect"
	"github.com/koustreak/sqlgate/internal/gateway"
)

// render writes resp and turns a failed response into the command's
// error, so the process exits non-zero.
func render(w io.Writer, format string, resp gateway.Response) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			return err
		}
		return responseErr(resp)
	}
	if err := responseErr(resp); err != nil {
		return err
	}

	switch data := resp.Data.(type) {
	case []string:
		t := newTable(w)
		t.AppendHeader(table.Row{"table"})
		for _, name := range data {
			t.AppendRow(table.Row{name})
		}
		t.Render()
	case []dialect.ColumnDescriptor:
		t := newTable(w)
		t.AppendHeader(table.Row{"field", "type", "null", "key", "default", "extra"})
		for _, c := range data {
			def := "NULL"
			if c.Default != nil {
				def = *c.Default
			}
			t.AppendRow(table.Row{c.Field, c.Type, yesNo(c.Nullable), key(c.IsKey), def, c.Extra})
		}
		t.Render()
	case *gateway.QueryResult:
		renderRows(w, data)
	case int64:
		fmt.Fprintln(w, data)
	case dialect.Info:
		t := newTable(w)
		t.AppendRows([]table.Row{
			{"dialect", data.Dialect},
			{"database", data.Database},
			{"version", data.Version},
		})
		t.Render()
	case []dialect.TableCount:
		renderCounts(w, data, nil)
	case dialect.Stats:
		renderCounts(w, data.Tables, &data)
	case []gateway.ConfigSummary:
		t := newTable(w)
		t.AppendHeader(table.Row{"name", "dialect", "target"})
		for _, c := range data {
			t.AppendRow(table.Row{c.Name, c.Dialect, c.Target})
		}
		t.Render()
	case string:
		fmt.Fprint(w, data)
	default:
		fmt.Fprintf(w, "%v\n", data)
	}
	return nil
}

func responseErr(resp gateway.Response) error {
	if resp.Error == nil {
		return nil
	}
	return fmt.Errorf("%s: %s", resp.Error.Kind, resp.Error.Message)
}

func renderRows(w io.Writer, res *gateway.QueryResult) {
	if len(res.Rows) == 0 {
		fmt.Fprintln(w, "(0 rows)")
		return
	}
	t := newTable(w)
	header := make(table.Row, len(res.Columns))
	for i, c := range res.Columns {
		header[i] = c
	}
	t.AppendHeader(header)
	for _, r := range res.Rows {
		row := make(table.Row, len(res.Columns))
		for i, c := range res.Columns {
			row[i] = cell(r[c])
		}
		t.AppendRow(row)
	}
	t.Render()

	if res.Truncated {
		fmt.Fprintf(w, "(%d rows, truncated)\n", res.RowCount)
		return
	}
	fmt.Fprintf(w, "(%d rows)\n", res.RowCount)
}

func renderCounts(w io.Writer, counts []dialect.TableCount, stats *dialect.Stats) {
	t := newTable(w)
	t.AppendHeader(table.Row{"table", "rows"})
	for _, c := range counts {
		t.AppendRow(table.Row{c.Table, c.RowCount})
	}
	if stats != nil {
		t.AppendFooter(table.Row{fmt.Sprintf("%d tables", stats.TotalTables), stats.TotalRows})
	}
	t.Render()
}

func renderChecks(w io.Writer, format string, results []checkResult) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	t := newTable(w)
	t.AppendHeader(table.Row{"name", "dialect", "target", "status"})
	for _, r := range results {
		t.AppendRow(table.Row{r.Name, r.Dialect, r.Target, r.Status})
	}
	t.Render()
	return nil
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

func cell(v any) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprint(v)
}

func yesNo(b bool) string {
	if b {
		return "YES"
	}
	return "NO"
}

func key(isKey bool) string {
	if isKey {
		return "PRI"
	}
	return ""
}
