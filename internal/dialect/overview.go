package dialect

import (
	"context"
	"fmt"
	"strings"
)

// TableSchema is one table's columns plus its row count.
type TableSchema struct {
	Name     string             `json:"name"`
	Columns  []ColumnDescriptor `json:"columns"`
	RowCount int64              `json:"rowCount"`
}

// Stats is the per-table row count summary of a database.
type Stats struct {
	TotalTables int          `json:"totalTables"`
	TotalRows   int64        `json:"totalRows"`
	Tables      []TableCount `json:"tables"`
}

// Stats counts every table. Same cost profile as SearchTables.
func (c *Catalog) Stats(ctx context.Context) (Stats, error) {
	tables, err := c.SearchTables(ctx, "")
	if err != nil {
		return Stats{}, err
	}
	s := Stats{TotalTables: len(tables), Tables: tables}
	for _, t := range tables {
		s.TotalRows += t.RowCount
	}
	return s, nil
}

// Overview describes every table, or only the named ones when tables is
// non-empty.
func (c *Catalog) Overview(ctx context.Context, tables ...string) ([]TableSchema, error) {
	if len(tables) == 0 {
		var err error
		if tables, err = c.ListTables(ctx); err != nil {
			return nil, err
		}
	}

	out := make([]TableSchema, 0, len(tables))
	for _, name := range tables {
		cols, err := c.DescribeTable(ctx, name)
		if err != nil {
			return nil, err
		}
		n, err := c.CountRows(ctx, name)
		if err != nil {
			return nil, err
		}
		out = append(out, TableSchema{Name: name, Columns: cols, RowCount: n})
	}
	return out, nil
}

// RenderMarkdown formats an overview as a markdown document with one
// column table per database table.
func RenderMarkdown(configName string, tables []TableSchema) string {
	var sb strings.Builder

	sb.WriteString("# Database schema\n\n")
	fmt.Fprintf(&sb, "Config: `%s`\n\n", configName)
	fmt.Fprintf(&sb, "The database has **%d** table(s).\n\n", len(tables))

	for _, t := range tables {
		fmt.Fprintf(&sb, "## %s\n\n", t.Name)
		fmt.Fprintf(&sb, "Rows: %d\n\n", t.RowCount)
		sb.WriteString("| Field | Type | Null | Key | Default | Extra |\n")
		sb.WriteString("|-------|------|------|-----|---------|-------|\n")
		for _, col := range t.Columns {
			null := "NO"
			if col.Nullable {
				null = "YES"
			}
			key := ""
			if col.IsKey {
				key = "PRI"
			}
			def := ""
			if col.Default != nil {
				def = *col.Default
			}
			fmt.Fprintf(&sb, "| %s | %s | %s | %s | %s | %s |\n",
				mdCell(col.Field), mdCell(col.Type), null, key, mdCell(def), mdCell(col.Extra))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// mdCell keeps a value from breaking the table row.
func mdCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
