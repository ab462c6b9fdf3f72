package database

// Result is a fully read result set.
type Result struct {
	Columns []Column
	Rows    [][]any

	// Truncated is set when the source had more rows than the ceiling
	// passed to Collect.
	Truncated bool
}

// Collect reads rows into memory, stopping after maxRows rows when maxRows
// is positive. Values are kept exactly as the driver decoded them.
//
// The returned Rows slice is always non-nil (empty slice on zero rows).
// Collect always closes rows; callers do not need to call Close.
func Collect(rows Rows, maxRows int) (*Result, error) {
	defer rows.Close()

	res := &Result{Columns: rows.Columns(), Rows: make([][]any, 0)}

	for rows.Next() {
		if maxRows > 0 && len(res.Rows) == maxRows {
			res.Truncated = true
			break
		}
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		res.Rows = append(res.Rows, vals)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// Strings reads a single-column result set into a slice.
// NULLs are skipped.
func Strings(rows Rows) ([]string, error) {
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		if len(vals) == 0 || vals[0] == nil {
			continue
		}
		out = append(out, AsString(vals[0]))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
