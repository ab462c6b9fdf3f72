package database

import (
	"fmt"
	"strconv"
	"strings"
)

// Catalog queries come back with different Go types depending on the
// driver: MySQL returns []byte for most text, SQLite returns int64 for
// flags, pgx returns native types. These helpers normalise them.

// AsString renders a driver value as text. nil becomes "".
func AsString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// AsNullString is AsString that keeps NULL distinguishable.
func AsNullString(v any) *string {
	if v == nil {
		return nil
	}
	s := AsString(v)
	return &s
}

// AsInt64 converts integer-like driver values, including numeric text.
func AsInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int32:
		return int64(x), nil
	case int:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case uint64:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case float64:
		return int64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case string, []byte:
		return strconv.ParseInt(strings.TrimSpace(AsString(x)), 10, 64)
	case nil:
		return 0, fmt.Errorf("unexpected NULL")
	default:
		return 0, fmt.Errorf("cannot convert %T to integer", v)
	}
}

// AsBool treats non-zero integers and "YES"/"true"/"1" text as true.
func AsBool(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case nil:
		return false
	case string, []byte:
		switch strings.ToUpper(strings.TrimSpace(AsString(x))) {
		case "YES", "TRUE", "T", "1", "Y":
			return true
		}
		return false
	default:
		n, err := AsInt64(x)
		return err == nil && n != 0
	}
}
