// Package serializer turns driver values into JSON-safe values.
//
// Every value comes out as one of nil, bool, int64, float64 or string.
// Which representation a value gets depends on both its Go type and the
// database type of its column, since the MySQL text protocol returns
// nearly everything as []byte.
package serializer

import (
	"database/sql/driver"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/koustreak/sqlgate/internal/database"
	"github.com/koustreak/sqlgate/internal/errs"
	"github.com/koustreak/sqlgate/internal/logger"
)

// Row maps column name to serialized value. When a result has duplicate
// column names the rightmost column wins.
type Row = map[string]any

const (
	naiveTimestamp = "2006-01-02T15:04:05.999999999"
	dateOnly       = "2006-01-02"
)

// Serializer converts rows. It never fails: values it cannot classify
// fall back to their fmt form and are logged at debug level.
type Serializer struct {
	log *logger.Logger
}

// New returns a Serializer. A nil logger discards fallback logs.
func New(log *logger.Logger) *Serializer {
	if log == nil {
		log = logger.Nop()
	}
	return &Serializer{log: log}
}

// Rows converts a collected result set.
func (s *Serializer) Rows(cols []database.Column, rows [][]any) []Row {
	out := make([]Row, 0, len(rows))
	for _, vals := range rows {
		out = append(out, s.Row(cols, vals))
	}
	return out
}

// Row converts one row. Values beyond len(cols) are ignored.
func (s *Serializer) Row(cols []database.Column, vals []any) Row {
	row := make(Row, len(cols))
	for i, col := range cols {
		if i >= len(vals) {
			row[col.Name] = nil
			continue
		}
		row[col.Name] = s.Value(col, vals[i])
	}
	return row
}

// Value converts a single value read from col.
func (s *Serializer) Value(col database.Column, v any) any {
	typ := normalizeType(col.DatabaseType)

	if out, ok := primitive(typ, v); ok {
		return out
	}

	if valuer, ok := v.(driver.Valuer); ok {
		dv, err := valuer.Value()
		if err == nil {
			if out, ok := primitive(typ, dv); ok {
				return out
			}
		}
	}

	switch reflect.ValueOf(v).Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
	}

	if str, ok := v.(fmt.Stringer); ok {
		return str.String()
	}

	s.log.DebugWith("serialization fallback", map[string]interface{}{
		"kind":    errs.ErrKindSerializationFallback.String(),
		"column":  col.Name,
		"db_type": col.DatabaseType,
		"go_type": fmt.Sprintf("%T", v),
	})
	return fmt.Sprintf("%v", v)
}

// primitive handles nil and the concrete types drivers produce directly.
func primitive(typ string, v any) (any, bool) {
	switch x := v.(type) {
	case nil:
		return nil, true
	case bool:
		return x, true
	case string:
		return x, true
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint:
		return unsigned(uint64(x)), true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		return unsigned(x), true
	case float32:
		// Go through the shortest 32-bit form so 0.1 stays 0.1.
		f, _ := strconv.ParseFloat(strconv.FormatFloat(float64(x), 'g', -1, 32), 64)
		return float(f), true
	case float64:
		return float(x), true
	case []byte:
		return fromBytes(typ, x), true
	case time.Time:
		return formatTime(typ, x), true
	case [16]byte:
		return uuid.UUID(x).String(), true
	}
	return nil, false
}

func unsigned(u uint64) any {
	if u > math.MaxInt64 {
		return strconv.FormatUint(u, 10)
	}
	return int64(u)
}

// float keeps NaN and ±Inf, which JSON cannot carry, as strings.
func float(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return f
}

func fromBytes(typ string, b []byte) any {
	switch {
	case isBinary(typ):
		return base64.StdEncoding.EncodeToString(b)
	case isDecimal(typ):
		return string(b)
	case isInteger(typ):
		if n, err := strconv.ParseInt(string(b), 10, 64); err == nil {
			return n
		}
		return string(b) // BIGINT UNSIGNED beyond int64
	case isFloat(typ):
		if f, err := strconv.ParseFloat(string(b), 64); err == nil {
			return float(f)
		}
		return string(b)
	case utf8.Valid(b):
		return string(b)
	default:
		return base64.StdEncoding.EncodeToString(b)
	}
}

func formatTime(typ string, t time.Time) string {
	switch {
	case typ == "DATE":
		return t.Format(dateOnly)
	case typ == "" || isZoned(typ):
		return t.Format(time.RFC3339Nano)
	default:
		return t.Format(naiveTimestamp)
	}
}

// --- type classification ---

// normalizeType upper-cases a database type name and drops any length or
// precision suffix and UNSIGNED/ZEROFILL modifiers: "decimal(10,2)" → "DECIMAL",
// "UNSIGNED BIGINT" → "BIGINT".
func normalizeType(t string) string {
	t = strings.ToUpper(strings.TrimSpace(t))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = t[:i]
	}
	t = strings.ReplaceAll(t, "UNSIGNED", "")
	t = strings.ReplaceAll(t, "ZEROFILL", "")
	return strings.TrimSpace(t)
}

var binaryTypes = map[string]bool{
	"BLOB": true, "TINYBLOB": true, "MEDIUMBLOB": true, "LONGBLOB": true,
	"BINARY": true, "VARBINARY": true, "BIT": true, "GEOMETRY": true,
	"BYTEA": true,
}

var decimalTypes = map[string]bool{
	"DECIMAL": true, "NUMERIC": true, "NEWDECIMAL": true, "MONEY": true,
}

var integerTypes = map[string]bool{
	"TINYINT": true, "SMALLINT": true, "MEDIUMINT": true, "INT": true,
	"INTEGER": true, "BIGINT": true, "YEAR": true,
	"INT2": true, "INT4": true, "INT8": true,
}

var floatTypes = map[string]bool{
	"FLOAT": true, "DOUBLE": true, "REAL": true, "DOUBLE PRECISION": true,
	"FLOAT4": true, "FLOAT8": true,
}

var zonedTypes = map[string]bool{
	"TIMESTAMPTZ": true, "TIMETZ": true,
	"TIMESTAMP WITH TIME ZONE": true, "TIME WITH TIME ZONE": true,
}

func isBinary(t string) bool  { return binaryTypes[t] }
func isDecimal(t string) bool { return decimalTypes[t] }
func isInteger(t string) bool { return integerTypes[t] }
func isFloat(t string) bool   { return floatTypes[t] }
func isZoned(t string) bool   { return zonedTypes[t] }
