package dialect

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/koustreak/sqlgate/internal/errs"
)

// identPattern is deliberately narrower than any engine allows: letters,
// digits and underscore, not starting with a digit. Table names are
// interpolated into SQL, never bound, so anything else is refused.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Engine limits on identifier length, in bytes.
const (
	maxIdentMySQL    = 64
	maxIdentPostgres = 63
	maxIdentSQLite   = 128
)

func validateIdent(name string, maxLen int) error {
	if name == "" {
		return errs.New(errs.ErrKindInvalidInput, "table name is required")
	}
	if len(name) > maxLen {
		return errs.New(errs.ErrKindInvalidInput,
			fmt.Sprintf("table name %q exceeds %d characters", name, maxLen))
	}
	if !identPattern.MatchString(name) {
		return errs.New(errs.ErrKindInvalidInput,
			fmt.Sprintf("invalid table name %q: only letters, digits and underscore are allowed", name))
	}
	return nil
}

// quoteWith wraps name in q, doubling any embedded q. validateIdent has
// already excluded quote characters; the doubling keeps quoteWith safe on
// its own.
func quoteWith(name, q string) string {
	return q + strings.ReplaceAll(name, q, q+q) + q
}
