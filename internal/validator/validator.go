// Package validator decides whether a caller-supplied SQL string may run
// against a read-only connection, and bounds its result size.
//
// Validation is lexical. Comments are dropped and literals are opaque, so
// keywords are only ever matched against real SQL words. The validator is
// the first line of defence; the session itself is also opened read-only
// by the engine drivers.
package validator

import (
	"strconv"
	"strings"

	"github.com/koustreak/sqlgate/internal/dialect"
	"github.com/koustreak/sqlgate/internal/errs"
)

// DefaultLimit is the row limit applied when the caller does not ask for one.
const DefaultLimit = 1000

// ValidatedQuery is the outcome of Validate. NormalizedText is what gets
// sent to the database; it is empty when Rejected is set.
type ValidatedQuery struct {
	OriginalText   string
	NormalizedText string

	// RowLimit is the number of rows the caller should read at most.
	// Zero means the statement's own LIMIT ALL left it unbounded.
	RowLimit int

	Rejected bool
	Reason   string
}

// Validator checks queries for one dialect. It holds no mutable state and
// is safe for concurrent use.
type Validator struct {
	kind         dialect.Kind
	defaultLimit int
	maxLimit     int
	funcs        map[string]bool
}

// Option configures a Validator.
type Option func(*Validator)

// WithDefaultLimit overrides DefaultLimit. Non-positive values are ignored.
func WithDefaultLimit(n int) Option {
	return func(v *Validator) {
		if n > 0 {
			v.defaultLimit = n
		}
	}
}

// WithMaxLimit caps every effective row limit, including one written in
// the query itself. Zero disables the cap.
func WithMaxLimit(n int) Option {
	return func(v *Validator) {
		if n >= 0 {
			v.maxLimit = n
		}
	}
}

// New returns a Validator for the given dialect.
func New(kind dialect.Kind, opts ...Option) *Validator {
	v := &Validator{
		kind:         kind,
		defaultLimit: DefaultLimit,
		funcs:        forbiddenFuncs[kind],
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Kind returns the dialect the validator lexes.
func (v *Validator) Kind() dialect.Kind { return v.kind }

// Validate checks raw and returns the statement to execute. Checks run in
// a fixed order and the first failure wins:
//
//  1. nothing but whitespace and comments        → empty_query
//  2. more than one statement                    → multi_statement_rejected
//  3. leading keyword is a write keyword         → write_operation_rejected
//  4. leading keyword is not SELECT or WITH      → statement_rejected
//  5. a write keyword used as a clause anywhere  → write_operation_rejected
//  6. a side-effecting function call             → statement_rejected
//
// A lexing failure such as an unterminated string is statement_rejected.
// When no top-level LIMIT or FETCH exists, " LIMIT n" is appended.
func (v *Validator) Validate(raw string, requestedLimit int) (ValidatedQuery, error) {
	q := ValidatedQuery{OriginalText: raw}

	tokens, err := tokenize(raw, v.kind)
	if err != nil {
		return reject(q, errs.Wrap(errs.ErrKindStatementRejected, "malformed query", err))
	}

	stmts := splitStatements(tokens)
	switch {
	case len(stmts) == 0:
		return reject(q, errs.New(errs.ErrKindEmptyQuery, "query is empty"))
	case len(stmts) > 1:
		return reject(q, errs.Newf(errs.ErrKindMultiStatement,
			"only one statement per query is allowed, found %d", len(stmts)))
	}
	stmt := stmts[0]

	if err := v.checkLeading(stmt); err != nil {
		return reject(q, err)
	}
	if err := v.checkClauses(stmt); err != nil {
		return reject(q, err)
	}

	text := raw[stmt[0].start:stmt[len(stmt)-1].end]
	if at, ok := v.findLimit(stmt); ok {
		n, ok := explicitLimit(stmt, at)
		if !ok {
			n = v.effectiveLimit(requestedLimit)
		}
		q.NormalizedText = text
		q.RowLimit = v.clamp(n)
		return q, nil
	}

	n := v.clamp(v.effectiveLimit(requestedLimit))
	q.NormalizedText = text + " LIMIT " + strconv.Itoa(n)
	q.RowLimit = n
	return q, nil
}

func reject(q ValidatedQuery, err error) (ValidatedQuery, error) {
	q.Rejected = true
	q.Reason = errs.MessageOf(err)
	return q, err
}

func (v *Validator) effectiveLimit(requested int) int {
	if requested > 0 {
		return requested
	}
	return v.defaultLimit
}

// clamp applies the max limit; n == 0 (unbounded) is clamped too.
func (v *Validator) clamp(n int) int {
	if v.maxLimit > 0 && (n == 0 || n > v.maxLimit) {
		return v.maxLimit
	}
	return n
}

// --- checks ---

func (v *Validator) checkLeading(stmt []token) error {
	for _, t := range stmt {
		if t.kind == tokMarker || t.is(tokPunct, "(") {
			continue
		}
		if t.kind != tokWord {
			return errs.Newf(errs.ErrKindStatementRejected,
				"only SELECT queries are allowed, query starts with %q", t.text)
		}
		word := t.upper()
		if writeKeywords[word] {
			return errs.Newf(errs.ErrKindWriteRejected, "write operation %s is not allowed", word)
		}
		if !leadingKeywords[word] {
			return errs.Newf(errs.ErrKindStatementRejected,
				"only SELECT queries are allowed, got %s", word)
		}
		return nil
	}
	return errs.New(errs.ErrKindEmptyQuery, "query is empty")
}

// checkClauses scans every word. A write keyword directly followed by "("
// is a function (MySQL REPLACE(), INSERT()); one next to "." is part of a
// qualified name. Neither is a clause.
func (v *Validator) checkClauses(stmt []token) error {
	for i, t := range stmt {
		if t.kind != tokWord {
			continue
		}
		word := t.upper()
		if !writeKeywords[word] {
			continue
		}
		if isCall(stmt, i) || isQualified(stmt, i) {
			continue
		}
		return errs.Newf(errs.ErrKindWriteRejected, "write operation %s is not allowed", word)
	}

	for i, t := range stmt {
		if t.kind != tokWord || !isCall(stmt, i) {
			continue
		}
		name := strings.ToLower(t.text)
		if v.funcs[name] {
			return errs.Newf(errs.ErrKindStatementRejected, "function %s is not allowed", name)
		}
	}
	return nil
}

func isCall(stmt []token, i int) bool {
	return i+1 < len(stmt) && stmt[i+1].is(tokPunct, "(")
}

func isQualified(stmt []token, i int) bool {
	return (i > 0 && stmt[i-1].is(tokPunct, ".")) ||
		(i+1 < len(stmt) && stmt[i+1].is(tokPunct, "."))
}

// --- statement structure ---

// splitStatements groups tokens by ";". Groups holding nothing but
// executable-comment markers are empty.
func splitStatements(tokens []token) [][]token {
	var (
		out [][]token
		cur []token
	)
	flush := func() {
		for _, t := range cur {
			if t.kind != tokMarker {
				out = append(out, cur)
				break
			}
		}
		cur = nil
	}
	for _, t := range tokens {
		if t.is(tokPunct, ";") {
			flush()
			continue
		}
		cur = append(cur, t)
	}
	flush()
	return out
}

// findLimit returns the index of a limit clause outside parentheses. A
// limit keyword that is part of a qualified name is a column, and FETCH
// only opens a clause when FIRST or NEXT follows.
func (v *Validator) findLimit(stmt []token) (int, bool) {
	keywords := limitKeywords[v.kind]
	depth := 0
	for i, t := range stmt {
		switch {
		case t.is(tokPunct, "("):
			depth++
		case t.is(tokPunct, ")"):
			depth--
		case depth == 0 && t.kind == tokWord && keywords[t.upper()]:
			if isQualified(stmt, i) {
				continue
			}
			if t.upper() == "FETCH" && !fetchClause(stmt, i) {
				continue
			}
			return i, true
		}
	}
	return 0, false
}

func fetchClause(stmt []token, i int) bool {
	if i+1 >= len(stmt) || stmt[i+1].kind != tokWord {
		return false
	}
	next := stmt[i+1].upper()
	return next == "FIRST" || next == "NEXT"
}

// explicitLimit reads the row count of the limit clause at stmt[at]:
//
//	LIMIT n | LIMIT off, n | LIMIT ALL | FETCH FIRST [n] ROWS ONLY
//
// ok is false when the count is not a literal (a bind parameter or an
// expression).
func explicitLimit(stmt []token, at int) (n int, ok bool) {
	rest := stmt[at+1:]

	if stmt[at].upper() == "FETCH" {
		if len(rest) > 0 && rest[0].kind == tokWord {
			rest = rest[1:] // FIRST | NEXT
		}
		if len(rest) > 0 && rest[0].kind == tokWord {
			return 1, true // ROW | ROWS: count omitted
		}
		return literalCount(rest)
	}

	if len(rest) >= 3 && rest[1].is(tokPunct, ",") {
		rest = rest[2:]
	}
	if len(rest) > 0 && rest[0].kind == tokWord && rest[0].upper() == "ALL" {
		return 0, true
	}
	return literalCount(rest)
}

func literalCount(rest []token) (int, bool) {
	if len(rest) == 0 || rest[0].kind != tokNumber {
		return 0, false
	}
	n, err := strconv.Atoi(rest[0].text)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
