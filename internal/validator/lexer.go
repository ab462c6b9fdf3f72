package validator

import (
	"fmt"
	"strings"

	"github.com/koustreak/sqlgate/internal/dialect"
)

type tokenKind int

const (
	tokWord   tokenKind = iota // keyword or bare identifier
	tokNumber                  // numeric literal
	tokString                  // string literal, any quoting style
	tokIdent                   // quoted identifier
	tokParam                   // $1 or ?
	tokPunct                   // single operator/punctuation character
	tokMarker                  // MySQL /*! … */ delimiters
)

type token struct {
	kind       tokenKind
	text       string
	start, end int // byte offsets into the source
}

// upper returns the token text upper-cased; meaningful for words only.
func (t token) upper() string { return strings.ToUpper(t.text) }

func (t token) is(kind tokenKind, text string) bool {
	return t.kind == kind && t.text == text
}

// lexer splits SQL into tokens, dropping comments and whitespace. String
// literals and quoted identifiers become single opaque tokens so nothing
// inside them is ever mistaken for a keyword.
//
// Dialect rules:
//
//	MySQL       -- needs trailing whitespace; # line comments; /*! … */ is code;
//	            backslash escapes in '…' and "…"; "…" is a string; `…` identifier
//	PostgreSQL  nested /* */; E'…' escapes; $tag$…$tag$ dollar quoting; "…" identifier
//	SQLite      "…", `…` and […] identifiers; no backslash escapes
type lexer struct {
	src    string
	pos    int
	kind   dialect.Kind
	inExec bool // inside a MySQL executable comment
	tokens []token
}

func tokenize(src string, kind dialect.Kind) ([]token, error) {
	l := &lexer{src: src, kind: kind}
	if err := l.run(); err != nil {
		return nil, err
	}
	return l.tokens, nil
}

func (l *lexer) run() error {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case isSpace(c):
			l.pos++

		case c == '-' && l.peek(1) == '-' && l.lineCommentAllowed():
			l.skipLine()

		case c == '#' && l.kind == dialect.MySQL:
			l.skipLine()

		case c == '/' && l.peek(1) == '*':
			if err := l.blockComment(); err != nil {
				return err
			}

		case c == '*' && l.peek(1) == '/' && l.inExec:
			l.emit(tokMarker, l.pos, l.pos+2)
			l.inExec = false

		case c == '\'':
			if err := l.quoted(tokString, '\'', l.kind == dialect.MySQL); err != nil {
				return err
			}

		case c == '"':
			if l.kind == dialect.MySQL {
				if err := l.quoted(tokString, '"', true); err != nil {
					return err
				}
			} else if err := l.quoted(tokIdent, '"', false); err != nil {
				return err
			}

		case c == '`' && l.kind != dialect.PostgreSQL:
			if err := l.quoted(tokIdent, '`', false); err != nil {
				return err
			}

		case c == '[' && l.kind == dialect.SQLite:
			if err := l.bracketIdent(); err != nil {
				return err
			}

		case c == '$' && l.kind == dialect.PostgreSQL:
			if err := l.dollar(); err != nil {
				return err
			}

		case isWordStart(c):
			if err := l.word(); err != nil {
				return err
			}

		case isDigit(c) || (c == '.' && isDigit(l.peek(1))):
			l.number()

		case c == '?':
			l.emit(tokParam, l.pos, l.pos+1)

		default:
			l.emit(tokPunct, l.pos, l.pos+1)
		}
	}
	if l.inExec {
		return fmt.Errorf("unterminated comment")
	}
	return nil
}

func (l *lexer) peek(off int) byte {
	if l.pos+off < len(l.src) {
		return l.src[l.pos+off]
	}
	return 0
}

func (l *lexer) emit(kind tokenKind, start, end int) {
	l.tokens = append(l.tokens, token{kind: kind, text: l.src[start:end], start: start, end: end})
	l.pos = end
}

// lineCommentAllowed reports whether "--" at pos opens a comment. MySQL
// only treats it as one when followed by whitespace or end of input.
func (l *lexer) lineCommentAllowed() bool {
	if l.kind != dialect.MySQL {
		return true
	}
	next := l.peek(2)
	return next == 0 || isSpace(next)
}

func (l *lexer) skipLine() {
	for l.pos < len(l.src) && l.src[l.pos] != '\n' {
		l.pos++
	}
}

func (l *lexer) blockComment() error {
	start := l.pos

	if l.kind == dialect.MySQL && l.peek(2) == '!' {
		// Executable comment: the body is SQL the server will run.
		end := l.pos + 3
		for end < len(l.src) && isDigit(l.src[end]) {
			end++
		}
		if l.inExec {
			return fmt.Errorf("nested executable comment")
		}
		l.emit(tokMarker, start, end)
		l.inExec = true
		return nil
	}

	depth := 0
	for l.pos < len(l.src) {
		switch {
		case l.src[l.pos] == '/' && l.peek(1) == '*':
			depth++
			l.pos += 2
			if l.kind != dialect.PostgreSQL && depth > 1 {
				// Only PostgreSQL nests; elsewhere "/*" inside is plain text.
				depth = 1
			}
		case l.src[l.pos] == '*' && l.peek(1) == '/':
			depth--
			l.pos += 2
			if depth == 0 {
				return nil
			}
		default:
			l.pos++
		}
	}
	return fmt.Errorf("unterminated comment starting at offset %d", start)
}

// quoted consumes a literal delimited by q, where a doubled q is an
// escaped q and, when backslash is set, \x escapes any byte.
func (l *lexer) quoted(kind tokenKind, q byte, backslash bool) error {
	start := l.pos
	i := l.pos + 1
	for i < len(l.src) {
		c := l.src[i]
		switch {
		case backslash && c == '\\':
			i += 2
		case c == q && i+1 < len(l.src) && l.src[i+1] == q:
			i += 2
		case c == q:
			l.emit(kind, start, i+1)
			return nil
		default:
			i++
		}
	}
	return fmt.Errorf("unterminated %s starting at offset %d", literalName(kind), start)
}

func (l *lexer) bracketIdent() error {
	start := l.pos
	end := strings.IndexByte(l.src[start+1:], ']')
	if end < 0 {
		return fmt.Errorf("unterminated quoted identifier starting at offset %d", start)
	}
	l.emit(tokIdent, start, start+1+end+1)
	return nil
}

// dollar handles PostgreSQL $1 parameters and $tag$ … $tag$ strings.
func (l *lexer) dollar() error {
	start := l.pos
	i := start + 1
	if i < len(l.src) && isDigit(l.src[i]) {
		for i < len(l.src) && isDigit(l.src[i]) {
			i++
		}
		l.emit(tokParam, start, i)
		return nil
	}

	for i < len(l.src) && l.src[i] != '$' && isWordChar(l.src[i]) {
		i++
	}
	if i >= len(l.src) || l.src[i] != '$' {
		// Lone '$'; let the server decide.
		l.emit(tokPunct, start, start+1)
		return nil
	}
	delim := l.src[start : i+1]
	body := l.src[i+1:]
	end := strings.Index(body, delim)
	if end < 0 {
		return fmt.Errorf("unterminated dollar-quoted string starting at offset %d", start)
	}
	l.emit(tokString, start, i+1+end+len(delim))
	return nil
}

func (l *lexer) word() error {
	start := l.pos
	i := start
	for i < len(l.src) && isWordChar(l.src[i]) {
		i++
	}

	// PostgreSQL E'…' strings honour backslash escapes.
	if l.kind == dialect.PostgreSQL && i-start == 1 && (l.src[start] == 'e' || l.src[start] == 'E') &&
		i < len(l.src) && l.src[i] == '\'' {
		l.pos = i
		if err := l.quoted(tokString, '\'', true); err != nil {
			return err
		}
		last := &l.tokens[len(l.tokens)-1]
		last.start = start
		last.text = l.src[start:last.end]
		return nil
	}

	l.emit(tokWord, start, i)
	return nil
}

func (l *lexer) number() {
	start := l.pos
	i := start
	for i < len(l.src) {
		c := l.src[i]
		if isDigit(c) || c == '.' || isLetter(c) {
			i++
			continue
		}
		// exponent sign: 1e-5
		if (c == '+' || c == '-') && i > start && (l.src[i-1] == 'e' || l.src[i-1] == 'E') {
			i++
			continue
		}
		break
	}
	l.emit(tokNumber, start, i)
}

func literalName(kind tokenKind) string {
	if kind == tokIdent {
		return "quoted identifier"
	}
	return "string literal"
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

func isDigit(c byte) bool  { return c >= '0' && c <= '9' }
func isLetter(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }

// Bytes >= 0x80 are parts of UTF-8 encoded letters.
func isWordStart(c byte) bool { return isLetter(c) || c == '_' || c >= 0x80 }
func isWordChar(c byte) bool  { return isWordStart(c) || isDigit(c) || c == '$' }
