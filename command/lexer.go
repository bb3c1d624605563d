package command

import (
	"fmt"
	"strings"

	"github.com/berthertogen/delta-kusto/kql"
)

// The lexer turns control-script text into a flat token stream. Commands are
// not delimited up front: each command starts at a verb token (.create,
// .alter, ...) and the parser consumes exactly the tokens its grammar needs,
// so blank lines and semicolons between commands are plain trivia.

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenVerb
	tokenIdent
	tokenQuotedIdent
	tokenString
	tokenRawString
	tokenNumber
	tokenPunct
	tokenDotDot
)

func (k tokenKind) String() string {
	switch k {
	case tokenEOF:
		return "end of script"
	case tokenVerb:
		return "command verb"
	case tokenIdent:
		return "identifier"
	case tokenQuotedIdent:
		return "quoted identifier"
	case tokenString:
		return "string literal"
	case tokenRawString:
		return "multi-line string"
	case tokenNumber:
		return "number"
	case tokenPunct:
		return "punctuation"
	case tokenDotDot:
		return "'..'"
	}
	return "token"
}

type token struct {
	kind tokenKind
	// text is the decoded payload: verb without the leading dot, identifier
	// or string contents, raw punctuation character.
	text string
	pos  int
}

type lexer struct {
	input string
	pos   int
}

func newLexer(input string) *lexer {
	return &lexer{input: input}
}

// skipTrivia consumes whitespace, semicolons and // comments.
func (l *lexer) skipTrivia() {
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == ';':
			l.pos++
		case c == '/' && l.pos+1 < len(l.input) && l.input[l.pos+1] == '/':
			for l.pos < len(l.input) && l.input[l.pos] != '\n' {
				l.pos++
			}
		default:
			return
		}
	}
}

// restOfLine returns the remainder of the current line, for error messages
// that name the offending command text.
func (l *lexer) restOfLine(from int) string {
	end := strings.IndexByte(l.input[from:], '\n')
	if end < 0 {
		return strings.TrimSpace(l.input[from:])
	}
	return strings.TrimSpace(l.input[from : from+end])
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func (l *lexer) next() (token, error) {
	l.skipTrivia()
	if l.pos >= len(l.input) {
		return token{kind: tokenEOF, pos: l.pos}, nil
	}

	start := l.pos
	c := l.input[l.pos]

	switch {
	case c == '.':
		if l.pos+1 < len(l.input) && l.input[l.pos+1] == '.' {
			l.pos += 2
			return token{kind: tokenDotDot, text: "..", pos: start}, nil
		}
		if l.pos+1 < len(l.input) && isIdentStart(l.input[l.pos+1]) {
			l.pos++
			for l.pos < len(l.input) && (isIdentPart(l.input[l.pos]) || l.input[l.pos] == '-') {
				l.pos++
			}
			return token{kind: tokenVerb, text: l.input[start+1 : l.pos], pos: start}, nil
		}
		return token{}, fmt.Errorf("unexpected '.' at offset %d: %s", start, l.restOfLine(start))

	case isIdentStart(c):
		for l.pos < len(l.input) && isIdentPart(l.input[l.pos]) {
			l.pos++
		}
		word := l.input[start:l.pos]
		// h'...' / h"..." hidden string literals.
		if (word == "h" || word == "H") && l.pos < len(l.input) && (l.input[l.pos] == '\'' || l.input[l.pos] == '"') {
			l.pos = start
			return l.lexString()
		}
		return token{kind: tokenIdent, text: word, pos: start}, nil

	case isDigit(c) || (c == '-' && l.pos+1 < len(l.input) && isDigit(l.input[l.pos+1])):
		l.pos++
		for l.pos < len(l.input) {
			p := l.input[l.pos]
			if isIdentPart(p) || p == '.' || p == ':' {
				l.pos++
				continue
			}
			break
		}
		return token{kind: tokenNumber, text: l.input[start:l.pos], pos: start}, nil

	case c == '\'' || c == '"':
		return l.lexString()

	case c == '@' && l.pos+1 < len(l.input) && (l.input[l.pos+1] == '\'' || l.input[l.pos+1] == '"'):
		return l.lexVerbatimString()

	case c == '`' && strings.HasPrefix(l.input[l.pos:], "```"):
		end := strings.Index(l.input[l.pos+3:], "```")
		if end < 0 {
			return token{}, fmt.Errorf("unterminated ``` block at offset %d", start)
		}
		inner := l.input[l.pos+3 : l.pos+3+end]
		l.pos += 3 + end + 3
		return token{kind: tokenRawString, text: inner, pos: start}, nil

	case c == '[':
		// ["name"] / ['name'] quoted identifier.
		if l.pos+1 < len(l.input) && (l.input[l.pos+1] == '\'' || l.input[l.pos+1] == '"') {
			l.pos++
			strTok, err := l.lexString()
			if err != nil {
				return token{}, err
			}
			if l.pos >= len(l.input) || l.input[l.pos] != ']' {
				return token{}, fmt.Errorf("unterminated quoted identifier at offset %d", start)
			}
			l.pos++
			return token{kind: tokenQuotedIdent, text: strTok.text, pos: start}, nil
		}
		l.pos++
		return token{kind: tokenPunct, text: "[", pos: start}, nil

	default:
		l.pos++
		return token{kind: tokenPunct, text: string(c), pos: start}, nil
	}
}

// lexString lexes a quoted string literal starting at l.pos (possibly with an
// h prefix) and returns the decoded text.
func (l *lexer) lexString() (token, error) {
	start := l.pos
	pos := l.pos
	if l.input[pos] == 'h' || l.input[pos] == 'H' {
		pos++
	}
	quote := l.input[pos]
	pos++
	for pos < len(l.input) {
		switch l.input[pos] {
		case '\\':
			pos += 2
			continue
		case quote:
			raw := l.input[start : pos+1]
			decoded, err := kql.UnquoteString(raw)
			if err != nil {
				return token{}, fmt.Errorf("bad string literal at offset %d: %s", start, err)
			}
			l.pos = pos + 1
			return token{kind: tokenString, text: decoded, pos: start}, nil
		}
		pos++
	}
	return token{}, fmt.Errorf("unterminated string literal at offset %d: %s", start, l.restOfLine(start))
}

// lexVerbatimString lexes an @"..." verbatim literal: no escape processing,
// a doubled quote stands for itself.
func (l *lexer) lexVerbatimString() (token, error) {
	start := l.pos
	pos := l.pos + 1
	quote := l.input[pos]
	pos++
	var out strings.Builder
	for pos < len(l.input) {
		if l.input[pos] == quote {
			if pos+1 < len(l.input) && l.input[pos+1] == quote {
				out.WriteByte(quote)
				pos += 2
				continue
			}
			l.pos = pos + 1
			return token{kind: tokenString, text: out.String(), pos: start}, nil
		}
		out.WriteByte(l.input[pos])
		pos++
	}
	return token{}, fmt.Errorf("unterminated verbatim string at offset %d: %s", start, l.restOfLine(start))
}

// skipString advances past a quoted literal starting at l.pos without
// decoding it; raw captures only need to know where it ends.
func (l *lexer) skipString() error {
	start := l.pos
	pos := l.pos
	verbatim := false
	if l.input[pos] == '@' {
		verbatim = true
		pos++
	} else if l.input[pos] == 'h' || l.input[pos] == 'H' {
		pos++
	}
	quote := l.input[pos]
	pos++
	for pos < len(l.input) {
		switch {
		case !verbatim && l.input[pos] == '\\':
			pos += 2
		case l.input[pos] == quote:
			if verbatim && pos+1 < len(l.input) && l.input[pos+1] == quote {
				pos += 2
				continue
			}
			l.pos = pos + 1
			return nil
		default:
			pos++
		}
	}
	return fmt.Errorf("unterminated string literal at offset %d: %s", start, l.restOfLine(start))
}

// captureBalanced consumes raw text up to the matching close delimiter; the
// opening delimiter must already have been consumed. Nested delimiters,
// string literals and // comments are respected. The close delimiter is
// consumed but not returned.
func (l *lexer) captureBalanced(open, close byte) (string, error) {
	start := l.pos
	depth := 1
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		switch {
		case c == '\'' || c == '"',
			c == '@' && l.pos+1 < len(l.input) && (l.input[l.pos+1] == '\'' || l.input[l.pos+1] == '"'):
			if err := l.skipString(); err != nil {
				return "", err
			}
			continue
		case c == '/' && l.pos+1 < len(l.input) && l.input[l.pos+1] == '/':
			for l.pos < len(l.input) && l.input[l.pos] != '\n' {
				l.pos++
			}
			continue
		case c == open:
			depth++
		case c == close:
			depth--
			if depth == 0 {
				inner := l.input[start:l.pos]
				l.pos++
				return inner, nil
			}
		}
		l.pos++
	}
	return "", fmt.Errorf("unbalanced %q starting at offset %d", string(open), start)
}

// captureUntil consumes raw text up to the next occurrence of close, which is
// consumed but not returned. Used for the contents of datetime(...) calls.
func (l *lexer) captureUntil(close byte) (string, error) {
	start := l.pos
	for l.pos < len(l.input) {
		if l.input[l.pos] == close {
			inner := l.input[start:l.pos]
			l.pos++
			return inner, nil
		}
		l.pos++
	}
	return "", fmt.Errorf("missing %q after offset %d", string(close), start)
}
