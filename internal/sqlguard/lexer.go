package sqlguard

import (
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokenWord tokenKind = iota
	tokenQuotedIdent
	tokenString
	tokenNumber
	tokenSymbol
)

type token struct {
	kind tokenKind
	text string
}

// keywordIs reports whether the token is the given bare keyword,
// case-insensitively. Quoted identifiers are never keywords.
func (t token) keywordIs(keyword string) bool {
	return t.kind == tokenWord && strings.EqualFold(t.text, keyword)
}

func (t token) isIdent() bool {
	return t.kind == tokenWord || t.kind == tokenQuotedIdent
}

// identText returns the identifier in its lookup form: quoted
// identifiers keep their case-sensitive spelling, bare ones fold lower.
func (t token) identText() string {
	if t.kind == tokenQuotedIdent {
		return t.text
	}
	return strings.ToLower(t.text)
}

// lex splits SQL text into tokens, dropping whitespace and comments.
// It is total: malformed input produces best-effort tokens rather than
// an error, and the validator rejects on structure instead.
func lex(input string) []token {
	runes := []rune(input)
	tokens := make([]token, 0, len(runes)/4)

	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '-' && peek(runes, i+1) == '-':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
		case r == '/' && peek(runes, i+1) == '*':
			i += 2
			for i < len(runes) && !(runes[i] == '*' && peek(runes, i+1) == '/') {
				i++
			}
			i += 2
		case r == '\'':
			var b strings.Builder
			i++
			for i < len(runes) {
				if runes[i] == '\'' {
					if peek(runes, i+1) == '\'' {
						b.WriteRune('\'')
						i += 2
						continue
					}
					i++
					break
				}
				b.WriteRune(runes[i])
				i++
			}
			tokens = append(tokens, token{kind: tokenString, text: b.String()})
		case r == '"':
			var b strings.Builder
			i++
			for i < len(runes) {
				if runes[i] == '"' {
					if peek(runes, i+1) == '"' {
						b.WriteRune('"')
						i += 2
						continue
					}
					i++
					break
				}
				b.WriteRune(runes[i])
				i++
			}
			tokens = append(tokens, token{kind: tokenQuotedIdent, text: b.String()})
		case unicode.IsLetter(r) || r == '_':
			start := i
			for i < len(runes) && (unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i]) || runes[i] == '_' || runes[i] == '$') {
				i++
			}
			tokens = append(tokens, token{kind: tokenWord, text: string(runes[start:i])})
		case unicode.IsDigit(r):
			start := i
			for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.' || runes[i] == 'e' || runes[i] == 'E') {
				i++
			}
			tokens = append(tokens, token{kind: tokenNumber, text: string(runes[start:i])})
		default:
			tokens = append(tokens, token{kind: tokenSymbol, text: string(r)})
			i++
		}
	}
	return tokens
}

func peek(runes []rune, i int) rune {
	if i >= len(runes) {
		return 0
	}
	return runes[i]
}
