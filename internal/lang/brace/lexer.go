package brace

import "strings"

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokSpace
	tokIdent
	tokPunct
	tokString
	tokComment
	tokTemplate
	tokLBrace
	tokRBrace
	tokSemi
)

// scan returns the kind and end offset of the token starting at i, and
// whether a delimited token was properly closed.
func scan(s string, i int) (kind tokenKind, end int, closed bool) {
	if i >= len(s) {
		return tokEOF, i, true
	}
	c := s[i]
	switch {
	case isSpace(c):
		j := i + 1
		for j < len(s) && isSpace(s[j]) {
			j++
		}
		return tokSpace, j, true
	case strings.HasPrefix(s[i:], "//"):
		j := strings.IndexByte(s[i:], '\n')
		if j < 0 {
			return tokComment, len(s), true
		}
		return tokComment, i + j, true
	case strings.HasPrefix(s[i:], "/*"):
		j := strings.Index(s[i+2:], "*/")
		if j < 0 {
			return tokComment, len(s), false
		}
		return tokComment, i + 2 + j + 2, true
	case strings.HasPrefix(s[i:], "<%"):
		j := strings.Index(s[i+2:], "%>")
		if j < 0 {
			return tokTemplate, len(s), false
		}
		return tokTemplate, i + 2 + j + 2, true
	case c == '"':
		for j := i + 1; j < len(s); j++ {
			switch s[j] {
			case '\\':
				j++
			case '"':
				return tokString, j + 1, true
			}
		}
		return tokString, len(s), false
	case c == '{':
		return tokLBrace, i + 1, true
	case c == '}':
		return tokRBrace, i + 1, true
	case c == ';':
		return tokSemi, i + 1, true
	case isIdent(c):
		j := i + 1
		for j < len(s) && isIdent(s[j]) {
			j++
		}
		return tokIdent, j, true
	default:
		return tokPunct, i + 1, true
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// isIdent treats every non-ASCII byte as an identifier byte so multi-byte
// sequences are never split.
func isIdent(c byte) bool {
	return c == '_' || c >= 0x80 ||
		('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}
