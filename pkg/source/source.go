// Package source holds the line-level helpers shared by the preprocessor
// and the assembler.
package source

import (
	"strconv"
	"strings"
	"unicode"
)

// EntryPoint is the label whose block is always placed at address 0.
const EntryPoint = "START"

// StripComment truncates a line at the first "//" that is not inside a
// double-quoted string.
func StripComment(line string) string {
	inString := false
	for i := 0; i < len(line); i++ {
		switch c := line[i]; {
		case c == '\\' && inString:
			i++
		case c == '"':
			inString = !inString
		case c == '/' && !inString && i+1 < len(line) && line[i+1] == '/':
			return line[:i]
		}
	}
	return line
}

// SplitLines splits text into lines with comments removed, optionally
// trimming each line. Blank lines are kept so that the 1-based index of a
// line is its line number.
func SplitLines(text string, trim bool) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if text == "" {
		return nil
	}
	text = strings.TrimSuffix(text, "\n")
	raw := strings.Split(text, "\n")
	lines := make([]string, len(raw))
	for i, l := range raw {
		l = StripComment(l)
		if trim {
			l = strings.TrimSpace(l)
		}
		lines[i] = l
	}
	return lines
}

// Fields splits a line into its first whitespace-delimited word and the
// trimmed remainder.
func Fields(line string) (head, rest string) {
	line = strings.TrimSpace(line)
	i := strings.IndexFunc(line, unicode.IsSpace)
	if i < 0 {
		return line, ""
	}
	return line[:i], strings.TrimSpace(line[i:])
}

// SplitArgs splits s on commas that are not inside a double-quoted string
// and trims every piece. An empty s yields no arguments.
func SplitArgs(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	inString := false
	last := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if inString {
				i++
			}
		case '"':
			inString = !inString
		case ',':
			if !inString {
				out = append(out, strings.TrimSpace(s[last:i]))
				last = i + 1
			}
		}
	}
	return append(out, strings.TrimSpace(s[last:]))
}

// TokenizeInstruction returns the mnemonic followed by the operands of an
// instruction line. It reports false for a blank line, a dangling comma or
// an empty operand.
func TokenizeInstruction(line string) ([]string, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasSuffix(line, ",") {
		return nil, false
	}
	head, rest := Fields(line)
	tokens := []string{head}
	for _, arg := range SplitArgs(rest) {
		if arg == "" {
			return nil, false
		}
		tokens = append(tokens, arg)
	}
	return tokens, true
}

// IsIdentifier reports whether s matches [A-Za-z_][A-Za-z0-9_]*.
func IsIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// IsLabel reports whether token is a label definition ("name:"), or, when
// asOperand is set, a label reference ("name").
func IsLabel(token string, asOperand bool) bool {
	if token == "" || strings.HasPrefix(token, ".") {
		return false
	}
	if !asOperand {
		if !strings.HasSuffix(token, ":") {
			return false
		}
		token = token[:len(token)-1]
	}
	return IsIdentifier(token)
}

// LabelName strips the trailing colon of a label definition.
func LabelName(token string) string {
	return strings.TrimSuffix(token, ":")
}

func IsEntryPoint(name string) bool {
	return name == EntryPoint
}

// ParseValue parses a decimal, hex (0x), octal (0o) or binary (0b) integer
// and checks it lies in [min, max].
func ParseValue(token string, min, max int64) (int64, bool) {
	if token == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(token, 0, 64)
	if err != nil {
		return 0, false
	}
	if v < min || v > max {
		return 0, false
	}
	return v, true
}
