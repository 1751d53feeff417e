package preproc

import (
	"strings"

	"asm16/pkg/diag"
	"asm16/pkg/source"
)

// emit writes an active line to the output, expanding a macro invocation
// or substituting defines.
func (u *unit) emit(line string) {
	if u.expandMacro(line, make(map[string]bool)) {
		return
	}
	u.out.WriteString(u.p.substitute(line))
	u.out.WriteByte('\n')
}

// expandMacro expands line when its first word, after an optional label,
// names a macro. It reports false when the line is not a macro invocation.
// active holds the macros being expanded on the current path so that
// recursion is caught.
func (u *unit) expandMacro(line string, active map[string]bool) bool {
	head, rest := source.Fields(line)
	label := ""
	if source.IsLabel(head, false) {
		label = head
		head, rest = source.Fields(rest)
	}
	m, ok := u.p.macros[head]
	if !ok {
		return false
	}
	args := source.SplitArgs(rest)
	if len(args) != len(m.Params) {
		u.fail(diag.PreprocUnexpectedMacro, "macro %s expects %d arguments, got %d", m.Name, len(m.Params), len(args))
		return true
	}
	if active[m.Name] {
		u.fail(diag.PreprocUnexpectedMacro, "recursive expansion of macro %s", m.Name)
		return true
	}
	active[m.Name] = true
	defer delete(active, m.Name)

	bindings := make(map[string]string, len(m.Params))
	for i, param := range m.Params {
		bindings[param] = args[i]
	}
	u.p.tracef(2, "expand %s at line %d", m.Name, u.line)
	if label != "" {
		u.out.WriteString(label)
		u.out.WriteByte('\n')
	}

	for _, body := range m.Body {
		// Parameters first, in one pass, so that an argument that happens
		// to spell another parameter's name is left alone.
		expanded := u.p.substitute(substituteWords(body, bindings))
		if isDirective(expanded) {
			u.fail(diag.PreprocDirectiveInMacroExpansion, "macro %s: %q", m.Name, expanded)
			continue
		}
		if u.expandMacro(expanded, active) {
			continue
		}
		u.out.WriteString(expanded)
		u.out.WriteByte('\n')
	}
	return true
}

// substitute replaces whole-word occurrences of defined names in input.
func (p *Preprocessor) substitute(input string) string {
	return substituteWords(input, p.defines)
}

func substituteWords(input string, words map[string]string) string {
	if len(words) == 0 {
		return input
	}
	return replaceWords(input, func(word string) (string, bool) {
		v, ok := words[word]
		return v, ok
	})
}

// replaceWords walks input once, passing every identifier outside a string
// literal to lookup.
func replaceWords(input string, lookup func(string) (string, bool)) string {
	var sb strings.Builder
	n := len(input)
	i := 0
	for i < n {
		c := input[i]
		switch {
		case c == '"':
			start := i
			i++
			for i < n {
				if input[i] == '\\' {
					i += 2
					continue
				}
				i++
				if input[i-1] == '"' {
					break
				}
			}
			if i > n {
				i = n
			}
			sb.WriteString(input[start:i])
		case isIdentStart(c):
			start := i
			for i < n && isIdentPart(input[i]) {
				i++
			}
			word := input[start:i]
			if v, ok := lookup(word); ok {
				sb.WriteString(v)
			} else {
				sb.WriteString(word)
			}
		case c >= '0' && c <= '9':
			// Numbers like 0x1F must not expose "x1F" as a word.
			start := i
			for i < n && isIdentPart(input[i]) {
				i++
			}
			sb.WriteString(input[start:i])
		default:
			sb.WriteByte(c)
			i++
		}
	}
	return sb.String()
}

func isIdentStart(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
