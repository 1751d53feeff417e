package preproc

import (
	"errors"
	"io/fs"
	"path"
	"strconv"
	"strings"

	"golang.org/x/exp/slices"

	"asm16/pkg/diag"
	"asm16/pkg/source"
)

type directive int

const (
	dirInclude directive = iota
	dirDefine
	dirIf
	dirElif
	dirElse
	dirIfdef
	dirIfndef
	dirElifdef
	dirElifndef
	dirEndif
	dirMacro
	dirEndmacro
)

var directiveNames = map[string]directive{
	"include":  dirInclude,
	"define":   dirDefine,
	"if":       dirIf,
	"elif":     dirElif,
	"else":     dirElse,
	"ifdef":    dirIfdef,
	"ifndef":   dirIfndef,
	"elifdef":  dirElifdef,
	"elifndef": dirElifndef,
	"endif":    dirEndif,
	"macro":    dirMacro,
	"endmacro": dirEndmacro,
}

func (d directive) String() string {
	for name, v := range directiveNames {
		if v == d {
			return name
		}
	}
	return "?"
}

func (d directive) opensCondition() bool {
	return d == dirIf || d == dirIfdef || d == dirIfndef
}

func isDirective(line string) bool {
	return strings.HasPrefix(line, "#")
}

// splitDirective returns the directive word of a "#name args" line and its
// trimmed arguments. Whitespace between '#' and the name is allowed.
func splitDirective(line string) (name, rest string) {
	return source.Fields(strings.TrimPrefix(line, "#"))
}

func (u *unit) dispatch(line string) {
	name, rest := splitDirective(line)
	d, known := directiveNames[name]

	if u.skipping() {
		switch {
		case known && d.opensCondition():
			// A chain opened inside a skipped region only has to balance.
			u.push(frame{origin: d, state: WaitingNextCondition, matched: true, name: rest})
			return
		case known && (d == dirElif || d == dirElse || d == dirElifdef || d == dirElifndef || d == dirEndif):
		default:
			u.p.tracef(3, "skip directive at line %d: %s", u.line, line)
			return
		}
	}

	if !known {
		u.fail(diag.PreprocUnexpectedDirective, "unknown directive %q", line)
		return
	}
	u.p.tracef(2, "line %d: #%s %s", u.line, name, rest)

	switch d {
	case dirInclude:
		u.include(rest)
	case dirDefine:
		name, value := source.Fields(rest)
		u.define(name, value)
	case dirIf:
		ok, valid := u.evalIf(rest)
		u.open(d, rest, ok, valid)
	case dirIfdef, dirIfndef:
		ok, valid := u.evalIfdef(d, rest)
		u.open(d, rest, ok, valid)
	case dirElif, dirElse, dirElifdef, dirElifndef:
		u.elseBranch(d, rest)
	case dirEndif:
		u.pop()
	case dirMacro:
		u.macro(rest)
	case dirEndmacro:
		u.fail(diag.PreprocUnexpectedDirective, "#endmacro without #macro")
	}
}

func (u *unit) open(d directive, cond string, taken, valid bool) {
	f := frame{origin: d, name: cond, state: SkippingCondition}
	if valid && taken {
		f.state = ReadingCondition
		f.matched = true
	}
	u.push(f)
}

// elseBranch moves the current chain to its next branch. #elifdef and
// #elifndef only continue a chain opened by #ifdef or #ifndef; #elif only
// continues one opened by #if.
func (u *unit) elseBranch(d directive, cond string) {
	top := u.top()
	if top == nil || !top.origin.opensCondition() {
		u.fail(diag.PreprocUnexpectedDirective, "#%s without an open condition", d)
		return
	}
	switch {
	case d == dirElif && top.origin != dirIf,
		(d == dirElifdef || d == dirElifndef) && top.origin == dirIf:
		u.fail(diag.PreprocUnexpectedDirective, "#%s cannot continue #%s", d, top.origin)
		return
	case top.sawElse:
		u.fail(diag.PreprocUnexpectedDirective, "#%s after #else", d)
		return
	}

	if top.matched {
		top.state = WaitingNextCondition
		if d == dirElse {
			top.sawElse = true
		}
		return
	}

	var taken, valid bool
	switch d {
	case dirElse:
		top.sawElse = true
		taken, valid = true, true
	case dirElif:
		taken, valid = u.evalIf(cond)
	default:
		taken, valid = u.evalIfdef(d, cond)
	}
	if valid && taken {
		top.state = ReadingCondition
		top.matched = true
	} else {
		top.state = SkippingCondition
	}
}

// evalIf evaluates the integer expression of #if and #elif after define
// substitution. Any non-zero value is true.
func (u *unit) evalIf(cond string) (taken, valid bool) {
	expanded := strings.TrimSpace(u.p.substitute(cond))
	v, err := strconv.ParseInt(expanded, 0, 64)
	if err != nil {
		u.fail(diag.PreprocInvalidCondition, "%q is not an integer", cond)
		return false, false
	}
	return v != 0, true
}

func (u *unit) evalIfdef(d directive, cond string) (taken, valid bool) {
	fields := strings.Fields(cond)
	if len(fields) != 1 || !source.IsIdentifier(fields[0]) {
		u.fail(diag.PreprocInvalidCondition, "#%s expects one name, got %q", d, cond)
		return false, false
	}
	defined := u.p.Defined(fields[0])
	if d == dirIfndef || d == dirElifndef {
		return !defined, true
	}
	return defined, true
}

func (u *unit) define(name, value string) {
	p := u.p
	switch {
	case name == "":
		u.fail(diag.PreprocDefinitionWithoutName, "#define without a name")
		return
	case !source.IsIdentifier(name):
		u.fail(diag.PreprocDefinitionWithoutName, "invalid name %q", name)
		return
	case p.Defined(name):
		u.fail(diag.PreprocMultipleDefinition, "%s is already defined", name)
		return
	}
	value = p.substitute(strings.Join(strings.Fields(value), " "))
	p.defines[name] = value
	p.tracef(2, "define %s = %q", name, value)
}

func (u *unit) macro(rest string) {
	fields := strings.Fields(strings.ReplaceAll(rest, ",", " "))
	f := frame{origin: dirMacro, state: ReadingMacro}
	if len(fields) == 0 || !source.IsIdentifier(fields[0]) {
		u.fail(diag.PreprocDefinitionWithoutName, "#macro without a valid name: %q", rest)
		u.push(f)
		return
	}
	name, params := fields[0], fields[1:]
	f.name = name
	if u.p.Defined(name) {
		u.fail(diag.PreprocMultipleDefinition, "%s is already defined", name)
		u.push(f)
		return
	}
	for i, param := range params {
		if !source.IsIdentifier(param) || slices.Contains(params[:i], param) {
			u.fail(diag.PreprocUnexpectedMacro, "macro %s: invalid parameter %q", name, param)
			u.push(f)
			return
		}
	}
	m := &Macro{Name: name, Params: params, Line: u.line}
	u.p.macros[name] = m
	f.macro = m
	u.push(f)
	u.p.tracef(2, "macro %s(%s)", name, strings.Join(params, ", "))
}

func (u *unit) include(rest string) {
	p := u.p
	name, err := strconv.Unquote(rest)
	if err != nil || name == "" || !strings.HasPrefix(rest, `"`) {
		u.fail(diag.PreprocUnexpectedDirective, "#include expects a quoted path, got %q", rest)
		return
	}
	if p.includeDepth >= p.maxInclude {
		u.logAt(diag.PreprocIncludeDepthExceeded, u.line, true, "%s: more than %d nested includes", name, p.maxInclude)
		p.halted = true
		return
	}
	if len(p.dirs) == 0 {
		u.logAt(diag.FileCannotOpen, u.line, true, "%s: no file system configured", name)
		return
	}

	ref, ok := u.resolve(name)
	if !ok {
		u.logAt(diag.FileCannotOpen, u.line, true, "%s: not found in the include path", name)
		return
	}
	if slices.Contains(p.includeChain, ref) {
		chain := make([]string, len(p.includeChain))
		for i, r := range p.includeChain {
			chain[i] = r.name
		}
		u.logAt(diag.PreprocCyclicInclude, u.line, true, "%s includes itself through %s",
			ref.name, strings.Join(chain, " -> "))
		return
	}
	data, err := fs.ReadFile(p.dirs[ref.dir], ref.name)
	if err != nil {
		u.logAt(fileErrorKind(err), u.line, true, "%s: %v", name, err)
		return
	}

	p.tracef(1, "include %s (root %d, depth %d)", ref.name, ref.dir, p.includeDepth+1)
	p.includeDepth++
	p.includeChain = append(p.includeChain, ref)
	sub := &unit{p: p, dir: ref.dir, file: ref.name}
	text := sub.run(string(data))
	p.includeChain = p.includeChain[:len(p.includeChain)-1]
	p.includeDepth--

	u.out.WriteString(text)
}

// resolve looks for name next to the including file first, then at each
// include root in order.
func (u *unit) resolve(name string) (fileRef, bool) {
	var candidates []fileRef
	if u.file != "" {
		candidates = append(candidates, fileRef{dir: u.dir, name: path.Join(path.Dir(u.file), name)})
	}
	for i := range u.p.dirs {
		candidates = append(candidates, fileRef{dir: i, name: path.Clean(name)})
	}
	for _, c := range candidates {
		if !fs.ValidPath(c.name) {
			continue
		}
		if _, err := fs.Stat(u.p.dirs[c.dir], c.name); err == nil {
			return c, true
		}
	}
	return fileRef{}, false
}

func fileErrorKind(err error) diag.Kind {
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrInvalid) || errors.Is(err, fs.ErrPermission) {
		return diag.FileCannotOpen
	}
	return diag.FileCannotRead
}
