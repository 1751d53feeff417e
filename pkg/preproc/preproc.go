// Package preproc expands the directives of an assembly source file before
// it reaches the assembler: file inclusion, constant definitions,
// conditional blocks and parameterised macros.
//
// Every source file is scanned line by line against a stack of frames. The
// frame on top of the stack decides what happens to a plain line: it is
// emitted (after macro and define expansion), captured into a macro body,
// or discarded.
package preproc

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang/glog"

	"asm16/pkg/diag"
	"asm16/pkg/source"
)

// ErrFailed is returned when preprocessing recorded at least one error.
var ErrFailed = errors.New("preprocessing failed")

const (
	DefaultMaxIncludeDepth = 64
	DefaultMaxStackDepth   = 64
)

// State is the behaviour selected by the frame on top of the stack.
type State int

const (
	Fetching State = iota
	ReadingMacro
	ReadingCondition
	SkippingCondition
	WaitingNextCondition
)

var stateNames = [...]string{
	Fetching:             "FETCHING",
	ReadingMacro:         "READING_MACRO",
	ReadingCondition:     "READING_CONDITION_BLOCK",
	SkippingCondition:    "SKIPPING_CONDITION_BLOCK",
	WaitingNextCondition: "WAITING_NEXT_CONDITION_BLOCK",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Macro is a parameterised block of lines captured between #macro and
// #endmacro.
type Macro struct {
	Name   string
	Params []string
	Body   []string
	Line   int
}

type frame struct {
	origin  directive
	state   State
	matched bool // some branch of this chain has been taken
	sawElse bool
	line    int
	name    string
	macro   *Macro // nil when the definition was rejected
}

// Option configures a Preprocessor.
type Option func(*Preprocessor)

// WithFS sets the file system PreprocessFile reads from. It is also the
// first include root.
func WithFS(fsys fs.FS) Option {
	return func(p *Preprocessor) { p.fsys = fsys }
}

// WithIncludeDirs adds include roots searched, in order, after the
// including file's directory and the WithFS root.
func WithIncludeDirs(dirs ...fs.FS) Option {
	return func(p *Preprocessor) { p.includeDirs = append(p.includeDirs, dirs...) }
}

// WithVerbose traces every stage through glog regardless of -v.
func WithVerbose(v bool) Option {
	return func(p *Preprocessor) { p.verbose = v }
}

func WithMaxIncludeDepth(n int) Option {
	return func(p *Preprocessor) { p.maxInclude = n }
}

func WithMaxStackDepth(n int) Option {
	return func(p *Preprocessor) { p.maxStack = n }
}

// WithDefine predefines a constant, as if the source started with
// "#define name value".
func WithDefine(name, value string) Option {
	return func(p *Preprocessor) {
		p.predefined = append(p.predefined, [2]string{name, value})
	}
}

// Preprocessor holds the definitions collected while expanding one program.
// A single instance must not be used from several goroutines at once.
type Preprocessor struct {
	diags       *diag.Log
	fsys        fs.FS
	includeDirs []fs.FS
	dirs        []fs.FS // include roots; index 0 is fsys when set
	verbose     bool
	maxInclude  int
	maxStack    int
	predefined  [][2]string

	defines      map[string]string
	macros       map[string]*Macro
	includeDepth int
	includeChain []fileRef
	failed       bool
	halted       bool // a fatal error stopped the scan
}

// fileRef names a file inside one of the include roots.
type fileRef struct {
	dir  int
	name string
}

// New returns a Preprocessor that records diagnostics into diags.
func New(diags *diag.Log, opts ...Option) *Preprocessor {
	p := &Preprocessor{
		diags:      diags,
		maxInclude: DefaultMaxIncludeDepth,
		maxStack:   DefaultMaxStackDepth,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.fsys != nil {
		p.dirs = append(p.dirs, p.fsys)
	}
	p.dirs = append(p.dirs, p.includeDirs...)
	return p
}

func (p *Preprocessor) reset() {
	p.defines = make(map[string]string)
	p.macros = make(map[string]*Macro)
	p.includeDepth = 0
	p.includeChain = nil
	p.failed = false
	p.halted = false

	u := &unit{p: p, line: diag.NoLine}
	for _, d := range p.predefined {
		u.define(d[0], d[1])
	}
}

// Preprocess expands src. On failure it returns an empty string and an error
// wrapping ErrFailed; the details are in the diagnostics log.
func (p *Preprocessor) Preprocess(src string) (string, error) {
	p.reset()
	p.tracef(1, "preprocess start")
	u := &unit{p: p}
	return p.finish(u.run(src))
}

// PreprocessFile reads name from the configured file system and expands it.
// Includes inside it resolve relative to its directory first.
func (p *Preprocessor) PreprocessFile(name string) (string, error) {
	p.reset()
	p.tracef(1, "preprocess start: %s", name)
	if p.fsys == nil {
		p.diags.AddCritical(diag.FileCannotOpen, diag.NoLine, "%s: no file system configured", name)
		p.failed = true
		return p.finish("")
	}
	data, err := fs.ReadFile(p.fsys, name)
	if err != nil {
		p.diags.AddCritical(fileErrorKind(err), diag.NoLine, "%s: %v", name, err)
		p.failed = true
		return p.finish("")
	}
	p.includeChain = append(p.includeChain, fileRef{dir: 0, name: name})
	u := &unit{p: p, file: name}
	return p.finish(u.run(string(data)))
}

func (p *Preprocessor) finish(out string) (string, error) {
	if p.failed {
		p.tracef(1, "preprocess failed")
		return "", ErrFailed
	}
	p.tracef(1, "preprocess end: %d defines, %d macros", len(p.defines), len(p.macros))
	return out, nil
}

// Defined reports whether name is a known define or macro.
func (p *Preprocessor) Defined(name string) bool {
	if _, ok := p.defines[name]; ok {
		return true
	}
	_, ok := p.macros[name]
	return ok
}

// LookupMacro returns a macro collected by the last run.
func (p *Preprocessor) LookupMacro(name string) (*Macro, bool) {
	m, ok := p.macros[name]
	return m, ok
}

func (p *Preprocessor) tracef(level glog.Level, format string, args ...any) {
	if p.verbose || bool(glog.V(level)) {
		glog.InfoDepth(1, fmt.Sprintf(format, args...))
	}
}

// unit is one source file being scanned. Every file owns its line counter,
// directive stack and output; includes return their text to the caller.
type unit struct {
	p     *Preprocessor
	dir   int // include root file was found in
	file  string
	line  int
	stack []frame
	out   strings.Builder
}

func (u *unit) run(text string) string {
	for i, line := range source.SplitLines(text, true) {
		if u.p.halted {
			return u.out.String()
		}
		u.line = i + 1
		if line == "" {
			continue
		}
		u.processLine(line)
	}
	if u.p.halted {
		return u.out.String()
	}
	for i := len(u.stack) - 1; i >= 0; i-- {
		f := u.stack[i]
		kind := diag.PreprocUnclosedBlock
		if f.origin == dirMacro {
			kind = diag.PreprocUnclosedMacro
		}
		u.logAt(kind, f.line, true, "#%s %s opened here is never closed", f.origin, f.name)
	}
	return u.out.String()
}

func (u *unit) processLine(line string) {
	state := u.state()
	if isDirective(line) {
		if state == ReadingMacro {
			if name, _ := splitDirective(line); name == "endmacro" {
				u.pop()
				return
			}
			u.capture(u.top(), line)
			return
		}
		u.dispatch(line)
		return
	}

	switch state {
	case Fetching, ReadingCondition:
		u.emit(line)
	case ReadingMacro:
		u.capture(u.top(), line)
	default:
		u.p.tracef(3, "skip line %d: %s", u.line, line)
	}
}

func (u *unit) capture(f *frame, line string) {
	if f.macro != nil {
		f.macro.Body = append(f.macro.Body, line)
	}
}

func (u *unit) top() *frame {
	if len(u.stack) == 0 {
		return nil
	}
	return &u.stack[len(u.stack)-1]
}

// state is Fetching while no block is open.
func (u *unit) state() State {
	if top := u.top(); top != nil {
		return top.state
	}
	return Fetching
}

func (u *unit) skipping() bool {
	s := u.state()
	return s == SkippingCondition || s == WaitingNextCondition
}

func (u *unit) push(f frame) bool {
	if len(u.stack) >= u.p.maxStack {
		u.logAt(diag.PreprocStackOverflow, u.line, true, "more than %d nested blocks", u.p.maxStack)
		u.p.halted = true
		return false
	}
	f.line = u.line
	u.stack = append(u.stack, f)
	u.p.tracef(3, "push %s (%s) at line %d", f.origin, f.state, u.line)
	return true
}

func (u *unit) pop() bool {
	if len(u.stack) == 0 {
		u.fail(diag.PreprocStackUnderflow, "no open block to close")
		return false
	}
	f := u.stack[len(u.stack)-1]
	u.stack = u.stack[:len(u.stack)-1]
	u.p.tracef(3, "pop %s opened at line %d", f.origin, f.line)
	return true
}

func (u *unit) fail(kind diag.Kind, format string, args ...any) {
	u.logAt(kind, u.line, false, format, args...)
}

func (u *unit) logAt(kind diag.Kind, line int, critical bool, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if u.file != "" {
		msg = u.file + ": " + msg
	}
	if critical {
		u.p.diags.AddCritical(kind, line, "%s", msg)
	} else {
		u.p.diags.Add(kind, line, "%s", msg)
	}
	u.p.failed = true
}
