// Package diag collects the diagnostics produced while preprocessing and
// assembling a program. A Log is owned by a single build; it is appended to
// in order and never rewritten.
package diag

import (
	"fmt"
	"io"
	"strings"
)

// Kind classifies a diagnostic.
type Kind int

const (
	UnexpectedInstruction Kind = iota + 1
	UnexpectedOpcode
	UnexpectedPlacement
	UnexpectedLabel
	UnexpectedArgsCount
	UnexpectedRegister
	UnexpectedArgument
	UnexpectedImmValue
	UnexpectedDirective
	UnexpectedString
	UnexpectedToken

	MultipleDefinitions

	BlocksOverlap
	InternalError

	ROMOverflow
	NoEntryPoint

	PreprocUnexpectedDirective
	PreprocMultipleDefinition
	PreprocDefinitionWithoutName
	PreprocUnexpectedMacro
	PreprocUnclosedMacro
	PreprocDirectiveInMacroExpansion

	PreprocStackOverflow
	PreprocStackUnderflow
	PreprocIncludeDepthExceeded
	PreprocUnclosedBlock
	PreprocInvalidCondition
	PreprocCyclicInclude

	FileCannotOpen
	FileCannotRead
	FileCannotWrite
)

var kindNames = map[Kind]string{
	UnexpectedInstruction: "Unexpected instruction",
	UnexpectedOpcode:      "Unexpected opcode",
	UnexpectedPlacement:   "Unexpected instruction placement",
	UnexpectedLabel:       "Unexpected label",
	UnexpectedArgsCount:   "Unexpected number of arguments",
	UnexpectedRegister:    "Unexpected register",
	UnexpectedArgument:    "Unexpected argument",
	UnexpectedImmValue:    "Unexpected immediate value",
	UnexpectedDirective:   "Unexpected directive",
	UnexpectedString:      "Unexpected string",
	UnexpectedToken:       "Unexpected token",

	MultipleDefinitions: "Multiple definitions",

	BlocksOverlap: "Blocks overlap",
	InternalError: "Internal assembler error",

	ROMOverflow:  "ROM overflow",
	NoEntryPoint: "No entry point found",

	PreprocUnexpectedDirective:       "Unexpected preprocessor directive",
	PreprocMultipleDefinition:        "Multiple macro definitions",
	PreprocDefinitionWithoutName:     "Macro definition without name",
	PreprocUnexpectedMacro:           "Unexpected macro",
	PreprocUnclosedMacro:             "Unclosed macro definition",
	PreprocDirectiveInMacroExpansion: "Preprocessor directive in macro expansion",

	PreprocStackOverflow:        "Preprocessor state stack overflow",
	PreprocStackUnderflow:       "Preprocessor state stack underflow",
	PreprocIncludeDepthExceeded: "Include depth exceeded maximum limit",
	PreprocUnclosedBlock:        "Unclosed preprocessor block",
	PreprocInvalidCondition:     "Invalid condition in preprocessor directive",
	PreprocCyclicInclude:        "Cyclic include detected",

	FileCannotOpen:  "Cannot open file",
	FileCannotRead:  "Cannot read file",
	FileCannotWrite: "Cannot write file",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// NoLine marks a diagnostic that is not tied to a source line.
const NoLine = -1

// Entry is one recorded diagnostic.
type Entry struct {
	Kind     Kind
	Message  string
	Line     int
	Critical bool
}

func (e Entry) String() string {
	var sb strings.Builder
	prefix := "Error"
	if e.Critical {
		prefix = "Critical error"
	}
	if e.Line != NoLine {
		fmt.Fprintf(&sb, "%s at line %d: ", prefix, e.Line)
	} else {
		fmt.Fprintf(&sb, "%s: ", prefix)
	}
	sb.WriteString(e.Kind.String())
	sb.WriteString(" - ")
	sb.WriteString(e.Message)
	return sb.String()
}

// Log is an append-only list of diagnostics.
type Log struct {
	entries []Entry
}

// New returns an empty Log.
func New() *Log {
	return &Log{}
}

// Add records a normal diagnostic.
func (l *Log) Add(kind Kind, line int, format string, args ...any) {
	l.add(kind, line, false, format, args...)
}

// AddCritical records a critical diagnostic.
func (l *Log) AddCritical(kind Kind, line int, format string, args ...any) {
	l.add(kind, line, true, format, args...)
}

func (l *Log) add(kind Kind, line int, critical bool, format string, args ...any) {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	l.entries = append(l.entries, Entry{Kind: kind, Message: msg, Line: line, Critical: critical})
}

// Entries returns a copy of the recorded diagnostics in insertion order.
func (l *Log) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of diagnostics.
func (l *Log) Len() int { return len(l.entries) }

func (l *Log) HasErrors() bool { return len(l.entries) > 0 }

// Has reports whether a diagnostic of the given kind was recorded.
func (l *Log) Has(kind Kind) bool {
	for _, e := range l.entries {
		if e.Kind == kind {
			return true
		}
	}
	return false
}

// Counts returns the number of normal and critical diagnostics.
func (l *Log) Counts() (normal, critical int) {
	for _, e := range l.entries {
		if e.Critical {
			critical++
		} else {
			normal++
		}
	}
	return normal, critical
}

// Merge appends every entry of other, preserving its order.
func (l *Log) Merge(other *Log) {
	if other == nil {
		return
	}
	l.entries = append(l.entries, other.entries...)
}

// Err returns nil when the log is empty and an *Error otherwise.
func (l *Log) Err() error {
	if !l.HasErrors() {
		return nil
	}
	normal, critical := l.Counts()
	return &Error{Normal: normal, Critical: critical}
}

// Error summarises a non-empty Log as a Go error.
type Error struct {
	Normal   int
	Critical int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d errors (%d critical)", e.Normal+e.Critical, e.Critical)
}

// CriticalHeader is printed before every critical diagnostic.
const CriticalHeader = `
	##==============================##
	||           CRITICAL           ||
	||        ASSEMBLER ERROR       ||
	##==============================##
`

// Style decorates the parts of a rendered log. The zero value renders
// plain text.
type Style struct {
	Critical func(string) string
	Summary  func(string) string
}

func (s Style) critical(v string) string {
	if s.Critical == nil {
		return v
	}
	return s.Critical(v)
}

func (s Style) summary(v string) string {
	if s.Summary == nil {
		return v
	}
	return s.Summary(v)
}

// Render writes normal diagnostics first, then critical diagnostics each
// under the critical banner, then a summary of the counts.
func (l *Log) Render(w io.Writer) error {
	return l.RenderStyled(w, Style{})
}

// RenderStyled is Render with decorations applied to the banner and summary.
func (l *Log) RenderStyled(w io.Writer, style Style) error {
	var sb strings.Builder
	var crit []Entry
	for _, e := range l.entries {
		if e.Critical {
			crit = append(crit, e)
			continue
		}
		sb.WriteString(e.String())
		sb.WriteByte('\n')
	}
	for _, e := range crit {
		sb.WriteString(style.critical(CriticalHeader))
		sb.WriteString(e.String())
		sb.WriteByte('\n')
	}

	normal, critical := l.Counts()
	summary := fmt.Sprintf("\n"+
		"==================== ERROR SUMMARY ====================\n"+
		"Total errors: %d\n"+
		"  - Critical errors: %d\n"+
		"  - Normal errors  : %d\n"+
		"=======================================================\n",
		normal+critical, critical, normal)
	sb.WriteString(style.summary(summary))

	_, err := io.WriteString(w, sb.String())
	return err
}

// String renders the log as plain text.
func (l *Log) String() string {
	var sb strings.Builder
	_ = l.Render(&sb)
	return sb.String()
}
