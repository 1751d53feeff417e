// Package asm turns preprocessed assembly text into a flat buffer of 16-bit
// instruction words.
//
// Assembly runs in two passes over the same lines. The first pass builds the
// block table and assigns addresses; the second pass encodes every
// instruction and directive into its block. Link then lays the blocks out
// in placement order, with the START block at address 0.
package asm

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang/glog"
	"golang.org/x/exp/slices"

	"asm16/pkg/diag"
	"asm16/pkg/source"
)

// ErrFailed is wrapped by every error Assemble returns. The details are in
// the diagnostics log.
var ErrFailed = errors.New("assembly failed")

// DefaultROMCapacity is the default ROM size in words.
const DefaultROMCapacity = 16384

// Block is a labelled run of words placed contiguously in ROM.
type Block struct {
	Name        string
	Line        int
	BaseAddress int
	Size        int
	Words       []uint16
}

// End returns the address one past the last word of the block.
func (b Block) End() int { return b.BaseAddress + b.Size }

type Option func(*Assembler)

func WithROMCapacity(words int) Option {
	return func(a *Assembler) { a.romCapacity = words }
}

// WithVerbose traces both passes through glog regardless of -v.
func WithVerbose(v bool) Option {
	return func(a *Assembler) { a.verbose = v }
}

// WithFS sets the file system .incbin reads from.
func WithFS(fsys fs.FS) Option {
	return func(a *Assembler) { a.fsys = fsys }
}

// Assembler holds the state of one assembly run. Blocks live in an arena and
// are referred to by index; the label table and the placement order hold
// indexes, never pointers.
type Assembler struct {
	diags       *diag.Log
	romCapacity int
	verbose     bool
	fsys        fs.FS

	blocks    []Block
	order     []int
	labels    map[string]int
	current   int
	totalSize int
	failed    bool
}

// New returns an Assembler that records diagnostics into diags.
func New(diags *diag.Log, opts ...Option) *Assembler {
	a := &Assembler{
		diags:       diags,
		romCapacity: DefaultROMCapacity,
		current:     -1,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble is a convenience wrapper that assembles src with a fresh
// diagnostics log.
func Assemble(src string, opts ...Option) ([]uint16, *diag.Log, error) {
	log := diag.New()
	words, err := New(log, opts...).Assemble(src)
	return words, log, err
}

func (a *Assembler) reset() {
	a.blocks = nil
	a.order = nil
	a.labels = make(map[string]int)
	a.current = -1
	a.totalSize = 0
	a.failed = false
}

// Assemble runs both passes over src and links the result. On failure it
// returns nil and an error wrapping ErrFailed.
func (a *Assembler) Assemble(src string) ([]uint16, error) {
	a.reset()
	start := a.diags.Len()
	lines := source.SplitLines(src, true)

	a.tracef(1, "first pass: %d lines", len(lines))
	if !a.firstPass(lines) {
		return nil, a.failure(start, "first pass")
	}
	a.tracef(1, "second pass")
	if !a.secondPass(lines) {
		return nil, a.failure(start, "second pass")
	}
	words, ok := a.link()
	if !ok {
		return nil, a.failure(start, "link")
	}
	a.tracef(1, "assembled %d words in %d blocks", len(words), len(a.blocks))
	return words, nil
}

func (a *Assembler) failure(start int, stage string) error {
	return fmt.Errorf("%w in %s: %d errors", ErrFailed, stage, a.diags.Len()-start)
}

// Layout returns the blocks in placement order. It is meaningful after a
// successful Assemble.
func (a *Assembler) Layout() []Block {
	out := make([]Block, 0, len(a.order))
	for _, h := range a.order {
		b := a.blocks[h]
		b.Words = slices.Clone(b.Words)
		out = append(out, b)
	}
	return out
}

// Label returns the block defined by name.
func (a *Assembler) Label(name string) (Block, bool) {
	h, ok := a.labels[name]
	if !ok {
		return Block{}, false
	}
	return a.blocks[h], true
}

// Size returns the total span of the linked program in words.
func (a *Assembler) Size() int { return a.totalSize }

// link copies every block to its base address in a buffer sized to the
// total span. Gaps stay zero.
func (a *Assembler) link() ([]uint16, bool) {
	buf := make([]uint16, a.totalSize)
	for _, h := range a.order {
		b := a.blocks[h]
		if len(b.Words) != b.Size {
			a.diags.AddCritical(diag.InternalError, b.Line, "block %s: laid out %d words, emitted %d", b.Name, b.Size, len(b.Words))
			return nil, false
		}
		if b.BaseAddress < 0 || b.BaseAddress+len(b.Words) > len(buf) {
			a.diags.AddCritical(diag.InternalError, b.Line, "block %s at 0x%04X does not fit in %d words", b.Name, b.BaseAddress, len(buf))
			return nil, false
		}
		copy(buf[b.BaseAddress:], b.Words)
		a.tracef(2, "link %s at 0x%04X (%d words)", b.Name, b.BaseAddress, len(b.Words))
	}
	return buf, true
}

func (a *Assembler) tracef(level glog.Level, format string, args ...any) {
	if a.verbose || bool(glog.V(level)) {
		glog.InfoDepth(1, fmt.Sprintf(format, args...))
	}
}

// report records err against line. Errors that do not carry a kind are
// assembler bugs.
func (a *Assembler) report(err error, line int) {
	var le *lineError
	if errors.As(err, &le) {
		a.diags.Add(le.kind, line, "%s", le.msg)
	} else {
		a.diags.AddCritical(diag.InternalError, line, "%v", err)
	}
	a.failed = true
}

type lineError struct {
	kind diag.Kind
	msg  string
}

func (e *lineError) Error() string { return e.kind.String() + ": " + e.msg }

func errorf(kind diag.Kind, format string, args ...any) error {
	return &lineError{kind: kind, msg: fmt.Sprintf(format, args...)}
}
