package asm

import (
	"golang.org/x/exp/slices"

	"asm16/pkg/diag"
	"asm16/pkg/source"
)

// firstPass builds the block table, sizes every block and assigns base
// addresses. It keeps scanning after an error so that one run reports as
// much as possible.
func (a *Assembler) firstPass(lines []string) bool {
	for i, line := range lines {
		n := i + 1
		if line == "" {
			continue
		}
		st, err := classify(line)
		if err != nil {
			a.report(err, n)
			continue
		}
		if st.label != "" {
			a.defineLabel(st.label, n)
		}

		switch st.kind {
		case stmtInstruction:
			a.layoutInstruction(st, n)
		case stmtDirective:
			a.layoutDirective(st, n)
		case stmtUnknown:
			a.report(errorf(diag.UnexpectedToken, "unrecognized line %q", st.text), n)
		}
	}

	if _, ok := a.labels[source.EntryPoint]; !ok {
		a.diags.AddCritical(diag.NoEntryPoint, diag.NoLine, "no %s label", source.EntryPoint)
		return false
	}
	if a.failed {
		return false
	}
	// An overflow leaves later blocks at address 0, so the overlap check
	// still runs and reports them.
	a.assignAddresses()
	for _, pair := range findOverlaps(a.blocks) {
		x, y := a.blocks[pair[0]], a.blocks[pair[1]]
		a.diags.AddCritical(diag.BlocksOverlap, y.Line, "%s [0x%04X-0x%04X] overlaps %s [0x%04X-0x%04X]",
			x.Name, x.BaseAddress, x.End()-1, y.Name, y.BaseAddress, y.End()-1)
		a.failed = true
	}
	return !a.failed
}

func (a *Assembler) defineLabel(name string, line int) {
	if h, ok := a.labels[name]; ok {
		a.diags.AddCritical(diag.MultipleDefinitions, line, "label %s already defined at line %d", name, a.blocks[h].Line)
		a.failed = true
		a.current = h
		return
	}
	h := len(a.blocks)
	a.blocks = append(a.blocks, Block{Name: name, Line: line})
	if source.IsEntryPoint(name) {
		a.order = slices.Insert(a.order, 0, h)
	} else {
		a.order = append(a.order, h)
	}
	a.labels[name] = h
	a.current = h
	a.tracef(2, "block %s at line %d", name, line)
}

func (a *Assembler) layoutInstruction(st statement, line int) {
	if a.current < 0 {
		a.report(errorf(diag.UnexpectedPlacement, "%s outside of any label", st.meta.Mnemonic), line)
		return
	}
	if _, err := parseOperands(st.meta, st.text); err != nil {
		a.report(err, line)
		return
	}
	a.blocks[a.current].Size += st.meta.Words()
	a.tracef(3, "line %d: %s (%d words)", line, st.meta.Mnemonic, st.meta.Words())
}

func (a *Assembler) layoutDirective(st statement, line int) {
	if a.current < 0 {
		a.report(errorf(diag.UnexpectedPlacement, "directive outside of any label"), line)
		return
	}
	words, err := a.directive(st.text)
	if err != nil {
		a.report(err, line)
		return
	}
	a.blocks[a.current].Size += len(words)
	a.tracef(3, "line %d: directive (%d words)", line, len(words))
}

// assignAddresses walks the blocks in placement order and gives each the
// running total as its base address. It stops at the first block that does
// not fit in ROM.
func (a *Assembler) assignAddresses() {
	addr := 0
	for _, h := range a.order {
		b := &a.blocks[h]
		if addr+b.Size > a.romCapacity {
			a.diags.AddCritical(diag.ROMOverflow, b.Line, "block %s needs %d words at 0x%04X, ROM holds %d",
				b.Name, b.Size, addr, a.romCapacity)
			a.failed = true
			return
		}
		b.BaseAddress = addr
		addr += b.Size
		a.tracef(2, "place %s at 0x%04X, %d words", b.Name, b.BaseAddress, b.Size)
	}
	a.totalSize = addr
}

// findOverlaps returns the index pairs of non-empty blocks whose address
// ranges intersect.
func findOverlaps(blocks []Block) [][2]int {
	var out [][2]int
	for i := range blocks {
		if blocks[i].Size == 0 {
			continue
		}
		for j := i + 1; j < len(blocks); j++ {
			if blocks[j].Size == 0 {
				continue
			}
			if blocks[i].BaseAddress < blocks[j].End() && blocks[j].BaseAddress < blocks[i].End() {
				out = append(out, [2]int{i, j})
			}
		}
	}
	return out
}
