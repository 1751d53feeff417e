package asm

import (
	"asm16/pkg/diag"
	"asm16/pkg/isa"
)

// secondPass encodes every statement into the block it belongs to. Labels
// only reselect the current block.
func (a *Assembler) secondPass(lines []string) bool {
	a.current = -1
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
			h, ok := a.labels[st.label]
			if !ok {
				a.diags.AddCritical(diag.InternalError, n, "label %s missing from the first pass", st.label)
				a.failed = true
				continue
			}
			a.current = h
		}
		if st.kind == stmtNone {
			continue
		}
		if a.current < 0 {
			a.diags.AddCritical(diag.InternalError, n, "statement outside of any block")
			a.failed = true
			continue
		}

		var words []uint16
		switch st.kind {
		case stmtInstruction:
			words, err = a.encodeInstruction(st)
		case stmtDirective:
			words, err = a.directive(st.text)
		default:
			err = errorf(diag.UnexpectedToken, "unrecognized line %q", st.text)
		}
		if err != nil {
			a.report(err, n)
			continue
		}
		b := &a.blocks[a.current]
		b.Words = append(b.Words, words...)
		a.tracef(3, "line %d: %s -> %04X", n, b.Name, words)
	}
	return !a.failed
}

func (a *Assembler) encodeInstruction(st statement) ([]uint16, error) {
	o, err := parseOperands(st.meta, st.text)
	if err != nil {
		return nil, err
	}
	if o.label != "" {
		h, ok := a.labels[o.label]
		if !ok {
			return nil, errorf(diag.UnexpectedLabel, "undefined label %s", o.label)
		}
		o.imm = uint16(a.blocks[h].BaseAddress)
	}

	switch o.count {
	case 0:
		return encode0(st.meta), nil
	case 1:
		return encode1(st.meta, o), nil
	case 2:
		return encode2(st.meta, o)
	case 3:
		return encode3(st.meta, o), nil
	}
	return nil, errorf(diag.UnexpectedArgsCount, "%s: %d operands", st.meta.Mnemonic, o.count)
}

func encode0(m isa.Meta) []uint16 {
	return []uint16{isa.Encode(m.Opcode, m.Func, 0, 0, 0)}
}

func encode1(m isa.Meta, o operands) []uint16 {
	return []uint16{isa.Encode(m.Opcode, m.Func, 0, o.regs[0], 0)}
}

func encode2(m isa.Meta, o operands) ([]uint16, error) {
	first, second := o.regs[0], o.regs[1]
	switch m.Role {
	case isa.RoleImmLoad:
		return []uint16{isa.Encode(m.Opcode, m.Func, first, 0, 0), o.imm}, nil
	case isa.RoleDestSrc:
		return []uint16{isa.Encode(m.Opcode, m.Func, first, second, 0)}, nil
	case isa.RoleStore:
		return []uint16{isa.Encode(m.Opcode, m.Func, 0, second, first)}, nil
	case isa.RoleCondJump:
		return []uint16{isa.Encode(m.Opcode, m.Func, 0, first, second)}, nil
	}
	return nil, errorf(diag.UnexpectedOpcode, "%s has no two-operand form", m.Mnemonic)
}

func encode3(m isa.Meta, o operands) []uint16 {
	return []uint16{isa.Encode(m.Opcode, m.Func, o.regs[0], o.regs[1], o.regs[2])}
}
