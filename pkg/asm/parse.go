package asm

import (
	"strings"

	"asm16/pkg/diag"
	"asm16/pkg/isa"
	"asm16/pkg/source"
)

type stmtKind int

const (
	stmtNone stmtKind = iota
	stmtInstruction
	stmtDirective
	stmtUnknown
)

// statement is one classified source line. A label may share its line with
// an instruction or directive.
type statement struct {
	label string
	kind  stmtKind
	text  string
	meta  isa.Meta
}

func classify(line string) (statement, error) {
	var st statement
	head, rest := source.Fields(line)
	if strings.HasSuffix(head, ":") {
		if !source.IsLabel(head, false) {
			return st, errorf(diag.UnexpectedLabel, "invalid label %q", head)
		}
		st.label = source.LabelName(head)
		line = rest
		head, _ = source.Fields(rest)
	}
	st.text = line

	switch {
	case line == "":
		st.kind = stmtNone
	case strings.HasPrefix(head, "."):
		st.kind = stmtDirective
	default:
		if meta, ok := isa.Lookup(head); ok {
			st.kind = stmtInstruction
			st.meta = meta
		} else {
			st.kind = stmtUnknown
		}
	}
	return st, nil
}

// operands is the decoded operand list of one instruction.
type operands struct {
	count int
	regs  [3]uint16
	imm   uint16
	label string // immediate still to be resolved to a block address
}

// parseOperands checks the operand count and kind of every operand of an
// instruction line. Label operands are returned by name.
func parseOperands(meta isa.Meta, text string) (operands, error) {
	var o operands
	tokens, ok := source.TokenizeInstruction(text)
	if !ok {
		return o, errorf(diag.UnexpectedToken, "malformed operand list %q", text)
	}
	ops := tokens[1:]
	if len(ops) != meta.Args {
		return o, errorf(diag.UnexpectedArgsCount, "%s expects %d operands, got %d", meta.Mnemonic, meta.Args, len(ops))
	}
	o.count = len(ops)

	for i, op := range ops {
		if meta.Role == isa.RoleImmLoad && i == 1 {
			if err := o.immediate(meta, op); err != nil {
				return o, err
			}
			continue
		}
		r, ok := isa.Register(op)
		if !ok {
			return o, errorf(diag.UnexpectedRegister, "%s operand %d: %q is not a register", meta.Mnemonic, i+1, op)
		}
		o.regs[i] = r
	}
	return o, nil
}

func (o *operands) immediate(meta isa.Meta, op string) error {
	if _, ok := isa.Register(op); ok {
		return errorf(diag.UnexpectedArgument, "%s expects an immediate or label, got register %s", meta.Mnemonic, op)
	}
	if looksNumeric(op) {
		v, ok := source.ParseValue(op, 0, 0xFFFF)
		if !ok {
			return errorf(diag.UnexpectedImmValue, "%q is not a value in [0, 0xFFFF]", op)
		}
		o.imm = uint16(v)
		return nil
	}
	if !source.IsLabel(op, true) {
		return errorf(diag.UnexpectedArgument, "%q is neither a value nor a label", op)
	}
	o.label = op
	return nil
}

func looksNumeric(s string) bool {
	if s == "" {
		return false
	}
	c := s[0]
	return c == '-' || c == '+' || (c >= '0' && c <= '9')
}
