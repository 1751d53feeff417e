package isa

import "fmt"

var byEncoding = func() map[[2]uint16]Meta {
	m := make(map[[2]uint16]Meta, len(instructions))
	for _, meta := range instructions {
		m[[2]uint16{meta.Opcode, meta.Func}] = meta
	}
	return m
}()

// Identify finds the instruction a word encodes.
func Identify(word uint16) (Meta, bool) {
	f := Decode(word)
	meta, ok := byEncoding[[2]uint16{f.Opcode, f.Func}]
	return meta, ok
}

// Format renders one decoded instruction. For LWI the caller supplies the
// immediate word.
func Format(meta Meta, f Fields, imm uint16) string {
	reg := func(r uint16) string { return fmt.Sprintf("R%d", r) }
	switch meta.Role {
	case RoleNone:
		return meta.Mnemonic
	case RoleJump:
		return fmt.Sprintf("%s %s", meta.Mnemonic, reg(f.RS))
	case RoleImmLoad:
		return fmt.Sprintf("%s %s, 0x%04X", meta.Mnemonic, reg(f.RD), imm)
	case RoleDestSrc:
		return fmt.Sprintf("%s %s, %s", meta.Mnemonic, reg(f.RD), reg(f.RS))
	case RoleStore:
		return fmt.Sprintf("%s %s, %s", meta.Mnemonic, reg(f.RT), reg(f.RS))
	case RoleCondJump:
		return fmt.Sprintf("%s %s, %s", meta.Mnemonic, reg(f.RS), reg(f.RT))
	case RoleThreeReg:
		return fmt.Sprintf("%s %s, %s, %s", meta.Mnemonic, reg(f.RD), reg(f.RS), reg(f.RT))
	}
	return fmt.Sprintf(".data16 0x%04X", imm)
}

// Line is one disassembled statement.
type Line struct {
	Addr  int
	Words []uint16
	Text  string
}

// Disassemble walks a word stream. Words that do not decode to a known
// instruction are shown as .data16; data embedded in code is therefore
// rendered best-effort.
func Disassemble(words []uint16) []Line {
	var out []Line
	for i := 0; i < len(words); {
		w := words[i]
		meta, ok := Identify(w)
		if !ok {
			out = append(out, Line{Addr: i, Words: words[i : i+1], Text: fmt.Sprintf(".data16 0x%04X", w)})
			i++
			continue
		}
		if meta.Role == RoleImmLoad {
			if i+1 >= len(words) {
				out = append(out, Line{Addr: i, Words: words[i : i+1], Text: fmt.Sprintf(".data16 0x%04X", w)})
				break
			}
			out = append(out, Line{Addr: i, Words: words[i : i+2], Text: Format(meta, Decode(w), words[i+1])})
			i += 2
			continue
		}
		out = append(out, Line{Addr: i, Words: words[i : i+1], Text: Format(meta, Decode(w), 0)})
		i++
	}
	return out
}
