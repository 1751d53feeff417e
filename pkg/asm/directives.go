package asm

import (
	"errors"
	"io/fs"
	"math"
	"strconv"
	"strings"

	"asm16/pkg/diag"
	"asm16/pkg/source"
)

type dataDirective func(a *Assembler, args []string) ([]uint16, error)

var directives = map[string]dataDirective{
	".byte":   (*Assembler).dirByte,
	".data16": (*Assembler).dirData16,
	".data32": (*Assembler).dirData32,
	".string": (*Assembler).dirString,
	".incbin": (*Assembler).dirIncbin,
}

// directive evaluates a directive line into the words it emits. Both passes
// call it: the first pass only keeps the length.
func (a *Assembler) directive(text string) ([]uint16, error) {
	tokens, ok := source.TokenizeInstruction(text)
	if !ok {
		return nil, errorf(diag.UnexpectedToken, "malformed operand list %q", text)
	}
	name := strings.ToLower(tokens[0])
	fn, ok := directives[name]
	if !ok {
		return nil, errorf(diag.UnexpectedDirective, "unknown directive %s", tokens[0])
	}
	if len(tokens) < 2 {
		return nil, errorf(diag.UnexpectedArgsCount, "%s needs at least one operand", name)
	}
	return fn(a, tokens[1:])
}

func (a *Assembler) dirByte(args []string) ([]uint16, error) {
	data := make([]byte, 0, len(args))
	for _, arg := range args {
		v, ok := source.ParseValue(arg, math.MinInt8, math.MaxUint8)
		if !ok {
			return nil, errorf(diag.UnexpectedImmValue, ".byte value %q out of range", arg)
		}
		data = append(data, byte(v))
	}
	return packBytes(data), nil
}

func (a *Assembler) dirData16(args []string) ([]uint16, error) {
	words := make([]uint16, 0, len(args))
	for _, arg := range args {
		v, ok := source.ParseValue(arg, math.MinInt16, math.MaxUint16)
		if !ok {
			return nil, errorf(diag.UnexpectedImmValue, ".data16 value %q out of range", arg)
		}
		words = append(words, uint16(v))
	}
	return words, nil
}

func (a *Assembler) dirData32(args []string) ([]uint16, error) {
	words := make([]uint16, 0, 2*len(args))
	for _, arg := range args {
		v, ok := source.ParseValue(arg, math.MinInt32, math.MaxUint32)
		if !ok {
			return nil, errorf(diag.UnexpectedImmValue, ".data32 value %q out of range", arg)
		}
		u := uint32(v)
		words = append(words, uint16(u), uint16(u>>16))
	}
	return words, nil
}

func (a *Assembler) dirString(args []string) ([]uint16, error) {
	if len(args) != 1 {
		return nil, errorf(diag.UnexpectedArgsCount, ".string takes one string, got %d operands", len(args))
	}
	s, err := unquote(args[0])
	if err != nil {
		return nil, err
	}
	return packBytes(append([]byte(s), 0)), nil
}

func (a *Assembler) dirIncbin(args []string) ([]uint16, error) {
	if len(args) != 1 {
		return nil, errorf(diag.UnexpectedArgsCount, ".incbin takes one path, got %d operands", len(args))
	}
	name, err := unquote(args[0])
	if err != nil {
		return nil, err
	}
	if a.fsys == nil {
		return nil, errorf(diag.FileCannotOpen, "%s: no file system configured", name)
	}
	data, err := fs.ReadFile(a.fsys, name)
	if err != nil {
		kind := diag.FileCannotRead
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrInvalid) || errors.Is(err, fs.ErrPermission) {
			kind = diag.FileCannotOpen
		}
		return nil, errorf(kind, "%v", err)
	}
	return packBytes(data), nil
}

func unquote(arg string) (string, error) {
	if !strings.HasPrefix(arg, `"`) {
		return "", errorf(diag.UnexpectedString, "expected a quoted string, got %s", arg)
	}
	s, err := strconv.Unquote(arg)
	if err != nil {
		return "", errorf(diag.UnexpectedString, "invalid string %s", arg)
	}
	return s, nil
}

// packBytes packs bytes two per word, first byte in the low half. An odd
// trailing byte is padded with zero.
func packBytes(data []byte) []uint16 {
	words := make([]uint16, (len(data)+1)/2)
	for i, b := range data {
		if i%2 == 0 {
			words[i/2] |= uint16(b)
		} else {
			words[i/2] |= uint16(b) << 8
		}
	}
	return words
}
