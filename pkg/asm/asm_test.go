package asm

import (
	"errors"
	"reflect"
	"testing"
	"testing/fstest"

	"asm16/pkg/diag"
	"asm16/pkg/isa"
)

func mustAssemble(t *testing.T, src string, opts ...Option) []uint16 {
	t.Helper()
	words, log, err := Assemble(src, opts...)
	if err != nil {
		t.Fatalf("Assemble failed: %v\n%s", err, log)
	}
	return words
}

func r(fn uint16, rd, rs, rt uint16) uint16 {
	return isa.Encode(isa.OpR, fn, rd, rs, rt)
}

func TestAssembleScenario(t *testing.T) {
	got := mustAssemble(t, "START:\n  LWI R0, 5\n  HLT\n", WithROMCapacity(3))
	want := []uint16{0x801F, 5, 0xC01F}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %04X, want %04X", got, want)
	}
}

func TestAssemble(t *testing.T) {
	tests := []struct {
		name string
		code string
		want []uint16
	}{
		{
			"three registers",
			`
			START:
			ADD R1, R2, R3
			SUB R0, R0, R7
			AND R4, R5, R6
			ORR R7, R6, R5
			`,
			[]uint16{
				r(isa.FuncADD, 1, 2, 3),
				r(isa.FuncSUB, 0, 0, 7),
				r(isa.FuncAND, 4, 5, 6),
				r(isa.FuncORR, 7, 6, 5),
			},
		},
		{
			"two operand roles",
			`
			START:
			MOV R1, R2
			NOT R3, R4
			JRL R6, R7
			SWD R1, R2
			JNE R3, R4
			JEZ R5, R6
			`,
			[]uint16{
				r(isa.FuncMOV, 1, 2, 0),
				r(isa.FuncNOT, 3, 4, 0),
				r(isa.FuncJRL, 6, 7, 0),
				r(isa.FuncSWD, 0, 2, 1),
				r(isa.FuncJNE, 0, 3, 4),
				r(isa.FuncJEZ, 0, 5, 6),
			},
		},
		{
			"one and zero operands",
			"START:\nJPR R5\nJIR R2\nNOP\nHLT",
			[]uint16{0x680E, r(isa.FuncJIR, 0, 2, 0), 0x001F, 0xC01F},
		},
		{
			"mnemonics and registers are case-insensitive",
			"START:\nmov r1, R2\nhlt",
			[]uint16{r(isa.FuncMOV, 1, 2, 0), 0xC01F},
		},
		{
			"entry block is placed first",
			`
			DATA:
			.data16 0x1234
			START:
			LWI R1, DATA
			HLT
			`,
			[]uint16{0x803F, 3, 0xC01F, 0x1234},
		},
		{
			"forward label reference",
			`
			START: LWI R0, LOOP
			JPR R0
			LOOP: SUB R1, R1, R2
			JNZ R1, R0
			`,
			[]uint16{0x801F, 3, r(isa.FuncJPR, 0, 0, 0), r(isa.FuncSUB, 1, 1, 2), r(isa.FuncJNZ, 0, 1, 0)},
		},
		{
			"immediate is not masked",
			"START:\nLWI R7, 0xFFFF\nLWI R0, 0b101",
			[]uint16{isa.Encode(isa.OpLWI, isa.FuncNone, 7, 0, 0), 0xFFFF, 0x801F, 5},
		},
		{
			"comments and blank lines",
			"// header\n\nSTART: // entry\n  HLT // stop\n\n",
			[]uint16{0xC01F},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := mustAssemble(t, tc.code)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("got %04X, want %04X", got, tc.want)
			}
		})
	}
}

func TestAssembleErrors(t *testing.T) {
	tests := []struct {
		name string
		code string
		kind diag.Kind
		line int
	}{
		{"duplicate label", "START:\nHLT\nSTART:\nNOP", diag.MultipleDefinitions, 3},
		{"no entry point", "MAIN:\nHLT", diag.NoEntryPoint, diag.NoLine},
		{"instruction outside label", "HLT\nSTART:\nHLT", diag.UnexpectedPlacement, 1},
		{"directive outside label", ".byte 1\nSTART:\nHLT", diag.UnexpectedPlacement, 1},
		{"unknown mnemonic", "START:\nFOO R1", diag.UnexpectedToken, 2},
		{"wrong operand count", "START:\nADD R1, R2", diag.UnexpectedArgsCount, 2},
		{"operands on HLT", "START:\nHLT R1", diag.UnexpectedArgsCount, 2},
		{"bad register", "START:\nMOV R1, R8", diag.UnexpectedRegister, 2},
		{"immediate where register expected", "START:\nMOV R1, 5", diag.UnexpectedRegister, 2},
		{"register where immediate expected", "START:\nLWI R1, R2", diag.UnexpectedArgument, 2},
		{"immediate out of range", "START:\nLWI R1, 70000", diag.UnexpectedImmValue, 2},
		{"negative immediate", "START:\nLWI R1, -1", diag.UnexpectedImmValue, 2},
		{"garbage immediate", "START:\nLWI R1, a-b", diag.UnexpectedArgument, 2},
		{"undefined label", "START:\nLWI R1, NOWHERE", diag.UnexpectedLabel, 2},
		{"invalid label", "START:\n1x: HLT", diag.UnexpectedLabel, 2},
		{"dangling comma", "START:\nMOV R1, R2,", diag.UnexpectedToken, 2},
		{"unknown directive", "START:\n.word 1", diag.UnexpectedDirective, 2},
		{"rom overflow", "START:\nLWI R0, 5\nHLT", diag.ROMOverflow, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			words, log, err := Assemble(tc.code, WithROMCapacity(2))
			if !errors.Is(err, ErrFailed) {
				t.Fatalf("err = %v, want ErrFailed", err)
			}
			if words != nil {
				t.Errorf("failed assembly returned %04X", words)
			}
			found := false
			for _, e := range log.Entries() {
				if e.Kind == tc.kind && e.Line == tc.line {
					found = true
				}
			}
			if !found {
				t.Errorf("no %v at line %d in:\n%s", tc.kind, tc.line, log)
			}
		})
	}
}

func TestCriticalErrors(t *testing.T) {
	for _, src := range []string{"MAIN:\nHLT", "START:\nLWI R0, 1"} {
		_, log, _ := Assemble(src, WithROMCapacity(1))
		if _, critical := log.Counts(); critical != 1 {
			t.Errorf("%q: want one critical error, got:\n%s", src, log)
		}
	}
}

func TestDuplicateLabelIsCritical(t *testing.T) {
	_, log, err := Assemble("START:\nHLT\nSTART:\nNOP")
	if !errors.Is(err, ErrFailed) {
		t.Fatalf("err = %v, want ErrFailed", err)
	}
	e := log.Entries()
	if len(e) != 1 || e[0].Kind != diag.MultipleDefinitions || !e[0].Critical || e[0].Line != 3 {
		t.Errorf("entries = %+v", e)
	}
}

func TestOverflowStillChecksOverlaps(t *testing.T) {
	// DATA does not fit and keeps base address 0, on top of START.
	_, log, err := Assemble("START:\nHLT\nDATA:\n.data16 1, 2", WithROMCapacity(2))
	if !errors.Is(err, ErrFailed) {
		t.Fatalf("err = %v, want ErrFailed", err)
	}
	if !log.Has(diag.ROMOverflow) || !log.Has(diag.BlocksOverlap) {
		t.Errorf("want ROM overflow and overlap, got:\n%s", log)
	}
}

func TestROMCapacityBoundary(t *testing.T) {
	src := "START:\nLWI R0, 5\nHLT"
	if _, _, err := Assemble(src, WithROMCapacity(3)); err != nil {
		t.Errorf("program filling the ROM exactly was rejected: %v", err)
	}
}

func TestErrorsAccumulate(t *testing.T) {
	src := "START:\nFOO\nMOV R1\nBAR R2\nHLT"
	_, log, err := Assemble(src)
	if err == nil {
		t.Fatal("expected failure")
	}
	if log.Len() != 3 {
		t.Errorf("want 3 errors, got:\n%s", log)
	}
}

func TestDuplicateLabelKeepsOneBlock(t *testing.T) {
	a := New(diag.New())
	if _, err := a.Assemble("START:\nHLT\nOTHER:\nNOP\nSTART:\nNOP"); err == nil {
		t.Fatal("expected failure")
	}
	if len(a.blocks) != 2 {
		t.Errorf("blocks = %+v, want START and OTHER only", a.blocks)
	}
}

func TestLayout(t *testing.T) {
	src := `
A:
	.data16 1, 2
START:
	LWI R0, B
	HLT
B:
	NOP
EMPTY:
C:
	.string "hi"
`
	a := New(diag.New())
	words, err := a.Assemble(src)
	if err != nil {
		t.Fatal(err)
	}

	layout := a.Layout()
	var names []string
	sum := 0
	for _, b := range layout {
		names = append(names, b.Name)
		sum += b.Size
	}
	if want := []string{"START", "A", "B", "EMPTY", "C"}; !reflect.DeepEqual(names, want) {
		t.Errorf("placement order = %v, want %v", names, want)
	}
	if len(words) != sum || a.Size() != sum {
		t.Errorf("buffer length %d, Size %d, sum of blocks %d", len(words), a.Size(), sum)
	}
	if layout[0].BaseAddress != 0 {
		t.Errorf("START at 0x%04X, want 0", layout[0].BaseAddress)
	}
	b, ok := a.Label("B")
	if !ok || b.BaseAddress != 5 || words[1] != 5 {
		t.Errorf("B = %+v, LWI immediate = %d", b, words[1])
	}
	for _, blk := range layout {
		if blk.Size == 0 {
			continue
		}
		if !reflect.DeepEqual(words[blk.BaseAddress:blk.End()], blk.Words) {
			t.Errorf("block %s not linked at its base address", blk.Name)
		}
	}
}

func TestFindOverlaps(t *testing.T) {
	blocks := []Block{
		{Name: "A", BaseAddress: 0, Size: 4},
		{Name: "B", BaseAddress: 2, Size: 4},
		{Name: "C", BaseAddress: 3, Size: 0},
		{Name: "D", BaseAddress: 8, Size: 2},
		{Name: "E", BaseAddress: 6, Size: 2},
	}
	got := findOverlaps(blocks)
	want := [][2]int{{0, 1}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("findOverlaps = %v, want %v", got, want)
	}
	if got := findOverlaps(blocks[:1]); got != nil {
		t.Errorf("single block overlaps: %v", got)
	}
}

func TestAssemblerIsReusable(t *testing.T) {
	log := diag.New()
	a := New(log)
	if _, err := a.Assemble("START:\nHLT"); err != nil {
		t.Fatal(err)
	}
	words, err := a.Assemble("START:\nNOP\nNOP")
	if err != nil {
		t.Fatalf("second run failed: %v\n%s", err, log)
	}
	if len(words) != 2 {
		t.Errorf("second run leaked state: %04X", words)
	}
}

func TestDirectives(t *testing.T) {
	fsys := fstest.MapFS{
		"blob.bin":  {Data: []byte{1, 2, 3}},
		"empty.bin": {Data: []byte{}},
	}
	tests := []struct {
		line string
		want []uint16
	}{
		{".byte 1, 2, 3", []uint16{0x0201, 0x0003}},
		{".byte -1, 255", []uint16{0xFFFF}},
		{".BYTE 0x10", []uint16{0x0010}},
		{".data16 -1, 0x1234", []uint16{0xFFFF, 0x1234}},
		{".data32 0x12345678, -1", []uint16{0x5678, 0x1234, 0xFFFF, 0xFFFF}},
		{`.string "AB"`, []uint16{0x4241, 0x0000}},
		{`.string "ABC"`, []uint16{0x4241, 0x0043}},
		{`.string "a\n"`, []uint16{0x0A61, 0x0000}},
		{`.string ""`, []uint16{0x0000}},
		{`.string "x, y"`, []uint16{0x2C78, 0x7920, 0x0000}},
		{`.incbin "blob.bin"`, []uint16{0x0201, 0x0003}},
	}
	for _, tc := range tests {
		t.Run(tc.line, func(t *testing.T) {
			got := mustAssemble(t, "START:\n"+tc.line, WithFS(fsys))
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("got %04X, want %04X", got, tc.want)
			}
		})
	}

	// An empty blob has no footprint, so START holds only the HLT.
	got := mustAssemble(t, "START:\n.incbin \"empty.bin\"\nHLT", WithFS(fsys))
	if !reflect.DeepEqual(got, []uint16{0xC01F}) {
		t.Errorf("empty incbin: got %04X", got)
	}
}

func TestDirectiveFootprint(t *testing.T) {
	src := "START:\n.string \"ABC\"\nLWI R0, AFTER\nAFTER:\nHLT"
	got := mustAssemble(t, src)
	want := []uint16{0x4241, 0x0043, 0x801F, 4, 0xC01F}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %04X, want %04X", got, want)
	}
}

func TestDirectiveErrors(t *testing.T) {
	fsys := fstest.MapFS{}
	tests := []struct {
		line string
		kind diag.Kind
	}{
		{".byte 256", diag.UnexpectedImmValue},
		{".byte -129", diag.UnexpectedImmValue},
		{".data16 65536", diag.UnexpectedImmValue},
		{".data32 0x100000000", diag.UnexpectedImmValue},
		{".byte", diag.UnexpectedArgsCount},
		{".string hello", diag.UnexpectedString},
		{`.string "a", "b"`, diag.UnexpectedArgsCount},
		{`.string "unterminated`, diag.UnexpectedString},
		{`.incbin "missing.bin"`, diag.FileCannotOpen},
	}
	for _, tc := range tests {
		t.Run(tc.line, func(t *testing.T) {
			_, log, err := Assemble("START:\n"+tc.line, WithFS(fsys))
			if err == nil {
				t.Fatal("expected failure")
			}
			if !log.Has(tc.kind) {
				t.Errorf("missing %v in:\n%s", tc.kind, log)
			}
		})
	}
}

func TestPackBytes(t *testing.T) {
	if got := packBytes(nil); len(got) != 0 {
		t.Errorf("packBytes(nil) = %v", got)
	}
	if got := packBytes([]byte{0xAA, 0xBB, 0xCC}); !reflect.DeepEqual(got, []uint16{0xBBAA, 0x00CC}) {
		t.Errorf("packBytes = %04X", got)
	}
}
