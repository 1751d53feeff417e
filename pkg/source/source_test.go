package source

import (
	"reflect"
	"testing"
)

func TestStripComment(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"LWI R0, 1", "LWI R0, 1"},
		{"LWI R0, 1 // comment", "LWI R0, 1 "},
		{"// comment", ""},
		{"ADD R0, R1, R2 // a // b", "ADD R0, R1, R2 "},
		{`.string "http://x" // c`, `.string "http://x" `},
		{`.string "a\"//b"`, `.string "a\"//b"`},
		{"LWI R0, 1 ; not a comment", "LWI R0, 1 ; not a comment"},
	}
	for _, tc := range tests {
		if got := StripComment(tc.input); got != tc.want {
			t.Errorf("StripComment(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestSplitLines(t *testing.T) {
	text := "START:   // entry\r\n  LWI R0, 5\n\n  HLT\n"
	got := SplitLines(text, true)
	want := []string{"START:", "LWI R0, 5", "", "HLT"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SplitLines(trim) = %q, want %q", got, want)
	}

	got = SplitLines("  a // x\n b", false)
	want = []string{"  a ", " b"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SplitLines(no trim) = %q, want %q", got, want)
	}

	if got := SplitLines("", true); len(got) != 0 {
		t.Errorf("SplitLines(\"\") = %q, want none", got)
	}
}

func TestTokenizeInstruction(t *testing.T) {
	tests := []struct {
		line string
		want []string
		ok   bool
	}{
		{"HLT", []string{"HLT"}, true},
		{"LWI R0, 5", []string{"LWI", "R0", "5"}, true},
		{"ADD   R0 ,R1,  R2", []string{"ADD", "R0", "R1", "R2"}, true},
		{"MOV R0, R1,", nil, false},
		{"MOV R0,, R1", nil, false},
		{"", nil, false},
		{`.string "a, b"`, []string{".string", `"a, b"`}, true},
	}
	for _, tc := range tests {
		got, ok := TokenizeInstruction(tc.line)
		if ok != tc.ok || !reflect.DeepEqual(got, tc.want) {
			t.Errorf("TokenizeInstruction(%q) = %q, %v; want %q, %v", tc.line, got, ok, tc.want, tc.ok)
		}
	}
}

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"", nil},
		{"   ", nil},
		{"a", []string{"a"}},
		{"a, b ,c", []string{"a", "b", "c"}},
		{`R1, "x,y"`, []string{"R1", `"x,y"`}},
		{"a,", []string{"a", ""}},
	}
	for _, tc := range tests {
		if got := SplitArgs(tc.input); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("SplitArgs(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestIsLabel(t *testing.T) {
	tests := []struct {
		token     string
		asOperand bool
		want      bool
	}{
		{"START:", false, true},
		{"_loop1:", false, true},
		{"loop", false, false},
		{"loop", true, true},
		{".byte:", false, false},
		{"1abc:", false, false},
		{"a-b:", false, false},
		{":", false, false},
		{"", true, false},
		{"R0:", false, true},
	}
	for _, tc := range tests {
		if got := IsLabel(tc.token, tc.asOperand); got != tc.want {
			t.Errorf("IsLabel(%q, %v) = %v, want %v", tc.token, tc.asOperand, got, tc.want)
		}
	}
}

func TestIsIdentifier(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"abc", true},
		{"_abc", true},
		{"abc1", true},
		{"1abc", false},
		{"", false},
		{"ab-c", false},
		{"résumé", false},
	}
	for _, tc := range tests {
		if got := IsIdentifier(tc.input); got != tc.want {
			t.Errorf("IsIdentifier(%q) = %v; want %v", tc.input, got, tc.want)
		}
	}
}

func TestIsEntryPoint(t *testing.T) {
	if !IsEntryPoint("START") || IsEntryPoint("start") || IsEntryPoint("START:") {
		t.Error("IsEntryPoint mismatch")
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		token    string
		min, max int64
		want     int64
		ok       bool
	}{
		{"5", 0, 0xFFFF, 5, true},
		{"0x10", 0, 0xFFFF, 16, true},
		{"0b101", 0, 0xFFFF, 5, true},
		{"65535", 0, 0xFFFF, 65535, true},
		{"65536", 0, 0xFFFF, 0, false},
		{"-1", 0, 0xFFFF, 0, false},
		{"-1", -128, 255, -1, true},
		{"abc", 0, 0xFFFF, 0, false},
		{"", 0, 0xFFFF, 0, false},
		{"5x", 0, 0xFFFF, 0, false},
	}
	for _, tc := range tests {
		got, ok := ParseValue(tc.token, tc.min, tc.max)
		if got != tc.want || ok != tc.ok {
			t.Errorf("ParseValue(%q) = %d, %v; want %d, %v", tc.token, got, ok, tc.want, tc.ok)
		}
	}
}
