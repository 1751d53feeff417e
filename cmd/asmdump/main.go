// Command asmdump prints every stage of a build: the preprocessed source,
// the block layout and a disassembly of the linked image.
package main

import (
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/golang/glog"
	"github.com/k0kubun/pp/v3"

	"asm16/pkg/asm"
	"asm16/pkg/diag"
	"asm16/pkg/isa"
	"asm16/pkg/preproc"
)

const testSource = `#define COUNT 3
START:
  LWI R0, COUNT
  LWI R1, 1
  LWI R2, LOOP
LOOP:
  SUB R0, R0, R1
  JNZ R0, R2
  HLT
`

func main() {
	flag.Parse()

	src := testSource
	baseDir := "."
	if flag.NArg() > 0 {
		data, err := os.ReadFile(flag.Arg(0))
		if err != nil {
			fmt.Fprintln(os.Stderr, "read error:", err)
			os.Exit(1)
		}
		src = string(data)
		baseDir = filepath.Dir(flag.Arg(0))
	}

	err := dump(os.Stdout, src, os.DirFS(baseDir))
	glog.Flush()
	if err != nil {
		os.Exit(1)
	}
}

func dump(w io.Writer, src string, fsys fs.FS) error {
	log := diag.New()
	defer func() {
		if log.HasErrors() {
			log.Render(os.Stderr)
		}
	}()

	// Preprocess
	text, err := preproc.New(log, preproc.WithFS(fsys)).Preprocess(src)
	if err != nil {
		fmt.Fprintln(os.Stderr, "preprocess error:", err)
		return err
	}
	fmt.Fprintf(w, "Preprocessed\n%s\n", text)

	// Assemble
	a := asm.New(log, asm.WithFS(fsys))
	words, err := a.Assemble(text)
	if err != nil {
		fmt.Fprintln(os.Stderr, "assembly error:", err)
		return err
	}

	fmt.Fprintf(w, "Layout (%d words)\n", a.Size())
	printer := pp.New()
	printer.SetOutput(w)
	printer.SetColoringEnabled(false)
	for _, b := range a.Layout() {
		printer.Println(b)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Disassembly")
	for _, line := range isa.Disassemble(words) {
		fmt.Fprintf(w, "  %04X: %-12s %s\n", line.Addr, hexWords(line.Words), line.Text)
	}
	return nil
}

func hexWords(words []uint16) string {
	s := ""
	for i, w := range words {
		if i > 0 {
			s += " "
		}
		s += fmt.Sprintf("%04X", w)
	}
	return s
}
