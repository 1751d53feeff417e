// Package output renders an assembled word buffer in the formats ROM
// loaders and HDL simulators read.
package output

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"

	"asm16/pkg/isa"
)

type Format int

const (
	Binary  Format = iota // little-endian 16-bit words
	Verilog               // one binary word per line, for $readmemb
	Hex                   // one hex word per line, for $readmemh
	COE                   // Xilinx coefficient file
)

var formats = []struct {
	name string
	ext  string
}{
	Binary:  {"bin", ".bin"},
	Verilog: {"verilog", ".mem"},
	Hex:     {"hex", ".hex"},
	COE:     {"coe", ".coe"},
}

func (f Format) String() string {
	if int(f) < len(formats) {
		return formats[f].name
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// Ext returns the file extension conventionally used for f.
func (f Format) Ext() string {
	if int(f) < len(formats) {
		return formats[f].ext
	}
	return ".out"
}

// ParseFormat maps a format name to a Format.
func ParseFormat(s string) (Format, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "v" {
		return Verilog, nil
	}
	for i, f := range formats {
		if f.name == s {
			return Format(i), nil
		}
	}
	return 0, fmt.Errorf("unknown output format %q (want bin, verilog, hex or coe)", s)
}

// Write renders words to w.
func Write(w io.Writer, words []uint16, f Format) error {
	if f == Binary {
		return binary.Write(w, binary.LittleEndian, words)
	}

	bw := bufio.NewWriter(w)
	switch f {
	case Verilog:
		for _, word := range words {
			bw.WriteString(isa.WordString(word))
			bw.WriteByte('\n')
		}
	case Hex:
		for _, word := range words {
			fmt.Fprintf(bw, "%04X\n", word)
		}
	case COE:
		bw.WriteString("memory_initialization_radix=2;\n")
		bw.WriteString("memory_initialization_vector=\n")
		for i, word := range words {
			bw.WriteString(isa.WordString(word))
			if i < len(words)-1 {
				bw.WriteString(",\n")
			}
		}
		bw.WriteString(";\n")
	default:
		return fmt.Errorf("unsupported output format %v", f)
	}
	return bw.Flush()
}

// WriteFile renders words into the file at path, replacing it.
func WriteFile(path string, words []uint16, f Format) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(file, words, f); err != nil {
		file.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return file.Close()
}
