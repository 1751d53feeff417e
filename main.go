package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/golang/glog"
	"github.com/k0kubun/pp/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"asm16/pkg/asm"
	"asm16/pkg/build"
	"asm16/pkg/diag"
	"asm16/pkg/output"
	"asm16/pkg/utils"
)

// errReported means the failure was already printed as diagnostics.
var errReported = errors.New("build failed")

type options struct {
	outPath        string
	romCapacity    int
	verbose        bool
	includeDir     string
	defines        []string
	format         string
	preprocessOnly bool
	dumpLayout     bool
	jobs           int

	stdout io.Writer
	stderr io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	o := &options{stdout: stdout, stderr: stderr}
	cmd := &cobra.Command{
		Use:   "asm16 [flags] source...",
		Short: "Assembler for the 16-bit register machine",
		Long: `asm16 preprocesses and assembles source files for the 16-bit register
machine and writes the resulting ROM image.

Every source needs a START label; its block is placed at address 0.
Preprocessor directives (#include, #define, #ifdef, #macro, ...) are
expanded before assembly. Several sources can be built in parallel with
-j; each gets its own output file.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          o.run,
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	f := cmd.Flags()
	f.StringVarP(&o.outPath, "output", "o", "", "output file (single source only; default: source name with the format's extension)")
	f.IntVar(&o.romCapacity, "rom", asm.DefaultROMCapacity, "ROM capacity in 16-bit words")
	f.BoolVarP(&o.verbose, "verbose", "V", false, "trace preprocessing and assembly to stderr")
	f.StringVarP(&o.includeDir, "include-dir", "I", "", "directory searched by #include after the source's directory")
	f.StringArrayVarP(&o.defines, "define", "D", nil, "predefine NAME or NAME=VALUE (repeatable)")
	f.StringVarP(&o.format, "format", "f", "bin", "output format: bin, verilog, hex or coe")
	f.BoolVarP(&o.preprocessOnly, "preprocess-only", "E", false, "stop after preprocessing and print the expanded source")
	f.BoolVar(&o.dumpLayout, "dump-layout", false, "print the block layout after assembly")
	f.IntVarP(&o.jobs, "jobs", "j", 1, "number of sources built in parallel (0 = unlimited)")

	cmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)
	return cmd
}

func (o *options) run(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(o.format)
	if err != nil {
		return err
	}
	if o.outPath != "" && len(args) > 1 {
		return fmt.Errorf("-o names one output but %d sources were given", len(args))
	}
	if o.verbose {
		_ = flag.Set("logtostderr", "true")
	}

	cfg := build.Config{
		ROMCapacity:    o.romCapacity,
		IncludeDir:     o.includeDir,
		Verbose:        o.verbose,
		PreprocessOnly: o.preprocessOnly,
	}
	for _, d := range o.defines {
		cfg.Defines = append(cfg.Defines, build.ParseDefine(d))
	}

	results, err := build.Files(cmd.Context(), args, cfg, o.jobs)
	failed := false
	for _, res := range results {
		if res == nil {
			continue
		}
		if res.Diags.HasErrors() {
			o.report(res)
			failed = true
			continue
		}
		if err := o.emit(res, format); err != nil {
			glog.Errorf("%s: %v", res.Path, err)
			res.Diags.AddCritical(diag.FileCannotWrite, diag.NoLine, "%v", err)
			o.report(res)
			failed = true
		}
	}
	if failed {
		return errReported
	}
	return err
}

func (o *options) emit(res *build.Result, format output.Format) error {
	if o.preprocessOnly {
		if o.outPath == "" {
			_, err := io.WriteString(o.stdout, res.Preprocessed)
			return err
		}
		return os.WriteFile(o.outPath, []byte(res.Preprocessed), 0o644)
	}

	if o.dumpLayout {
		o.printLayout(res)
	}
	path := o.outPath
	if path == "" {
		path = utils.ReplaceExt(res.Path, format.Ext())
	}
	if err := output.WriteFile(path, res.Words, format); err != nil {
		return err
	}
	fmt.Fprintf(o.stdout, "assembled %d words -> %s\n", len(res.Words), path)
	return nil
}

type blockInfo struct {
	Name string
	Line int
	Base string
	Size int
}

func (o *options) printLayout(res *build.Result) {
	infos := make([]blockInfo, 0, len(res.Blocks))
	for _, b := range res.Blocks {
		infos = append(infos, blockInfo{
			Name: b.Name,
			Line: b.Line,
			Base: fmt.Sprintf("0x%04X", b.BaseAddress),
			Size: b.Size,
		})
	}
	printer := pp.New()
	printer.SetOutput(o.stdout)
	printer.SetColoringEnabled(isTerminal(o.stdout))
	fmt.Fprintf(o.stdout, "%s:\n", res.Path)
	printer.Println(infos)
}

func (o *options) report(res *build.Result) {
	fmt.Fprintf(o.stderr, "%s:\n", res.Path)
	var style diag.Style
	if isTerminal(o.stderr) {
		style.Critical = func(s string) string { return "\x1b[1;31m" + s + "\x1b[0m" }
		style.Summary = func(s string) string { return "\x1b[1m" + s + "\x1b[0m" }
	}
	if err := res.Diags.RenderStyled(o.stderr, style); err != nil {
		glog.Errorf("rendering diagnostics: %v", err)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func main() {
	// glog reads its flags from the standard flag set; cobra parses them.
	_ = flag.CommandLine.Parse(nil)

	cmd := newRootCmd(os.Stdout, os.Stderr)
	err := cmd.ExecuteContext(context.Background())
	if err != nil && !errors.Is(err, errReported) {
		fmt.Fprintf(os.Stderr, "asm16: %v\n", err)
	}
	glog.Flush()
	if err != nil {
		os.Exit(1)
	}
}
