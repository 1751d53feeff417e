// Package build runs the whole pipeline for a source file: read, preprocess,
// assemble. Every build owns one diagnostics log shared by both stages.
package build

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"

	"asm16/pkg/asm"
	"asm16/pkg/diag"
	"asm16/pkg/preproc"
	"asm16/pkg/utils"
)

// Define is a name predefined for the preprocessor.
type Define struct {
	Name  string
	Value string
}

// ParseDefine splits a NAME or NAME=VALUE command line definition.
func ParseDefine(s string) Define {
	name, value, _ := strings.Cut(s, "=")
	return Define{Name: strings.TrimSpace(name), Value: strings.TrimSpace(value)}
}

type Config struct {
	ROMCapacity     int
	IncludeDir      string // searched after the source file's directory
	Defines         []Define
	MaxIncludeDepth int
	Verbose         bool
	PreprocessOnly  bool
}

// Result is everything one build produced. Diags is always set.
type Result struct {
	Path         string
	Preprocessed string
	Words        []uint16
	Blocks       []asm.Block
	Diags        *diag.Log
}

// File builds the source file at path. The returned Result is never nil;
// on failure its diagnostics explain why.
func File(path string, cfg Config) (*Result, error) {
	res := &Result{Path: path, Diags: diag.New()}
	logf(cfg, 1, "build %s", path)

	full, dir, err := utils.GetPathInfo(path)
	if err != nil {
		res.Diags.AddCritical(diag.FileCannotOpen, diag.NoLine, "%s: %v", path, err)
		return res, fmt.Errorf("%s: %w", path, err)
	}
	if _, err := os.Stat(full); err != nil {
		res.Diags.AddCritical(diag.FileCannotOpen, diag.NoLine, "%v", err)
		return res, fmt.Errorf("%s: %w", path, err)
	}

	// Includes resolve next to the including file, then in the source's
	// directory, then in IncludeDir.
	opts := []preproc.Option{
		preproc.WithFS(os.DirFS(dir)),
		preproc.WithVerbose(cfg.Verbose),
	}
	if cfg.IncludeDir != "" {
		opts = append(opts, preproc.WithIncludeDirs(os.DirFS(cfg.IncludeDir)))
	}
	if cfg.MaxIncludeDepth > 0 {
		opts = append(opts, preproc.WithMaxIncludeDepth(cfg.MaxIncludeDepth))
	}
	for _, d := range cfg.Defines {
		opts = append(opts, preproc.WithDefine(d.Name, d.Value))
	}
	pp := preproc.New(res.Diags, opts...)

	text, err := pp.PreprocessFile(filepath.Base(full))
	if err != nil {
		return res, fmt.Errorf("%s: %w", path, err)
	}
	res.Preprocessed = text
	if cfg.PreprocessOnly {
		return res, nil
	}

	capacity := cfg.ROMCapacity
	if capacity <= 0 {
		capacity = asm.DefaultROMCapacity
	}
	a := asm.New(res.Diags,
		asm.WithROMCapacity(capacity),
		asm.WithVerbose(cfg.Verbose),
		asm.WithFS(os.DirFS(dir)),
	)
	words, err := a.Assemble(text)
	if err != nil {
		return res, fmt.Errorf("%s: %w", path, err)
	}
	res.Words = words
	res.Blocks = a.Layout()
	logf(cfg, 1, "built %s: %d words", path, len(words))
	return res, nil
}

// Files builds every path with at most jobs builds running at once (no
// limit when jobs <= 0). Results come back in input order. Every file is
// attempted; the returned error joins the failures.
func Files(ctx context.Context, paths []string, cfg Config, jobs int) ([]*Result, error) {
	results := make([]*Result, len(paths))
	errs := make([]error, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	if jobs > 0 {
		g.SetLimit(jobs)
	}
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i], errs[i] = File(path, cfg)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, errors.Join(errs...)
}

func logf(cfg Config, level glog.Level, format string, args ...any) {
	if cfg.Verbose || bool(glog.V(level)) {
		glog.InfoDepth(1, fmt.Sprintf(format, args...))
	}
}
