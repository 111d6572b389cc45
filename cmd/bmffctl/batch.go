package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"example.com/bmffgate/internal/report"
)

var defaultExtensions = []string{".mp4", ".m4v", ".m4a", ".m4s", ".mov", ".3gp", ".cmfv", ".cmfa"}

type batchResult struct {
	path string
	rep  *report.Report
	err  error
}

// collectInputs expands directories into the files below them whose
// extension is listed. Explicit file arguments are always kept.
func collectInputs(args []string, exts []string) ([]string, error) {
	allowed := make(map[string]bool, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" && !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		allowed[e] = true
	}
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && allowed[strings.ToLower(filepath.Ext(path))] {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(files)
	return files, nil
}

// runBatch validates files with a pool of workers. Each file gets its own
// engine; results keep input order.
func runBatch(ctx context.Context, v *validation, files []string, workers int) []batchResult {
	if workers <= 0 {
		workers = 1
	}
	results := make([]batchResult, len(files))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				rep, _, err := v.run(ctx, files[i])
				results[i] = batchResult{path: files[i], rep: rep, err: err}
			}
		}()
	}
feed:
	for i := range files {
		select {
		case jobs <- i:
		case <-ctx.Done():
			for j := i; j < len(files); j++ {
				results[j] = batchResult{path: files[j], err: ctx.Err()}
			}
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	return results
}

func newBatchCommand(ctx *commandContext) *cobra.Command {
	var (
		presetID    string
		concurrency int
		outDir      string
		exts        []string
	)
	cmd := &cobra.Command{
		Use:   "batch <dir|file>...",
		Short: "Validate many files in parallel and print a summary",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.config()
			if err != nil {
				return err
			}
			if concurrency <= 0 {
				concurrency = cfg.Concurrency
			}
			files, err := collectInputs(args, exts)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return fmt.Errorf("no input files found")
			}
			v, err := ctx.newValidation(presetID)
			if err != nil {
				return err
			}
			if outDir != "" {
				if err := os.MkdirAll(outDir, 0o755); err != nil {
					return err
				}
			}
			v.logger.Info("batch started", zap.Int("files", len(files)), zap.Int("workers", concurrency))
			results := runBatch(cmd.Context(), v, files, concurrency)

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			rows := make([][]string, 0, len(results))
			var failed, broken int
			for i, r := range results {
				if r.err != nil {
					broken++
					rows = append(rows, []string{r.path, "-", "-", "-", "-", "error: " + r.err.Error()})
					continue
				}
				s := r.rep.Summary
				if !s.Pass {
					failed++
				}
				rows = append(rows, []string{
					r.path,
					strconv.Itoa(r.rep.Boxes),
					strconv.Itoa(s.Errors),
					strconv.Itoa(s.Warnings),
					strconv.Itoa(s.Info),
					passLabel(s.Pass, colorize),
				})
				if outDir != "" {
					name := fmt.Sprintf("%03d-%s.report.json", i+1, filepath.Base(r.path))
					if err := report.SaveJSON(r.rep, filepath.Join(outDir, name)); err != nil {
						return fmt.Errorf("write report for %s: %w", r.path, err)
					}
				}
			}
			aligns := []columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft}
			fmt.Fprintln(out, renderTable([]string{"File", "Boxes", "Errors", "Warnings", "Info", "Result"}, rows, aligns))
			fmt.Fprintf(out, "%d files, %d failed, %d unreadable\n", len(results), failed, broken)
			switch {
			case broken > 0:
				return fmt.Errorf("%d files could not be validated", broken)
			case failed > 0:
				return errGateFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&presetID, "preset", "", "validation preset (default from config)")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "j", 0, "parallel workers (default from config)")
	cmd.Flags().StringVar(&outDir, "out-dir", "", "write one JSON report per file into this directory")
	cmd.Flags().StringSliceVar(&exts, "ext", defaultExtensions, "file extensions picked up from directories")
	return cmd
}
