package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"example.com/bmffgate/internal/bmff"
	"example.com/bmffgate/internal/common"
	"example.com/bmffgate/internal/config"
	"example.com/bmffgate/internal/report"
	"example.com/bmffgate/internal/rules"
	"example.com/bmffgate/internal/tree"
)

// validation bundles what a single-file run needs beyond the path.
type validation struct {
	preset   config.Preset
	logger   *zap.Logger
	research *common.ResearchLog
	metrics  *common.Metrics
	observer rules.Observer
	maxDepth int
}

func (c *commandContext) newValidation(presetID string) (*validation, error) {
	cfg, err := c.config()
	if err != nil {
		return nil, err
	}
	if presetID == "" {
		presetID = cfg.Preset
	}
	preset, err := config.FindPreset(cfg.PresetsFile, presetID)
	if err != nil {
		return nil, err
	}
	logger, err := c.log()
	if err != nil {
		return nil, err
	}
	research, err := c.research()
	if err != nil {
		return nil, err
	}
	return &validation{preset: preset, logger: logger, research: research, maxDepth: cfg.MaxDepth}, nil
}

// run validates path and builds its report with the preset applied.
func (v *validation) run(ctx context.Context, path string) (*report.Report, *rules.Result, error) {
	opts := rules.RunOptions{
		FilePath: path,
		Logger:   v.logger,
		Metrics:  v.metrics,
		Observer: v.observer,
		MaxDepth: v.maxDepth,
	}
	if v.research != nil {
		opts.Recorder = rules.ResearchLogRecorder(v.research)
	}
	res, err := rules.ValidateFile(ctx, path, opts)
	if err != nil {
		return nil, nil, err
	}
	digest, size, err := common.Sha256OfFile(path)
	if err != nil {
		return nil, nil, err
	}
	rep := report.New(res, report.Options{
		File:    path,
		SHA256:  digest,
		Size:    size,
		Preset:  v.preset.ID,
		Enabled: v.preset.Enabled,
	})
	return rep, res, nil
}

func newValidateCommand(ctx *commandContext) *cobra.Command {
	var (
		presetID string
		format   string
		outJSON  string
		outPDF   string
		lang     string
		showTree bool
		metrics  bool
		progress bool
	)
	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate one file and print its findings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch format {
			case "table", "json", "ndjson":
			default:
				return fmt.Errorf("unknown format %q (want table, json or ndjson)", format)
			}
			cfg, err := ctx.config()
			if err != nil {
				return err
			}
			if lang == "" {
				lang = cfg.Lang
			}
			language, err := report.ParseLanguage(lang)
			if err != nil {
				return err
			}
			v, err := ctx.newValidation(presetID)
			if err != nil {
				return err
			}
			if metrics || progress {
				v.metrics = common.NewMetrics()
			}
			var builder *tree.Builder
			if showTree {
				builder = tree.NewBuilder()
				v.observer = rules.ObserverFunc(func(ev bmff.Event, issues []rules.Issue) {
					kept := issues[:0:0]
					for _, is := range issues {
						if v.preset.Enabled(is.RuleID) {
							kept = append(kept, is)
						}
					}
					builder.Observe(ev, kept)
				})
			}
			stopProgress := func() {}
			if progress && shouldColorize(os.Stderr) {
				stopProgress = common.StartProgressPrinter(os.Stderr, v.metrics, 250*time.Millisecond)
			}
			rep, res, err := v.run(cmd.Context(), args[0])
			stopProgress()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch format {
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				err = enc.Encode(rep)
			case "ndjson":
				err = report.WriteNDJSON(out, rep)
			default:
				printFindings(out, rep, shouldColorize(out))
			}
			if err != nil {
				return err
			}
			if builder != nil {
				builder.Finalize(res.Filter(v.preset.Enabled))
				printTree(out, builder.Root())
			}
			if outJSON != "" {
				if err := report.SaveJSON(rep, outJSON); err != nil {
					return fmt.Errorf("write report: %w", err)
				}
			}
			if outPDF != "" {
				if err := report.SavePDF(rep, outPDF, report.PDFOptions{Lang: language, QRSize: cfg.Report.QRSize}); err != nil {
					return fmt.Errorf("write pdf: %w", err)
				}
			}
			if metrics {
				printMetrics(cmd.ErrOrStderr(), v.metrics.Snapshot())
			}
			if !rep.Summary.Pass {
				return errGateFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&presetID, "preset", "", "validation preset (default from config)")
	cmd.Flags().StringVarP(&format, "format", "f", "table", "output format: table, json or ndjson")
	cmd.Flags().StringVarP(&outJSON, "out", "o", "", "write the JSON report to this path")
	cmd.Flags().StringVar(&outPDF, "pdf", "", "write a PDF report to this path")
	cmd.Flags().StringVar(&lang, "lang", "", "report language (en, tr)")
	cmd.Flags().BoolVar(&showTree, "tree", false, "print the box tree with issue counts")
	cmd.Flags().BoolVar(&metrics, "metrics", false, "print throughput metrics")
	cmd.Flags().BoolVar(&progress, "progress", false, "show progress while scanning")
	return cmd
}

func printFindings(w io.Writer, rep *report.Report, colorize bool) {
	if len(rep.Issues) > 0 {
		rows := make([][]string, 0, len(rep.Issues))
		for _, f := range rep.Issues {
			where := f.Box
			if f.Depth < 0 {
				where = "(end)"
			} else if where == "" {
				where = "@" + strconv.FormatInt(f.Start, 10)
			}
			rows = append(rows, []string{severityLabel(f.Severity, colorize), f.RuleID, where, f.Message})
		}
		fmt.Fprintln(w, renderTable([]string{"Severity", "Rule", "Box", "Message"}, rows, nil))
	}
	s := rep.Summary
	fmt.Fprintf(w, "%s  %s: %d boxes, %d errors, %d warnings, %d info (preset %s)\n",
		passLabel(s.Pass, colorize), rep.File, rep.Boxes, s.Errors, s.Warnings, s.Info, rep.Preset)
}

func printTree(w io.Writer, root *tree.Node) {
	root.Walk(func(n *tree.Node) {
		if n == root {
			if len(n.Issues) > 0 {
				fmt.Fprintf(w, "(file) [%d issues]\n", len(n.Issues))
			}
			return
		}
		line := strings.Repeat("  ", n.Depth) + n.Box
		if n.Name != "" {
			line += " (" + n.Name + ")"
		}
		if len(n.Issues) > 0 {
			line += fmt.Sprintf(" [%d issues]", len(n.Issues))
		}
		fmt.Fprintln(w, line)
	})
}

func printMetrics(w io.Writer, snap common.MetricsSnapshot) {
	mbPerSec := snap.ThroughputBytesPerSecond() / 1_000_000
	fmt.Fprintf(w, "Metrics: duration=%s boxes=%d maxDepth=%d problems=%d issues=%d processed=%s throughput=%.2f MB/s\n",
		snap.Duration.Round(time.Millisecond),
		snap.Boxes,
		snap.MaxDepth,
		snap.Problems,
		snap.Issues,
		common.FormatBytes(snap.Bytes),
		mbPerSec,
	)
	top := snap.TopBoxTypes(5)
	if len(top) == 0 {
		return
	}
	parts := make([]string, 0, len(top))
	for _, c := range top {
		parts = append(parts, c.Type+"="+strconv.FormatInt(c.Count, 10))
	}
	fmt.Fprintf(w, "Top box types: %s\n", strings.Join(parts, " "))
}
