package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"example.com/bmffgate/internal/capture"
)

func newCaptureCommand(ctx *commandContext) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "capture <file>",
		Short: "Record the box event stream and its issues (.json or .bmffcap)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				return fmt.Errorf("--out is required")
			}
			v, err := ctx.newValidation("")
			if err != nil {
				return err
			}
			rec := capture.NewRecorder()
			v.observer = rec
			if _, _, err := v.run(cmd.Context(), args[0]); err != nil {
				return err
			}
			doc := rec.Document()
			if err := capture.Save(out, doc); err != nil {
				return fmt.Errorf("write capture: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "captured %d events to %s\n", len(doc.Events), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "capture file (.json or .bmffcap)")
	return cmd
}

func newReplayCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "replay <capture>",
		Short: "Feed a capture through a fresh engine and compare structural issues",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := capture.Load(args[0])
			if err != nil {
				return err
			}
			res, err := capture.Replay(doc)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			rows := make([][]string, 0, len(res.Result.Findings))
			for _, f := range res.Result.Findings {
				where := f.Box
				if f.Depth < 0 {
					where = "(end)"
				}
				rows = append(rows, []string{severityLabel(f.Severity, colorize), f.RuleID, where, f.Message})
			}
			if len(rows) > 0 {
				fmt.Fprintln(out, renderTable([]string{"Severity", "Rule", "Box", "Message"}, rows, nil))
			}
			fmt.Fprintf(out, "replayed %d events (%d boxes), %d findings\n", len(doc.Events), res.Result.Boxes, len(res.Result.Findings))
			if n := len(res.Mismatches); n > 0 {
				for _, m := range res.Mismatches {
					fmt.Fprintln(cmd.ErrOrStderr(), m.String())
				}
				return fmt.Errorf("replay diverged from capture at %d events", n)
			}
			return nil
		},
	}
}
