package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"example.com/bmffgate/internal/report"
)

func newReportCommand(ctx *commandContext) *cobra.Command {
	var (
		outPDF string
		lang   string
	)
	cmd := &cobra.Command{
		Use:   "report <report.json>",
		Short: "Print a saved report or render it as PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := report.LoadJSON(args[0])
			if err != nil {
				return fmt.Errorf("load report: %w", err)
			}
			if outPDF == "" {
				out := cmd.OutOrStdout()
				printFindings(out, rep, shouldColorize(out))
				return nil
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
			if err := report.SavePDF(rep, outPDF, report.PDFOptions{Lang: language, QRSize: cfg.Report.QRSize}); err != nil {
				return fmt.Errorf("write pdf: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", outPDF)
			return nil
		},
	}
	cmd.Flags().StringVar(&outPDF, "pdf", "", "render the report to this PDF path")
	cmd.Flags().StringVar(&lang, "lang", "", "report language (en, tr)")
	return cmd
}
