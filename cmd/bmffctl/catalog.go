package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"example.com/bmffgate/internal/config"
	"example.com/bmffgate/internal/rules"
)

func newRulesCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "List validation rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(rules.Catalog())
			}
			colorize := shouldColorize(out)
			var rows [][]string
			for _, r := range rules.Catalog() {
				rows = append(rows, []string{r.ID, r.Name, severityLabel(r.DefaultSeverity, colorize), r.Summary})
			}
			fmt.Fprintln(out, renderTable([]string{"ID", "Name", "Severity", "Summary"}, rows, nil))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newPresetsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List validation presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.config()
			if err != nil {
				return err
			}
			presets, err := config.Presets(cfg.PresetsFile)
			if err != nil {
				return err
			}
			var rows [][]string
			for _, p := range presets {
				var disabled []string
				for _, r := range rules.Catalog() {
					if !p.Enabled(r.ID) {
						disabled = append(disabled, r.ID)
					}
				}
				off := "-"
				if len(disabled) > 0 {
					off = strings.Join(disabled, ", ")
				}
				id := p.ID
				if p.ID == cfg.Preset {
					id += " *"
				}
				rows = append(rows, []string{id, p.Name, off, p.Summary})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"ID", "Name", "Disabled", "Summary"}, rows, nil))
			return nil
		},
	}
}
