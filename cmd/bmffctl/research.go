package main

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"example.com/bmffgate/internal/common"
)

func newResearchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "research",
		Short: "Summarize unknown box types recorded in the research log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := ctx.research()
			if err != nil {
				return err
			}
			if l == nil {
				return fmt.Errorf("no research log configured (use --research-log)")
			}
			entries, err := common.ReadResearchLog(l.Path())
			if errors.Is(err, fs.ErrNotExist) {
				fmt.Fprintf(cmd.OutOrStdout(), "no entries in %s\n", l.Path())
				return nil
			}
			if err != nil {
				return err
			}
			counts := common.SummarizeResearch(entries)
			types := make([]string, 0, len(counts))
			for t := range counts {
				types = append(types, t)
			}
			sort.Slice(types, func(i, j int) bool {
				if counts[types[i]] != counts[types[j]] {
					return counts[types[i]] > counts[types[j]]
				}
				return types[i] < types[j]
			})
			rows := make([][]string, 0, len(types))
			for _, t := range types {
				rows = append(rows, []string{t, strconv.Itoa(counts[t])})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable([]string{"Box Type", "Sightings"}, rows, []columnAlignment{alignLeft, alignRight}))
			fmt.Fprintf(out, "%d entries in %s\n", len(entries), l.Path())
			return nil
		},
	}
}
