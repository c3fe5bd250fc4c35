package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"rollscan/internal/layout"
)

func newPathsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "paths <druid>",
		Short: "Show artifact locations for a roll",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			druid := args[0]

			lay := layout.New(cfg.Paths.RootDir)
			rows := make([][]string, 0, len(layout.Kinds()))
			for _, kind := range layout.Kinds() {
				rows = append(rows, []string{
					stageLabel(string(kind)),
					lay.Path(druid, kind),
					yesNo(lay.Complete(druid, kind)),
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"Artifact", "Path", "Present"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}
}
