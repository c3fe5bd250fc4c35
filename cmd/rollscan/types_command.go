package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"rollscan/internal/rolls"
)

func newTypesCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "types",
		Short:       "List known roll types and their tool switches",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := make([][]string, 0, len(rolls.Types()))
			for _, t := range rolls.Types() {
				rows = append(rows, []string{
					string(t),
					t.AnalysisSwitch(),
					t.ExpressionSwitch(),
					yesNo(t.SupportsExpression()),
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"Type", "Analysis Switch", "Expression Switch", "Expression"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}
}
