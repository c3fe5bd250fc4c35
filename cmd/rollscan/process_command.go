package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"rollscan/internal/journal"
	"rollscan/internal/pipeline"
	"rollscan/internal/rolls"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var (
		druidsFile       string
		druidsCSV        string
		rollType         string
		redownloadMani   bool
		redownloadImages bool
		reprocessImages  bool
		regenerateMIDI   bool
		noExpression     bool
		ignoreRewindHole bool
		multichannel     bool
		workers          int
	)

	cmd := &cobra.Command{
		Use:   "process [druid...]",
		Short: "Run the image-to-MIDI pipeline for one or more rolls",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			logger := ctx.loggerValue()

			druids, err := collectDruids(args, druidsFile, druidsCSV)
			if err != nil {
				return err
			}
			if len(druids) == 0 {
				return fmt.Errorf("no druids to process; pass them as arguments or via --druids-file/--druids-csv")
			}

			opts := pipeline.DefaultOptions()
			opts.RedownloadManifest = redownloadMani
			opts.RedownloadImage = redownloadImages
			opts.ReprocessImage = reprocessImages
			opts.RegenerateMIDI = regenerateMIDI
			opts.Expression = !noExpression
			opts.IgnoreRewindHole = ignoreRewindHole
			opts.MultichannelTIFFs = multichannel
			opts.Workers = workers

			if rollType != "" {
				parsed, ok := rolls.ParseType(rollType)
				if !ok {
					return fmt.Errorf("unknown roll type %q (known types: %s)", rollType, knownTypeList())
				}
				opts.RollType = parsed
			}

			store, err := journal.Open(cfg)
			if err != nil {
				return fmt.Errorf("open journal: %w", err)
			}
			defer store.Close()

			p, err := pipeline.New(cfg, store, logger)
			if err != nil {
				return err
			}

			results, err := p.ProcessAll(cmd.Context(), druids, opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderResults(results, shouldColorize(out)))

			if pipeline.Failed(results) {
				return fmt.Errorf("%d of %d rolls failed", countFailed(results), len(results))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&druidsFile, "druids-file", "", "Text file with one DRUID per line")
	cmd.Flags().StringVar(&druidsCSV, "druids-csv", "", "CSV file with a Druid column")
	cmd.Flags().StringVar(&rollType, "roll-type", "", "Process every roll as this type instead of reading the catalog")
	cmd.Flags().BoolVar(&redownloadMani, "redownload-manifests", false, "Re-fetch cached IIIF manifests")
	cmd.Flags().BoolVar(&redownloadImages, "redownload-images", false, "Re-download cached roll images")
	cmd.Flags().BoolVar(&reprocessImages, "reprocess-images", false, "Re-run hole analysis on cached images")
	cmd.Flags().BoolVar(&regenerateMIDI, "regenerate-midi", false, "Rebuild MIDI and hex outputs from existing analysis")
	cmd.Flags().BoolVar(&noExpression, "no-expression", false, "Skip the expression MIDI stage")
	cmd.Flags().BoolVar(&ignoreRewindHole, "ignore-rewind-hole", false, "Ignore the detected rewind hole position for every roll")
	cmd.Flags().BoolVar(&multichannel, "multichannel-tiffs", false, "Treat the roll images as RGB rather than monochrome")
	cmd.Flags().IntVar(&workers, "workers", 0, "Rolls processed concurrently (defaults to the configured value)")

	return cmd
}

// collectDruids merges command-line druids with any listed in files,
// preserving first-seen order and dropping duplicates.
func collectDruids(args []string, textPath, csvPath string) ([]string, error) {
	var druids []string
	druids = append(druids, args...)

	if textPath != "" {
		fromFile, err := rolls.DruidsFromTextFile(textPath)
		if err != nil {
			return nil, err
		}
		druids = append(druids, fromFile...)
	}

	if csvPath != "" {
		fromCSV, err := rolls.DruidsFromCSVFile(csvPath)
		if err != nil {
			return nil, err
		}
		druids = append(druids, fromCSV...)
	}

	seen := make(map[string]struct{}, len(druids))
	unique := druids[:0]
	for _, druid := range druids {
		druid = strings.TrimSpace(druid)
		if druid == "" {
			continue
		}
		if _, dup := seen[druid]; dup {
			continue
		}
		seen[druid] = struct{}{}
		unique = append(unique, druid)
	}
	return unique, nil
}

func renderResults(results []pipeline.RollResult, colorize bool) string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		errText := ""
		if r.Err != nil {
			errText = truncateCell(r.Err.Error(), 72)
		}
		rows = append(rows, []string{
			r.Druid,
			string(r.Type),
			statusCell(r.Status, colorize),
			strings.Join(r.StagesRun, ","),
			errText,
		})
	}
	return renderTable(
		[]string{"Druid", "Type", "Status", "Stages Run", "Error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
	)
}

func countFailed(results []pipeline.RollResult) int {
	failed := 0
	for _, r := range results {
		if r.Status == pipeline.StatusFailed {
			failed++
		}
	}
	return failed
}

func truncateCell(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit-3] + "..."
}

func knownTypeList() string {
	types := rolls.Types()
	names := make([]string, 0, len(types))
	for _, t := range types {
		names = append(names, string(t))
	}
	return strings.Join(names, ", ")
}
