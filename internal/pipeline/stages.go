package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"rollscan/internal/journal"
	"rollscan/internal/layout"
	"rollscan/internal/logging"
	"rollscan/internal/manifest"
	"rollscan/internal/services"
	"rollscan/internal/toolrunner"
)

// Process runs the full stage chain for one roll. The first failing stage
// aborts the remainder; artifacts of already-completed stages stay intact.
func (p *Pipeline) Process(ctx context.Context, druid string, opts Options) RollResult {
	result := RollResult{Druid: druid}

	if slices.Contains(p.cfg.Process.SkipDruids, druid) {
		p.logger.InfoContext(ctx, "skipping roll on skip list",
			logging.String(logging.FieldDruid, druid))
		result.Status = StatusSkipped
		return result
	}

	ctx = services.WithDruid(ctx, druid)
	runID := p.beginRun(ctx, druid)
	if runID != "" {
		ctx = services.WithRunID(ctx, runID)
	}

	run := &rollRun{
		pipeline: p,
		druid:    druid,
		opts:     opts,
		result:   &result,
	}
	run.execute(ctx)

	p.finishRun(ctx, runID, run, &result)
	return result
}

func (p *Pipeline) beginRun(ctx context.Context, druid string) string {
	if p.store == nil {
		return ""
	}
	runID, err := p.store.BeginRun(ctx, druid, "", "")
	if err != nil {
		p.logger.WarnContext(ctx, "unable to journal run start", logging.Error(err))
		return ""
	}
	return runID
}

func (p *Pipeline) finishRun(ctx context.Context, runID string, run *rollRun, result *RollResult) {
	if p.store == nil || runID == "" {
		return
	}
	// Finalize the run row even when the pass itself was canceled.
	ctx = context.WithoutCancel(ctx)
	if result.Type != "" {
		if err := p.store.SetRollInfo(ctx, runID, string(result.Type), result.Title); err != nil {
			p.logger.WarnContext(ctx, "unable to journal roll info", logging.Error(err))
		}
	}
	status := journal.StatusCompleted
	switch result.Status {
	case StatusFailed:
		status = journal.StatusFailed
	case StatusSkipped:
		status = journal.StatusSkipped
	}
	if err := p.store.FinishRun(ctx, runID, status, result.StagesRun, result.Err); err != nil {
		p.logger.WarnContext(ctx, "unable to journal run finish", logging.Error(err))
	}
}

// rollRun tracks one roll's pass through the chain. The ran flags drive the
// transitive-invalidation rule: an upstream stage that executed makes every
// downstream stage eligible regardless of its own completion predicate.
type rollRun struct {
	pipeline *Pipeline
	druid    string
	opts     Options
	result   *RollResult

	info *manifest.RollInfo

	manifestRan bool
	imageRan    bool
	analysisRan bool
	rawRan      bool
	noteRan     bool
}

func (r *rollRun) execute(ctx context.Context) {
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{StageManifest, r.runManifest},
		{StageImage, r.runImage},
		{StageHoleAnalysis, r.runAnalysis},
		{StageRawMIDI, r.runRawMIDI},
		{StageNoteMIDI, r.runNoteMIDI},
		{StageExpressionMIDI, r.runExpression},
		{StageRawHex, r.runRawHex},
		{StageNoteHex, r.runNoteHex},
	}
	for _, step := range steps {
		stageCtx := services.WithStage(ctx, step.name)
		if err := step.fn(stageCtx); err != nil {
			r.result.Status = StatusFailed
			r.result.FailedStage = step.name
			r.result.Err = err
			r.pipeline.logger.ErrorContext(stageCtx, "stage failed",
				logging.String(logging.FieldDruid, r.druid),
				logging.String(logging.FieldStage, step.name),
				logging.Error(err))
			return
		}
	}
	r.result.Status = StatusCompleted
}

func (r *rollRun) lay() layout.Layout { return r.pipeline.layout }

func (r *rollRun) ran(stage string) {
	r.result.StagesRun = append(r.result.StagesRun, stage)
}

func (r *rollRun) runManifest(ctx context.Context) error {
	info, downloaded, err := r.pipeline.resolver.Resolve(ctx, r.druid, r.opts.RedownloadManifest, r.opts.RollType)
	if err != nil {
		return err
	}
	r.info = info
	r.result.Title = info.Title
	r.result.Type = info.Type

	// Downloaded covers the corrupt-cache refetch too, so a manifest that
	// changed on disk invalidates every downstream stage.
	if downloaded {
		r.manifestRan = true
		r.ran(StageManifest)
	}
	return nil
}

func (r *rollRun) runImage(ctx context.Context) error {
	force := r.opts.RedownloadImage || r.manifestRan
	willRun := force || !r.lay().Complete(r.druid, layout.KindImage)

	if _, err := r.pipeline.downloader.EnsureImage(ctx, r.druid, r.info.ImageURL, force); err != nil {
		return err
	}
	if willRun {
		r.imageRan = true
		r.ran(StageImage)
	}
	return nil
}

func (r *rollRun) runAnalysis(ctx context.Context) error {
	if !r.opts.ReprocessImage && !r.imageRan && r.lay().Complete(r.druid, layout.KindAnalysisText) {
		return nil
	}

	var args []string
	if !r.opts.MultichannelTIFFs {
		args = append(args, "-m")
	}
	args = append(args, r.info.Type.AnalysisSwitch())
	if r.opts.IgnoreRewindHole || slices.Contains(r.pipeline.cfg.Process.IgnoreRewindHoleDruids, r.druid) {
		args = append(args, "-s")
	}
	if shift, ok := r.pipeline.cfg.Process.AlignmentShifts[r.druid]; ok {
		args = append(args, fmt.Sprintf("--alignment-shift=%d", shift))
	}
	args = append(args, r.lay().Path(r.druid, layout.KindImage))

	_, err := r.pipeline.runner.Run(ctx, toolrunner.Invocation{
		Stage:      StageHoleAnalysis,
		Druid:      r.druid,
		Binary:     r.pipeline.cfg.Tools.Holes,
		Args:       args,
		StdoutPath: r.lay().Path(r.druid, layout.KindAnalysisText),
		StderrPath: r.lay().Path(r.druid, layout.KindAnalysisLog),
	})
	if err != nil {
		return err
	}
	r.analysisRan = true
	r.ran(StageHoleAnalysis)
	return nil
}

func (r *rollRun) runRawMIDI(ctx context.Context) error {
	if !r.opts.RegenerateMIDI && !r.analysisRan && r.lay().Complete(r.druid, layout.KindRawMIDI) {
		return nil
	}
	if err := r.compileHexSection(ctx, StageRawMIDI, holeSectionMarker, layout.KindRawMIDI); err != nil {
		return err
	}
	r.rawRan = true
	r.ran(StageRawMIDI)
	return nil
}

func (r *rollRun) runNoteMIDI(ctx context.Context) error {
	if !r.opts.RegenerateMIDI && !r.rawRan && !r.analysisRan && r.lay().Complete(r.druid, layout.KindNoteMIDI) {
		return nil
	}
	if err := r.compileHexSection(ctx, StageNoteMIDI, noteSectionMarker, layout.KindNoteMIDI); err != nil {
		return err
	}
	r.noteRan = true
	r.ran(StageNoteMIDI)
	return nil
}

// compileHexSection extracts one hex MIDI section from the analysis report
// into a scratch file and runs the hex tool in compile mode to produce the
// binary MIDI artifact.
func (r *rollRun) compileHexSection(ctx context.Context, stage, marker string, kind layout.Kind) error {
	reportPath := r.lay().Path(r.druid, layout.KindAnalysisText)
	report, err := os.ReadFile(reportPath)
	if err != nil {
		return services.Wrap(services.ErrNotFound, stage, "extract",
			"hole analysis report missing at "+reportPath, err)
	}
	section, err := extractHexSection(string(report), marker)
	if err != nil {
		return services.Wrap(services.ErrValidation, stage, "extract", "", err)
	}

	scratch, err := os.CreateTemp("", r.druid+"-*.binasc")
	if err != nil {
		return fmt.Errorf("create scratch hex file: %w", err)
	}
	defer os.Remove(scratch.Name())
	if _, err := scratch.WriteString(section); err != nil {
		scratch.Close()
		return fmt.Errorf("write scratch hex file: %w", err)
	}
	if err := scratch.Close(); err != nil {
		return fmt.Errorf("close scratch hex file: %w", err)
	}

	return r.runToDeclaredOutput(ctx, stage, r.pipeline.cfg.Tools.Hex, r.lay().Path(r.druid, kind),
		func(outPath string) []string {
			return []string{scratch.Name(), "-c", outPath}
		})
}

func (r *rollRun) runExpression(ctx context.Context) error {
	if !r.opts.Expression {
		return nil
	}
	if !r.info.Type.SupportsExpression() {
		r.pipeline.logger.DebugContext(ctx, "roll type has no expression rendering",
			logging.String(logging.FieldDruid, r.druid),
			logging.String("roll_type", string(r.info.Type)))
		return nil
	}
	if !r.opts.RegenerateMIDI && !r.noteRan && r.lay().Complete(r.druid, layout.KindExpressionMIDI) {
		return nil
	}

	notePath := r.lay().Path(r.druid, layout.KindNoteMIDI)
	err := r.runToDeclaredOutput(ctx, StageExpressionMIDI, r.pipeline.cfg.Tools.Expression,
		r.lay().Path(r.druid, layout.KindExpressionMIDI),
		func(outPath string) []string {
			// -r strips the control tracks.
			return []string{"-r", "-adjust-hole-lengths", r.info.Type.ExpressionSwitch(), notePath, outPath}
		})
	if err != nil {
		return err
	}
	r.ran(StageExpressionMIDI)
	return nil
}

func (r *rollRun) runRawHex(ctx context.Context) error {
	return r.runHexDump(ctx, StageRawHex, r.rawRan, layout.KindRawMIDI, layout.KindRawHex)
}

func (r *rollRun) runNoteHex(ctx context.Context) error {
	return r.runHexDump(ctx, StageNoteHex, r.noteRan, layout.KindNoteMIDI, layout.KindNoteHex)
}

func (r *rollRun) runHexDump(ctx context.Context, stage string, upstreamRan bool, midiKind, hexKind layout.Kind) error {
	if !upstreamRan && r.lay().Complete(r.druid, hexKind) {
		return nil
	}

	_, err := r.pipeline.runner.Run(ctx, toolrunner.Invocation{
		Stage:      stage,
		Druid:      r.druid,
		Binary:     r.pipeline.cfg.Tools.Hex,
		Args:       []string{r.lay().Path(r.druid, midiKind)},
		StdoutPath: r.lay().Path(r.druid, hexKind),
	})
	if err != nil {
		return err
	}
	r.ran(stage)
	return nil
}

// runToDeclaredOutput runs a tool that writes its own output file. The tool
// is pointed at a temporary path that is promoted to the artifact path only
// after a successful, non-empty run.
func (r *rollRun) runToDeclaredOutput(ctx context.Context, stage, binary, finalPath string, buildArgs func(outPath string) []string) error {
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	tempPath := fmt.Sprintf("%s.tmp-%d", finalPath, time.Now().UnixNano())
	defer os.Remove(tempPath)

	_, err := r.pipeline.runner.Run(ctx, toolrunner.Invocation{
		Stage:  stage,
		Druid:  r.druid,
		Binary: binary,
		Args:   buildArgs(tempPath),
	})
	if err != nil {
		return err
	}

	info, err := os.Stat(tempPath)
	if err != nil || info.Size() == 0 {
		return services.Wrap(services.ErrToolFailure, stage, "output",
			"tool exited successfully but produced no output", err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		return fmt.Errorf("finalize output: %w", err)
	}
	return nil
}
