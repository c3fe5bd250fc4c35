// Package pipeline orchestrates the per-roll stage chain: manifest → image →
// hole_analysis → raw_midi → note_midi → expression_midi → hex encodings.
// Every eligibility decision reads the artifact tree; the filesystem is the
// durable completion record, so a stage reruns only when its output is
// missing, the caller forced it, or an upstream stage actually executed this
// invocation.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"rollscan/internal/config"
	"rollscan/internal/fetch"
	"rollscan/internal/journal"
	"rollscan/internal/layout"
	"rollscan/internal/logging"
	"rollscan/internal/manifest"
	"rollscan/internal/rolls"
	"rollscan/internal/services"
	"rollscan/internal/toolrunner"
)

// Stage names in dependency order.
const (
	StageManifest       = "manifest"
	StageImage          = "image"
	StageHoleAnalysis   = "hole_analysis"
	StageRawMIDI        = "raw_midi"
	StageNoteMIDI       = "note_midi"
	StageExpressionMIDI = "expression_midi"
	StageRawHex         = "hex_raw"
	StageNoteHex        = "hex_note"
)

// Status of one roll's processing pass.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Options carries the per-invocation force flags. They affect eligibility
// only; persisted artifacts are the durable state.
type Options struct {
	RollType rolls.Type

	RedownloadManifest bool
	RedownloadImage    bool
	ReprocessImage     bool
	RegenerateMIDI     bool

	// Expression gates the expression_midi stage. It defaults to on in
	// DefaultOptions; 65-note rolls skip the stage regardless.
	Expression bool

	IgnoreRewindHole bool

	// MultichannelTIFFs marks the roll images as RGB scans. By default the
	// images are treated as monochrome and the analysis tool gets -m.
	MultichannelTIFFs bool

	Workers int
}

// DefaultOptions returns Options with the expression stage enabled.
func DefaultOptions() Options {
	return Options{Expression: true}
}

// RollResult reports the outcome of one roll's pipeline pass.
type RollResult struct {
	Druid       string
	Title       string
	Type        rolls.Type
	Status      Status
	StagesRun   []string
	FailedStage string
	Err         error
}

// Pipeline wires the resolver, downloader, tool runner, and journal into the
// stage chain.
type Pipeline struct {
	cfg        *config.Config
	layout     layout.Layout
	resolver   *manifest.Resolver
	downloader *fetch.Downloader
	runner     *toolrunner.Runner
	store      *journal.Store
	logger     *slog.Logger
}

// New builds a Pipeline from configuration. The journal store is optional;
// a nil store disables run and invocation journaling.
func New(cfg *config.Config, store *journal.Store, logger *slog.Logger) (*Pipeline, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "", "new", "configuration required", nil)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	lay := layout.New(cfg.Paths.RootDir)
	if err := lay.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("ensure artifact tree: %w", err)
	}

	client, err := manifest.New(cfg.Download.PurlBase,
		manifest.WithTimeout(time.Duration(cfg.Download.TimeoutSeconds)*time.Second))
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, StageManifest, "new", "manifest client", err)
	}

	downloader := fetch.New(lay, logger,
		fetch.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Download.TimeoutSeconds) * time.Second}),
		fetch.WithRetry(cfg.Download.Attempts, time.Duration(cfg.Download.BackoffSeconds)*time.Second))

	runnerOpts := []toolrunner.Option{
		toolrunner.WithTimeout(time.Duration(cfg.Tools.TimeoutSeconds) * time.Second),
	}
	if store != nil {
		runnerOpts = append(runnerOpts, toolrunner.WithRecorder(store.Recorder()))
	}

	return &Pipeline{
		cfg:        cfg,
		layout:     lay,
		resolver:   manifest.NewResolver(client, lay, logger),
		downloader: downloader,
		runner:     toolrunner.New(logger, runnerOpts...),
		store:      store,
		logger:     logging.NewComponentLogger(logger, "pipeline"),
	}, nil
}

// Layout exposes the artifact layout the pipeline writes into.
func (p *Pipeline) Layout() layout.Layout {
	return p.layout
}

// ProcessAll runs the pipeline for each DRUID with a bounded worker pool.
// Rolls are independent: one roll's failure never aborts the others. The
// returned slice preserves input order. The artifact root is locked for the
// duration so two invocations cannot interleave.
func (p *Pipeline) ProcessAll(ctx context.Context, druids []string, opts Options) ([]RollResult, error) {
	lock := flock.New(filepath.Join(p.cfg.Paths.LogDir, "rollscan.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire processing lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("another rollscan process is already running against %s", p.cfg.Paths.RootDir)
	}
	defer func() { _ = lock.Unlock() }()

	workers := opts.Workers
	if workers <= 0 {
		workers = p.cfg.Process.Workers
	}
	if workers <= 0 {
		workers = 1
	}

	results := make([]RollResult, len(druids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, druid := range druids {
		g.Go(func() error {
			results[i] = p.Process(gctx, druid, opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// Failed reports whether any result in the batch failed.
func Failed(results []RollResult) bool {
	for _, result := range results {
		if result.Status == StatusFailed {
			return true
		}
	}
	return false
}
