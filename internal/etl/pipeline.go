package etl

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BartekS5/ticketflow/pkg/etlerr"
	"github.com/BartekS5/ticketflow/pkg/ledger"
	"github.com/BartekS5/ticketflow/pkg/logger"
	"github.com/BartekS5/ticketflow/pkg/metrics"
	"github.com/BartekS5/ticketflow/pkg/models"
)

// Stage names one step of the pipeline.
type Stage string

const (
	StageExtract Stage = "extract"
	StageUpload  Stage = "upload"
	StageLoad    Stage = "load"
)

// AllStages is the full pipeline in execution order.
var AllStages = []Stage{StageExtract, StageUpload, StageLoad}

// Components are the collaborators a Pipeline sequences.
type Components struct {
	Source      PageFetcher
	Transformer *Transformer
	Validator   *Validator
	Stager      *Stager
	Uploader    *Uploader
	Archiver    *Archiver
	Loader      *Loader
	Ledger      ledger.Ledger
}

// Pipeline runs extract, upload and load strictly in sequence.
type Pipeline struct {
	c        Components
	pageSize int
	params   map[string]string
	now      func() time.Time

	// mu allows one run per process at a time.
	mu sync.Mutex
}

// NewPipeline builds a driver. A nil params map selects the source's
// default filters.
func NewPipeline(c Components, pageSize int, params map[string]string) *Pipeline {
	if c.Transformer == nil {
		c.Transformer = NewTransformer()
	}
	if c.Validator == nil {
		c.Validator = NewValidator()
	}
	if c.Ledger == nil {
		c.Ledger = ledger.Nop{}
	}
	return &Pipeline{c: c, pageSize: pageSize, params: params, now: time.Now}
}

// Run executes every stage once.
func (p *Pipeline) Run(ctx context.Context, trigger string) (*models.RunReport, error) {
	return p.RunStages(ctx, trigger, AllStages...)
}

// RunStages executes the given stages in order and stops at the first
// stage-level failure. Per-file failures do not fail a stage; they mark
// the report partial. The report is always returned and recorded in the
// ledger.
func (p *Pipeline) RunStages(ctx context.Context, trigger string, stages ...Stage) (*models.RunReport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	report := &models.RunReport{
		RunID:     uuid.NewString(),
		Trigger:   trigger,
		StartedAt: p.now().UTC(),
	}
	log := logger.With("run_id", report.RunID, "trigger", trigger)
	log.Infow("Starting pipeline", "stages", stages)

	var runErr error
	for _, stage := range stages {
		if err := p.runStage(ctx, stage, report); err != nil {
			runErr = fmt.Errorf("%s stage: %w", stage, err)
			break
		}
	}

	report.FinishedAt = p.now().UTC()
	switch {
	case runErr != nil:
		report.Status = models.RunFailed
		report.Error = runErr.Error()
		log.Errorw("Pipeline failed", "kind", etlerr.Classify(runErr).String(), "error", runErr)
	case report.FailedFiles() > 0:
		report.Status = models.RunPartial
		log.Warnw("Pipeline finished with failed files", "failed_files", report.FailedFiles())
	default:
		report.Status = models.RunSucceeded
		log.Infow("Pipeline finished successfully", "events", report.Events, "duration", report.FinishedAt.Sub(report.StartedAt))
	}

	metrics.PipelineRunsTotal.WithLabelValues(trigger, string(report.Status)).Inc()
	metrics.PipelineRunDuration.WithLabelValues(trigger).Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())

	if err := p.c.Ledger.Record(context.WithoutCancel(ctx), report); err != nil {
		log.Warnw("Failed to record run", "kind", etlerr.Classify(err).String(), "error", err)
	}
	return report, runErr
}

// runStage turns a panic into a Service error so callers always get a
// result.
func (p *Pipeline) runStage(ctx context.Context, stage Stage, report *models.RunReport) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.L().Errorw("Recovered panic", "stage", stage, "panic", r, "stack", string(debug.Stack()))
			err = etlerr.Errorf(etlerr.KindService, string(stage), "panic: %v", r)
		}
	}()

	switch stage {
	case StageExtract:
		return p.Extract(ctx, report)
	case StageUpload:
		return p.Upload(ctx, report)
	case StageLoad:
		return p.Load(ctx, report)
	default:
		return etlerr.Errorf(etlerr.KindConfiguration, "run", "unknown stage %q", stage)
	}
}

// Extract fetches every page, flattens and validates the events and writes
// one staged file. Any fetch failure aborts the stage.
func (p *Pipeline) Extract(ctx context.Context, report *models.RunReport) error {
	raw, pages, err := collectPages(ctx, p.c.Source, p.pageSize, p.params)
	report.Pages = pages
	if err != nil {
		return err
	}

	records := p.c.Transformer.ParseEvents(raw)
	records, dropped := p.c.Validator.Prepare(records)
	report.Events = len(records)
	report.Dropped = dropped
	metrics.EventsTotal.WithLabelValues("kept").Add(float64(len(records)))
	metrics.EventsTotal.WithLabelValues("dropped").Add(float64(dropped))

	if len(records) == 0 {
		logger.Warnf("No events fetched from %d pages; nothing to stage", pages)
		return nil
	}
	path, err := p.c.Stager.Write(records)
	if err != nil {
		return err
	}
	report.StagedFile = path
	logger.L().Infow("Staged events", "file", path, "events", len(records), "dropped", dropped, "pages", pages)
	return nil
}

// Upload provisions the bucket and uploads every staged file waiting
// locally.
func (p *Pipeline) Upload(ctx context.Context, report *models.RunReport) error {
	if err := p.c.Uploader.Prepare(ctx); err != nil {
		return err
	}
	paths, err := p.c.Stager.LocalFiles()
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		logger.Info("No staged files to upload")
		return nil
	}
	report.Uploads = p.c.Uploader.UploadBatch(ctx, paths)
	return nil
}

// Load merges every unprocessed bucket file into the historical table,
// including leftovers uploaded on earlier days.
func (p *Pipeline) Load(ctx context.Context, report *models.RunReport) error {
	if err := p.c.Loader.Prepare(ctx); err != nil {
		return err
	}
	uris, err := p.c.Archiver.ListInputFiles(ctx, "")
	if err != nil {
		return err
	}
	if len(uris) == 0 {
		logger.Info("No input files to load")
		return nil
	}
	report.Loads = p.c.Loader.LoadFiles(ctx, uris)
	return nil
}

// recoverOutcome runs one per-file task, turning a panic into a failed
// outcome so a pool never loses a file's result.
func recoverOutcome(name string, fn func() models.FileOutcome) (out models.FileOutcome) {
	defer func() {
		if r := recover(); r != nil {
			err := etlerr.Errorf(etlerr.KindService, name, "panic: %v", r)
			logger.L().Errorw("Recovered panic", "file", name, "kind", etlerr.KindService.String(), "error", err)
			out = models.FileOutcome{Name: name, Kind: etlerr.KindService.String(), Error: err.Error()}
		}
	}()
	return fn()
}

// Summary renders a one-line result for triggers.
func Summary(report *models.RunReport) string {
	if report == nil {
		return ""
	}
	return fmt.Sprintf("run %s %s: %d events, %d uploaded, %d loaded, %d failed files",
		report.RunID, report.Status, report.Events,
		succeeded(report.Uploads), succeeded(report.Loads), report.FailedFiles())
}

func succeeded(outcomes []models.FileOutcome) int {
	n := 0
	for _, o := range outcomes {
		if !o.Failed() {
			n++
		}
	}
	return n
}
