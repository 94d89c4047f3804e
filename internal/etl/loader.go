package etl

import (
	"context"
	"path"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/BartekS5/ticketflow/pkg/blobstore"
	"github.com/BartekS5/ticketflow/pkg/etlerr"
	"github.com/BartekS5/ticketflow/pkg/lock"
	"github.com/BartekS5/ticketflow/pkg/logger"
	"github.com/BartekS5/ticketflow/pkg/metrics"
	"github.com/BartekS5/ticketflow/pkg/models"
	"github.com/BartekS5/ticketflow/pkg/warehouse"
)

// LoaderConfig names the tables and bounds of the load stage.
type LoaderConfig struct {
	StageTable      string
	HistoricalTable string
	WriteMode       warehouse.WriteMode
	Workers         int
	// Timeout bounds the whole load-merge-archive sequence of one file.
	Timeout time.Duration
}

// Loader moves staged files through the warehouse: stage load, SCD2 merge
// into the historical table, archive.
type Loader struct {
	wh       warehouse.Warehouse
	archiver *Archiver
	locker   lock.Locker
	schema   models.Schema
	cfg      LoaderConfig
}

func NewLoader(wh warehouse.Warehouse, archiver *Archiver, locker lock.Locker, cfg LoaderConfig) *Loader {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.WriteMode == "" {
		cfg.WriteMode = warehouse.WriteTruncate
	}
	return &Loader{wh: wh, archiver: archiver, locker: locker, schema: models.EventSchema(), cfg: cfg}
}

// Prepare creates the historical table when it does not exist.
func (l *Loader) Prepare(ctx context.Context) error {
	return l.wh.EnsureHistoricalTable(ctx, l.cfg.HistoricalTable, l.schema)
}

// StageTableFor returns the per-file stage table, so concurrent files never
// share one.
func (l *Loader) StageTableFor(key string) string {
	stem := strings.TrimSuffix(path.Base(key), path.Ext(key))
	return l.cfg.StageTable + "_" + strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, stem)
}

// ProcessFile loads, merges and archives one staged file. Failures are
// logged once with their kind and returned in the outcome; they never
// affect other files.
func (l *Loader) ProcessFile(ctx context.Context, uri string) models.FileOutcome {
	outcome := models.FileOutcome{Name: uri}
	rows, merged, err := l.processFile(ctx, uri)
	outcome.Rows = rows
	outcome.Merged = merged
	if err != nil {
		kind := etlerr.Classify(err)
		outcome.Kind = kind.String()
		outcome.Error = err.Error()
		metrics.FilesTotal.WithLabelValues("load", metrics.StatusFailed).Inc()
		logger.L().Errorw("Failed to load file",
			"uri", uri, "table", l.cfg.HistoricalTable, "kind", kind.String(), "error", err)
		return outcome
	}
	metrics.FilesTotal.WithLabelValues("load", metrics.StatusSuccess).Inc()
	logger.L().Infow("Loaded file", "uri", uri, "rows", rows, "merged", merged)
	return outcome
}

func (l *Loader) processFile(ctx context.Context, uri string) (int64, int64, error) {
	if l.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.Timeout)
		defer cancel()
	}

	_, key, err := blobstore.ParseURI(uri)
	if err != nil {
		return 0, 0, err
	}
	stage := l.StageTableFor(key)
	defer func() {
		// The stage table is scratch; a drop failure only leaves litter.
		if err := l.wh.DropTable(context.WithoutCancel(ctx), stage); err != nil {
			logger.L().Warnw("Failed to drop stage table", "table", stage, "error", err)
		}
	}()

	start := time.Now()
	rows, err := l.wh.LoadStage(ctx, uri, stage, l.schema, l.cfg.WriteMode)
	if err != nil {
		return 0, 0, err
	}
	metrics.StageDuration.WithLabelValues("load").Observe(time.Since(start).Seconds())

	merged, err := l.merge(ctx, stage)
	if err != nil {
		return rows, 0, err
	}

	// A failed archive leaves the file in the root; reloading it later is
	// a no-op merge.
	if err := l.archiver.Archive(ctx, key); err != nil {
		return rows, merged, err
	}
	return rows, merged, nil
}

func (l *Loader) merge(ctx context.Context, stage string) (int64, error) {
	unlock, err := l.locker.Lock(ctx, l.cfg.HistoricalTable)
	if err != nil {
		return 0, etlerr.Wrap("lock "+l.cfg.HistoricalTable, err)
	}
	defer unlock()

	start := time.Now()
	res, err := l.wh.MergeSCD2(ctx, stage, l.cfg.HistoricalTable, l.schema)
	if err != nil {
		return 0, err
	}
	metrics.StageDuration.WithLabelValues("merge").Observe(time.Since(start).Seconds())
	metrics.MergeRowsTotal.WithLabelValues(l.cfg.HistoricalTable).Add(float64(res.Affected))
	return res.Affected, nil
}

// LoadFiles processes uris on a bounded pool and waits for all of them.
func (l *Loader) LoadFiles(ctx context.Context, uris []string) []models.FileOutcome {
	outcomes := make([]models.FileOutcome, len(uris))
	var g errgroup.Group
	g.SetLimit(l.cfg.Workers)
	for i, uri := range uris {
		g.Go(func() error {
			outcomes[i] = recoverOutcome(uri, func() models.FileOutcome { return l.ProcessFile(ctx, uri) })
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}
