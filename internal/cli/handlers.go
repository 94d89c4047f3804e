package cli

import (
	"context"
	"fmt"

	"github.com/BartekS5/ticketflow/internal/config"
	"github.com/BartekS5/ticketflow/internal/etl"
	"github.com/BartekS5/ticketflow/pkg/blobstore"
	"github.com/BartekS5/ticketflow/pkg/database"
	"github.com/BartekS5/ticketflow/pkg/ledger"
	"github.com/BartekS5/ticketflow/pkg/lock"
	"github.com/BartekS5/ticketflow/pkg/logger"
	"github.com/BartekS5/ticketflow/pkg/warehouse"
)

// app holds the wired components of one process and the hooks that
// release their connections.
type app struct {
	cfg      *config.Config
	pipeline *etl.Pipeline
	uploader *etl.Uploader
	loader   *etl.Loader
	locker   lock.Locker
	ledger   ledger.Ledger

	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// newApp loads configuration and connects every backend selected by it.
// Configuration errors are returned before any connection is opened.
func newApp(ctx context.Context, opts *Options) (_ *app, err error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	if err := logger.InitLogger(cfg.LogLevel, cfg.PrettyLogs); err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}

	var params map[string]string
	if opts.FiltersFile != "" {
		if params, err = config.LoadFilterParams(opts.FiltersFile); err != nil {
			return nil, err
		}
		logger.Infof("Loaded %d filter params from %s", len(params), opts.FiltersFile)
	}
	writeMode, err := warehouse.ParseWriteMode(cfg.StageWriteMode)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	blobs, err := a.openBlobStore(ctx)
	if err != nil {
		return nil, err
	}
	wh, err := a.openWarehouse(ctx, blobs)
	if err != nil {
		return nil, err
	}
	if a.locker, err = a.openLocker(ctx); err != nil {
		return nil, err
	}
	if a.ledger, err = a.openLedger(ctx); err != nil {
		return nil, err
	}

	archiver := etl.NewArchiver(blobs, cfg.BucketName)
	a.uploader = etl.NewUploader(blobs, cfg.BucketName, cfg.UploadMaxRetries, cfg.UploadRetryDelay, cfg.UploadAttemptTimeout, cfg.UploadWorkers)
	a.loader = etl.NewLoader(wh, archiver, a.locker, etl.LoaderConfig{
		StageTable:      cfg.StageTable,
		HistoricalTable: cfg.HistoricalTable,
		WriteMode:       writeMode,
		Workers:         cfg.LoadWorkers,
		Timeout:         cfg.LoadTimeout,
	})
	a.pipeline = etl.NewPipeline(etl.Components{
		Source:   etl.NewEventSource(cfg),
		Stager:   etl.NewStager(cfg.StagingDir),
		Uploader: a.uploader,
		Archiver: archiver,
		Loader:   a.loader,
		Ledger:   a.ledger,
	}, cfg.PageSize, params)
	return a, nil
}

func (a *app) openBlobStore(ctx context.Context) (etl.BlobStore, error) {
	switch a.cfg.BlobDriver {
	case config.DriverMemory:
		logger.Warn("Using the in-memory blob store; uploaded files are lost on exit")
		return blobstore.NewMemory(), nil
	default:
		gcs, err := blobstore.NewGCS(ctx, a.cfg.ProjectID)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = gcs.Close() })
		return gcs, nil
	}
}

func (a *app) openWarehouse(ctx context.Context, blobs blobstore.Store) (warehouse.Warehouse, error) {
	switch a.cfg.WarehouseDriver {
	case config.DriverMemory:
		logger.Warn("Using the in-memory warehouse; merged rows are lost on exit")
		return warehouse.NewMemory(blobs), nil
	case config.DriverSQLServer:
		db, err := database.ConnectSQL(ctx, a.cfg.SQLConnString)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		return warehouse.NewSQLServer(db, blobs, a.cfg.SQLSchema), nil
	default:
		bq, err := warehouse.NewBigQuery(ctx, a.cfg.ProjectID, a.cfg.Dataset)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = bq.Close() })
		return bq, nil
	}
}

// openLocker serializes merges across processes when Redis is configured,
// and within this process otherwise.
func (a *app) openLocker(ctx context.Context) (lock.Locker, error) {
	if a.cfg.RedisAddr == "" {
		return lock.NewLocal(), nil
	}
	rdb, err := database.ConnectRedis(ctx, a.cfg.RedisAddr, a.cfg.RedisPassword)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = rdb.Close() })
	return lock.NewRedis(rdb, "ticketflow:lock:", a.cfg.MergeLockTTL), nil
}

func (a *app) openLedger(ctx context.Context) (ledger.Ledger, error) {
	if a.cfg.MongoConnString == "" {
		return ledger.Nop{}, nil
	}
	client, err := database.ConnectMongo(ctx, a.cfg.MongoConnString)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = client.Disconnect(ctx)
	})
	return ledger.NewMongo(client, a.cfg.MongoDatabase), nil
}
