package etl

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/BartekS5/ticketflow/pkg/etlerr"
	"github.com/BartekS5/ticketflow/pkg/logger"
	"github.com/BartekS5/ticketflow/pkg/metrics"
	"github.com/BartekS5/ticketflow/pkg/models"
	"github.com/BartekS5/ticketflow/pkg/retry"
)

// Uploader copies staged files into the bucket root with retry and
// read-back verification.
type Uploader struct {
	store          BlobStore
	bucket         string
	policy         retry.Policy
	attemptTimeout time.Duration
	workers        int
}

func NewUploader(store BlobStore, bucket string, maxAttempts int, delay, attemptTimeout time.Duration, workers int) *Uploader {
	if workers < 1 {
		workers = 1
	}
	return &Uploader{
		store:  store,
		bucket: bucket,
		policy: retry.Policy{
			MaxAttempts: maxAttempts,
			Backoff:     retry.Constant(delay),
			Retryable:   etlerr.Retryable,
		},
		attemptTimeout: attemptTimeout,
		workers:        workers,
	}
}

// Prepare provisions the bucket. A Configuration error here must stop the
// process.
func (u *Uploader) Prepare(ctx context.Context) error {
	return u.store.EnsureBucket(ctx, u.bucket)
}

// UploadFile uploads path under its base name and verifies it exists. It
// never returns an error: an exhausted or permanent failure is logged and
// reported in the outcome. The local file is removed only after a verified
// upload.
func (u *Uploader) UploadFile(ctx context.Context, path string) models.FileOutcome {
	key := filepath.Base(path)
	outcome := models.FileOutcome{Name: key}

	policy := u.policy
	policy.OnRetry = func(attempt int, err error) {
		logger.L().Warnw("Upload attempt failed, retrying",
			"file", key, "attempt", attempt, "kind", etlerr.Classify(err).String(), "error", err)
	}
	attempts, err := policy.Do(ctx, func(ctx context.Context, _ int) error {
		err := u.attempt(ctx, path, key)
		result := metrics.StatusSuccess
		if err != nil {
			result = metrics.StatusFailed
		}
		metrics.UploadAttemptsTotal.WithLabelValues(result).Inc()
		return err
	})
	outcome.Attempts = attempts

	if err != nil {
		kind := etlerr.Classify(err)
		outcome.Kind = kind.String()
		outcome.Error = err.Error()
		metrics.FilesTotal.WithLabelValues("upload", metrics.StatusFailed).Inc()
		logger.L().Errorw("Upload failed",
			"file", key, "bucket", u.bucket, "attempts", attempts, "kind", kind.String(), "error", err)
		return outcome
	}

	metrics.FilesTotal.WithLabelValues("upload", metrics.StatusSuccess).Inc()
	logger.L().Infow("Uploaded file", "file", key, "bucket", u.bucket, "attempts", attempts)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.L().Warnw("Failed to remove local file", "file", path, "error", err)
	}
	return outcome
}

func (u *Uploader) attempt(ctx context.Context, path, key string) error {
	ctx, cancel := context.WithTimeout(ctx, u.attemptTimeout)
	defer cancel()

	f, err := os.Open(path)
	if err != nil {
		return etlerr.New(etlerr.KindNotFound, "open "+path, err)
	}
	defer f.Close()

	if err := u.store.Put(ctx, u.bucket, key, f); err != nil {
		return err
	}
	ok, err := u.store.Exists(ctx, u.bucket, key)
	if err != nil {
		return err
	}
	if !ok {
		return etlerr.Errorf(etlerr.KindVerification, "verify "+key, "object missing from bucket %s after upload", u.bucket)
	}
	return nil
}

// UploadBatch uploads paths on a bounded pool and waits for every file.
// Outcomes are returned in input order; one file's failure does not cancel
// the others.
func (u *Uploader) UploadBatch(ctx context.Context, paths []string) []models.FileOutcome {
	outcomes := make([]models.FileOutcome, len(paths))
	var g errgroup.Group
	g.SetLimit(u.workers)
	for i, path := range paths {
		g.Go(func() error {
			outcomes[i] = recoverOutcome(filepath.Base(path), func() models.FileOutcome { return u.UploadFile(ctx, path) })
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}
