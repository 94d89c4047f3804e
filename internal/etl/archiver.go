package etl

import (
	"context"
	"path"
	"strings"

	"github.com/BartekS5/ticketflow/pkg/blobstore"
	"github.com/BartekS5/ticketflow/pkg/etlerr"
	"github.com/BartekS5/ticketflow/pkg/logger"
)

// ArchivePrefix holds processed files. Presence under it is the only
// record that a file was loaded.
const ArchivePrefix = "archive/"

// Archiver discovers unprocessed files in the bucket root and moves
// processed ones under ArchivePrefix.
type Archiver struct {
	store  blobstore.Store
	bucket string
}

func NewArchiver(store blobstore.Store, bucket string) *Archiver {
	return &Archiver{store: store, bucket: bucket}
}

// ListInputFiles returns URIs of root-level .csv objects whose name starts
// with datePrefix (any name when empty), in lexical order. An object that
// already has an archived copy was loaded before an interrupted archive
// move; it is skipped and its root copy removed.
func (a *Archiver) ListInputFiles(ctx context.Context, datePrefix string) ([]string, error) {
	keys, err := a.store.List(ctx, a.bucket, datePrefix)
	if err != nil {
		return nil, err
	}
	archived, err := a.store.List(ctx, a.bucket, ArchivePrefix+datePrefix)
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool, len(archived))
	for _, k := range archived {
		done[strings.TrimPrefix(k, ArchivePrefix)] = true
	}

	var uris []string
	for _, key := range keys {
		if strings.Contains(key, "/") || path.Ext(key) != ".csv" {
			continue
		}
		if done[key] {
			logger.L().Infow("Skipping already archived file", "file", key)
			if err := a.store.Delete(ctx, a.bucket, key); err != nil {
				logger.L().Warnw("Failed to remove archived file from bucket root",
					"file", key, "kind", etlerr.Classify(err).String(), "error", err)
			}
			continue
		}
		uris = append(uris, blobstore.URI(a.bucket, key))
	}
	return uris, nil
}

// Archive copies key to ArchivePrefix+key, then deletes the original.
func (a *Archiver) Archive(ctx context.Context, key string) error {
	if err := a.store.Copy(ctx, a.bucket, key, ArchivePrefix+key); err != nil {
		return err
	}
	return a.store.Delete(ctx, a.bucket, key)
}
