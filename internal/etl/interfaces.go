package etl

import (
	"context"
	"iter"

	"github.com/BartekS5/ticketflow/pkg/blobstore"
)

// PageFetcher yields raw event pages in increasing page-index order.
type PageFetcher interface {
	Pages(ctx context.Context, pageSize int, params map[string]string) iter.Seq2[Page, error]
}

// BlobStore is an object store that can also provision its bucket.
type BlobStore interface {
	blobstore.Store
	blobstore.Provisioner
}
