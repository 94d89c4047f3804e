package blobstore

import (
	"context"
	"errors"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/BartekS5/ticketflow/pkg/etlerr"
	"github.com/BartekS5/ticketflow/pkg/logger"
)

// GCS stores objects in Google Cloud Storage.
type GCS struct {
	client    *storage.Client
	projectID string
}

// NewGCS builds a store on the default application credentials.
func NewGCS(ctx context.Context, projectID string) (*GCS, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, etlerr.Wrap("create storage client", err)
	}
	return &GCS{client: client, projectID: projectID}, nil
}

func (g *GCS) Close() error {
	return g.client.Close()
}

// EnsureBucket creates the bucket in the project when it is missing. An
// existing bucket that is not listed under the project is a Configuration
// error: uploading into it would silently write somewhere else.
func (g *GCS) EnsureBucket(ctx context.Context, bucket string) error {
	bkt := g.client.Bucket(bucket)
	_, err := bkt.Attrs(ctx)
	switch {
	case errors.Is(err, storage.ErrBucketNotExist):
		if err := bkt.Create(ctx, g.projectID, nil); err != nil {
			if etlerr.Classify(err) == etlerr.KindConfiguration {
				return etlerr.New(etlerr.KindConfiguration, "create bucket "+bucket, err)
			}
			return etlerr.Wrap("create bucket "+bucket, err)
		}
		logger.Infof("Created bucket '%s'", bucket)
		return nil
	case err != nil:
		return etlerr.Wrap("get bucket "+bucket, err)
	}

	owned, err := g.ownsBucket(ctx, bucket)
	if err != nil {
		return err
	}
	if !owned {
		return etlerr.Errorf(etlerr.KindConfiguration, "ensure bucket", "bucket %q exists but does not belong to project %q", bucket, g.projectID)
	}
	logger.Infof("Bucket '%s' exists and belongs to project %s", bucket, g.projectID)
	return nil
}

func (g *GCS) ownsBucket(ctx context.Context, bucket string) (bool, error) {
	it := g.client.Buckets(ctx, g.projectID)
	it.Prefix = bucket
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return false, nil
		}
		if err != nil {
			return false, etlerr.Wrap("list project buckets", err)
		}
		if attrs.Name == bucket {
			return true, nil
		}
	}
}

func (g *GCS) Put(ctx context.Context, bucket, key string, r io.Reader) error {
	w := g.client.Bucket(bucket).Object(key).NewWriter(ctx)
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return etlerr.Wrap(opName("put", bucket, key), err)
	}
	if err := w.Close(); err != nil {
		return etlerr.Wrap(opName("put", bucket, key), err)
	}
	return nil
}

func (g *GCS) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := g.client.Bucket(bucket).Object(key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, etlerr.Wrap(opName("stat", bucket, key), err)
	}
	return true, nil
}

func (g *GCS) Copy(ctx context.Context, bucket, srcKey, dstKey string) error {
	bkt := g.client.Bucket(bucket)
	if _, err := bkt.Object(dstKey).CopierFrom(bkt.Object(srcKey)).Run(ctx); err != nil {
		return etlerr.Wrap(opName("copy", bucket, srcKey), err)
	}
	return nil
}

func (g *GCS) Delete(ctx context.Context, bucket, key string) error {
	if err := g.client.Bucket(bucket).Object(key).Delete(ctx); err != nil {
		return etlerr.Wrap(opName("delete", bucket, key), err)
	}
	return nil
}

func (g *GCS) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	it := g.client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	var keys []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return keys, nil
		}
		if err != nil {
			return nil, etlerr.Wrap("list "+URI(bucket, prefix), err)
		}
		keys = append(keys, attrs.Name)
	}
}

func (g *GCS) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	r, err := g.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, etlerr.Wrap(opName("open", bucket, key), err)
	}
	return r, nil
}
