// Package blobstore is the object-store boundary: a flat key space per
// bucket with put, existence check, copy, delete, list and read.
package blobstore

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/BartekS5/ticketflow/pkg/etlerr"
)

// Scheme prefixes object URIs handed to the warehouse.
const Scheme = "gs://"

// Store is implemented by every object-store backend. Errors carry an
// etlerr kind.
type Store interface {
	Put(ctx context.Context, bucket, key string, r io.Reader) error
	Exists(ctx context.Context, bucket, key string) (bool, error)
	Copy(ctx context.Context, bucket, srcKey, dstKey string) error
	Delete(ctx context.Context, bucket, key string) error
	// List returns the keys under prefix in lexical order.
	List(ctx context.Context, bucket, prefix string) ([]string, error)
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// Provisioner creates the bucket if needed and refuses buckets owned by
// someone else with a Configuration error.
type Provisioner interface {
	EnsureBucket(ctx context.Context, bucket string) error
}

// URI returns the gs:// URI of an object.
func URI(bucket, key string) string {
	return Scheme + bucket + "/" + key
}

// ParseURI splits a gs:// URI into bucket and key.
func ParseURI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, Scheme)
	if !ok {
		return "", "", etlerr.Errorf(etlerr.KindMalformedRequest, "parse uri", "%q is not a %s URI", uri, Scheme)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", etlerr.Errorf(etlerr.KindMalformedRequest, "parse uri", "%q has no object key", uri)
	}
	return bucket, key, nil
}

func opName(op, bucket, key string) string {
	return fmt.Sprintf("%s %s", op, URI(bucket, key))
}
