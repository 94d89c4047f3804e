package blobstore

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/BartekS5/ticketflow/pkg/etlerr"
)

// Memory is an in-process Store used for local dry runs and tests.
type Memory struct {
	mu      sync.RWMutex
	buckets map[string]map[string][]byte
	foreign map[string]bool
}

func NewMemory() *Memory {
	return &Memory{
		buckets: make(map[string]map[string][]byte),
		foreign: make(map[string]bool),
	}
}

// MarkForeign registers a bucket that exists but belongs to another
// project.
func (m *Memory) MarkForeign(bucket string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.foreign[bucket] = true
}

func (m *Memory) EnsureBucket(_ context.Context, bucket string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.foreign[bucket] {
		return etlerr.Errorf(etlerr.KindConfiguration, "ensure bucket", "bucket %q exists but does not belong to this project", bucket)
	}
	if _, ok := m.buckets[bucket]; !ok {
		m.buckets[bucket] = make(map[string][]byte)
	}
	return nil
}

func (m *Memory) Put(ctx context.Context, bucket, key string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return etlerr.New(etlerr.KindTransport, opName("put", bucket, key), err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := m.bucket(bucket)
	if err != nil {
		return err
	}
	b[key] = data
	return nil
}

func (m *Memory) Exists(_ context.Context, bucket, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, err := m.bucket(bucket)
	if err != nil {
		return false, err
	}
	_, ok := b[key]
	return ok, nil
}

func (m *Memory) Copy(_ context.Context, bucket, srcKey, dstKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := m.bucket(bucket)
	if err != nil {
		return err
	}
	data, ok := b[srcKey]
	if !ok {
		return etlerr.Errorf(etlerr.KindNotFound, opName("copy", bucket, srcKey), "object does not exist")
	}
	b[dstKey] = bytes.Clone(data)
	return nil
}

func (m *Memory) Delete(_ context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := m.bucket(bucket)
	if err != nil {
		return err
	}
	if _, ok := b[key]; !ok {
		return etlerr.Errorf(etlerr.KindNotFound, opName("delete", bucket, key), "object does not exist")
	}
	delete(b, key)
	return nil
}

func (m *Memory) List(_ context.Context, bucket, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, err := m.bucket(bucket)
	if err != nil {
		return nil, err
	}
	var keys []string
	for k := range b {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *Memory) Open(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, err := m.bucket(bucket)
	if err != nil {
		return nil, err
	}
	data, ok := b[key]
	if !ok {
		return nil, etlerr.Errorf(etlerr.KindNotFound, opName("open", bucket, key), "object does not exist")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// bucket must be called with mu held.
func (m *Memory) bucket(name string) (map[string][]byte, error) {
	b, ok := m.buckets[name]
	if !ok {
		return nil, etlerr.Errorf(etlerr.KindNotFound, "bucket "+name, "bucket does not exist")
	}
	return b, nil
}
