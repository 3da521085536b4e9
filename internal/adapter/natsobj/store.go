// Package natsobj implements the blob storage port on a NATS JetStream
// ObjectStore bucket. References take the form obj://<bucket>/<name>.
package natsobj

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/percept-io/percept/internal/port/blobstore"
)

const refScheme = "obj://"

// Store holds uploaded images in a JetStream object bucket.
type Store struct {
	bucket string
	os     jetstream.ObjectStore
}

// New wraps an existing object store bucket.
func New(bucket string, os jetstream.ObjectStore) *Store {
	return &Store{bucket: bucket, os: os}
}

// Bucket provisions the image object bucket, creating it if missing.
func Bucket(ctx context.Context, js jetstream.JetStream, name string) (jetstream.ObjectStore, error) {
	os, err := js.CreateOrUpdateObjectStore(ctx, jetstream.ObjectStoreConfig{Bucket: name})
	if err != nil {
		return nil, fmt.Errorf("create object bucket %q: %w", name, err)
	}
	return os, nil
}

// Put stores data under name and returns its opaque reference.
func (s *Store) Put(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	meta := jetstream.ObjectMeta{Name: name}
	if contentType != "" {
		meta.Metadata = map[string]string{"content-type": contentType}
	}
	if _, err := s.os.Put(ctx, meta, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("put object %q: %w", name, err)
	}
	return refScheme + s.bucket + "/" + name, nil
}

// Get retrieves the bytes behind a reference produced by Put.
func (s *Store) Get(ctx context.Context, ref string) ([]byte, error) {
	name, err := s.parse(ref)
	if err != nil {
		return nil, err
	}
	data, err := s.os.GetBytes(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("get object %q: %w", name, err)
	}
	return data, nil
}

func (s *Store) parse(ref string) (string, error) {
	rest, ok := strings.CutPrefix(ref, refScheme)
	if !ok {
		return "", fmt.Errorf("malformed object reference %q", ref)
	}
	bucket, name, ok := strings.Cut(rest, "/")
	if !ok || name == "" {
		return "", fmt.Errorf("malformed object reference %q", ref)
	}
	if bucket != s.bucket {
		return "", fmt.Errorf("object reference %q targets foreign bucket", ref)
	}
	return name, nil
}

var _ blobstore.Store = (*Store)(nil)
