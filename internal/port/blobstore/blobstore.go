// Package blobstore defines the binary object storage port for uploaded
// images. The core only forwards opaque references; workers fetch bytes
// themselves.
package blobstore

import "context"

// Store holds uploaded image bytes behind opaque references.
type Store interface {
	// Put stores data under a generated name and returns the opaque
	// reference to hand to workers.
	Put(ctx context.Context, name string, data []byte, contentType string) (string, error)

	// Get retrieves the bytes behind a reference produced by Put.
	Get(ctx context.Context, ref string) ([]byte, error)
}
