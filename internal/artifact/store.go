// Package artifact uploads finished outputs to durable object storage and
// mints time-limited retrieval URLs. Signed URLs are derived credentials:
// they are recomputed on every status query that needs one and never
// persisted.
package artifact

import (
	"context"
	"time"
)

// Store is the contract between the pipeline and object storage. Both the
// S3-compatible store and the dev filesystem store satisfy it.
type Store interface {
	// Upload copies localPath to the object addressed by key, overwriting
	// any previous object under the same key.
	Upload(ctx context.Context, localPath, key, contentType string) error
	// SignedURL mints a time-limited retrieval URL for key. It fails with
	// domain.ErrNotFound when the object does not exist, which the status
	// path treats as a degraded response rather than an error.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}
