// Package blob provides a small blob store with exclusive, time-bounded
// leases. The visible-services cache uses leases to serialize its
// read-modify-write cycle; the user-data bundle writer uses plain puts.
package blob

import (
	"context"
	"time"
)

// Store is the lease-guarded blob surface consumed by the cache updater and
// the download activity.
//
// Lease semantics: AcquireLease grants an exclusive lease for the given TTL
// and returns an opaque lease id. While a lease is live, Get and Put calls
// must present the matching lease id; calls with a stale or missing id fail
// with sentinel.ErrLeaseHeld. Blobs that are not leased accept calls with an
// empty lease id.
type Store interface {
	// AcquireLease obtains an exclusive lease on the blob. Returns
	// sentinel.ErrLeaseHeld (possibly wrapped) when another writer holds
	// one. Acquiring a lease on a blob that does not exist yet is allowed:
	// the lease guards the blob id, not the content.
	AcquireLease(ctx context.Context, blobID string, ttl time.Duration) (string, error)

	// ReleaseLease releases the lease if it is still owned. Releasing a
	// lease that already expired is not an error, so callers can release
	// unconditionally on every exit path.
	ReleaseLease(ctx context.Context, blobID, leaseID string) error

	// Get returns the blob content and whether the blob exists.
	Get(ctx context.Context, blobID, leaseID string) ([]byte, bool, error)

	// Put writes the blob content.
	Put(ctx context.Context, blobID string, data []byte, leaseID string) error

	// Delete removes the blob. Used by the user-data deletion activity to
	// purge exported bundles.
	Delete(ctx context.Context, blobID, leaseID string) error
}
