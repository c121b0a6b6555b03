// Package store persists user-data processing records. The table is
// append-only: every status change is a new (processing_id, version) row and
// the current state is the highest version.
package store

import (
	"context"

	"github.com/pagopa/io-functions-admin-sub002/internal/processing/models"
	id "github.com/pagopa/io-functions-admin-sub002/pkg/domain"
)

// Store is the entity store for processing requests.
type Store interface {
	// FindLastVersion returns the current (highest) version of the record,
	// or sentinel.ErrNotFound when no version exists.
	FindLastVersion(ctx context.Context, processingID id.ProcessingID, fiscalCode id.FiscalCode) (*models.Request, error)

	// AppendVersion persists req as a new version. A row with the same
	// (processing_id, version) already present fails with
	// sentinel.ErrConflict; concurrent writers lose deterministically.
	AppendVersion(ctx context.Context, req *models.Request) (*models.Request, error)

	// FindAllFailed returns the current version of every record whose
	// current status is FAILED, in creation order.
	FindAllFailed(ctx context.Context) ([]*models.Request, error)
}
