package activities

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pagopa/io-functions-admin-sub002/internal/platform/blob"
	id "github.com/pagopa/io-functions-admin-sub002/pkg/domain"
	dErrors "github.com/pagopa/io-functions-admin-sub002/pkg/domain-errors"
)

// Purger removes or anonymizes one collection of a citizen's data.
type Purger interface {
	Name() string
	Purge(ctx context.Context, fiscalCode id.FiscalCode) error
}

// Deleter runs every purger for a delete request. All purgers are attempted
// even when one fails, so a partial outage does not block the rest of the
// erasure; the joined error still fails the activity and triggers a retry.
type Deleter struct {
	purgers []Purger
	logger  *slog.Logger
}

type DeleterOption func(*Deleter)

func WithDeleterLogger(logger *slog.Logger) DeleterOption {
	return func(d *Deleter) { d.logger = logger }
}

func NewDeleter(purgers []Purger, opts ...DeleterOption) *Deleter {
	d := &Deleter{purgers: purgers, logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Deleter) Run(ctx context.Context, fiscalCode id.FiscalCode) error {
	var errs []error
	for _, purger := range d.purgers {
		if err := purger.Purge(ctx, fiscalCode); err != nil {
			d.logger.Error("purge failed",
				"purger", purger.Name(), "fiscal_code", fiscalCode, "error", err)
			errs = append(errs, fmt.Errorf("purge %s: %w", purger.Name(), err))
		}
	}
	if len(errs) > 0 {
		return dErrors.Wrap(errors.Join(errs...), dErrors.CodeUnavailable, "delete user data")
	}
	return nil
}

// BundlePurger removes a citizen's export bundle and its metadata sidecar.
// Part of a delete request: a citizen who asked for erasure must not leave
// a downloadable export behind.
type BundlePurger struct {
	blobs blob.Store
}

func NewBundlePurger(blobs blob.Store) *BundlePurger {
	return &BundlePurger{blobs: blobs}
}

func (p *BundlePurger) Name() string { return "export_bundle" }

func (p *BundlePurger) Purge(ctx context.Context, fiscalCode id.FiscalCode) error {
	if err := p.blobs.Delete(ctx, BundleBlobID(fiscalCode), ""); err != nil {
		return err
	}
	return p.blobs.Delete(ctx, BundleMetaBlobID(fiscalCode), "")
}
