package visibleservices

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/pagopa/io-functions-admin-sub002/internal/platform/blob"
	dErrors "github.com/pagopa/io-functions-admin-sub002/pkg/domain-errors"
	"github.com/pagopa/io-functions-admin-sub002/pkg/platform/audit"
	"github.com/pagopa/io-functions-admin-sub002/pkg/platform/sentinel"
)

// AuditPublisher emits lifecycle audit events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Updater applies service visibility events to the cache blob. Every call
// is one lease cycle: acquire, read, guard on version, mutate, write,
// release. Two flips of the same service are applied as two independent
// cycles; the version guard alone decides which writes stick.
type Updater struct {
	blobs          blob.Store
	blobID         string
	leaseTTL       time.Duration
	logger         *slog.Logger
	auditPublisher AuditPublisher
}

type UpdaterOption func(*Updater)

func WithLogger(logger *slog.Logger) UpdaterOption {
	return func(u *Updater) { u.logger = logger }
}

func WithAuditPublisher(publisher AuditPublisher) UpdaterOption {
	return func(u *Updater) { u.auditPublisher = publisher }
}

func NewUpdater(blobs blob.Store, blobID string, leaseTTL time.Duration, opts ...UpdaterOption) *Updater {
	u := &Updater{
		blobs:    blobs,
		blobID:   blobID,
		leaseTTL: leaseTTL,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Update applies one event to the cache.
//
//   - A held lease fails with CodeUnavailable; the caller retries.
//   - An entry already at the incoming version or newer makes the call a
//     no-op success, so stale or duplicated events cannot regress the cache.
//   - The lease is released on every path, including decode and write
//     failures, which surface as retryable errors only after release.
func (u *Updater) Update(ctx context.Context, svc VisibleService, action Action) error {
	if action == ActionNone {
		return nil
	}
	if svc.ServiceID == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "service id is required")
	}

	leaseID, err := u.blobs.AcquireLease(ctx, u.blobID, u.leaseTTL)
	if err != nil {
		if errors.Is(err, sentinel.ErrLeaseHeld) {
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "visible services cache is being updated")
		}
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "acquire cache lease")
	}
	defer func() {
		if releaseErr := u.blobs.ReleaseLease(ctx, u.blobID, leaseID); releaseErr != nil {
			u.logger.Error("cannot release cache lease", "blob_id", u.blobID, "error", releaseErr)
		}
	}()

	cache, err := u.read(ctx, leaseID)
	if err != nil {
		return err
	}

	if current, ok := cache[svc.ServiceID]; ok && current.Version >= svc.Version {
		u.logger.Info("stale visibility event ignored",
			"service_id", svc.ServiceID, "cached_version", current.Version, "event_version", svc.Version)
		return nil
	}

	changed := false
	switch action {
	case ActionUpsert:
		cache[svc.ServiceID] = svc
		changed = true
	case ActionDelete:
		if _, ok := cache[svc.ServiceID]; ok {
			delete(cache, svc.ServiceID)
			changed = true
		}
	}
	if !changed {
		return nil
	}

	data, err := json.Marshal(cache)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode visible services cache")
	}
	if err := u.blobs.Put(ctx, u.blobID, data, leaseID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "write visible services cache")
	}

	u.emitAudit(ctx, svc, action)
	u.logger.Info("visible services cache updated",
		"service_id", svc.ServiceID, "action", string(action), "version", svc.Version)
	return nil
}

func (u *Updater) read(ctx context.Context, leaseID string) (Cache, error) {
	data, ok, err := u.blobs.Get(ctx, u.blobID, leaseID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "read visible services cache")
	}
	if !ok || len(data) == 0 {
		return make(Cache), nil
	}
	var cache Cache
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "decode visible services cache")
	}
	return cache, nil
}

func (u *Updater) emitAudit(ctx context.Context, svc VisibleService, action Action) {
	if u.auditPublisher == nil {
		return
	}
	err := u.auditPublisher.Emit(ctx, audit.Event{
		Action: string(audit.EventVisibleServicesUpdated),
		Reason: string(action) + " " + svc.ServiceID.String(),
	})
	if err != nil {
		u.logger.Error("cannot emit audit event", "error", err)
	}
}
