package activities

import (
	"context"
	"encoding/json"

	id "github.com/pagopa/io-functions-admin-sub002/pkg/domain"
	"github.com/pagopa/io-functions-admin-sub002/pkg/platform/audit"
)

// AuditTrailCollector contributes the citizen's processing audit trail to
// the export bundle.
type AuditTrailCollector struct {
	store audit.Store
}

func NewAuditTrailCollector(store audit.Store) *AuditTrailCollector {
	return &AuditTrailCollector{store: store}
}

func (c *AuditTrailCollector) Name() string { return "audit_trail" }

func (c *AuditTrailCollector) Collect(ctx context.Context, fiscalCode id.FiscalCode) (json.RawMessage, error) {
	events, err := c.store.ListByFiscalCode(ctx, fiscalCode)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []audit.Event{}
	}
	return json.Marshal(events)
}
