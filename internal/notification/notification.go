// Package notification delivers citizen-facing messages about completed
// data exports.
package notification

import (
	"context"

	id "github.com/pagopa/io-functions-admin-sub002/pkg/domain"
)

// Message tells a citizen their export bundle is ready. Password travels in
// clear to the citizen only; the service persists nothing but its hash.
type Message struct {
	FiscalCode id.FiscalCode `json:"fiscal_code"`
	BundleURL  string        `json:"bundle_url"`
	Password   string        `json:"password"`
}

// Publisher delivers notification messages.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}
