// Package visibleservices maintains the published cache of services that
// citizens can see. The cache is one JSON blob updated under a lease, so
// concurrent publishers never interleave a read-modify-write.
package visibleservices

import (
	id "github.com/pagopa/io-functions-admin-sub002/pkg/domain"
)

// Scope of a service's audience.
type Scope string

const (
	ScopeNational Scope = "NATIONAL"
	ScopeLocal    Scope = "LOCAL"
)

// VisibleService is one entry of the published cache.
type VisibleService struct {
	ServiceID              id.ServiceID `json:"service_id"`
	Version                int          `json:"version"`
	Name                   string       `json:"service_name"`
	OrganizationName       string       `json:"organization_name"`
	OrganizationFiscalCode string       `json:"organization_fiscal_code,omitempty"`
	Scope                  Scope        `json:"scope"`
}

// Cache is the decoded content of the visible-services blob.
type Cache map[id.ServiceID]VisibleService

// Action to apply to the cache for one service event.
type Action string

const (
	// ActionUpsert inserts or refreshes the service entry.
	ActionUpsert Action = "UPSERT"
	// ActionDelete removes the service entry.
	ActionDelete Action = "DELETE"
	// ActionNone leaves the cache untouched.
	ActionNone Action = "NONE"
)

// ComputeAction maps a service's visibility flip to a cache action. A
// service that is visible now is upserted whether or not it was visible
// before, since its metadata may have changed; one that just became
// invisible is deleted; one invisible on both sides needs nothing.
func ComputeAction(wasVisible, isVisible bool) Action {
	switch {
	case isVisible:
		return ActionUpsert
	case wasVisible:
		return ActionDelete
	default:
		return ActionNone
	}
}
