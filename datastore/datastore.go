package datastore

import (
	"context"

	"github.com/lovi-cloud/keagw/httpd"
)

// Datastore is an interface for keagw to persist its audit trail.
type Datastore interface {
	PutAuditEvent(ctx context.Context, event httpd.AuditEvent) error
	ListAuditEvents(ctx context.Context, limit int) ([]httpd.AuditEvent, error)

	Close() error
}
