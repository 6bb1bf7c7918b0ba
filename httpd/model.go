package httpd

import (
	"time"

	uuid "github.com/satori/go.uuid"

	"github.com/lovi-cloud/keagw/types"
)

// Audit actions recorded for mutating operations.
const (
	AuditActionPromote           = "promote"
	AuditActionDeleteReservation = "delete-reservation"
	AuditActionDeleteLease       = "delete-lease"
	AuditActionDeleteLeasesByMAC = "delete-leases-by-mac"
)

// PromoteRequest is the body of POST /api/promote: promote a lease (or an
// arbitrary binding) to a durable reservation.
type PromoteRequest struct {
	IPAddress  string   `json:"ip_address"`
	HWAddress  string   `json:"hw_address"`
	Hostname   string   `json:"hostname,omitempty"`
	SubnetID   *int     `json:"subnet_id,omitempty"`
	DNSServers []string `json:"dns_servers,omitempty"`
	Force      bool     `json:"force,omitempty"`
}

// AuditEvent is one recorded mutation.
type AuditEvent struct {
	ID        uuid.UUID           `db:"id" json:"id"`
	Action    string              `db:"action" json:"action"`
	IPAddress *types.IP           `db:"ip_address" json:"ip_address,omitempty"`
	HWAddress *types.HardwareAddr `db:"hw_address" json:"hw_address,omitempty"`
	SubnetID  *int                `db:"subnet_id" json:"subnet_id,omitempty"`
	Detail    string              `db:"detail" json:"detail"`
	CreatedAt time.Time           `db:"created_at" json:"created_at"`
}
