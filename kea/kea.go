package kea

import (
	"context"
	"encoding/json"
)

// Client is the interface for keagw to operate a Kea DHCPv4 server through
// its control agent.
type Client interface {
	GetVersion(ctx context.Context) (string, error)
	GetLeases(ctx context.Context, subnetID *int) ([]Lease, error)
	GetReservations(ctx context.Context, subnetID *int) ([]Reservation, error)
	CreateReservation(ctx context.Context, req CreateReservationRequest) (*CreateReservationResult, error)
	DeleteReservation(ctx context.Context, ipAddress string, subnetID *int) error
	DeleteLeaseByIP(ctx context.Context, ipAddress string) error
	DeleteLeasesByMAC(ctx context.Context, hwAddress string) (int, error)
	GetSubnets(ctx context.Context) ([]Subnet, error)
	// GetConfig returns the raw configuration document so that keys this
	// gateway does not model are preserved for display.
	GetConfig(ctx context.Context) (json.RawMessage, error)
}

// CreateReservationRequest is the input of Client.CreateReservation.
type CreateReservationRequest struct {
	IPAddress  string
	HWAddress  string
	Hostname   string
	SubnetID   *int
	DNSServers []string
	Force      bool
}

// CreateReservationResult reports what CreateReservation did. Created is
// false when an identical reservation already existed and no write was
// performed.
type CreateReservationResult struct {
	Reservation Reservation
	Created     bool
}
