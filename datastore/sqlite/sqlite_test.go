package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	uuid "github.com/satori/go.uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lovi-cloud/keagw/httpd"
	"github.com/lovi-cloud/keagw/types"
)

func newTestDatastore(t *testing.T) *SQLite {
	t.Helper()
	ds, err := New(context.Background(), "file:"+filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { ds.Close() })
	return ds.(*SQLite)
}

func TestPutAndListAuditEvents(t *testing.T) {
	ds := newTestDatastore(t)
	ctx := context.Background()

	ip, err := types.ParseIP("192.168.1.50")
	require.NoError(t, err)
	mac, err := types.ParseMAC("aa:bb:cc:dd:ee:01")
	require.NoError(t, err)
	subnetID := 1

	first := httpd.AuditEvent{
		ID:        uuid.NewV4(),
		Action:    httpd.AuditActionPromote,
		IPAddress: ip,
		HWAddress: mac,
		SubnetID:  &subnetID,
		Detail:    "created reservation",
		CreatedAt: time.Now().UTC().Add(-time.Minute),
	}
	require.NoError(t, ds.PutAuditEvent(ctx, first))

	// nullable columns stay null
	second := httpd.AuditEvent{
		ID:        uuid.NewV4(),
		Action:    httpd.AuditActionDeleteLeasesByMAC,
		Detail:    "deleted 2 leases",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, ds.PutAuditEvent(ctx, second))

	events, err := ds.ListAuditEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)

	// newest first
	assert.Equal(t, second.ID, events[0].ID)
	assert.Nil(t, events[0].IPAddress)
	assert.Nil(t, events[0].SubnetID)

	assert.Equal(t, first.ID, events[1].ID)
	require.NotNil(t, events[1].IPAddress)
	assert.Equal(t, "192.168.1.50", events[1].IPAddress.String())
	require.NotNil(t, events[1].HWAddress)
	assert.Equal(t, "aa:bb:cc:dd:ee:01", events[1].HWAddress.String())
	require.NotNil(t, events[1].SubnetID)
	assert.Equal(t, 1, *events[1].SubnetID)
}

func TestPutAuditEventReplayedID(t *testing.T) {
	ds := newTestDatastore(t)
	ctx := context.Background()

	event := httpd.AuditEvent{
		ID:        uuid.NewV4(),
		Action:    httpd.AuditActionPromote,
		Detail:    "created reservation",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, ds.PutAuditEvent(ctx, event))
	require.NoError(t, ds.PutAuditEvent(ctx, event))

	events, err := ds.ListAuditEvents(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestListAuditEventsLimit(t *testing.T) {
	ds := newTestDatastore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, ds.PutAuditEvent(ctx, httpd.AuditEvent{
			ID:        uuid.NewV4(),
			Action:    httpd.AuditActionDeleteLease,
			Detail:    "deleted lease",
			CreatedAt: time.Now().UTC().Add(time.Duration(i) * time.Second),
		}))
	}

	events, err := ds.ListAuditEvents(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, events, 3)
}
