package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	uuid "github.com/satori/go.uuid"

	"github.com/jmoiron/sqlx"

	"github.com/lovi-cloud/keagw/datastore"
	"github.com/lovi-cloud/keagw/httpd"
	"github.com/lovi-cloud/keagw/types"
)

// SQLite is
type SQLite struct {
	db *sqlx.DB
}

// New is
func New(ctx context.Context, dsn string) (datastore.Datastore, error) {
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite connection: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &SQLite{
		db: db,
	}, nil
}

type auditRow struct {
	ID        uuid.UUID      `db:"id"`
	Action    string         `db:"action"`
	IPAddress sql.NullString `db:"ip_address"`
	HWAddress sql.NullString `db:"hw_address"`
	SubnetID  sql.NullInt64  `db:"subnet_id"`
	Detail    string         `db:"detail"`
	CreatedAt time.Time      `db:"created_at"`
}

func toRow(event httpd.AuditEvent) auditRow {
	row := auditRow{
		ID:        event.ID,
		Action:    event.Action,
		Detail:    event.Detail,
		CreatedAt: event.CreatedAt,
	}
	if event.IPAddress != nil {
		row.IPAddress = sql.NullString{String: event.IPAddress.String(), Valid: true}
	}
	if event.HWAddress != nil {
		row.HWAddress = sql.NullString{String: event.HWAddress.String(), Valid: true}
	}
	if event.SubnetID != nil {
		row.SubnetID = sql.NullInt64{Int64: int64(*event.SubnetID), Valid: true}
	}
	return row
}

func (r auditRow) toEvent() httpd.AuditEvent {
	event := httpd.AuditEvent{
		ID:        r.ID,
		Action:    r.Action,
		Detail:    r.Detail,
		CreatedAt: r.CreatedAt,
	}
	if r.IPAddress.Valid {
		if ip, err := types.ParseIP(r.IPAddress.String); err == nil {
			event.IPAddress = ip
		}
	}
	if r.HWAddress.Valid {
		if mac, err := types.ParseMAC(r.HWAddress.String); err == nil {
			event.HWAddress = mac
		}
	}
	if r.SubnetID.Valid {
		id := int(r.SubnetID.Int64)
		event.SubnetID = &id
	}
	return event
}

// PutAuditEvent is
func (s *SQLite) PutAuditEvent(ctx context.Context, event httpd.AuditEvent) error {
	query := `INSERT INTO audit_event(id, action, ip_address, hw_address, subnet_id, detail, created_at) VALUES(?, ?, ?, ?, ?, ?, ?)`
	stmt, err := s.db.Preparex(query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	row := toRow(event)
	_, err = stmt.ExecContext(ctx,
		row.ID, row.Action, row.IPAddress, row.HWAddress, row.SubnetID, row.Detail, row.CreatedAt)
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
		// the event id is the idempotency key; a replayed put is a no-op
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to put audit event: %w", err)
	}
	return nil
}

// ListAuditEvents is
func (s *SQLite) ListAuditEvents(ctx context.Context, limit int) ([]httpd.AuditEvent, error) {
	query := `SELECT id, action, ip_address, hw_address, subnet_id, detail, created_at FROM audit_event ORDER BY created_at DESC, id LIMIT ?`
	stmt, err := s.db.Preparex(query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	rows := []auditRow{}
	err = stmt.SelectContext(ctx, &rows, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	events := make([]httpd.AuditEvent, 0, len(rows))
	for _, r := range rows {
		events = append(events, r.toEvent())
	}
	return events, nil
}

// Close is
func (s *SQLite) Close() error {
	return s.db.Close()
}
