package sqlite

const schema = `
CREATE TABLE IF NOT EXISTS audit_event (
    id         TEXT PRIMARY KEY,
    action     TEXT NOT NULL,
    ip_address TEXT,
    hw_address TEXT,
    subnet_id  INTEGER,
    detail     TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_event_created_at ON audit_event(created_at);
`
