package persistence

import "github.com/jmoiron/sqlx"

// schema is applied in full on startup; every statement is idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS emails (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	message_id       TEXT NOT NULL UNIQUE,
	uid              INTEGER NOT NULL DEFAULT 0,
	folder           TEXT NOT NULL DEFAULT 'INBOX',
	thread_id        TEXT NOT NULL DEFAULT '',
	in_reply_to      TEXT NOT NULL DEFAULT '',
	email_references TEXT NOT NULL DEFAULT '[]',
	subject          TEXT NOT NULL DEFAULT '',
	from_address     TEXT NOT NULL DEFAULT '',
	from_name        TEXT NOT NULL DEFAULT '',
	body_text        TEXT NOT NULL DEFAULT '',
	body_html        TEXT NOT NULL DEFAULT '',
	snippet          TEXT NOT NULL DEFAULT '',
	date_sent        TIMESTAMP NOT NULL,
	date_received    TIMESTAMP NOT NULL,
	is_read          INTEGER NOT NULL DEFAULT 0,
	is_starred       INTEGER NOT NULL DEFAULT 0,
	is_important     INTEGER NOT NULL DEFAULT 0,
	is_draft         INTEGER NOT NULL DEFAULT 0,
	is_sent          INTEGER NOT NULL DEFAULT 0,
	is_trash         INTEGER NOT NULL DEFAULT 0,
	is_spam          INTEGER NOT NULL DEFAULT 0,
	labels           TEXT NOT NULL DEFAULT '[]',
	size_bytes       INTEGER NOT NULL DEFAULT 0,
	attachment_count INTEGER NOT NULL DEFAULT 0,
	raw_headers      TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at       TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_emails_date_sent   ON emails(date_sent DESC);
CREATE INDEX IF NOT EXISTS idx_emails_folder      ON emails(folder);
CREATE INDEX IF NOT EXISTS idx_emails_from        ON emails(from_address);
CREATE INDEX IF NOT EXISTS idx_emails_thread      ON emails(thread_id);
CREATE INDEX IF NOT EXISTS idx_emails_is_read     ON emails(is_read);
CREATE INDEX IF NOT EXISTS idx_emails_is_starred  ON emails(is_starred);
CREATE INDEX IF NOT EXISTS idx_emails_uid         ON emails(uid);

CREATE TABLE IF NOT EXISTS recipients (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	email_id INTEGER NOT NULL REFERENCES emails(id) ON DELETE CASCADE,
	kind     TEXT NOT NULL,
	address  TEXT NOT NULL,
	name     TEXT NOT NULL DEFAULT '',
	domain   TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_recipients_email   ON recipients(email_id);
CREATE INDEX IF NOT EXISTS idx_recipients_address ON recipients(address);
CREATE INDEX IF NOT EXISTS idx_recipients_domain  ON recipients(domain);
CREATE INDEX IF NOT EXISTS idx_recipients_kind    ON recipients(kind);

CREATE TABLE IF NOT EXISTS attachments (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	email_id     INTEGER NOT NULL REFERENCES emails(id) ON DELETE CASCADE,
	filename     TEXT NOT NULL DEFAULT '',
	content_type TEXT NOT NULL DEFAULT '',
	extension    TEXT NOT NULL DEFAULT '',
	size_bytes   INTEGER NOT NULL DEFAULT 0,
	content_id   TEXT NOT NULL DEFAULT '',
	is_inline    INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_attachments_email     ON attachments(email_id);
CREATE INDEX IF NOT EXISTS idx_attachments_extension ON attachments(extension);

CREATE VIRTUAL TABLE IF NOT EXISTS emails_fts USING fts5 (
	email_id UNINDEXED,
	message_id,
	subject,
	from_address,
	from_name,
	body_text,
	recipients,
	attachments,
	tokenize='porter unicode61'
);

CREATE TRIGGER IF NOT EXISTS emails_fts_delete AFTER DELETE ON emails BEGIN
	DELETE FROM emails_fts WHERE email_id = old.id;
END;

CREATE TABLE IF NOT EXISTS sync_runs (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	type         TEXT NOT NULL,
	folder       TEXT NOT NULL,
	synced       INTEGER NOT NULL DEFAULT 0,
	skipped      INTEGER NOT NULL DEFAULT 0,
	errors       INTEGER NOT NULL DEFAULT 0,
	started_at   TIMESTAMP NOT NULL,
	completed_at TIMESTAMP NOT NULL
);
`

// Migrate creates the schema if it does not exist yet.
func Migrate(db *sqlx.DB) error {
	_, err := db.Exec(schema)
	return err
}
