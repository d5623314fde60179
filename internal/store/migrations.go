package store

type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS emails (
	id             TEXT PRIMARY KEY,
	message_id     TEXT NOT NULL DEFAULT '',
	uid            INTEGER NOT NULL DEFAULT 0,
	subject        TEXT NOT NULL DEFAULT '',
	from_header    TEXT NOT NULL DEFAULT '',
	sender_email   TEXT NOT NULL DEFAULT '',
	to_header      TEXT NOT NULL DEFAULT '',
	date           TEXT NOT NULL DEFAULT '',
	body           TEXT NOT NULL DEFAULT '',
	is_html        INTEGER NOT NULL DEFAULT 0,
	attachments    TEXT NOT NULL DEFAULT '[]',
	status         TEXT NOT NULL,
	classification TEXT NOT NULL,
	parsed         TEXT,
	created_at     TEXT NOT NULL,
	updated_at     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_emails_status ON emails(status);
CREATE INDEX IF NOT EXISTS idx_emails_classification ON emails(classification);
CREATE INDEX IF NOT EXISTS idx_emails_created_at ON emails(created_at);

CREATE TABLE IF NOT EXISTS rules (
	id          TEXT PRIMARY KEY,
	type        TEXT NOT NULL CHECK (type IN ('whitelist', 'blacklist')),
	pattern     TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	active      INTEGER NOT NULL DEFAULT 1,
	created_at  TEXT NOT NULL
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
DELETE FROM emails
WHERE message_id != ''
  AND rowid NOT IN (
	SELECT MIN(rowid) FROM emails WHERE message_id != '' GROUP BY message_id
  );

CREATE UNIQUE INDEX IF NOT EXISTS idx_emails_message_id ON emails(message_id) WHERE message_id != '';

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
