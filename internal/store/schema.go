package store

const schemaRoomsSQLite = `
CREATE TABLE IF NOT EXISTS rooms (
	id TEXT PRIMARY KEY,
	host_id TEXT NOT NULL DEFAULT '',
	provider_token TEXT NOT NULL DEFAULT '',
	provider_refresh_token TEXT NOT NULL DEFAULT '',
	last_active_at INTEGER NOT NULL
);`

const schemaCredentialsSQLite = `
CREATE TABLE IF NOT EXISTS credentials (
	principal_id TEXT PRIMARY KEY,
	access_token TEXT NOT NULL DEFAULT '',
	refresh_token TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);`

const schemaRoomsPostgres = `
CREATE TABLE IF NOT EXISTS rooms (
	id TEXT PRIMARY KEY,
	host_id TEXT NOT NULL DEFAULT '',
	provider_token TEXT NOT NULL DEFAULT '',
	provider_refresh_token TEXT NOT NULL DEFAULT '',
	last_active_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

const schemaCredentialsPostgres = `
CREATE TABLE IF NOT EXISTS credentials (
	principal_id TEXT PRIMARY KEY,
	access_token TEXT NOT NULL DEFAULT '',
	refresh_token TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`
