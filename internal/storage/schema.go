package storage

var migrations = []struct {
	version int
	sql     string
}{
	{version: 1, sql: migrationV1},
	{version: 2, sql: migrationV2},
}

// migrationV1 creates the command store and its full-text indexes.
const migrationV1 = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_meta (
  version INTEGER PRIMARY KEY,
  applied_at_unix_ms INTEGER NOT NULL
);

-- Commands
CREATE TABLE IF NOT EXISTS commands (
  pk INTEGER PRIMARY KEY AUTOINCREMENT,
  id TEXT NOT NULL UNIQUE,
  category TEXT NOT NULL,
  source TEXT NOT NULL,
  alias TEXT UNIQUE,
  cmd TEXT NOT NULL UNIQUE,
  flat_cmd TEXT NOT NULL,
  description TEXT,
  flat_description TEXT,
  tags TEXT,
  created_at_unix_ms INTEGER NOT NULL,
  updated_at_unix_ms INTEGER
);

CREATE INDEX IF NOT EXISTS idx_commands_category ON commands(category);
CREATE INDEX IF NOT EXISTS idx_commands_source ON commands(source);

-- Word index for exact and prefix matching
CREATE VIRTUAL TABLE IF NOT EXISTS commands_fts USING fts5(
  flat_cmd,
  flat_description,
  content='commands',
  content_rowid='pk',
  tokenize='unicode61'
);

-- Trigram index for fuzzy matching
CREATE VIRTUAL TABLE IF NOT EXISTS commands_trgm USING fts5(
  flat_cmd,
  flat_description,
  content='commands',
  content_rowid='pk',
  tokenize='trigram'
);

CREATE TRIGGER IF NOT EXISTS commands_ai AFTER INSERT ON commands BEGIN
  INSERT INTO commands_fts(rowid, flat_cmd, flat_description)
    VALUES (new.pk, new.flat_cmd, new.flat_description);
  INSERT INTO commands_trgm(rowid, flat_cmd, flat_description)
    VALUES (new.pk, new.flat_cmd, new.flat_description);
END;

CREATE TRIGGER IF NOT EXISTS commands_ad AFTER DELETE ON commands BEGIN
  INSERT INTO commands_fts(commands_fts, rowid, flat_cmd, flat_description)
    VALUES ('delete', old.pk, old.flat_cmd, old.flat_description);
  INSERT INTO commands_trgm(commands_trgm, rowid, flat_cmd, flat_description)
    VALUES ('delete', old.pk, old.flat_cmd, old.flat_description);
END;

CREATE TRIGGER IF NOT EXISTS commands_au AFTER UPDATE ON commands BEGIN
  INSERT INTO commands_fts(commands_fts, rowid, flat_cmd, flat_description)
    VALUES ('delete', old.pk, old.flat_cmd, old.flat_description);
  INSERT INTO commands_trgm(commands_trgm, rowid, flat_cmd, flat_description)
    VALUES ('delete', old.pk, old.flat_cmd, old.flat_description);
  INSERT INTO commands_fts(rowid, flat_cmd, flat_description)
    VALUES (new.pk, new.flat_cmd, new.flat_description);
  INSERT INTO commands_trgm(rowid, flat_cmd, flat_description)
    VALUES (new.pk, new.flat_cmd, new.flat_description);
END;

-- Usage per working directory
CREATE TABLE IF NOT EXISTS command_usage (
  command_id TEXT NOT NULL REFERENCES commands(id) ON DELETE CASCADE,
  path TEXT NOT NULL,
  usage_count INTEGER NOT NULL DEFAULT 0,
  PRIMARY KEY (command_id, path)
);

CREATE INDEX IF NOT EXISTS idx_command_usage_path ON command_usage(path);
`

// migrationV2 adds variable completions.
const migrationV2 = `
CREATE TABLE IF NOT EXISTS variable_completions (
  id TEXT PRIMARY KEY,
  root_cmd TEXT NOT NULL DEFAULT '',
  variable TEXT NOT NULL,
  suggestions_provider TEXT NOT NULL,
  created_at_unix_ms INTEGER NOT NULL,
  updated_at_unix_ms INTEGER,
  UNIQUE (root_cmd, variable)
);

CREATE INDEX IF NOT EXISTS idx_variable_completions_variable ON variable_completions(variable);
`

// workspaceSchema creates the connection-local workspace tables. They live in
// the temp schema and vanish when the connection closes.
const workspaceSchema = `
CREATE TEMP TABLE IF NOT EXISTS workspace_commands (
  pk INTEGER PRIMARY KEY AUTOINCREMENT,
  id TEXT NOT NULL UNIQUE,
  category TEXT NOT NULL,
  source TEXT NOT NULL,
  alias TEXT,
  cmd TEXT NOT NULL UNIQUE,
  flat_cmd TEXT NOT NULL,
  description TEXT,
  flat_description TEXT,
  tags TEXT,
  created_at_unix_ms INTEGER NOT NULL,
  updated_at_unix_ms INTEGER
);

CREATE VIRTUAL TABLE IF NOT EXISTS temp.workspace_commands_fts USING fts5(
  flat_cmd,
  flat_description,
  tokenize='unicode61'
);

CREATE VIRTUAL TABLE IF NOT EXISTS temp.workspace_commands_trgm USING fts5(
  flat_cmd,
  flat_description,
  tokenize='trigram'
);
`
