package storage

// SchemaVersion is the user_version a fully migrated database reports.
const SchemaVersion = 3

type migration struct {
	version int
	name    string
	steps   []string
}

// migrations run in order inside one transaction. Every step must be safe
// to repeat so a database that skipped versions, or was partially created
// by hand, converges on the same schema.
var migrations = []migration{
	{
		version: 1,
		name:    "history",
		steps: []string{
			`CREATE TABLE IF NOT EXISTS history (
				id              TEXT PRIMARY KEY,
				original_prompt TEXT NOT NULL DEFAULT '',
				enhanced_prompt TEXT NOT NULL,
				target          TEXT NOT NULL,
				timestamp       INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_history_timestamp ON history(timestamp)`,
		},
	},
	{
		version: 2,
		name:    "collections",
		steps: []string{
			`CREATE TABLE IF NOT EXISTS collections (
				id          TEXT PRIMARY KEY,
				name        TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				color       TEXT NOT NULL DEFAULT '',
				is_default  INTEGER NOT NULL DEFAULT 0,
				sort_order  INTEGER NOT NULL DEFAULT 0,
				created_at  INTEGER NOT NULL,
				updated_at  INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_collections_sort_order ON collections(sort_order)`,
			`CREATE INDEX IF NOT EXISTS idx_collections_is_default ON collections(is_default)`,
			`CREATE INDEX IF NOT EXISTS idx_collections_created_at ON collections(created_at)`,
		},
	},
	{
		version: 3,
		name:    "saved_prompts",
		steps: []string{
			`CREATE TABLE IF NOT EXISTS saved_prompts (
				id              TEXT PRIMARY KEY,
				original_prompt TEXT NOT NULL,
				enhanced_prompt TEXT NOT NULL,
				target          TEXT NOT NULL,
				collection_id   TEXT NOT NULL,
				notes           TEXT NOT NULL DEFAULT '',
				created_at      INTEGER NOT NULL,
				updated_at      INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_saved_prompts_collection_id ON saved_prompts(collection_id)`,
			`CREATE INDEX IF NOT EXISTS idx_saved_prompts_target ON saved_prompts(target)`,
			`CREATE INDEX IF NOT EXISTS idx_saved_prompts_created_at ON saved_prompts(created_at)`,
		},
	},
}
