package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the rulesync store (SQLite).
var Migrations = migrate.NewGroup("rulesync")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_rulesync_ledger",
			Version: "20250601000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS rulesync_ledger (
    key             TEXT PRIMARY KEY,
    revision        TEXT NOT NULL DEFAULT '',
    highest_rule_id INTEGER NOT NULL DEFAULT 0,
    records         INTEGER NOT NULL DEFAULT 0,
    data            TEXT NOT NULL DEFAULT '{}',
    saved_at        TEXT NOT NULL DEFAULT (datetime('now'))
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS rulesync_ledger`)
				return err
			},
		},
	)
}
