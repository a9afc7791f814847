package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the rulesync store.
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
    highest_rule_id INT NOT NULL DEFAULT 0,
    records         INT NOT NULL DEFAULT 0,
    data            JSONB NOT NULL DEFAULT '{}',
    saved_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS rulesync_ledger`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "index_rulesync_ledger_saved_at",
			Version: "20250601000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_rulesync_ledger_saved_at ON rulesync_ledger (saved_at)`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP INDEX IF EXISTS idx_rulesync_ledger_saved_at`)
				return err
			},
		},
	)
}
