// Package migrations embeds the SQL schema for the payment database.
package migrations

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"github.com/jmoiron/sqlx"
)

//go:embed *.up.sql
var files embed.FS

// Up returns the forward migrations in apply order
func Up() ([]string, error) {
	names, err := fs.Glob(files, "*.up.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	out := make([]string, 0, len(names))
	for _, name := range names {
		b, err := files.ReadFile(name)
		if err != nil {
			return nil, err
		}
		out = append(out, string(b))
	}
	return out, nil
}

// Apply runs every forward migration against db. The statements are idempotent.
func Apply(ctx context.Context, db sqlx.ExecerContext) error {
	stmts, err := Up()
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}
	for i, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", i+1, err)
		}
	}
	return nil
}
