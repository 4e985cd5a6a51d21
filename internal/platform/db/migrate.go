package db

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Migrate applies every embedded schema file in lexical order. Statements use
// IF NOT EXISTS so the call is safe on every boot.
func Migrate(ctx context.Context, conn DBTX) error {
	names, err := fs.Glob(schemaFS, "schema/*.sql")
	if err != nil {
		return fmt.Errorf("platform/db: list schema: %w", err)
	}
	sort.Strings(names)
	for _, name := range names {
		body, err := schemaFS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("platform/db: read %s: %w", name, err)
		}
		if _, err := conn.Exec(ctx, string(body)); err != nil {
			return fmt.Errorf("platform/db: apply %s: %w", name, err)
		}
	}
	return nil
}

// SchemaFiles lists the embedded schema files, mainly for tests and tooling.
func SchemaFiles() []string {
	names, _ := fs.Glob(schemaFS, "schema/*.sql")
	sort.Strings(names)
	return names
}
