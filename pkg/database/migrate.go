package database

import (
	"database/sql"
	"fmt"
	"sort"

	dbsql "github.com/gavincwyant/traintrack/pkg/database/sql"
	"github.com/gavincwyant/traintrack/pkg/logging"
)

// ApplySchema executes the embedded schema files in lexical order. All
// statements are idempotent (IF NOT EXISTS), so running it on every start
// is safe.
func ApplySchema(db *sql.DB, logger logging.Logger) error {
	entries, err := dbsql.Content.ReadDir("schema")
	if err != nil {
		return fmt.Errorf("failed to read embedded schema: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		content, err := dbsql.Content.ReadFile("schema/" + name)
		if err != nil {
			return fmt.Errorf("failed to read schema file %s: %w", name, err)
		}
		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to apply schema file %s: %w", name, err)
		}
		logger.WithFields(logging.Fields{"file": name}).Info("Applied schema file")
	}

	return nil
}
