// Package database provides the SQLite connection used by hamonitor.
//
// This package manages:
//   - Opening the database file (or an in-memory database for tests)
//   - WAL mode and busy timeout
//   - Versioned schema migrations read from an fs.FS
//
// Security Considerations:
//   - All queries use parameterised statements
//   - The database file is created with 0600 permissions
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS, "."); err != nil {
//	    return err
//	}
package database
