// Package database provides the SQLite store behind the message recorder.
//
// This package manages:
//   - Opening the database file with WAL mode and a busy timeout
//   - Schema migrations read from an fs.FS (see the migrations package)
//   - Transactions via InTx
//
// The database file is created with 0600 permissions. All queries use
// parameterised statements.
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql, and are applied in version order.
package database
