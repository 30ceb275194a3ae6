// Package database provides the SQLite store behind the gateway's account
// table.
//
// It opens the database with a busy timeout and optional WAL journal,
// restricts the file to the owner, and applies forward-only migrations
// embedded in the binary by the migrations package.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// All queries use parameterised statements.
package database
