package preserve

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// hotCopySQLite snapshots a possibly-live SQLite database using the
// engine's own VACUUM INTO, which produces a consistent copy even when
// the source has open writers. A naive byte copy of an open database
// can capture a torn snapshot.
//
// This path talks to the real filesystem: SQLite manages its own I/O.
func hotCopySQLite(srcPath, dstPath string) error {
	db, err := sql.Open("sqlite3", srcPath+"?mode=ro")
	if err != nil {
		return fmt.Errorf("open source database: %w", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(1)

	if _, err := db.Exec("VACUUM INTO ?", dstPath); err != nil {
		return fmt.Errorf("vacuum into: %w", err)
	}
	return nil
}

// checkSQLiteIntegrity runs the engine's structural consistency check
// on a database file. Anything other than a single "ok" row fails.
func checkSQLiteIntegrity(path string) error {
	db, err := sql.Open("sqlite3", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(1)

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check reported: %s", result)
	}
	return nil
}
