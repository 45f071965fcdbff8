package db

import (
	"database/sql"
	_ "embed"
	"fmt"
)

//go:embed sql/0001_checks_notifications.sql
var checksNotificationsSQL string

// The history schema is small and known at compile time, so migrations
// are an explicit ordered list rather than a directory scan. Append new
// entries with the next version; never edit an applied one.
var migrations = []struct {
	version int
	name    string
	apply   string
}{
	{1, "checks_notifications", checksNotificationsSQL},
}

// Migrate brings the history schema up to date. Applied versions are
// tracked in schema_version; the whole run is one transaction, so a
// failed upgrade leaves the previous schema intact.
func Migrate(conn *sql.DB) error {
	tx, err := conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`CREATE TABLE IF NOT EXISTS schema_version(version INTEGER NOT NULL);`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	var current int
	err = tx.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&current)
	if err == sql.ErrNoRows {
		if _, err := tx.Exec(`INSERT INTO schema_version(version) VALUES (0)`); err != nil {
			return fmt.Errorf("init schema_version: %w", err)
		}
		current = 0
	} else if err != nil {
		return fmt.Errorf("read schema_version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if _, err := tx.Exec(m.apply); err != nil {
			return fmt.Errorf("migration %d %s: %w", m.version, m.name, err)
		}
		if _, err := tx.Exec(`UPDATE schema_version SET version=?`, m.version); err != nil {
			return fmt.Errorf("update schema_version: %w", err)
		}
		current = m.version
	}
	return tx.Commit()
}
