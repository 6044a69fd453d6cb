// Package database handles database connections and schema inspection.
//
// It provides a wrapper around GORM to configure MySQL connections (production)
// or sqlite databases (local runs, tests) from the application's configuration.
//
// # Connect
//
// Connect opens the configured driver, applies pool settings and pings with the
// configured timeout. It knows nothing about the registry tables themselves.
//
// # Schema Inspection
//
// GetTableColumns reads live column definitions (SHOW COLUMNS on MySQL, PRAGMA
// table_info on sqlite). The schema integrity check compares them against the
// GORM models, and the batch recalculator uses MissingColumns to decide which
// work columns it still has to add.
//
// # Usage
//
//	db, err := database.Connect(cfg.Database)
//	if err != nil {
//	    return fmt.Errorf("failed to connect to database: %w", err)
//	}
//
//	columns, err := database.GetTableColumns(db, "file_groupings")
package database
