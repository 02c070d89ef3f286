// Package database provides SQLite connectivity for SWNCREW Core.
//
// The database holds the completed-mission history and nothing that the
// scheduler needs to resume after a restart; the mission queue itself is
// kept in memory.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    log.Fatal(err)
//	}
//
// Migrations are additive-only. Each migration file has both .up.sql and
// .down.sql, named YYYYMMDD_HHMMSS_description.
package database
