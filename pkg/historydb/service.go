// HistoryDB records the bridge's command/response traffic and pin
// transitions for post-test analysis. The bridge's runtime state stays
// in-memory and is rebuilt from hardware on reconnect; this log is test
// evidence, never read back into the engine.
package historydb

import (
	"database/sql"
	"embed"
	"sync"

	"github.com/NotCoffee418/dbmigrator"
	"github.com/sirupsen/logrus"

	_ "modernc.org/sqlite"
)

var (
	db     *sql.DB
	dbPath string
	once   sync.Once
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// InitializeDatabase must be called manually on startup, before GetDB.
func InitializeDatabase(path string) {
	dbPath = path

	// Create DB before migrations
	db := GetDB()
	_, err := db.Exec("SELECT 1;")
	if err != nil {
		logrus.Warnf("Could not create history DB: %v", err)
	}

	// Apply migrations
	dbmigrator.SetDatabaseType(dbmigrator.SQLite)
	<-dbmigrator.MigrateUpCh(
		db,
		migrationFS,
		"migrations",
	)
}

func GetDB() *sql.DB {
	once.Do(func() {
		var err error
		db, err = sql.Open("sqlite", dbPath)
		if err != nil {
			logrus.Fatal(err)
		}
		// Verify connection
		if err = db.Ping(); err != nil {
			logrus.Fatal(err)
		}
	})
	return db
}
