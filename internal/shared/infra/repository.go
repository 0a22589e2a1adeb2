package infra

import (
	"database/sql"
	"fmt"
	"log"

	"memoria/internal/shared/storage/dbutil"
	"memoria/internal/shared/storage/repository"
)

// openRepository 建表并创建 SQL 存储
func openRepository(db *sql.DB, dialect dbutil.Dialect) (*repository.Store, error) {
	if err := dialect.AutoMigrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate %s schema: %w", dialect.DriverType(), err)
	}
	log.Printf("[Infra] Opened %s store", dialect.DriverType())
	return repository.NewStore(db, dialect), nil
}
