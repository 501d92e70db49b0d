package store

import (
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func InitMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	return db, nil
}

// AutoMigrate creates/updates the engine's tables. Deployments with a
// managed schema can skip it.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&FileContent{}, &ProjectMember{}, &FileLock{}, &ActivityLog{})
}
