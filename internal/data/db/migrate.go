package db

import (
	domain "github.com/yungbote/tourforge-backend/internal/domain/pipeline"
	"gorm.io/gorm"
)

// Models lists every persisted model, in migration order.
func Models() []interface{} {
	return []interface{}{
		&domain.Pipeline{},
		&domain.Attempt{},
		&domain.JobEvent{},
		&domain.Notification{},
	}
}

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
