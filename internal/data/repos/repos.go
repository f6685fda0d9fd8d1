package repos

import (
	"github.com/yungbote/tourforge-backend/internal/data/repos/pipeline"
	"github.com/yungbote/tourforge-backend/internal/platform/logger"
	"gorm.io/gorm"
)

type PipelineRepo = pipeline.PipelineRepo
type AttemptRepo = pipeline.AttemptRepo
type JobEventRepo = pipeline.JobEventRepo
type NotificationRepo = pipeline.NotificationRepo

func NewPipelineRepo(db *gorm.DB, baseLog *logger.Logger) PipelineRepo {
	return pipeline.NewPipelineRepo(db, baseLog)
}
func NewAttemptRepo(db *gorm.DB, baseLog *logger.Logger) AttemptRepo {
	return pipeline.NewAttemptRepo(db, baseLog)
}
func NewJobEventRepo(db *gorm.DB, baseLog *logger.Logger) JobEventRepo {
	return pipeline.NewJobEventRepo(db, baseLog)
}
func NewNotificationRepo(db *gorm.DB, baseLog *logger.Logger) NotificationRepo {
	return pipeline.NewNotificationRepo(db, baseLog)
}
