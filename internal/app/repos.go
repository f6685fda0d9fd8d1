package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/tourforge-backend/internal/data/repos"
	"github.com/yungbote/tourforge-backend/internal/platform/logger"
)

type Repos struct {
	Pipeline     repos.PipelineRepo
	Attempt      repos.AttemptRepo
	JobEvent     repos.JobEventRepo
	Notification repos.NotificationRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Pipeline:     repos.NewPipelineRepo(db, log),
		Attempt:      repos.NewAttemptRepo(db, log),
		JobEvent:     repos.NewJobEventRepo(db, log),
		Notification: repos.NewNotificationRepo(db, log),
	}
}
