package pipeline

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	dataagg "github.com/yungbote/tourforge-backend/internal/data/aggregates"
	"github.com/yungbote/tourforge-backend/internal/domain/aggregates"
	domain "github.com/yungbote/tourforge-backend/internal/domain/pipeline"
	"github.com/yungbote/tourforge-backend/internal/platform/dbctx"
	"github.com/yungbote/tourforge-backend/internal/platform/logger"
)

type NotificationRepo interface {
	Create(dbc dbctx.Context, n *domain.Notification) (*domain.Notification, error)
	ListByOwner(dbc dbctx.Context, ownerUserID uuid.UUID, unreadOnly bool, limit int) ([]domain.Notification, error)
	CountUnread(dbc dbctx.Context, ownerUserID uuid.UUID) (int64, error)
	MarkRead(dbc dbctx.Context, ownerUserID, id uuid.UUID) error
	MarkAllRead(dbc dbctx.Context, ownerUserID uuid.UUID) (int64, error)
	ClearAll(dbc dbctx.Context, ownerUserID uuid.UUID) (int64, error)
}

type notificationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewNotificationRepo(db *gorm.DB, baseLog *logger.Logger) NotificationRepo {
	return &notificationRepo{
		db:  db,
		log: baseLog.With("repo", "NotificationRepo"),
	}
}

func (r *notificationRepo) Create(dbc dbctx.Context, n *domain.Notification) (*domain.Notification, error) {
	const op = "notification.Create"
	if n == nil || n.OwnerUserID == uuid.Nil {
		return nil, aggregates.Validation(op, "owner is required")
	}
	if err := dbc.DB(r.db).Create(n).Error; err != nil {
		return nil, dataagg.MapError(op, err)
	}
	return n, nil
}

func (r *notificationRepo) ListByOwner(dbc dbctx.Context, ownerUserID uuid.UUID, unreadOnly bool, limit int) ([]domain.Notification, error) {
	out := []domain.Notification{}
	q := dbc.DB(r.db).Where("owner_user_id = ?", ownerUserID)
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}
	q = q.Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, dataagg.MapError("notification.ListByOwner", err)
	}
	return out, nil
}

func (r *notificationRepo) CountUnread(dbc dbctx.Context, ownerUserID uuid.UUID) (int64, error) {
	var n int64
	if err := dbc.DB(r.db).Model(&domain.Notification{}).
		Where("owner_user_id = ? AND is_read = ?", ownerUserID, false).
		Count(&n).Error; err != nil {
		return 0, dataagg.MapError("notification.CountUnread", err)
	}
	return n, nil
}

// MarkRead is idempotent for an existing notification of the owner.
func (r *notificationRepo) MarkRead(dbc dbctx.Context, ownerUserID, id uuid.UUID) error {
	const op = "notification.MarkRead"
	var n domain.Notification
	if err := dbc.DB(r.db).Where("id = ? AND owner_user_id = ?", id, ownerUserID).First(&n).Error; err != nil {
		return dataagg.MapError(op, err)
	}
	if n.IsRead {
		return nil
	}
	if err := dbc.DB(r.db).Model(&domain.Notification{}).
		Where("id = ?", id).
		Update("is_read", true).Error; err != nil {
		return dataagg.MapError(op, err)
	}
	return nil
}

func (r *notificationRepo) MarkAllRead(dbc dbctx.Context, ownerUserID uuid.UUID) (int64, error) {
	res := dbc.DB(r.db).Model(&domain.Notification{}).
		Where("owner_user_id = ? AND is_read = ?", ownerUserID, false).
		Update("is_read", true)
	if res.Error != nil {
		return 0, dataagg.MapError("notification.MarkAllRead", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *notificationRepo) ClearAll(dbc dbctx.Context, ownerUserID uuid.UUID) (int64, error) {
	res := dbc.DB(r.db).
		Where("owner_user_id = ?", ownerUserID).
		Delete(&domain.Notification{})
	if res.Error != nil {
		return 0, dataagg.MapError("notification.ClearAll", res.Error)
	}
	return res.RowsAffected, nil
}
