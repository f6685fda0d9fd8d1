package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/tourforge-backend/internal/data/repos"
	"github.com/yungbote/tourforge-backend/internal/domain/aggregates"
	domain "github.com/yungbote/tourforge-backend/internal/domain/pipeline"
	"github.com/yungbote/tourforge-backend/internal/modules/pipeline/notify"
	"github.com/yungbote/tourforge-backend/internal/observability"
	"github.com/yungbote/tourforge-backend/internal/platform/ctxutil"
	"github.com/yungbote/tourforge-backend/internal/platform/dbctx"
	"github.com/yungbote/tourforge-backend/internal/platform/logger"
)

const defaultNotificationListLimit = 100

type NotificationList struct {
	Notifications []domain.Notification `json:"notifications"`
	Unread        int64                 `json:"unread"`
}

type NotificationService interface {
	// Notify routes a lifecycle event into a persisted notification for its owner.
	Notify(ctx context.Context, ev notify.DomainEvent) (*domain.Notification, error)
	List(ctx context.Context, unreadOnly bool, limit int) (*NotificationList, error)
	MarkRead(ctx context.Context, id uuid.UUID) error
	MarkAllRead(ctx context.Context) (int64, error)
	ClearAll(ctx context.Context) (int64, error)
}

type notificationService struct {
	log      *logger.Logger
	repo     repos.NotificationRepo
	router   *notify.Router
	notifier PipelineNotifier
	metrics  *observability.Metrics
}

func NewNotificationService(log *logger.Logger, repo repos.NotificationRepo, router *notify.Router, notifier PipelineNotifier, metrics *observability.Metrics) NotificationService {
	if router == nil {
		router = notify.NewRouter(nil)
	}
	return &notificationService{
		log:      log.With("service", "NotificationService"),
		repo:     repo,
		router:   router,
		notifier: notifier,
		metrics:  metrics,
	}
}

func (s *notificationService) Notify(ctx context.Context, ev notify.DomainEvent) (*domain.Notification, error) {
	const op = "notifications.Notify"
	if ev.OwnerUserID == uuid.Nil {
		return nil, aggregates.Validation(op, "owner_user_id is required")
	}
	n, err := s.router.Route(ev)
	if err != nil {
		return nil, err
	}
	created, err := s.repo.Create(dbctx.Context{Ctx: ctx}, &n)
	if err != nil {
		s.log.Warn("persist notification failed", "type", ev.Type, "error", err)
		return nil, err
	}
	s.metrics.IncNotification(string(ev.Type))
	if s.notifier != nil {
		s.notifier.NotificationCreated(ctx, created)
		s.publishUnread(ctx, ev.OwnerUserID)
	}
	return created, nil
}

func (s *notificationService) List(ctx context.Context, unreadOnly bool, limit int) (*NotificationList, error) {
	owner, err := requireUser(ctx, "notifications.List")
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultNotificationListLimit
	}
	dbc := dbctx.Context{Ctx: ctx}
	rows, err := s.repo.ListByOwner(dbc, owner, unreadOnly, limit)
	if err != nil {
		return nil, err
	}
	unread, err := s.repo.CountUnread(dbc, owner)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []domain.Notification{}
	}
	return &NotificationList{Notifications: rows, Unread: unread}, nil
}

func (s *notificationService) MarkRead(ctx context.Context, id uuid.UUID) error {
	owner, err := requireUser(ctx, "notifications.MarkRead")
	if err != nil {
		return err
	}
	if err := s.repo.MarkRead(dbctx.Context{Ctx: ctx}, owner, id); err != nil {
		return err
	}
	s.publishUnread(ctx, owner)
	return nil
}

func (s *notificationService) MarkAllRead(ctx context.Context) (int64, error) {
	owner, err := requireUser(ctx, "notifications.MarkAllRead")
	if err != nil {
		return 0, err
	}
	n, err := s.repo.MarkAllRead(dbctx.Context{Ctx: ctx}, owner)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.publishUnread(ctx, owner)
	}
	return n, nil
}

func (s *notificationService) ClearAll(ctx context.Context) (int64, error) {
	owner, err := requireUser(ctx, "notifications.ClearAll")
	if err != nil {
		return 0, err
	}
	n, err := s.repo.ClearAll(dbctx.Context{Ctx: ctx}, owner)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.publishUnread(ctx, owner)
	}
	return n, nil
}

func (s *notificationService) publishUnread(ctx context.Context, owner uuid.UUID) {
	if s.notifier == nil {
		return
	}
	unread, err := s.repo.CountUnread(dbctx.Context{Ctx: ctx}, owner)
	if err != nil {
		s.log.Warn("count unread failed", "error", err)
		return
	}
	s.notifier.NotificationsChanged(ctx, owner, unread)
}

// requireUser returns the authenticated caller or a validation error.
func requireUser(ctx context.Context, op string) (uuid.UUID, error) {
	id := ctxutil.UserID(ctx)
	if id == uuid.Nil {
		return uuid.Nil, aggregates.Validation(op, "user id not set in request data")
	}
	return id, nil
}
