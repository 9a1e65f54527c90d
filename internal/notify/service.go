package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pusulahq/pusula/backend/internal/events"
	"github.com/pusulahq/pusula/backend/internal/store"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	// ErrNotFound indicates the notification id does not exist.
	ErrNotFound = errors.New("notify: notification not found")
	noOpLogger  = zap.NewNop()
)

const (
	opEmit        = "notify.emit"
	opMarkRead    = "notify.mark_read"
	opMarkAllRead = "notify.mark_all_read"
	opList        = "notify.list"
	opPrune       = "notify.prune"
)

// Draft is the caller-supplied part of a notification. Identifier,
// timestamp and read flag are assigned on emit.
type Draft struct {
	MessageKey   string
	ParamsJSON   string
	Type         string
	LinkPage     string
	LinkRecordID string
}

// ServiceConfig describes the dependencies of the notification emitter.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider store.IDProvider
	Logger     *zap.Logger
	Events     *events.Dispatcher
}

// Service persists notifications and flips their read flags. There is
// no delete operation; retention happens through Prune, which only
// touches read notifications past the retention window.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	ids    store.IDProvider
	logger *zap.Logger
	events *events.Dispatcher
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("notify: %w", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, fmt.Errorf("notify: %w", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:     cfg.Database,
		clock:  clock,
		ids:    cfg.IDProvider,
		logger: logger,
		events: cfg.Events,
	}, nil
}

// Emit persists the draft as an unread notification with a fresh
// identifier and the current timestamp, and returns the stored record.
func (s *Service) Emit(ctx context.Context, draft Draft) (store.Notification, error) {
	recordID, err := s.ids.NewID()
	if err != nil {
		s.logError(opEmit, "id_generation_failed", err)
		return store.Notification{}, err
	}

	now := s.clock().UTC()
	notification := store.Notification{
		RecordID:         recordID,
		MessageKey:       draft.MessageKey,
		ParamsJSON:       draft.ParamsJSON,
		Type:             draft.Type,
		LinkPage:         draft.LinkPage,
		LinkRecordID:     draft.LinkRecordID,
		IsRead:           false,
		CreatedAtSeconds: now.Unix(),
	}

	if err := s.db.WithContext(ctx).Create(&notification).Error; err != nil {
		s.logError(opEmit, "store_write_failed", err)
		return store.Notification{}, err
	}

	if s.events != nil {
		s.events.Publish(events.Message{
			Topic:     events.TopicNotification,
			RecordIDs: []string{recordID},
			Timestamp: now,
		})
	}
	return notification, nil
}

// MarkRead flips the read flag on one notification.
func (s *Service) MarkRead(ctx context.Context, recordID string) error {
	result := s.db.WithContext(ctx).Model(&store.Notification{}).
		Where("record_id = ?", recordID).
		Update("is_read", true)
	if result.Error != nil {
		s.logError(opMarkRead, "store_write_failed", result.Error, zap.String("record_id", recordID))
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkAllRead flips the read flag on every unread notification.
func (s *Service) MarkAllRead(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Model(&store.Notification{}).
		Where("is_read = ?", false).
		Update("is_read", true).Error; err != nil {
		s.logError(opMarkAllRead, "store_write_failed", err)
		return err
	}
	return nil
}

// List returns notifications newest first, optionally unread only.
func (s *Service) List(ctx context.Context, onlyUnread bool) ([]store.Notification, error) {
	query := s.db.WithContext(ctx).Order("created_at_s DESC")
	if onlyUnread {
		query = query.Where("is_read = ?", false)
	}
	var notifications []store.Notification
	if err := query.Find(&notifications).Error; err != nil {
		s.logError(opList, "query_failed", err)
		return nil, err
	}
	return notifications, nil
}

// Prune deletes read notifications older than the retention window.
// Unread notifications are never pruned. Returns the number deleted.
func (s *Service) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	cutoff := s.clock().UTC().Add(-retention).Unix()
	result := s.db.WithContext(ctx).
		Where("is_read = ? AND created_at_s < ?", true, cutoff).
		Delete(&store.Notification{})
	if result.Error != nil {
		s.logError(opPrune, "store_write_failed", result.Error)
		return 0, result.Error
	}
	if result.RowsAffected > 0 {
		s.logger.Info("notifications pruned", zap.Int64("deleted", result.RowsAffected))
	}
	return result.RowsAffected, nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("notification service error", attrs...)
}
