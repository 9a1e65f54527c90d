package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"github.com/pusulahq/pusula/backend/internal/events"
	"github.com/pusulahq/pusula/backend/internal/store"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingSettings   = errors.New("settings service is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

const defaultFetchTimeout = 30 * time.Second

// ServiceError carries a dotted operation code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opEngineNew       = "sync.engine.new"
	opSyncCustomers   = "sync.customers"
	opSyncStockItems  = "sync.stock_items"
	opSyncWarehouses  = "sync.warehouses"
	opSyncStockLevels = "sync.stock_levels"
	opSyncOffers      = "sync.offers"
	opSyncIncomingInv = "sync.incoming_invoices"
	opSyncOutgoingInv = "sync.outgoing_invoices"
	opSyncAll         = "sync.all"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// Result describes one sync invocation. It is never persisted; callers
// surface it to the UI and discard it.
type Result struct {
	Kind    store.Kind `json:"kind"`
	Fetched int        `json:"fetched"`
	Added   int        `json:"added"`
	Updated int        `json:"updated"`
}

// EngineConfig describes the dependencies of the sync engine.
type EngineConfig struct {
	Database     *gorm.DB
	Settings     *store.SettingsService
	Clock        func() time.Time
	IDProvider   store.IDProvider
	Logger       *zap.Logger
	Events       *events.Dispatcher
	FetchTimeout time.Duration
}

// Engine reconciles externally fetched batches into the local store,
// one entity type per invocation. Same-kind invocations are serialized
// by a per-kind mutex so the read-match-write sequence cannot race
// against itself; different kinds sync concurrently.
type Engine struct {
	db           *gorm.DB
	settings     *store.SettingsService
	clock        func() time.Time
	ids          store.IDProvider
	logger       *zap.Logger
	events       *events.Dispatcher
	fetchTimeout time.Duration
	locks        map[store.Kind]*gosync.Mutex
}

func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opEngineNew, "missing_database", errMissingDatabase)
	}
	if cfg.Settings == nil {
		return nil, newServiceError(opEngineNew, "missing_settings", errMissingSettings)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opEngineNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}

	locks := make(map[store.Kind]*gosync.Mutex, len(store.Kinds()))
	for _, kind := range store.Kinds() {
		locks[kind] = &gosync.Mutex{}
	}

	return &Engine{
		db:           cfg.Database,
		settings:     cfg.Settings,
		clock:        clock,
		ids:          cfg.IDProvider,
		logger:       logger,
		events:       cfg.Events,
		fetchTimeout: timeout,
		locks:        locks,
	}, nil
}

func (e *Engine) lockKind(kind store.Kind) func() {
	mu := e.locks[kind]
	mu.Lock()
	return mu.Unlock
}

func (e *Engine) fetchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.fetchTimeout)
}

// finishRun records the successful batch: watermark advance, audit row,
// data-changed event. The store write already committed; a failure
// here still fails the call so the caller can surface it.
func (e *Engine) finishRun(ctx context.Context, operation string, kind store.Kind, result Result) error {
	now := e.clock().UTC()

	if err := e.settings.SetWatermark(ctx, kind, now); err != nil {
		e.logError(operation, "watermark_update_failed", err)
		return newServiceError(operation, "watermark_update_failed", err)
	}
	if err := store.AppendAudit(ctx, e.db, e.ids, kind, result.Fetched, result.Added, result.Updated, now); err != nil {
		e.logError(operation, "audit_append_failed", err)
		return newServiceError(operation, "audit_append_failed", err)
	}

	if e.events != nil && result.Added+result.Updated > 0 {
		e.events.Publish(events.Message{
			Topic:     events.TopicDataChanged,
			Kind:      string(kind),
			Timestamp: now,
		})
	}

	e.logger.Info("sync completed",
		zap.String("kind", string(kind)),
		zap.Int("fetched", result.Fetched),
		zap.Int("added", result.Added),
		zap.Int("updated", result.Updated))
	return nil
}

func saveAll[T any](ctx context.Context, db *gorm.DB, rows []T) error {
	if len(rows) == 0 {
		return nil
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range rows {
			if err := tx.Save(&rows[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// customerCodeIndex maps every locally known ERP customer code to its
// local record id, for resolving cross-entity references.
func (e *Engine) customerCodeIndex(ctx context.Context) (map[string]string, error) {
	var rows []store.Customer
	if err := e.db.WithContext(ctx).
		Select("record_id", "current_code").
		Where("current_code <> ''").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	index := make(map[string]string, len(rows))
	for _, row := range rows {
		index[row.CurrentCode] = row.RecordID
	}
	return index, nil
}

func (e *Engine) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	e.logger.Error("sync engine error", attrs...)
}
