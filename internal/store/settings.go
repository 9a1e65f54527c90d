package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// SettingsScopeID is the fixed identifier of the single settings row.
const SettingsScopeID = "app-settings"

var (
	errSettingsMissingDatabase = errors.New("database handle is required")
	// ErrUnknownWatermarkKind indicates a watermark request for a kind
	// without a last-sync column.
	ErrUnknownWatermarkKind = errors.New("store: no watermark column for kind")
)

// Settings is the single-row configuration record. It carries one
// last-sync watermark column per synchronized entity type plus the
// proactive agent configuration.
type Settings struct {
	ScopeID                    string `gorm:"column:scope_id;primaryKey;size:64;not null"`
	CompanyTitle               string `gorm:"column:company_title;size:320"`
	LastSyncCustomersSeconds   int64  `gorm:"column:last_sync_customers_s;not null;default:0"`
	LastSyncStockItemsSeconds  int64  `gorm:"column:last_sync_stock_items_s;not null;default:0"`
	LastSyncWarehousesSeconds  int64  `gorm:"column:last_sync_warehouses_s;not null;default:0"`
	LastSyncStockLevelsSeconds int64  `gorm:"column:last_sync_stock_levels_s;not null;default:0"`
	LastSyncOffersSeconds      int64  `gorm:"column:last_sync_offers_s;not null;default:0"`
	LastSyncIncomingInvSeconds int64  `gorm:"column:last_sync_incoming_invoices_s;not null;default:0"`
	LastSyncOutgoingInvSeconds int64  `gorm:"column:last_sync_outgoing_invoices_s;not null;default:0"`
	AgentEnabled               bool   `gorm:"column:agent_enabled;not null;default:false"`
	FollowUpEnabled            bool   `gorm:"column:follow_up_enabled;not null;default:true"`
	FollowUpDays               int    `gorm:"column:follow_up_days;not null;default:7"`
	AtRiskEnabled              bool   `gorm:"column:at_risk_enabled;not null;default:true"`
	AtRiskDays                 int    `gorm:"column:at_risk_days;not null;default:30"`
	NotificationRetentionDays  int    `gorm:"column:notification_retention_days;not null;default:90"`
	UpdatedAtSeconds           int64  `gorm:"column:updated_at_s;not null;default:0"`
}

func (Settings) TableName() string {
	return "settings"
}

func watermarkColumn(kind Kind) (string, error) {
	switch kind {
	case KindCustomers:
		return "last_sync_customers_s", nil
	case KindStockItems:
		return "last_sync_stock_items_s", nil
	case KindWarehouses:
		return "last_sync_warehouses_s", nil
	case KindStockLevels:
		return "last_sync_stock_levels_s", nil
	case KindOffers:
		return "last_sync_offers_s", nil
	case KindIncomingInvoices:
		return "last_sync_incoming_invoices_s", nil
	case KindOutgoingInvoices:
		return "last_sync_outgoing_invoices_s", nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownWatermarkKind, kind)
	}
}

// WatermarkSeconds returns the last-sync timestamp held for the kind.
func (s Settings) WatermarkSeconds(kind Kind) (int64, error) {
	switch kind {
	case KindCustomers:
		return s.LastSyncCustomersSeconds, nil
	case KindStockItems:
		return s.LastSyncStockItemsSeconds, nil
	case KindWarehouses:
		return s.LastSyncWarehousesSeconds, nil
	case KindStockLevels:
		return s.LastSyncStockLevelsSeconds, nil
	case KindOffers:
		return s.LastSyncOffersSeconds, nil
	case KindIncomingInvoices:
		return s.LastSyncIncomingInvSeconds, nil
	case KindOutgoingInvoices:
		return s.LastSyncOutgoingInvSeconds, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownWatermarkKind, kind)
	}
}

// SettingsServiceConfig describes the dependencies of the settings tracker.
type SettingsServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// SettingsService owns the single settings row: configuration reads,
// last-writer-wins partial updates, and per-kind sync watermarks.
type SettingsService struct {
	db    *gorm.DB
	clock func() time.Time
}

func NewSettingsService(cfg SettingsServiceConfig) (*SettingsService, error) {
	if cfg.Database == nil {
		return nil, errSettingsMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &SettingsService{db: cfg.Database, clock: clock}, nil
}

// Get returns the settings row. The second return reports whether the
// row exists yet; before first use it does not.
func (s *SettingsService) Get(ctx context.Context) (Settings, bool, error) {
	var settings Settings
	err := s.db.WithContext(ctx).
		Where("scope_id = ?", SettingsScopeID).
		Take(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Settings{}, false, nil
	}
	if err != nil {
		return Settings{}, false, err
	}
	return settings, true, nil
}

// GetOrDefault returns the stored settings, or a zero-value row bound
// to the fixed scope when none has been written yet.
func (s *SettingsService) GetOrDefault(ctx context.Context) (Settings, error) {
	settings, found, err := s.Get(ctx)
	if err != nil {
		return Settings{}, err
	}
	if !found {
		return Settings{ScopeID: SettingsScopeID}, nil
	}
	return settings, nil
}

// Update merges the given columns into the settings row, creating it on
// first use. Last writer wins; there is no field-level conflict check.
func (s *SettingsService) Update(ctx context.Context, fields map[string]interface{}) error {
	now := s.clock().UTC().Unix()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ensureRow(tx); err != nil {
			return err
		}
		updates := make(map[string]interface{}, len(fields)+1)
		for column, value := range fields {
			updates[column] = value
		}
		updates["updated_at_s"] = now
		return tx.Model(&Settings{}).
			Where("scope_id = ?", SettingsScopeID).
			Updates(updates).Error
	})
}

// SetWatermark advances the last-sync timestamp for the kind. A value
// earlier than the stored watermark is ignored so the watermark never
// moves backwards.
func (s *SettingsService) SetWatermark(ctx context.Context, kind Kind, at time.Time) error {
	column, err := watermarkColumn(kind)
	if err != nil {
		return err
	}
	seconds := at.UTC().Unix()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ensureRow(tx); err != nil {
			return err
		}
		return tx.Model(&Settings{}).
			Where("scope_id = ?", SettingsScopeID).
			Where(fmt.Sprintf("%s <= ?", column), seconds).
			Updates(map[string]interface{}{
				column:         seconds,
				"updated_at_s": s.clock().UTC().Unix(),
			}).Error
	})
}

// WatermarkSeconds reads the stored last-sync timestamp for the kind;
// zero means the kind has never synced.
func (s *SettingsService) WatermarkSeconds(ctx context.Context, kind Kind) (int64, error) {
	settings, found, err := s.Get(ctx)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}
	return settings.WatermarkSeconds(kind)
}

func (s *SettingsService) ensureRow(tx *gorm.DB) error {
	var existing Settings
	err := tx.Where("scope_id = ?", SettingsScopeID).Take(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return tx.Create(&Settings{ScopeID: SettingsScopeID}).Error
	}
	return err
}
