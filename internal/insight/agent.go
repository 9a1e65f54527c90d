package insight

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pusulahq/pusula/backend/internal/notify"
	"github.com/pusulahq/pusula/backend/internal/store"
	"github.com/pusulahq/pusula/backend/internal/textgen"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingSettings   = errors.New("settings service is required")
	errMissingNotifier   = errors.New("notification service is required")
	errMissingGenerator  = errors.New("text generator is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

const (
	opRunScan      = "insight.run_scan"
	opFollowUpScan = "insight.follow_up_scan"
	opAtRiskScan   = "insight.at_risk_scan"

	MessageKeyFollowUpDrafted = "insight.follow_up_drafted"
	MessageKeyCustomerAtRisk  = "insight.customer_at_risk"

	TypeFollowUp = "agent_follow_up"
	TypeAtRisk   = "agent_at_risk"
)

// AgentConfig describes the dependencies of the proactive agent.
type AgentConfig struct {
	Database   *gorm.DB
	Settings   *store.SettingsService
	Notifier   *notify.Service
	Generator  textgen.Generator
	Clock      func() time.Time
	IDProvider store.IDProvider
	Logger     *zap.Logger
}

// Agent scans the merged store for offers that need a follow-up and
// customers going quiet, and turns what it finds into notifications.
type Agent struct {
	db        *gorm.DB
	settings  *store.SettingsService
	notifier  *notify.Service
	generator textgen.Generator
	clock     func() time.Time
	ids       store.IDProvider
	logger    *zap.Logger
}

func NewAgent(cfg AgentConfig) (*Agent, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("insight: %w", errMissingDatabase)
	}
	if cfg.Settings == nil {
		return nil, fmt.Errorf("insight: %w", errMissingSettings)
	}
	if cfg.Notifier == nil {
		return nil, fmt.Errorf("insight: %w", errMissingNotifier)
	}
	if cfg.Generator == nil {
		return nil, fmt.Errorf("insight: %w", errMissingGenerator)
	}
	if cfg.IDProvider == nil {
		return nil, fmt.Errorf("insight: %w", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Agent{
		db:        cfg.Database,
		settings:  cfg.Settings,
		notifier:  cfg.Notifier,
		generator: cfg.Generator,
		clock:     clock,
		ids:       cfg.IDProvider,
		logger:    logger,
	}, nil
}

// ScanReport summarizes one agent pass.
type ScanReport struct {
	FollowUpsDrafted int `json:"followUpsDrafted"`
	FollowUpsSkipped int `json:"followUpsSkipped"`
	AtRiskFlagged    int `json:"atRiskFlagged"`
}

// RunScan executes the enabled sub-scans. The whole agent and each
// sub-scan are individually gated by settings flags; with the agent
// disabled the scan is a no-op.
func (a *Agent) RunScan(ctx context.Context) (ScanReport, error) {
	settings, err := a.settings.GetOrDefault(ctx)
	if err != nil {
		a.logError(opRunScan, "settings_read_failed", err)
		return ScanReport{}, err
	}

	report := ScanReport{}
	if !settings.AgentEnabled {
		return report, nil
	}

	if settings.FollowUpEnabled {
		drafted, skipped, err := a.followUpScan(ctx, settings)
		if err != nil {
			a.logError(opFollowUpScan, "scan_failed", err)
			return report, err
		}
		report.FollowUpsDrafted = drafted
		report.FollowUpsSkipped = skipped
	}

	if settings.AtRiskEnabled {
		flagged, err := a.atRiskScan(ctx, settings)
		if err != nil {
			a.logError(opAtRiskScan, "scan_failed", err)
			return report, err
		}
		report.AtRiskFlagged = flagged
	}

	return report, nil
}

// followUpScan drafts a follow-up email for every offer past the
// configured age that has no linked draft yet and no interview with
// the customer since the offer went out. A failed generation skips
// that offer and keeps scanning; the offer is retried on the next run.
func (a *Agent) followUpScan(ctx context.Context, settings store.Settings) (int, int, error) {
	threshold := a.clock().UTC().Add(-time.Duration(settings.FollowUpDays) * 24 * time.Hour).Unix()

	var offers []store.Offer
	if err := a.db.WithContext(ctx).
		Where("created_at_s < ?", threshold).
		Order("created_at_s ASC").
		Find(&offers).Error; err != nil {
		return 0, 0, err
	}
	if len(offers) == 0 {
		return 0, 0, nil
	}

	offerIDs := make([]string, 0, len(offers))
	customerIDs := make([]string, 0, len(offers))
	for _, offer := range offers {
		offerIDs = append(offerIDs, offer.RecordID)
		customerIDs = append(customerIDs, offer.CustomerID)
	}

	drafted, err := a.draftedOfferIndex(ctx, offerIDs)
	if err != nil {
		return 0, 0, err
	}
	lastInterview, err := a.latestInterviewIndex(ctx, customerIDs)
	if err != nil {
		return 0, 0, err
	}
	customers, err := a.customerIndex(ctx, customerIDs)
	if err != nil {
		return 0, 0, err
	}

	draftedCount := 0
	skippedCount := 0
	now := a.clock().UTC()
	for _, offer := range offers {
		if drafted[offer.RecordID] {
			continue
		}
		if lastInterview[offer.CustomerID] > offer.CreatedAtSeconds {
			continue
		}
		customer, ok := customers[offer.CustomerID]
		if !ok {
			continue
		}

		body, err := a.generator.Generate(ctx, followUpPrompt(customer, offer))
		if err != nil {
			skippedCount++
			a.logger.Warn("follow-up draft generation failed",
				zap.String("operation", opFollowUpScan),
				zap.String("offer_id", offer.RecordID),
				zap.Error(err))
			continue
		}

		draftID, err := a.ids.NewID()
		if err != nil {
			return draftedCount, skippedCount, err
		}
		draft := store.EmailDraft{
			RecordID:         draftID,
			CustomerID:       customer.RecordID,
			OfferID:          offer.RecordID,
			Subject:          fmt.Sprintf("Teklif %s hk.", offer.OfferNo),
			Body:             body,
			Origin:           store.EmailDraftOriginAgent,
			CreatedAtSeconds: now.Unix(),
		}
		if err := a.db.WithContext(ctx).Create(&draft).Error; err != nil {
			return draftedCount, skippedCount, err
		}

		if _, err := a.notifier.Emit(ctx, notify.Draft{
			MessageKey:   MessageKeyFollowUpDrafted,
			ParamsJSON:   mustParams(map[string]string{"customer": customer.Title, "offerNo": offer.OfferNo}),
			Type:         TypeFollowUp,
			LinkPage:     "email-drafts",
			LinkRecordID: draftID,
		}); err != nil {
			return draftedCount, skippedCount, err
		}
		draftedCount++
	}
	return draftedCount, skippedCount, nil
}

// atRiskScan flags active customers whose most recent contact, the
// latest of offer, interview and appointment creation, is older than
// the configured threshold. A customer with no contact history at all
// is always flagged. Flags are re-emitted on every run while the
// customer stays stale.
func (a *Agent) atRiskScan(ctx context.Context, settings store.Settings) (int, error) {
	threshold := a.clock().UTC().Add(-time.Duration(settings.AtRiskDays) * 24 * time.Hour).Unix()

	var customers []store.Customer
	if err := a.db.WithContext(ctx).
		Where("status = ?", "active").
		Find(&customers).Error; err != nil {
		return 0, err
	}
	if len(customers) == 0 {
		return 0, nil
	}

	lastContact, err := a.lastContactIndex(ctx)
	if err != nil {
		return 0, err
	}

	flagged := 0
	for _, customer := range customers {
		last, hasContact := lastContact[customer.RecordID]
		if hasContact && last >= threshold {
			continue
		}
		if _, err := a.notifier.Emit(ctx, notify.Draft{
			MessageKey:   MessageKeyCustomerAtRisk,
			ParamsJSON:   mustParams(map[string]string{"customer": customer.Title}),
			Type:         TypeAtRisk,
			LinkPage:     "customers",
			LinkRecordID: customer.RecordID,
		}); err != nil {
			return flagged, err
		}
		flagged++
	}
	return flagged, nil
}

func (a *Agent) draftedOfferIndex(ctx context.Context, offerIDs []string) (map[string]bool, error) {
	var drafts []store.EmailDraft
	if err := a.db.WithContext(ctx).
		Select("offer_id").
		Where("offer_id IN ?", offerIDs).
		Find(&drafts).Error; err != nil {
		return nil, err
	}
	index := make(map[string]bool, len(drafts))
	for _, draft := range drafts {
		index[draft.OfferID] = true
	}
	return index, nil
}

type contactRow struct {
	CustomerID string
	LastSeen   int64
}

func (a *Agent) latestInterviewIndex(ctx context.Context, customerIDs []string) (map[string]int64, error) {
	var rows []contactRow
	if err := a.db.WithContext(ctx).
		Model(&store.Interview{}).
		Select("customer_id AS customer_id, MAX(created_at_s) AS last_seen").
		Where("customer_id IN ?", customerIDs).
		Group("customer_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	index := make(map[string]int64, len(rows))
	for _, row := range rows {
		index[row.CustomerID] = row.LastSeen
	}
	return index, nil
}

func (a *Agent) customerIndex(ctx context.Context, customerIDs []string) (map[string]store.Customer, error) {
	var rows []store.Customer
	if err := a.db.WithContext(ctx).Where("record_id IN ?", customerIDs).Find(&rows).Error; err != nil {
		return nil, err
	}
	index := make(map[string]store.Customer, len(rows))
	for _, row := range rows {
		index[row.RecordID] = row
	}
	return index, nil
}

// lastContactIndex folds offers, interviews and appointments into the
// most recent contact timestamp per customer.
func (a *Agent) lastContactIndex(ctx context.Context) (map[string]int64, error) {
	index := make(map[string]int64)
	models := []interface{}{&store.Offer{}, &store.Interview{}, &store.Appointment{}}
	for _, model := range models {
		var rows []contactRow
		if err := a.db.WithContext(ctx).
			Model(model).
			Select("customer_id AS customer_id, MAX(created_at_s) AS last_seen").
			Group("customer_id").
			Scan(&rows).Error; err != nil {
			return nil, err
		}
		for _, row := range rows {
			if row.LastSeen > index[row.CustomerID] {
				index[row.CustomerID] = row.LastSeen
			}
		}
	}
	return index, nil
}

func followUpPrompt(customer store.Customer, offer store.Offer) string {
	return fmt.Sprintf(
		"Write a short, polite follow-up email in Turkish to %s about offer %s "+
			"(total %.2f %s) that has not been answered yet. "+
			"Ask whether they had a chance to review it and offer to discuss details. "+
			"Do not invent prices or dates.",
		customer.Title, offer.OfferNo, offer.Total, offer.Currency)
}

func mustParams(params map[string]string) string {
	encoded, err := json.Marshal(params)
	if err != nil {
		return "{}"
	}
	return string(encoded)
}

func (a *Agent) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	a.logger.Error("insight agent error", attrs...)
}
