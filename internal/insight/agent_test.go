package insight

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/pusulahq/pusula/backend/internal/notify"
	"github.com/pusulahq/pusula/backend/internal/store"
	"gorm.io/gorm"
)

const testNow = int64(1700000600)

type sequenceIDGenerator struct {
	prefix string
	next   int
}

func (g *sequenceIDGenerator) NewID() (string, error) {
	g.next++
	return fmt.Sprintf("%s-%d", g.prefix, g.next), nil
}

// scriptedGenerator replays canned outcomes in call order and records
// the prompts it saw.
type scriptedGenerator struct {
	outcomes []error
	calls    int
	prompts  []string
}

func (g *scriptedGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	var outcome error
	if g.calls < len(g.outcomes) {
		outcome = g.outcomes[g.calls]
	}
	g.calls++
	if outcome != nil {
		return "", outcome
	}
	return "Merhaba, teklifimizi inceleme firsatiniz oldu mu?", nil
}

func newTestAgent(t *testing.T, generator *scriptedGenerator) (*Agent, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:pusula_insight_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&store.Customer{}, &store.Offer{}, &store.Interview{}, &store.Appointment{},
		&store.EmailDraft{}, &store.Notification{}, &store.Settings{},
	); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	clock := func() time.Time { return time.Unix(testNow, 0).UTC() }

	settings, err := store.NewSettingsService(store.SettingsServiceConfig{Database: db, Clock: clock})
	if err != nil {
		t.Fatalf("failed to construct settings service: %v", err)
	}
	notifier, err := notify.NewService(notify.ServiceConfig{
		Database:   db,
		Clock:      clock,
		IDProvider: &sequenceIDGenerator{prefix: "notification"},
	})
	if err != nil {
		t.Fatalf("failed to construct notify service: %v", err)
	}

	agent, err := NewAgent(AgentConfig{
		Database:   db,
		Settings:   settings,
		Notifier:   notifier,
		Generator:  generator,
		Clock:      clock,
		IDProvider: &sequenceIDGenerator{prefix: "draft"},
	})
	if err != nil {
		t.Fatalf("failed to construct agent: %v", err)
	}
	return agent, db
}

func enableAgent(t *testing.T, db *gorm.DB) {
	t.Helper()
	row := store.Settings{
		ScopeID:         store.SettingsScopeID,
		AgentEnabled:    true,
		FollowUpEnabled: true,
		FollowUpDays:    7,
		AtRiskEnabled:   true,
		AtRiskDays:      30,
	}
	if err := db.Create(&row).Error; err != nil {
		t.Fatalf("failed to seed settings: %v", err)
	}
}

func daysAgo(days int) int64 {
	return testNow - int64(days)*24*3600
}

func seedCustomer(t *testing.T, db *gorm.DB, recordID, title, status string) {
	t.Helper()
	customer := store.Customer{
		RecordID:         recordID,
		CurrentCode:      "C-" + recordID,
		Title:            title,
		Status:           status,
		CreatedAtSeconds: daysAgo(400),
	}
	if err := db.Create(&customer).Error; err != nil {
		t.Fatalf("failed to seed customer: %v", err)
	}
}

func seedOffer(t *testing.T, db *gorm.DB, recordID, customerID, offerNo string, createdAt int64) {
	t.Helper()
	offer := store.Offer{
		RecordID:         recordID,
		OfferNo:          offerNo,
		CustomerID:       customerID,
		Total:            1250,
		Currency:         "TRY",
		Status:           "open",
		CreatedAtSeconds: createdAt,
	}
	if err := db.Create(&offer).Error; err != nil {
		t.Fatalf("failed to seed offer: %v", err)
	}
}

func TestRunScanIsNoOpWhileAgentDisabled(t *testing.T) {
	generator := &scriptedGenerator{}
	agent, db := newTestAgent(t, generator)

	seedCustomer(t, db, "customer-1", "Acme", "active")
	seedOffer(t, db, "offer-1", "customer-1", "T-1", daysAgo(20))

	report, err := agent.RunScan(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.FollowUpsDrafted != 0 || report.AtRiskFlagged != 0 {
		t.Fatalf("expected empty report while disabled, got %+v", report)
	}
	if generator.calls != 0 {
		t.Fatalf("expected no generation calls while disabled")
	}

	var count int64
	if err := db.Model(&store.Notification{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count notifications: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no notifications while disabled, got %d", count)
	}
}

func TestFollowUpScanDraftsOnceForStaleOffer(t *testing.T) {
	generator := &scriptedGenerator{}
	agent, db := newTestAgent(t, generator)
	enableAgent(t, db)

	seedCustomer(t, db, "customer-1", "Acme", "active")
	seedOffer(t, db, "offer-1", "customer-1", "T-1", daysAgo(10))
	// Fresh offer stays untouched.
	seedOffer(t, db, "offer-2", "customer-1", "T-2", daysAgo(2))

	report, err := agent.RunScan(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.FollowUpsDrafted != 1 {
		t.Fatalf("expected 1 drafted follow-up, got %+v", report)
	}
	if len(generator.prompts) != 1 || !strings.Contains(generator.prompts[0], "T-1") {
		t.Fatalf("unexpected prompts: %v", generator.prompts)
	}

	var draft store.EmailDraft
	if err := db.Take(&draft).Error; err != nil {
		t.Fatalf("failed to load draft: %v", err)
	}
	if draft.OfferID != "offer-1" || draft.CustomerID != "customer-1" {
		t.Fatalf("unexpected draft linkage: %+v", draft)
	}
	if draft.Origin != store.EmailDraftOriginAgent {
		t.Fatalf("expected agent origin, got %s", draft.Origin)
	}
	if draft.Subject != "Teklif T-1 hk." {
		t.Fatalf("unexpected subject %q", draft.Subject)
	}

	var notification store.Notification
	if err := db.Where("type = ?", TypeFollowUp).Take(&notification).Error; err != nil {
		t.Fatalf("failed to load notification: %v", err)
	}
	if notification.MessageKey != MessageKeyFollowUpDrafted || notification.LinkRecordID != draft.RecordID {
		t.Fatalf("unexpected notification: %+v", notification)
	}

	// The existing draft keeps the second run from drafting again.
	report, err = agent.RunScan(context.Background())
	if err != nil {
		t.Fatalf("unexpected error on second run: %v", err)
	}
	if report.FollowUpsDrafted != 0 {
		t.Fatalf("expected no new drafts on second run, got %+v", report)
	}
	var draftCount int64
	if err := db.Model(&store.EmailDraft{}).Count(&draftCount).Error; err != nil {
		t.Fatalf("failed to count drafts: %v", err)
	}
	if draftCount != 1 {
		t.Fatalf("expected 1 draft after two runs, got %d", draftCount)
	}
}

func TestFollowUpScanSkipsOffersAnsweredByInterview(t *testing.T) {
	generator := &scriptedGenerator{}
	agent, db := newTestAgent(t, generator)
	enableAgent(t, db)

	seedCustomer(t, db, "customer-1", "Acme", "active")
	seedOffer(t, db, "offer-1", "customer-1", "T-1", daysAgo(10))
	interview := store.Interview{
		RecordID:         "interview-1",
		CustomerID:       "customer-1",
		Subject:          "Offer discussion",
		HeldAtSeconds:    daysAgo(3),
		CreatedAtSeconds: daysAgo(3),
	}
	if err := db.Create(&interview).Error; err != nil {
		t.Fatalf("failed to seed interview: %v", err)
	}

	report, err := agent.RunScan(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.FollowUpsDrafted != 0 || report.FollowUpsSkipped != 0 {
		t.Fatalf("expected interviewed offer to be left alone, got %+v", report)
	}
	if generator.calls != 0 {
		t.Fatalf("expected no generation for interviewed offer")
	}
}

func TestFollowUpScanGeneratorFailureSkipsAndContinues(t *testing.T) {
	generator := &scriptedGenerator{outcomes: []error{errors.New("model unavailable"), nil}}
	agent, db := newTestAgent(t, generator)
	enableAgent(t, db)

	seedCustomer(t, db, "customer-1", "Acme", "active")
	seedCustomer(t, db, "customer-2", "Globex", "active")
	seedOffer(t, db, "offer-1", "customer-1", "T-1", daysAgo(12))
	seedOffer(t, db, "offer-2", "customer-2", "T-2", daysAgo(10))

	report, err := agent.RunScan(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.FollowUpsDrafted != 1 || report.FollowUpsSkipped != 1 {
		t.Fatalf("expected one drafted and one skipped, got %+v", report)
	}

	var draft store.EmailDraft
	if err := db.Take(&draft).Error; err != nil {
		t.Fatalf("failed to load draft: %v", err)
	}
	if draft.OfferID != "offer-2" {
		t.Fatalf("expected surviving draft for the second offer, got %+v", draft)
	}
}

func TestAtRiskScanFlagsStaleAndUncontactedCustomers(t *testing.T) {
	generator := &scriptedGenerator{}
	agent, db := newTestAgent(t, generator)
	enableAgent(t, db)

	// Never contacted: always at risk.
	seedCustomer(t, db, "customer-1", "Silent Co", "active")
	// Stale: last contact 60 days back.
	seedCustomer(t, db, "customer-2", "Quiet Ltd", "active")
	seedOffer(t, db, "offer-1", "customer-2", "T-1", daysAgo(60))
	// Recent contact: not at risk.
	seedCustomer(t, db, "customer-3", "Lively AS", "active")
	seedOffer(t, db, "offer-2", "customer-3", "T-2", daysAgo(2))
	// Passive customers are out of scope regardless of staleness.
	seedCustomer(t, db, "customer-4", "Gone GmbH", "passive")

	report, err := agent.RunScan(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.AtRiskFlagged != 2 {
		t.Fatalf("expected 2 at-risk customers, got %+v", report)
	}

	var notifications []store.Notification
	if err := db.Where("type = ?", TypeAtRisk).Find(&notifications).Error; err != nil {
		t.Fatalf("failed to load notifications: %v", err)
	}
	flaggedIDs := map[string]bool{}
	for _, notification := range notifications {
		flaggedIDs[notification.LinkRecordID] = true
	}
	if !flaggedIDs["customer-1"] || !flaggedIDs["customer-2"] {
		t.Fatalf("unexpected flagged set: %v", flaggedIDs)
	}
	if flaggedIDs["customer-3"] || flaggedIDs["customer-4"] {
		t.Fatalf("expected recent and passive customers unflagged: %v", flaggedIDs)
	}

	// Stale customers are re-flagged on every run.
	report, err = agent.RunScan(context.Background())
	if err != nil {
		t.Fatalf("unexpected error on second run: %v", err)
	}
	if report.AtRiskFlagged != 2 {
		t.Fatalf("expected repeat flags on second run, got %+v", report)
	}
}

func TestAtRiskScanUsesLatestContactAcrossChannels(t *testing.T) {
	generator := &scriptedGenerator{}
	agent, db := newTestAgent(t, generator)
	enableAgent(t, db)

	seedCustomer(t, db, "customer-1", "Acme", "active")
	seedOffer(t, db, "offer-1", "customer-1", "T-1", daysAgo(90))
	appointment := store.Appointment{
		RecordID:         "appointment-1",
		CustomerID:       "customer-1",
		Title:            "Site visit",
		StartsAtSeconds:  daysAgo(5),
		EndsAtSeconds:    daysAgo(5) + 3600,
		CreatedAtSeconds: daysAgo(5),
	}
	if err := db.Create(&appointment).Error; err != nil {
		t.Fatalf("failed to seed appointment: %v", err)
	}

	report, err := agent.RunScan(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.AtRiskFlagged != 0 {
		t.Fatalf("expected recent appointment to keep customer off the list, got %+v", report)
	}
}
