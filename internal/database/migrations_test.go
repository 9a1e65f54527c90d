package database

import (
	"path/filepath"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/pusulahq/pusula/backend/internal/store"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestApplyMigrationsBackfillsSyncedFlags(testContext *testing.T) {
	tempDir := testContext.TempDir()
	databasePath := filepath.Join(tempDir, "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}

	if err := database.AutoMigrate(&store.Customer{}, &store.StockItem{}, &migrationRecord{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	erpCustomer := store.Customer{
		RecordID:    "customer-1",
		CurrentCode: "C1",
		Title:       "Acme",
		Synced:      false,
	}
	localCustomer := store.Customer{
		RecordID: "customer-2",
		Title:    "Draft Customer",
		Synced:   false,
	}
	if err := database.Create(&erpCustomer).Error; err != nil {
		testContext.Fatalf("failed to insert customer: %v", err)
	}
	if err := database.Create(&localCustomer).Error; err != nil {
		testContext.Fatalf("failed to insert customer: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	var stored store.Customer
	if err := database.Where("record_id = ?", erpCustomer.RecordID).Take(&stored).Error; err != nil {
		testContext.Fatalf("failed to reload customer: %v", err)
	}
	if !stored.Synced {
		testContext.Fatalf("expected keyed customer to be marked synced")
	}

	var storedLocal store.Customer
	if err := database.Where("record_id = ?", localCustomer.RecordID).Take(&storedLocal).Error; err != nil {
		testContext.Fatalf("failed to reload customer: %v", err)
	}
	if storedLocal.Synced {
		testContext.Fatalf("expected local draft customer to stay unsynced")
	}

	var record migrationRecord
	if err := database.Where("name = ?", migrationBackfillSyncedFlags).Take(&record).Error; err != nil {
		testContext.Fatalf("expected migration record to be created: %v", err)
	}
	if record.AppliedAtSeconds == 0 {
		testContext.Fatalf("expected migration timestamp to be set")
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("expected re-applying migrations to be a no-op: %v", err)
	}
}
