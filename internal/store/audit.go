package store

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// AppendAudit writes one append-only audit row describing a sync run.
func AppendAudit(ctx context.Context, db *gorm.DB, ids IDProvider, kind Kind, fetched, added, updated int, at time.Time) error {
	entryID, err := ids.NewID()
	if err != nil {
		return err
	}
	entry := AuditEntry{
		EntryID:          entryID,
		Kind:             string(kind),
		Fetched:          fetched,
		Added:            added,
		Updated:          updated,
		CreatedAtSeconds: at.UTC().Unix(),
	}
	return db.WithContext(ctx).Create(&entry).Error
}
