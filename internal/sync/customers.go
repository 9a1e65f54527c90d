package sync

import (
	"context"
	"strings"
	"time"

	"github.com/pusulahq/pusula/backend/internal/erp"
	"github.com/pusulahq/pusula/backend/internal/store"
)

// CustomerFetch is the external fetch collaborator for customers.
type CustomerFetch func(ctx context.Context) ([]erp.CustomerDTO, error)

// SyncCustomers reconciles one ERP customer batch into the local store.
// External records are matched by currentCode; records without one are
// ignored since no match can be established.
func (e *Engine) SyncCustomers(ctx context.Context, fetch CustomerFetch) (Result, error) {
	const op = opSyncCustomers
	defer e.lockKind(store.KindCustomers)()

	fetchCtx, cancel := e.fetchContext(ctx)
	defer cancel()
	batch, err := fetch(fetchCtx)
	if err != nil {
		e.logError(op, "fetch_failed", err)
		return Result{}, newServiceError(op, "fetch_failed", err)
	}

	result := Result{Kind: store.KindCustomers, Fetched: len(batch)}

	codes := make([]string, 0, len(batch))
	for _, dto := range batch {
		if code := strings.TrimSpace(dto.CurrentCode); code != "" {
			codes = append(codes, code)
		}
	}

	existing := make(map[string]store.Customer, len(codes))
	if len(codes) > 0 {
		var rows []store.Customer
		if err := e.db.WithContext(ctx).Where("current_code IN ?", codes).Find(&rows).Error; err != nil {
			e.logError(op, "store_read_failed", err)
			return Result{}, newServiceError(op, "store_read_failed", err)
		}
		for _, row := range rows {
			existing[row.CurrentCode] = row
		}
	}

	now := e.clock().UTC()
	upserts := make([]store.Customer, 0, len(batch))
	for _, dto := range batch {
		code := strings.TrimSpace(dto.CurrentCode)
		if code == "" {
			continue
		}
		if local, ok := existing[code]; ok {
			merged := mergeCustomer(local, dto)
			upserts = append(upserts, merged)
			existing[code] = merged
			result.Updated++
			continue
		}
		recordID, err := e.ids.NewID()
		if err != nil {
			e.logError(op, "id_generation_failed", err)
			return Result{}, newServiceError(op, "id_generation_failed", err)
		}
		created := newCustomer(recordID, dto, now)
		upserts = append(upserts, created)
		existing[code] = created
		result.Added++
	}

	if err := saveAll(ctx, e.db, upserts); err != nil {
		e.logError(op, "store_write_failed", err)
		return Result{}, newServiceError(op, "store_write_failed", err)
	}

	if err := e.finishRun(ctx, op, store.KindCustomers, result); err != nil {
		return Result{}, err
	}
	return result, nil
}

// mergeCustomer overwrites the ERP-owned fields and keeps everything
// the ERP does not know about: the local id, notes, lifecycle status
// and the original creation timestamp.
func mergeCustomer(local store.Customer, dto erp.CustomerDTO) store.Customer {
	local.Title = dto.Title
	local.TaxNumber = dto.TaxNumber
	local.Email = dto.Email
	local.Phone = dto.Phone
	local.City = dto.City
	local.Balance = dto.Balance
	local.Synced = true
	return local
}

func newCustomer(recordID string, dto erp.CustomerDTO, now time.Time) store.Customer {
	return store.Customer{
		RecordID:         recordID,
		CurrentCode:      strings.TrimSpace(dto.CurrentCode),
		Title:            dto.Title,
		TaxNumber:        dto.TaxNumber,
		Email:            dto.Email,
		Phone:            dto.Phone,
		City:             dto.City,
		Status:           "active",
		Balance:          dto.Balance,
		Synced:           true,
		CreatedAtSeconds: now.Unix(),
	}
}
