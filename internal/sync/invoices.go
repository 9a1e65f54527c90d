package sync

import (
	"context"
	"strings"
	"time"

	"github.com/pusulahq/pusula/backend/internal/erp"
	"github.com/pusulahq/pusula/backend/internal/store"
)

// InvoiceFetch is the external fetch collaborator for one invoice direction.
type InvoiceFetch func(ctx context.Context) ([]erp.InvoiceDTO, error)

// SyncIncomingInvoices reconciles supplier invoices, matched by invoice
// number within the incoming direction.
func (e *Engine) SyncIncomingInvoices(ctx context.Context, fetch InvoiceFetch) (Result, error) {
	return e.syncInvoices(ctx, opSyncIncomingInv, store.KindIncomingInvoices, store.InvoiceDirectionIncoming, fetch)
}

// SyncOutgoingInvoices reconciles issued invoices, matched by invoice
// number within the outgoing direction.
func (e *Engine) SyncOutgoingInvoices(ctx context.Context, fetch InvoiceFetch) (Result, error) {
	return e.syncInvoices(ctx, opSyncOutgoingInv, store.KindOutgoingInvoices, store.InvoiceDirectionOutgoing, fetch)
}

func (e *Engine) syncInvoices(ctx context.Context, op string, kind store.Kind, direction string, fetch InvoiceFetch) (Result, error) {
	defer e.lockKind(kind)()

	fetchCtx, cancel := e.fetchContext(ctx)
	defer cancel()
	batch, err := fetch(fetchCtx)
	if err != nil {
		e.logError(op, "fetch_failed", err)
		return Result{}, newServiceError(op, "fetch_failed", err)
	}

	result := Result{Kind: kind, Fetched: len(batch)}

	customerIndex, err := e.customerCodeIndex(ctx)
	if err != nil {
		e.logError(op, "store_read_failed", err)
		return Result{}, newServiceError(op, "store_read_failed", err)
	}

	invoiceNos := make([]string, 0, len(batch))
	for _, dto := range batch {
		if no := strings.TrimSpace(dto.InvoiceNo); no != "" {
			invoiceNos = append(invoiceNos, no)
		}
	}

	existing := make(map[string]store.Invoice, len(invoiceNos))
	if len(invoiceNos) > 0 {
		var rows []store.Invoice
		if err := e.db.WithContext(ctx).
			Where("direction = ? AND invoice_no IN ?", direction, invoiceNos).
			Find(&rows).Error; err != nil {
			e.logError(op, "store_read_failed", err)
			return Result{}, newServiceError(op, "store_read_failed", err)
		}
		for _, row := range rows {
			existing[row.InvoiceNo] = row
		}
	}

	now := e.clock().UTC()
	upserts := make([]store.Invoice, 0, len(batch))
	for _, dto := range batch {
		invoiceNo := strings.TrimSpace(dto.InvoiceNo)
		if invoiceNo == "" {
			continue
		}
		customerID, ok := customerIndex[strings.TrimSpace(dto.CustomerCode)]
		if !ok {
			continue
		}
		issuedAt := parseInvoiceDate(dto.IssuedAt)
		if local, ok := existing[invoiceNo]; ok {
			local.CustomerID = customerID
			local.Total = dto.Total
			local.Currency = dto.Currency
			local.IssuedAtSeconds = issuedAt
			local.Synced = true
			upserts = append(upserts, local)
			existing[invoiceNo] = local
			result.Updated++
			continue
		}
		recordID, err := e.ids.NewID()
		if err != nil {
			e.logError(op, "id_generation_failed", err)
			return Result{}, newServiceError(op, "id_generation_failed", err)
		}
		created := store.Invoice{
			RecordID:         recordID,
			InvoiceNo:        invoiceNo,
			Direction:        direction,
			CustomerID:       customerID,
			Total:            dto.Total,
			Currency:         dto.Currency,
			IssuedAtSeconds:  issuedAt,
			Synced:           true,
			CreatedAtSeconds: now.Unix(),
		}
		upserts = append(upserts, created)
		existing[invoiceNo] = created
		result.Added++
	}

	if err := saveAll(ctx, e.db, upserts); err != nil {
		e.logError(op, "store_write_failed", err)
		return Result{}, newServiceError(op, "store_write_failed", err)
	}

	if err := e.finishRun(ctx, op, kind, result); err != nil {
		return Result{}, err
	}
	return result, nil
}

func parseInvoiceDate(raw string) int64 {
	parsed, err := time.Parse("2006-01-02", strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return parsed.UTC().Unix()
}
