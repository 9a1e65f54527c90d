package sync

import (
	"context"
	"strings"

	"github.com/pusulahq/pusula/backend/internal/erp"
	"github.com/pusulahq/pusula/backend/internal/store"
	"go.uber.org/zap"
)

// OfferFetch is the external fetch collaborator for offers.
type OfferFetch func(ctx context.Context) ([]erp.OfferDTO, error)

// SyncOffers reconciles an ERP offer batch, matched by offer number.
// An external offer references its customer by ERP customer code; the
// code is resolved to the local customer id before persisting. Offers
// whose customer is not yet known locally are skipped rather than
// failing the batch, so offers synced ahead of their customers simply
// arrive on the next run.
func (e *Engine) SyncOffers(ctx context.Context, fetch OfferFetch) (Result, error) {
	const op = opSyncOffers
	defer e.lockKind(store.KindOffers)()

	fetchCtx, cancel := e.fetchContext(ctx)
	defer cancel()
	batch, err := fetch(fetchCtx)
	if err != nil {
		e.logError(op, "fetch_failed", err)
		return Result{}, newServiceError(op, "fetch_failed", err)
	}

	result := Result{Kind: store.KindOffers, Fetched: len(batch)}

	customerIndex, err := e.customerCodeIndex(ctx)
	if err != nil {
		e.logError(op, "store_read_failed", err)
		return Result{}, newServiceError(op, "store_read_failed", err)
	}

	offerNos := make([]string, 0, len(batch))
	for _, dto := range batch {
		if no := strings.TrimSpace(dto.OfferNo); no != "" {
			offerNos = append(offerNos, no)
		}
	}

	existing := make(map[string]store.Offer, len(offerNos))
	if len(offerNos) > 0 {
		var rows []store.Offer
		if err := e.db.WithContext(ctx).Where("offer_no IN ?", offerNos).Find(&rows).Error; err != nil {
			e.logError(op, "store_read_failed", err)
			return Result{}, newServiceError(op, "store_read_failed", err)
		}
		for _, row := range rows {
			existing[row.OfferNo] = row
		}
	}

	now := e.clock().UTC()
	skipped := 0
	upserts := make([]store.Offer, 0, len(batch))
	for _, dto := range batch {
		offerNo := strings.TrimSpace(dto.OfferNo)
		if offerNo == "" {
			continue
		}
		customerID, ok := customerIndex[strings.TrimSpace(dto.CustomerCode)]
		if !ok {
			skipped++
			continue
		}
		if local, ok := existing[offerNo]; ok {
			local.CustomerID = customerID
			local.Total = dto.Total
			local.Currency = dto.Currency
			local.Status = dto.Status
			local.Synced = true
			upserts = append(upserts, local)
			existing[offerNo] = local
			result.Updated++
			continue
		}
		recordID, err := e.ids.NewID()
		if err != nil {
			e.logError(op, "id_generation_failed", err)
			return Result{}, newServiceError(op, "id_generation_failed", err)
		}
		created := store.Offer{
			RecordID:         recordID,
			OfferNo:          offerNo,
			CustomerID:       customerID,
			Total:            dto.Total,
			Currency:         dto.Currency,
			Status:           dto.Status,
			Synced:           true,
			CreatedAtSeconds: now.Unix(),
		}
		upserts = append(upserts, created)
		existing[offerNo] = created
		result.Added++
	}

	if skipped > 0 {
		e.logger.Debug("offers skipped pending customer sync",
			zap.String("operation", op), zap.Int("skipped", skipped))
	}

	if err := saveAll(ctx, e.db, upserts); err != nil {
		e.logError(op, "store_write_failed", err)
		return Result{}, newServiceError(op, "store_write_failed", err)
	}

	if err := e.finishRun(ctx, op, store.KindOffers, result); err != nil {
		return Result{}, err
	}
	return result, nil
}
