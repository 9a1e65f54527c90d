package sync

import (
	"context"
	"strings"

	"github.com/pusulahq/pusula/backend/internal/erp"
	"github.com/pusulahq/pusula/backend/internal/store"
)

type StockItemFetch func(ctx context.Context) ([]erp.StockItemDTO, error)

type WarehouseFetch func(ctx context.Context) ([]erp.WarehouseDTO, error)

type StockLevelFetch func(ctx context.Context) ([]erp.StockLevelDTO, error)

// SyncStockItems reconciles an ERP stock item batch, matched by SKU.
func (e *Engine) SyncStockItems(ctx context.Context, fetch StockItemFetch) (Result, error) {
	const op = opSyncStockItems
	defer e.lockKind(store.KindStockItems)()

	fetchCtx, cancel := e.fetchContext(ctx)
	defer cancel()
	batch, err := fetch(fetchCtx)
	if err != nil {
		e.logError(op, "fetch_failed", err)
		return Result{}, newServiceError(op, "fetch_failed", err)
	}

	result := Result{Kind: store.KindStockItems, Fetched: len(batch)}

	skus := make([]string, 0, len(batch))
	for _, dto := range batch {
		if sku := strings.TrimSpace(dto.SKU); sku != "" {
			skus = append(skus, sku)
		}
	}

	existing := make(map[string]store.StockItem, len(skus))
	if len(skus) > 0 {
		var rows []store.StockItem
		if err := e.db.WithContext(ctx).Where("sku IN ?", skus).Find(&rows).Error; err != nil {
			e.logError(op, "store_read_failed", err)
			return Result{}, newServiceError(op, "store_read_failed", err)
		}
		for _, row := range rows {
			existing[row.SKU] = row
		}
	}

	now := e.clock().UTC()
	upserts := make([]store.StockItem, 0, len(batch))
	for _, dto := range batch {
		sku := strings.TrimSpace(dto.SKU)
		if sku == "" {
			continue
		}
		if local, ok := existing[sku]; ok {
			local.Name = dto.Name
			local.Unit = dto.Unit
			local.Price = dto.Price
			local.VATRate = dto.VATRate
			local.Synced = true
			upserts = append(upserts, local)
			existing[sku] = local
			result.Updated++
			continue
		}
		recordID, err := e.ids.NewID()
		if err != nil {
			e.logError(op, "id_generation_failed", err)
			return Result{}, newServiceError(op, "id_generation_failed", err)
		}
		created := store.StockItem{
			RecordID:         recordID,
			SKU:              sku,
			Name:             dto.Name,
			Unit:             dto.Unit,
			Price:            dto.Price,
			VATRate:          dto.VATRate,
			Synced:           true,
			CreatedAtSeconds: now.Unix(),
		}
		upserts = append(upserts, created)
		existing[sku] = created
		result.Added++
	}

	if err := saveAll(ctx, e.db, upserts); err != nil {
		e.logError(op, "store_write_failed", err)
		return Result{}, newServiceError(op, "store_write_failed", err)
	}

	if err := e.finishRun(ctx, op, store.KindStockItems, result); err != nil {
		return Result{}, err
	}
	return result, nil
}

// SyncWarehouses reconciles an ERP warehouse batch, matched by code.
func (e *Engine) SyncWarehouses(ctx context.Context, fetch WarehouseFetch) (Result, error) {
	const op = opSyncWarehouses
	defer e.lockKind(store.KindWarehouses)()

	fetchCtx, cancel := e.fetchContext(ctx)
	defer cancel()
	batch, err := fetch(fetchCtx)
	if err != nil {
		e.logError(op, "fetch_failed", err)
		return Result{}, newServiceError(op, "fetch_failed", err)
	}

	result := Result{Kind: store.KindWarehouses, Fetched: len(batch)}

	codes := make([]string, 0, len(batch))
	for _, dto := range batch {
		if code := strings.TrimSpace(dto.Code); code != "" {
			codes = append(codes, code)
		}
	}

	existing := make(map[string]store.Warehouse, len(codes))
	if len(codes) > 0 {
		var rows []store.Warehouse
		if err := e.db.WithContext(ctx).Where("code IN ?", codes).Find(&rows).Error; err != nil {
			e.logError(op, "store_read_failed", err)
			return Result{}, newServiceError(op, "store_read_failed", err)
		}
		for _, row := range rows {
			existing[row.Code] = row
		}
	}

	now := e.clock().UTC()
	upserts := make([]store.Warehouse, 0, len(batch))
	for _, dto := range batch {
		code := strings.TrimSpace(dto.Code)
		if code == "" {
			continue
		}
		if local, ok := existing[code]; ok {
			local.Name = dto.Name
			local.Synced = true
			upserts = append(upserts, local)
			existing[code] = local
			result.Updated++
			continue
		}
		recordID, err := e.ids.NewID()
		if err != nil {
			e.logError(op, "id_generation_failed", err)
			return Result{}, newServiceError(op, "id_generation_failed", err)
		}
		created := store.Warehouse{
			RecordID:         recordID,
			Code:             code,
			Name:             dto.Name,
			Synced:           true,
			CreatedAtSeconds: now.Unix(),
		}
		upserts = append(upserts, created)
		existing[code] = created
		result.Added++
	}

	if err := saveAll(ctx, e.db, upserts); err != nil {
		e.logError(op, "store_write_failed", err)
		return Result{}, newServiceError(op, "store_write_failed", err)
	}

	if err := e.finishRun(ctx, op, store.KindWarehouses, result); err != nil {
		return Result{}, err
	}
	return result, nil
}

// SyncStockLevels reconciles per-warehouse stock quantities. The
// natural key is the (warehouse code, sku) pair; both sides must
// already exist locally, otherwise the record is skipped. Skipping is
// deliberate so a stock level arriving before its warehouse or item
// does not abort the batch.
func (e *Engine) SyncStockLevels(ctx context.Context, fetch StockLevelFetch) (Result, error) {
	const op = opSyncStockLevels
	defer e.lockKind(store.KindStockLevels)()

	fetchCtx, cancel := e.fetchContext(ctx)
	defer cancel()
	batch, err := fetch(fetchCtx)
	if err != nil {
		e.logError(op, "fetch_failed", err)
		return Result{}, newServiceError(op, "fetch_failed", err)
	}

	result := Result{Kind: store.KindStockLevels, Fetched: len(batch)}

	warehouseIndex, err := e.warehouseCodeIndex(ctx)
	if err != nil {
		e.logError(op, "store_read_failed", err)
		return Result{}, newServiceError(op, "store_read_failed", err)
	}
	itemIndex, err := e.stockItemSKUIndex(ctx)
	if err != nil {
		e.logError(op, "store_read_failed", err)
		return Result{}, newServiceError(op, "store_read_failed", err)
	}

	var rows []store.StockLevel
	if err := e.db.WithContext(ctx).Find(&rows).Error; err != nil {
		e.logError(op, "store_read_failed", err)
		return Result{}, newServiceError(op, "store_read_failed", err)
	}
	existing := make(map[string]store.StockLevel, len(rows))
	for _, row := range rows {
		existing[stockLevelKey(row.WarehouseID, row.StockItemID)] = row
	}

	now := e.clock().UTC()
	upserts := make([]store.StockLevel, 0, len(batch))
	for _, dto := range batch {
		warehouseID, ok := warehouseIndex[strings.TrimSpace(dto.WarehouseCode)]
		if !ok {
			continue
		}
		stockItemID, ok := itemIndex[strings.TrimSpace(dto.SKU)]
		if !ok {
			continue
		}
		key := stockLevelKey(warehouseID, stockItemID)
		if local, ok := existing[key]; ok {
			local.Quantity = dto.Quantity
			local.Synced = true
			upserts = append(upserts, local)
			existing[key] = local
			result.Updated++
			continue
		}
		recordID, err := e.ids.NewID()
		if err != nil {
			e.logError(op, "id_generation_failed", err)
			return Result{}, newServiceError(op, "id_generation_failed", err)
		}
		created := store.StockLevel{
			RecordID:         recordID,
			WarehouseID:      warehouseID,
			StockItemID:      stockItemID,
			Quantity:         dto.Quantity,
			Synced:           true,
			CreatedAtSeconds: now.Unix(),
		}
		upserts = append(upserts, created)
		existing[key] = created
		result.Added++
	}

	if err := saveAll(ctx, e.db, upserts); err != nil {
		e.logError(op, "store_write_failed", err)
		return Result{}, newServiceError(op, "store_write_failed", err)
	}

	if err := e.finishRun(ctx, op, store.KindStockLevels, result); err != nil {
		return Result{}, err
	}
	return result, nil
}

func stockLevelKey(warehouseID, stockItemID string) string {
	return warehouseID + "\x00" + stockItemID
}

func (e *Engine) warehouseCodeIndex(ctx context.Context) (map[string]string, error) {
	var rows []store.Warehouse
	if err := e.db.WithContext(ctx).
		Select("record_id", "code").
		Where("code <> ''").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	index := make(map[string]string, len(rows))
	for _, row := range rows {
		index[row.Code] = row.RecordID
	}
	return index, nil
}

func (e *Engine) stockItemSKUIndex(ctx context.Context) (map[string]string, error) {
	var rows []store.StockItem
	if err := e.db.WithContext(ctx).
		Select("record_id", "sku").
		Where("sku <> ''").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	index := make(map[string]string, len(rows))
	for _, row := range rows {
		index[row.SKU] = row.RecordID
	}
	return index, nil
}
