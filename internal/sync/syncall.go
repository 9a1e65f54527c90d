package sync

import (
	"context"
	"errors"

	"github.com/pusulahq/pusula/backend/internal/erp"
	"github.com/pusulahq/pusula/backend/internal/store"
	"go.uber.org/zap"
)

// ErrPartialSync reports that at least one entity type failed during a
// full sync pass while others completed.
var ErrPartialSync = errors.New("sync: one or more entity types failed")

// SyncAll runs every entity type against the ERP client in dependency
// order, so referenced types land before the types that reference
// them. A failing type is logged and skipped; the remaining types
// still run. The returned results cover the types that succeeded.
func (e *Engine) SyncAll(ctx context.Context, client *erp.Client) ([]Result, error) {
	type pass struct {
		kind store.Kind
		run  func(context.Context) (Result, error)
	}

	passes := []pass{
		{store.KindCustomers, func(ctx context.Context) (Result, error) {
			return e.SyncCustomers(ctx, client.FetchCustomers)
		}},
		{store.KindWarehouses, func(ctx context.Context) (Result, error) {
			return e.SyncWarehouses(ctx, client.FetchWarehouses)
		}},
		{store.KindStockItems, func(ctx context.Context) (Result, error) {
			return e.SyncStockItems(ctx, client.FetchStockItems)
		}},
		{store.KindStockLevels, func(ctx context.Context) (Result, error) {
			return e.SyncStockLevels(ctx, client.FetchStockLevels)
		}},
		{store.KindOffers, func(ctx context.Context) (Result, error) {
			return e.SyncOffers(ctx, client.FetchOffers)
		}},
		{store.KindIncomingInvoices, func(ctx context.Context) (Result, error) {
			return e.SyncIncomingInvoices(ctx, client.FetchIncomingInvoices)
		}},
		{store.KindOutgoingInvoices, func(ctx context.Context) (Result, error) {
			return e.SyncOutgoingInvoices(ctx, client.FetchOutgoingInvoices)
		}},
	}

	results := make([]Result, 0, len(passes))
	failed := 0
	for _, p := range passes {
		result, err := p.run(ctx)
		if err != nil {
			failed++
			e.logError(opSyncAll, "entity_type_failed", err, zap.String("kind", string(p.kind)))
			continue
		}
		results = append(results, result)
	}

	if failed > 0 {
		return results, ErrPartialSync
	}
	return results, nil
}
