package clover

import (
	"context"
	"errors"
	"sync/atomic"

	"gorm.io/gorm"

	"github.com/pufftown/delivery-backend/internal/logging"
	"github.com/pufftown/delivery-backend/internal/models"
	"github.com/pufftown/delivery-backend/internal/money"
)

// InventoryClient is what the sync engine needs from the POS.
type InventoryClient interface {
	FetchAllItems(ctx context.Context) ([]Item, error)
}

// Indexer re-indexes the catalog after a full sync. Optional and best-effort.
type Indexer interface {
	IndexProducts(ctx context.Context, products []models.DeliveryProduct) error
}

var ErrSyncInProgress = errors.New("sync already running")

type SyncService struct {
	DB      *gorm.DB
	Client  InventoryClient
	Indexer Indexer

	fullRunning atomic.Bool
	liteRunning atomic.Bool
}

type SyncResult struct {
	Created    int `json:"created"`
	Updated    int `json:"updated"`
	Deleted    int `json:"deleted"`
	Duplicates int `json:"duplicates"`
}

// FullSync mirrors the remote catalog membership: creates unknown items,
// updates POS-owned fields on known ones, deletes local POS-linked products
// the remote no longer has. Admin-triggered only, never scheduled.
func (s *SyncService) FullSync(ctx context.Context) (*SyncResult, error) {
	if !s.fullRunning.CompareAndSwap(false, true) {
		return nil, ErrSyncInProgress
	}
	defer s.fullRunning.Store(false)

	l := logging.FromContext(ctx).With("job", "clover_full_sync")

	items, err := s.Client.FetchAllItems(ctx)
	if err != nil {
		return nil, err
	}

	res := &SyncResult{}
	seen := make(map[string]bool, len(items))
	for i := range items {
		item := &items[i]
		if item.ID == "" || seen[item.ID] {
			// The Clover API has returned duplicate ids in one batch
			// before; process each id once.
			if item.ID != "" {
				res.Duplicates++
			}
			continue
		}
		seen[item.ID] = true

		var existing models.DeliveryProduct
		err := s.DB.WithContext(ctx).Where("clover_item_id = ?", item.ID).First(&existing).Error
		switch {
		case err == nil:
			if err := s.updateFromRemote(ctx, &existing, item); err != nil {
				return res, err
			}
			res.Updated++
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := s.createFromRemote(ctx, item); err != nil {
				return res, err
			}
			res.Created++
		default:
			return res, err
		}
	}

	deleted, err := s.deleteUnseen(ctx, seen)
	if err != nil {
		return res, err
	}
	res.Deleted = deleted

	if s.Indexer != nil {
		var products []models.DeliveryProduct
		if err := s.DB.WithContext(ctx).Find(&products).Error; err == nil {
			if err := s.Indexer.IndexProducts(ctx, products); err != nil {
				l.Warn("reindex_failed", "error", err)
			}
		}
	}

	l.Info("full_sync_done",
		"created", res.Created, "updated", res.Updated,
		"deleted", res.Deleted, "duplicates", res.Duplicates)
	return res, nil
}

// updateFromRemote writes only the POS-owned columns. Curated fields
// (enabled, badge, display_order, show_in_slideshow, sale_price) are never
// part of the update set, so admin curation survives every sync.
func (s *SyncService) updateFromRemote(ctx context.Context, p *models.DeliveryProduct, item *Item) error {
	return s.DB.WithContext(ctx).
		Model(p).
		Select("name", "description", "price", "stock_quantity", "category").
		Updates(map[string]any{
			"name":           item.Name,
			"description":    item.Description,
			"price":          money.StringFromCents(item.Price),
			"stock_quantity": int(item.ItemStock.Quantity),
			"category":       item.Category(),
		}).Error
}

func (s *SyncService) createFromRemote(ctx context.Context, item *Item) error {
	p := models.DeliveryProduct{
		CloverItemID:  item.ID,
		Name:          item.Name,
		Description:   item.Description,
		Price:         money.StringFromCents(item.Price),
		StockQuantity: int(item.ItemStock.Quantity),
		Category:      item.Category(),
		// Initial visibility follows the POS; from here on the flag is
		// curated and sync leaves it alone.
		Enabled: !item.Hidden && item.Available,
	}
	return s.DB.WithContext(ctx).Create(&p).Error
}

func (s *SyncService) deleteUnseen(ctx context.Context, seen map[string]bool) (int, error) {
	var linked []models.DeliveryProduct
	err := s.DB.WithContext(ctx).
		Where("clover_item_id <> ''").
		Find(&linked).Error
	if err != nil {
		return 0, err
	}

	deleted := 0
	for i := range linked {
		if seen[linked[i].CloverItemID] {
			continue
		}
		if err := s.DB.WithContext(ctx).Delete(&linked[i]).Error; err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

// LightweightSync refreshes stock and price on locally enabled, POS-linked
// products. It never creates or deletes. Safe to run frequently; overlapping
// invocations are a no-op.
func (s *SyncService) LightweightSync(ctx context.Context) error {
	if !s.liteRunning.CompareAndSwap(false, true) {
		return nil
	}
	defer s.liteRunning.Store(false)

	l := logging.FromContext(ctx).With("job", "clover_light_sync")

	items, err := s.Client.FetchAllItems(ctx)
	if err != nil {
		return err
	}
	remote := make(map[string]*Item, len(items))
	for i := range items {
		remote[items[i].ID] = &items[i]
	}

	var products []models.DeliveryProduct
	err = s.DB.WithContext(ctx).
		Where("enabled = ? AND clover_item_id <> ''", true).
		Find(&products).Error
	if err != nil {
		return err
	}

	updated := 0
	for i := range products {
		item, ok := remote[products[i].CloverItemID]
		if !ok {
			continue
		}
		err := s.DB.WithContext(ctx).
			Model(&products[i]).
			Select("price", "stock_quantity").
			Updates(map[string]any{
				"price":          money.StringFromCents(item.Price),
				"stock_quantity": int(item.ItemStock.Quantity),
			}).Error
		if err != nil {
			return err
		}
		updated++
	}

	l.Info("light_sync_done", "updated", updated)
	return nil
}
