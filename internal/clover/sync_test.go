package clover

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pufftown/delivery-backend/internal/models"
	"github.com/pufftown/delivery-backend/internal/testutil"
)

type fakeInventory struct {
	mu    sync.Mutex
	items []Item
	err   error
	calls int
	gate  chan struct{} // when set, FetchAllItems blocks until closed
}

func (f *fakeInventory) FetchAllItems(ctx context.Context) ([]Item, error) {
	f.mu.Lock()
	f.calls++
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return f.items, f.err
}

func remoteItem(id, name string, priceCents int64, stock float64) Item {
	it := Item{ID: id, Name: name, Price: priceCents, Available: true}
	it.ItemStock.Quantity = stock
	return it
}

func TestFullSyncCreatesAndConverts(t *testing.T) {
	db := testutil.OpenDB(t)
	inv := &fakeInventory{items: []Item{remoteItem("CLV1", "Mango Ice", 1999, 12)}}
	svc := &SyncService{DB: db, Client: inv}

	res, err := svc.FullSync(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.Created)

	var p models.DeliveryProduct
	require.NoError(t, db.Where("clover_item_id = ?", "CLV1").First(&p).Error)
	require.Equal(t, "19.99", p.Price) // 1999 cents -> "19.99"
	require.Equal(t, 12, p.StockQuantity)
	require.True(t, p.Enabled) // available and not hidden
}

func TestFullSyncPreservesCuratedFields(t *testing.T) {
	db := testutil.OpenDB(t)
	require.NoError(t, db.Create(&models.DeliveryProduct{
		CloverItemID:    "CLV1",
		Name:            "Mango Ice",
		Price:           "19.99",
		StockQuantity:   12,
		Enabled:         true,
		Badge:           "popular",
		DisplayOrder:    3,
		ShowInSlideshow: true,
		SalePrice:       "17.99",
	}).Error)

	inv := &fakeInventory{items: []Item{remoteItem("CLV1", "Mango Ice 100ml", 2099, 8)}}
	svc := &SyncService{DB: db, Client: inv}

	res, err := svc.FullSync(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.Updated)
	require.Equal(t, 0, res.Created)

	var p models.DeliveryProduct
	require.NoError(t, db.Where("clover_item_id = ?", "CLV1").First(&p).Error)
	require.Equal(t, "20.99", p.Price)
	require.Equal(t, 8, p.StockQuantity)
	require.Equal(t, "Mango Ice 100ml", p.Name)

	// Curation untouched.
	require.True(t, p.Enabled)
	require.Equal(t, "popular", p.Badge)
	require.Equal(t, 3, p.DisplayOrder)
	require.True(t, p.ShowInSlideshow)
	require.Equal(t, "17.99", p.SalePrice)
}

func TestFullSyncDeletesUnseen(t *testing.T) {
	db := testutil.OpenDB(t)
	require.NoError(t, db.Create(&models.DeliveryProduct{CloverItemID: "GONE", Name: "Old", Price: "5.00"}).Error)
	require.NoError(t, db.Create(&models.DeliveryProduct{CloverItemID: "KEPT", Name: "Kept", Price: "5.00"}).Error)
	// Manually added product without a POS link is never touched.
	require.NoError(t, db.Create(&models.DeliveryProduct{Name: "House Blend", Price: "9.00"}).Error)

	inv := &fakeInventory{items: []Item{remoteItem("KEPT", "Kept", 500, 1)}}
	svc := &SyncService{DB: db, Client: inv}

	res, err := svc.FullSync(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.Deleted)

	var count int64
	require.NoError(t, db.Model(&models.DeliveryProduct{}).Count(&count).Error)
	require.Equal(t, int64(2), count)

	err = db.Where("clover_item_id = ?", "GONE").First(&models.DeliveryProduct{}).Error
	require.Error(t, err)
}

func TestFullSyncSkipsDuplicateIDs(t *testing.T) {
	db := testutil.OpenDB(t)
	inv := &fakeInventory{items: []Item{
		remoteItem("CLV1", "Mango Ice", 1999, 12),
		remoteItem("CLV1", "Mango Ice dup", 1599, 3),
	}}
	svc := &SyncService{DB: db, Client: inv}

	res, err := svc.FullSync(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.Created)
	require.Equal(t, 1, res.Duplicates)

	var p models.DeliveryProduct
	require.NoError(t, db.Where("clover_item_id = ?", "CLV1").First(&p).Error)
	require.Equal(t, "19.99", p.Price) // first occurrence wins
}

func TestFullSyncPropagatesFetchError(t *testing.T) {
	db := testutil.OpenDB(t)
	inv := &fakeInventory{err: errors.New("clover: inventory fetch returned 500")}
	svc := &SyncService{DB: db, Client: inv}

	_, err := svc.FullSync(context.Background())
	require.Error(t, err)
}

func TestLightweightSyncUpdatesEnabledLinkedOnly(t *testing.T) {
	db := testutil.OpenDB(t)
	require.NoError(t, db.Create(&models.DeliveryProduct{
		CloverItemID: "CLV1", Name: "Mango Ice", Price: "19.99", StockQuantity: 12, Enabled: true,
	}).Error)
	require.NoError(t, db.Create(&models.DeliveryProduct{
		CloverItemID: "CLV2", Name: "Disabled", Price: "10.00", StockQuantity: 5, Enabled: false,
	}).Error)

	inv := &fakeInventory{items: []Item{
		remoteItem("CLV1", "Mango Ice", 1899, 7),
		remoteItem("CLV2", "Disabled", 999, 1),
		remoteItem("CLV3", "Brand New", 500, 2),
	}}
	svc := &SyncService{DB: db, Client: inv}

	require.NoError(t, svc.LightweightSync(context.Background()))

	var p1, p2 models.DeliveryProduct
	require.NoError(t, db.Where("clover_item_id = ?", "CLV1").First(&p1).Error)
	require.Equal(t, "18.99", p1.Price)
	require.Equal(t, 7, p1.StockQuantity)

	// Disabled product untouched, no product created for CLV3.
	require.NoError(t, db.Where("clover_item_id = ?", "CLV2").First(&p2).Error)
	require.Equal(t, "10.00", p2.Price)

	var count int64
	require.NoError(t, db.Model(&models.DeliveryProduct{}).Count(&count).Error)
	require.Equal(t, int64(2), count)
}

func TestLightweightSyncOverlapIsNoop(t *testing.T) {
	db := testutil.OpenDB(t)
	gate := make(chan struct{})
	inv := &fakeInventory{gate: gate}
	svc := &SyncService{DB: db, Client: inv}

	done := make(chan error, 1)
	go func() { done <- svc.LightweightSync(context.Background()) }()

	// Wait for the first run to be inside the fetch.
	for {
		inv.mu.Lock()
		started := inv.calls > 0
		inv.mu.Unlock()
		if started {
			break
		}
	}

	// Second invocation returns immediately without fetching.
	require.NoError(t, svc.LightweightSync(context.Background()))
	inv.mu.Lock()
	require.Equal(t, 1, inv.calls)
	inv.mu.Unlock()

	close(gate)
	require.NoError(t, <-done)
}

func TestFullSyncOverlapErrors(t *testing.T) {
	db := testutil.OpenDB(t)
	gate := make(chan struct{})
	inv := &fakeInventory{gate: gate}
	svc := &SyncService{DB: db, Client: inv}

	done := make(chan error, 1)
	go func() { _, err := svc.FullSync(context.Background()); done <- err }()

	for {
		inv.mu.Lock()
		started := inv.calls > 0
		inv.mu.Unlock()
		if started {
			break
		}
	}

	_, err := svc.FullSync(context.Background())
	require.ErrorIs(t, err, ErrSyncInProgress)

	close(gate)
	require.NoError(t, <-done)
}
