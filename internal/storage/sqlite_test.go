package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"gamedeals/internal/models"
	"gamedeals/internal/reconcile"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.EnsureCollection(context.Background(), models.TopPC); err != nil {
		t.Fatalf("EnsureCollection() error = %v", err)
	}
	return store
}

func testDeal(title, id, sale string) models.Deal {
	return models.Deal{
		Title:      title,
		FullPrice:  decimal.RequireFromString("29.99"),
		SalePrice:  decimal.RequireFromString(sale),
		URL:        "https://example.com/deal/" + id,
		ExternalID: &id,
	}
}

func TestEnsureCollection_Idempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.EnsureCollection(ctx, models.TopPC); err != nil {
		t.Fatalf("Second EnsureCollection() error = %v", err)
	}
	if err := store.Insert(ctx, models.TopPC, testDeal("Celeste", "1", "4.99")); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := store.EnsureCollection(ctx, models.TopPC); err != nil {
		t.Fatalf("EnsureCollection() after insert error = %v", err)
	}

	deals, err := store.Scan(ctx, models.TopPC)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(deals) != 1 {
		t.Errorf("EnsureCollection must not drop existing rows, got %d", len(deals))
	}
}

func TestInsert_RecomputesDerivedFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	deal := testDeal("Hollow Knight", "1", "7.49")
	deal.TitleLength = 999
	if err := store.Insert(ctx, models.TopPC, deal); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	got, err := store.Find(ctx, models.TopPC, models.Identity{Kind: models.KeyExternalID, Value: "1"})
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if got == nil {
		t.Fatal("Inserted deal not found")
	}
	if got.TitleLength != len("Hollow Knight") {
		t.Errorf("TitleLength = %d, want %d", got.TitleLength, len("Hollow Knight"))
	}
	if got.LastUpdated.IsZero() {
		t.Error("Insert must stamp last_updated when unset")
	}
}

func TestInsert_DuplicateURL(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := testDeal("Celeste", "1", "4.99")
	if err := store.Insert(ctx, models.TopPC, first); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	dupe := testDeal("Celeste Again", "2", "3.99")
	dupe.URL = first.URL

	err := store.Insert(ctx, models.TopPC, dupe)
	if !errors.Is(err, models.ErrDealExists) {
		t.Errorf("Insert() with duplicate url = %v, want ErrDealExists", err)
	}
}

func TestInsert_DuplicateExternalID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Insert(ctx, models.TopPC, testDeal("Celeste", "1", "4.99")); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	err := store.Insert(ctx, models.TopPC, testDeal("Other", "1", "3.99"))
	if !errors.Is(err, models.ErrDealExists) {
		t.Errorf("Insert() with duplicate external id = %v, want ErrDealExists", err)
	}
}

func TestInsert_MultipleNullExternalIDs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := testDeal("Bloodborne", "a", "9.99")
	a.ExternalID = nil
	b := testDeal("Journey", "b", "5.99")
	b.ExternalID = nil

	if err := store.Insert(ctx, models.TopPC, a); err != nil {
		t.Fatalf("Insert() first nil id error = %v", err)
	}
	// The external_id unique constraint must not treat NULLs as equal.
	if err := store.Insert(ctx, models.TopPC, b); err != nil {
		t.Errorf("Insert() second nil id error = %v", err)
	}
}

func TestScan_OrdersBySalePrice(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, d := range []models.Deal{
		testDeal("Mid", "1", "9.50"),
		testDeal("Cheap", "2", "2.49"),
		testDeal("Pricey", "3", "19.99"),
	} {
		if err := store.Insert(ctx, models.TopPC, d); err != nil {
			t.Fatalf("Insert(%s) error = %v", d.Title, err)
		}
	}

	deals, err := store.Scan(ctx, models.TopPC)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	var titles []string
	for _, d := range deals {
		titles = append(titles, d.Title)
	}
	want := []string{"Cheap", "Mid", "Pricey"}
	for i := range want {
		if titles[i] != want[i] {
			t.Fatalf("Scan order = %v, want %v", titles, want)
		}
	}
}

func TestFind_AbsentReturnsNil(t *testing.T) {
	store := newTestStore(t)

	got, err := store.Find(context.Background(), models.TopPC, models.Identity{Kind: models.KeyURL, Value: "https://example.com/nope"})
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if got != nil {
		t.Errorf("Find() of absent deal = %+v, want nil", got)
	}
}

func TestFind_ByTitle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Insert(ctx, models.TopPC, testDeal("Hades", "1", "12.49")); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	got, err := store.Find(ctx, models.TopPC, models.Identity{Kind: models.KeyTitle, Value: "Hades"})
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if got == nil || got.Title != "Hades" {
		t.Errorf("Find() by title = %+v, want Hades", got)
	}
}

func TestUpdatePayload(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Insert(ctx, models.TopPC, testDeal("Hades", "1", "12.49")); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	stamp := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	payload := models.Payload{
		FullPrice:   decimal.RequireFromString("24.99"),
		SalePrice:   decimal.RequireFromString("9.99"),
		URL:         "https://example.com/deal/1b",
		LastUpdated: stamp,
	}
	key := models.Identity{Kind: models.KeyExternalID, Value: "1"}
	if err := store.UpdatePayload(ctx, models.TopPC, key, payload); err != nil {
		t.Fatalf("UpdatePayload() error = %v", err)
	}

	got, err := store.Find(ctx, models.TopPC, key)
	if err != nil || got == nil {
		t.Fatalf("Find() after update = %+v, %v", got, err)
	}
	if !got.SalePrice.Equal(payload.SalePrice) {
		t.Errorf("SalePrice = %s, want %s", got.SalePrice, payload.SalePrice)
	}
	if got.URL != payload.URL {
		t.Errorf("URL = %s, want %s", got.URL, payload.URL)
	}
	if got.Title != "Hades" {
		t.Errorf("Title changed to %s, titles are frozen", got.Title)
	}
	if !got.LastUpdated.Equal(stamp) {
		t.Errorf("LastUpdated = %v, want %v", got.LastUpdated, stamp)
	}
}

func TestUpdatePayload_AbsentDeal(t *testing.T) {
	store := newTestStore(t)

	key := models.Identity{Kind: models.KeyExternalID, Value: "404"}
	err := store.UpdatePayload(context.Background(), models.TopPC, key, models.Payload{})
	if !errors.Is(err, models.ErrDealNotFound) {
		t.Errorf("UpdatePayload() of absent deal = %v, want ErrDealNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Insert(ctx, models.TopPC, testDeal("Hades", "1", "12.49")); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	key := models.Identity{Kind: models.KeyExternalID, Value: "1"}
	if err := store.Delete(ctx, models.TopPC, key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	got, err := store.Find(ctx, models.TopPC, key)
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if got != nil {
		t.Error("Deal still present after Delete")
	}

	// Deleting again is a no-op.
	if err := store.Delete(ctx, models.TopPC, key); err != nil {
		t.Errorf("Delete() of absent deal = %v, want nil", err)
	}
}

func TestLongestTitleLength(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	got, err := store.LongestTitleLength(ctx, models.TopPC)
	if err != nil {
		t.Fatalf("LongestTitleLength() error = %v", err)
	}
	if got != fallbackTitleLength {
		t.Errorf("Empty collection longest = %d, want fallback %d", got, fallbackTitleLength)
	}

	if err := store.Insert(ctx, models.TopPC, testDeal("Hades", "1", "12.49")); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := store.Insert(ctx, models.TopPC, testDeal("The Witcher 3: Wild Hunt", "2", "9.99")); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	got, err = store.LongestTitleLength(ctx, models.TopPC)
	if err != nil {
		t.Fatalf("LongestTitleLength() error = %v", err)
	}
	if want := len("The Witcher 3: Wild Hunt"); got != want {
		t.Errorf("LongestTitleLength() = %d, want %d", got, want)
	}
}

func TestRefreshTimestamps(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	last, err := store.LastRefreshed(ctx, models.TopPC)
	if err != nil {
		t.Fatalf("LastRefreshed() error = %v", err)
	}
	if !last.IsZero() {
		t.Errorf("Never-refreshed collection reports %v, want zero time", last)
	}

	first := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := store.TouchRefreshed(ctx, models.TopPC, first); err != nil {
		t.Fatalf("TouchRefreshed() error = %v", err)
	}
	second := first.Add(time.Hour)
	if err := store.TouchRefreshed(ctx, models.TopPC, second); err != nil {
		t.Fatalf("Second TouchRefreshed() error = %v", err)
	}

	last, err = store.LastRefreshed(ctx, models.TopPC)
	if err != nil {
		t.Fatalf("LastRefreshed() error = %v", err)
	}
	if !last.Equal(second) {
		t.Errorf("LastRefreshed() = %v, want %v", last, second)
	}
}

func TestInTx_RollsBackOnError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := store.InTx(ctx, func(tx reconcile.DealStore) error {
		if err := tx.Insert(ctx, models.TopPC, testDeal("Hades", "1", "12.49")); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx() = %v, want the callback error", err)
	}

	deals, err := store.Scan(ctx, models.TopPC)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(deals) != 0 {
		t.Errorf("Rolled-back insert persisted %d rows", len(deals))
	}
}

func TestInTx_CommitsOnSuccess(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.InTx(ctx, func(tx reconcile.DealStore) error {
		return tx.Insert(ctx, models.TopPC, testDeal("Hades", "1", "12.49"))
	})
	if err != nil {
		t.Fatalf("InTx() error = %v", err)
	}

	deals, err := store.Scan(ctx, models.TopPC)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(deals) != 1 {
		t.Errorf("Committed insert left %d rows, want 1", len(deals))
	}
}
