package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gamedeals/internal/models"
	"gamedeals/internal/validator"
)

// Engine merges freshly fetched snapshots into the store. Top-deals
// collections are reconciled wholesale (Mode A): membership mirrors
// the new snapshot exactly. Wishlists merge without purging (Mode B):
// rows only leave through an explicit user delete.
type Engine struct {
	store    DealStore
	validate *validator.Validator
	now      func() time.Time
}

func New(store DealStore) *Engine {
	return &Engine{
		store:    store,
		validate: validator.New(),
		now:      time.Now,
	}
}

// Source bundles one platform with its two collections and any
// wishlist identities the user asked for on the command line.
type Source struct {
	Top       models.Collection
	Wishlist  models.Collection
	Platform  Platform
	Requested []string
}

// RunPass refreshes every source sequentially. A fetch failure in one
// collection never blocks the others; store or matching errors are
// collected and returned together so the run fails loudly.
func (e *Engine) RunPass(ctx context.Context, sources []Source, delay time.Duration) error {
	policy := NewPolicy(e.store)
	var errs []string

	for _, src := range sources {
		if err := e.refreshSource(ctx, policy, src, delay); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("refresh pass finished with errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (e *Engine) refreshSource(ctx context.Context, policy *Policy, src Source, delay time.Duration) error {
	for _, c := range []models.Collection{src.Top, src.Wishlist} {
		if err := e.store.EnsureCollection(ctx, c); err != nil {
			return fmt.Errorf("ensure %s: %w", c, err)
		}
	}

	stale, err := policy.NeedsRefresh(ctx, src.Top, e.now(), delay)
	if err != nil {
		return fmt.Errorf("staleness check %s: %w", src.Top, err)
	}
	if stale {
		if err := e.RefreshTop(ctx, src.Top, src.Platform); err != nil {
			return fmt.Errorf("refresh %s: %w", src.Top, err)
		}
	} else {
		slog.Debug("Collection still fresh, skipping fetch", "collection", src.Top)
	}

	items, err := policy.ItemsNeedingRefresh(ctx, src.Wishlist, e.now(), delay)
	if err != nil {
		return fmt.Errorf("staleness check %s: %w", src.Wishlist, err)
	}
	identities := unionIdentities(items, src.Requested)
	if len(identities) == 0 {
		return nil
	}
	if err := e.RefreshWishlist(ctx, src.Wishlist, src.Platform, identities); err != nil {
		return fmt.Errorf("refresh %s: %w", src.Wishlist, err)
	}
	return nil
}

// RefreshTop reconciles a top-deals collection against a fresh
// snapshot. A failed or empty fetch mutates nothing and leaves the
// refresh timestamp alone, so the collection is retried next run.
func (e *Engine) RefreshTop(ctx context.Context, c models.Collection, p Platform) error {
	raw, err := p.FetchTop(ctx)
	if err != nil {
		slog.Warn("Top deals fetch failed, keeping previous snapshot", "collection", c, "error", err)
		return nil
	}
	if len(raw) == 0 {
		slog.Warn("Top deals fetch returned nothing, keeping previous snapshot", "collection", c)
		return nil
	}

	fresh := dedupeCheapest(e.validRecords(c, raw))
	if len(fresh) == 0 {
		slog.Warn("No valid records in fetched snapshot, keeping previous snapshot", "collection", c)
		return nil
	}

	old, err := e.store.Scan(ctx, c)
	if err != nil {
		return err
	}

	now := e.now()
	expired, matched := partition(old, fresh)

	err = e.store.InTx(ctx, func(tx DealStore) error {
		for _, dead := range expired {
			if err := tx.Delete(ctx, c, dead.MatchKey()); err != nil {
				return fmt.Errorf("delete %q: %w", dead.Title, err)
			}
		}
		for i, r := range fresh {
			if prev, ok := matched[i]; ok {
				if err := tx.UpdatePayload(ctx, c, prev.MatchKey(), payloadOf(r, now)); err != nil {
					return fmt.Errorf("update %q: %w", r.Title, err)
				}
				continue
			}
			if err := tx.Insert(ctx, c, newDeal(r, now)); err != nil {
				return fmt.Errorf("insert %q: %w", r.Title, err)
			}
		}
		return tx.TouchRefreshed(ctx, c, now)
	})
	if err != nil {
		return err
	}

	slog.Info("Reconciled top deals", "collection", c,
		"expired", len(expired), "updated", len(matched), "inserted", len(fresh)-len(matched))
	return nil
}

// RefreshWishlist fetches fresh payloads for the given identities and
// merges them in: existing rows are updated, new ones inserted,
// nothing is ever deleted. Malformed identities are skipped.
func (e *Engine) RefreshWishlist(ctx context.Context, c models.Collection, p Platform, identities []string) error {
	valid := identities[:0:0]
	for _, id := range identities {
		if !p.ValidateIdentity(id) {
			slog.Warn("Skipping invalid wishlist identity", "collection", c, "identity", id)
			continue
		}
		valid = append(valid, id)
	}
	if len(valid) == 0 {
		return nil
	}

	raw, err := p.FetchWishlist(ctx, valid)
	if err != nil {
		slog.Warn("Wishlist fetch failed, keeping previous snapshot", "collection", c, "error", err)
		return nil
	}
	fresh := e.validRecords(c, raw)
	if len(fresh) == 0 {
		return nil
	}

	now := e.now()
	var updated, inserted int
	err = e.store.InTx(ctx, func(tx DealStore) error {
		for _, r := range fresh {
			prev, err := findExisting(ctx, tx, c, r)
			if err != nil {
				return err
			}
			if prev != nil {
				if err := tx.UpdatePayload(ctx, c, prev.MatchKey(), payloadOf(r, now)); err != nil {
					return fmt.Errorf("update %q: %w", r.Title, err)
				}
				updated++
				continue
			}
			if err := tx.Insert(ctx, c, newDeal(r, now)); err != nil {
				return fmt.Errorf("insert %q: %w", r.Title, err)
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.Info("Reconciled wishlist", "collection", c, "updated", updated, "inserted", inserted)
	return nil
}

// validRecords drops fetched records that fail structural validation
// so one malformed entry never aborts a whole merge.
func (e *Engine) validRecords(c models.Collection, raw []models.RawDeal) []models.RawDeal {
	out := raw[:0:0]
	for _, r := range raw {
		if err := e.validate.ValidateStruct(r); err != nil {
			slog.Warn("Dropping malformed fetched record", "collection", c, "title", r.Title, "error", err)
			continue
		}
		out = append(out, r)
	}
	return out
}

// dedupeCheapest collapses same-title entries within one snapshot.
// The first occurrence of a title seeds a cheapest-so-far record;
// later occurrences overwrite sale price and url only when strictly
// cheaper. The JSON API routinely returns several SKUs per game.
func dedupeCheapest(raw []models.RawDeal) []models.RawDeal {
	out := make([]models.RawDeal, 0, len(raw))
	seen := make(map[string]int, len(raw))
	for _, r := range raw {
		if i, ok := seen[r.Title]; ok {
			if r.SalePrice.LessThan(out[i].SalePrice) {
				out[i].SalePrice = r.SalePrice
				out[i].URL = r.URL
			}
			continue
		}
		seen[r.Title] = len(out)
		out = append(out, r)
	}
	return out
}

// partition splits the old snapshot into expired rows and rows matched
// to an entry of the fresh snapshot, keyed by fresh index. Matching
// prefers external id, then url, then title; the title fallback only
// exists for rows predating stable identifiers.
func partition(old []models.Deal, fresh []models.RawDeal) (expired []models.Deal, matched map[int]models.Deal) {
	matched = make(map[int]models.Deal)
	for _, prev := range old {
		i := matchIndex(prev, fresh)
		if i < 0 {
			expired = append(expired, prev)
			continue
		}
		matched[i] = prev
	}
	return expired, matched
}

func matchIndex(prev models.Deal, fresh []models.RawDeal) int {
	if prev.ExternalID != nil && *prev.ExternalID != "" {
		for i, r := range fresh {
			if r.ExternalID == *prev.ExternalID {
				return i
			}
		}
	}
	for i, r := range fresh {
		if r.URL == prev.URL {
			return i
		}
	}
	for i, r := range fresh {
		if r.Title == prev.Title {
			return i
		}
	}
	return -1
}

// findExisting locates the stored row a fetched record corresponds to,
// by external id first and url second.
func findExisting(ctx context.Context, store DealStore, c models.Collection, r models.RawDeal) (*models.Deal, error) {
	if r.ExternalID != "" {
		prev, err := store.Find(ctx, c, models.Identity{Kind: models.KeyExternalID, Value: r.ExternalID})
		if err != nil || prev != nil {
			return prev, err
		}
	}
	return store.Find(ctx, c, models.Identity{Kind: models.KeyURL, Value: r.URL})
}

func newDeal(r models.RawDeal, now time.Time) models.Deal {
	d := models.Deal{
		Title:       r.Title,
		FullPrice:   r.FullPrice,
		SalePrice:   r.SalePrice,
		CoverImage:  r.CoverImage,
		URL:         r.URL,
		LastUpdated: now,
		TitleLength: len(r.Title),
	}
	if r.ExternalID != "" {
		id := r.ExternalID
		d.ExternalID = &id
	}
	return d
}

func payloadOf(r models.RawDeal, now time.Time) models.Payload {
	return models.Payload{
		FullPrice:   r.FullPrice,
		SalePrice:   r.SalePrice,
		CoverImage:  r.CoverImage,
		URL:         r.URL,
		LastUpdated: now,
	}
}

func unionIdentities(stale, requested []string) []string {
	seen := make(map[string]struct{}, len(stale)+len(requested))
	out := make([]string, 0, len(stale)+len(requested))
	for _, id := range append(append([]string{}, stale...), requested...) {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
