package reconcile

import (
	"context"
	"time"

	"gamedeals/internal/models"
)

// Policy decides when a collection, or an individual tracked item,
// is due for a re-fetch.
type Policy struct {
	store DealStore
}

func NewPolicy(store DealStore) *Policy {
	return &Policy{store: store}
}

// NeedsRefresh reports whether a top-deals collection is due for a
// wholesale refresh: it has never been refreshed, or the recorded
// collection-level refresh time is older than delay.
func (p *Policy) NeedsRefresh(ctx context.Context, c models.Collection, now time.Time, delay time.Duration) (bool, error) {
	last, err := p.store.LastRefreshed(ctx, c)
	if err != nil {
		return false, err
	}
	if last.IsZero() {
		return true, nil
	}
	return now.Sub(last) > delay, nil
}

// ItemsNeedingRefresh returns the fetch identities of tracked wishlist
// rows whose own last_updated exceeds delay. Items never fetched have
// no row and therefore never appear here; they arrive only as
// user-requested identities.
func (p *Policy) ItemsNeedingRefresh(ctx context.Context, c models.Collection, now time.Time, delay time.Duration) ([]string, error) {
	deals, err := p.store.Scan(ctx, c)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, d := range deals {
		if now.Sub(d.LastUpdated) <= delay {
			continue
		}
		switch c.FetchKey() {
		case models.KeyURL:
			out = append(out, d.URL)
		default:
			if d.ExternalID != nil && *d.ExternalID != "" {
				out = append(out, *d.ExternalID)
			}
		}
	}
	return out, nil
}
