package reconcile

import (
	"context"
	"time"

	"gamedeals/internal/models"
)

// DealStore abstracts the durable keyed store behind reconciliation.
type DealStore interface {
	// EnsureCollection creates the backing table and metadata row for
	// the collection if absent. Idempotent.
	EnsureCollection(ctx context.Context, c models.Collection) error

	// Scan returns every row of the collection ordered by ascending
	// sale price. The ordering is a user-facing contract relied on by
	// the picker menu.
	Scan(ctx context.Context, c models.Collection) ([]models.Deal, error)

	// Find is a point lookup by identity. Returns (nil, nil) when the
	// row is absent.
	Find(ctx context.Context, c models.Collection, key models.Identity) (*models.Deal, error)

	// Insert adds a new row. The store recomputes title_length and
	// stamps last_updated; a unique collision surfaces
	// models.ErrDealExists.
	Insert(ctx context.Context, c models.Collection, deal models.Deal) error

	// UpdatePayload mutates the mutable fields of the row matching
	// key. Returns models.ErrDealNotFound when nothing matched.
	UpdatePayload(ctx context.Context, c models.Collection, key models.Identity, p models.Payload) error

	// Delete removes the row matching key. Absence is not an error.
	Delete(ctx context.Context, c models.Collection, key models.Identity) error

	// LastRefreshed reports when the collection last completed a
	// wholesale refresh; the zero time means never.
	LastRefreshed(ctx context.Context, c models.Collection) (time.Time, error)

	// TouchRefreshed records a completed wholesale refresh.
	TouchRefreshed(ctx context.Context, c models.Collection, t time.Time) error

	// InTx runs fn against a transactional view of the store. Any
	// error rolls the whole batch back.
	InTx(ctx context.Context, fn func(tx DealStore) error) error
}

// Platform is one external deal source. Fetch constraints (price
// bound, page count) are fixed at construction so the engine depends
// only on this surface.
type Platform interface {
	// FetchTop returns the platform's current top deals, or an error
	// when the upstream is unreachable or unparseable. Implementations
	// honor any upstream rate limits themselves.
	FetchTop(ctx context.Context) ([]models.RawDeal, error)

	// FetchWishlist returns fresh payloads for the given identities.
	// Identities are platform-native: numeric ids for CheapShark, game
	// page URLs for psdeals.
	FetchWishlist(ctx context.Context, identities []string) ([]models.RawDeal, error)

	// ValidateIdentity reports whether a user-supplied identity is
	// well-formed for this platform.
	ValidateIdentity(candidate string) bool

	// ExtractIdentity pulls the platform-native identity out of a
	// deep-link URL.
	ExtractIdentity(url string) (string, bool)
}
