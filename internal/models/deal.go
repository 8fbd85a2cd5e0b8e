package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrDealExists is returned when an insert collides with an existing
// unique url or external id. During reconciliation this signals a
// matching bug, not an expected runtime condition.
var ErrDealExists = errors.New("deal already exists")

// ErrDealNotFound is returned when a payload update matches no row.
var ErrDealNotFound = errors.New("deal not found")

// PSPlusPrice marks deals that are free with a PS+ subscription rather
// than discounted. The scraper substitutes it when a listing has no
// sale-price element.
var PSPlusPrice = decimal.New(9999, -2)

// Collection is a named, independently reconciled group of deals.
// The value doubles as the backing table name.
type Collection string

const (
	TopPC      Collection = "TOP_PC"
	PCWishlist Collection = "PC_WISHLIST"
	TopPS      Collection = "TOP_PS"
	PSWishlist Collection = "PS_WISHLIST"
)

// TableName returns the SQLite table backing the collection.
func (c Collection) TableName() string { return string(c) }

// Wishlist reports whether membership is user-curated. Wishlist rows
// are never purged by reconciliation, only by explicit deletes.
func (c Collection) Wishlist() bool {
	return c == PCWishlist || c == PSWishlist
}

// FetchKey is the deal field a wishlist refresh uses to re-fetch an
// item. CheapShark is addressed by game id, psdeals by game page URL.
func (c Collection) FetchKey() KeyKind {
	if c == PSWishlist {
		return KeyURL
	}
	return KeyExternalID
}

// KeyKind selects which field an Identity addresses.
type KeyKind int

const (
	KeyExternalID KeyKind = iota
	KeyURL
	KeyTitle
)

// Identity is the key used to match, update or delete a stored deal.
// Matching preference is external id, then url, then title; the title
// kind survives for legacy title-keyed lookups and the menu's
// delete-by-title path.
type Identity struct {
	Kind  KeyKind
	Value string
}

// Deal is a single game's persisted pricing snapshot. Prices live in
// NUMERIC columns so the ascending sale_price scan stays numeric.
type Deal struct {
	Title       string          `gorm:"column:title"`
	FullPrice   decimal.Decimal `gorm:"column:full_price;type:NUMERIC"`
	SalePrice   decimal.Decimal `gorm:"column:sale_price;type:NUMERIC"`
	CoverImage  string          `gorm:"column:cover_image"`
	URL         string          `gorm:"column:url"`
	ExternalID  *string         `gorm:"column:external_id"`
	LastUpdated time.Time       `gorm:"column:last_updated"`
	TitleLength int             `gorm:"column:title_length"`
}

// MatchKey returns the strongest identity the row carries.
func (d Deal) MatchKey() Identity {
	if d.ExternalID != nil && *d.ExternalID != "" {
		return Identity{Kind: KeyExternalID, Value: *d.ExternalID}
	}
	return Identity{Kind: KeyURL, Value: d.URL}
}

// RawDeal is a normalized record returned by a platform fetcher,
// before it has been reconciled against the store.
type RawDeal struct {
	Title      string `validate:"required"`
	FullPrice  decimal.Decimal
	SalePrice  decimal.Decimal
	CoverImage string `validate:"omitempty,url"`
	URL        string `validate:"required,url"`
	ExternalID string
}

// Payload carries the mutable fields of a deal for an update. Identity
// fields stay frozen for the lifetime of a row; url is mutable because
// some platforms mint a new deep link per price change.
type Payload struct {
	FullPrice   decimal.Decimal
	SalePrice   decimal.Decimal
	CoverImage  string
	URL         string
	LastUpdated time.Time
}

// CollectionMeta records when a collection was last refreshed as a
// whole. Kept separate from deal rows so collection staleness never
// depends on an arbitrary row's timestamp.
type CollectionMeta struct {
	Name          string    `gorm:"column:name;primaryKey"`
	LastRefreshed time.Time `gorm:"column:last_refreshed"`
}

// TableName implements the gorm naming override.
func (CollectionMeta) TableName() string { return "collections" }
