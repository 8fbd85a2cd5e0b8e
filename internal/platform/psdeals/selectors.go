package psdeals

import (
	"encoding/json"
	"fmt"
)

// SelectorConfig holds the goquery selectors for the two psdeals.net
// page shapes. Kept as data so a markup change can be absorbed without
// a rebuild.
type SelectorConfig struct {
	TopDeals TopDealsSelectors `json:"top_deals"`
	GamePage GamePageSelectors `json:"game_page"`
}

type TopDealsSelectors struct {
	Item       string `json:"item"`
	Title      string `json:"title"`
	FullPrice  string `json:"full_price"`
	SalePrice  string `json:"sale_price"`
	URL        string `json:"url"`
	CoverImage string `json:"cover_image"`
}

type GamePageSelectors struct {
	Title      string `json:"title"`
	FullPrice  string `json:"full_price"`
	SalePrice  string `json:"sale_price"`
	CoverImage string `json:"cover_image"`
}

// LoadSelectorsFromBytes parses selector overrides from raw JSON.
func LoadSelectorsFromBytes(data []byte) (SelectorConfig, error) {
	var config SelectorConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return SelectorConfig{}, fmt.Errorf("failed to parse selector config JSON: %w", err)
	}
	return config, nil
}

// DefaultSelectors returns the selectors matching the current
// psdeals.net markup.
func DefaultSelectors() SelectorConfig {
	return SelectorConfig{
		TopDeals: TopDealsSelectors{
			Item:       "div.game-collection-item-col",
			Title:      "p.game-collection-item-details-title",
			FullPrice:  "span.game-collection-item-regular-price",
			SalePrice:  "span.game-collection-item-discount-price",
			URL:        "span[itemprop=url]",
			CoverImage: "source",
		},
		GamePage: GamePageSelectors{
			Title:      "div.game-title-info-name",
			FullPrice:  "span.game-collection-item-regular-price",
			SalePrice:  "span.game-collection-item-discount-price",
			CoverImage: "source",
		},
	}
}
