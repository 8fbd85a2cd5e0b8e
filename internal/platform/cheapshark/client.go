// Package cheapshark fetches PC deals from the cheapshark.com JSON
// API. Deep links go through the site's redirect endpoint so the
// upstream keeps its referral credit.
package cheapshark

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"gamedeals/internal/models"
	"gamedeals/internal/util"
)

const defaultBaseURL = "https://www.cheapshark.com"

type topDeal struct {
	Title       string `json:"title"`
	NormalPrice string `json:"normalPrice"`
	SalePrice   string `json:"salePrice"`
	Thumb       string `json:"thumb"`
	DealID      string `json:"dealID"`
	GameID      string `json:"gameID"`
}

type wishlistEntry struct {
	Info struct {
		Title string `json:"title"`
		Thumb string `json:"thumb"`
	} `json:"info"`
	Deals []struct {
		Price       string `json:"price"`
		RetailPrice string `json:"retailPrice"`
		DealID      string `json:"dealID"`
	} `json:"deals"`
}

// Client talks to the CheapShark API. The upper price bound for top
// deals is fixed at construction.
type Client struct {
	httpClient *http.Client
	baseURL    string
	upperPrice int
}

func New(upperPrice int) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL:    defaultBaseURL,
		upperPrice: upperPrice,
	}
}

// FetchTop retrieves the browse-page deals priced under the configured
// bound. The API returns one entry per SKU, so the same title can
// appear several times; deduplication is the reconciler's concern.
func (c *Client) FetchTop(ctx context.Context) ([]models.RawDeal, error) {
	reqURL := fmt.Sprintf("%s/api/1.0/deals?upperPrice=%d", c.baseURL, c.upperPrice)
	var deals []topDeal
	if err := c.getJSON(ctx, reqURL, &deals); err != nil {
		return nil, err
	}

	raw := make([]models.RawDeal, 0, len(deals))
	for _, d := range deals {
		raw = append(raw, models.RawDeal{
			Title:      d.Title,
			FullPrice:  util.DecimalOrZero(d.NormalPrice),
			SalePrice:  util.DecimalOrZero(d.SalePrice),
			CoverImage: d.Thumb,
			URL:        c.dealURL(d.DealID),
			ExternalID: d.GameID,
		})
	}
	return raw, nil
}

// FetchWishlist looks up all requested game ids in a single batched
// request. Games the API no longer lists, or lists without any active
// deal, are omitted from the result.
func (c *Client) FetchWishlist(ctx context.Context, identities []string) ([]models.RawDeal, error) {
	reqURL := fmt.Sprintf("%s/api/1.0/games?ids=%s", c.baseURL, strings.Join(identities, ","))
	var entries map[string]wishlistEntry
	if err := c.getJSON(ctx, reqURL, &entries); err != nil {
		return nil, err
	}

	raw := make([]models.RawDeal, 0, len(entries))
	for id, e := range entries {
		if len(e.Deals) == 0 {
			continue
		}
		best := e.Deals[0]
		raw = append(raw, models.RawDeal{
			Title:      e.Info.Title,
			FullPrice:  util.DecimalOrZero(best.RetailPrice),
			SalePrice:  util.DecimalOrZero(best.Price),
			CoverImage: e.Info.Thumb,
			URL:        c.dealURL(best.DealID),
			ExternalID: id,
		})
	}
	return raw, nil
}

var idPattern = regexp.MustCompile(`^\d+$`)

// ValidateIdentity accepts CheapShark's plain numeric game ids.
func (c *Client) ValidateIdentity(candidate string) bool {
	return idPattern.MatchString(candidate)
}

// ExtractIdentity pulls the game id out of a bare id or a games?id=
// lookup URL.
func (c *Client) ExtractIdentity(rawURL string) (string, bool) {
	if idPattern.MatchString(rawURL) {
		return rawURL, true
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	if id := parsed.Query().Get("id"); idPattern.MatchString(id) {
		return id, true
	}
	return "", false
}

// SearchURL returns the API endpoint for looking a title up by name,
// printed in the CLI help so users can find a game's id.
func (c *Client) SearchURL(title string) string {
	return fmt.Sprintf("%s/api/1.0/games?title=%s", c.baseURL, url.QueryEscape(title))
}

func (c *Client) dealURL(dealID string) string {
	return fmt.Sprintf("%s/redirect?dealID=%s", c.baseURL, dealID)
}

func (c *Client) getJSON(ctx context.Context, reqURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request for %s: %w", reqURL, err)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", reqURL, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to fetch %s: status code %d", reqURL, res.StatusCode)
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", reqURL, err)
	}
	return nil
}
