// Package psdeals scrapes PlayStation deals from psdeals.net. The
// site rate limits aggressively, so consecutive page fetches are
// spaced out by a mandatory cooldown.
package psdeals

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"gamedeals/internal/models"
	"gamedeals/internal/util"
)

const defaultBaseURL = "https://psdeals.net"

// Scraper fetches and parses psdeals.net pages. The number of top-deal
// pages and the inter-request cooldown are fixed at construction.
type Scraper struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	pages      int
	selectors  SelectorConfig
}

// New builds a scraper fetching the given number of top-deal pages
// with the given cooldown between consecutive requests. The limiter
// starts with a full token, so the first request is immediate and no
// wait trails the final page.
func New(pages int, cooldown time.Duration) *Scraper {
	return &Scraper{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter:   rate.NewLimiter(rate.Every(cooldown), 1),
		baseURL:   defaultBaseURL,
		pages:     pages,
		selectors: DefaultSelectors(),
	}
}

// SetSelectors installs selector overrides loaded from JSON.
func (s *Scraper) SetSelectors(sel SelectorConfig) {
	s.selectors = sel
}

// FetchTop scrapes the configured number of top-deal collection
// pages. A failed page fails the whole snapshot: updating only part of
// a wholesale collection would purge everything on the missing pages.
func (s *Scraper) FetchTop(ctx context.Context) ([]models.RawDeal, error) {
	var all []models.RawDeal
	for page := 1; page <= s.pages; page++ {
		pageURL := fmt.Sprintf("%s/us-store/collection/top_rated_sale?platforms=ps4&page=%d", s.baseURL, page)
		doc, err := s.fetchDocument(ctx, pageURL)
		if err != nil {
			return nil, fmt.Errorf("top deals page %d: %w", page, err)
		}
		deals := s.parseTopDeals(doc)
		if len(deals) == 0 {
			return nil, fmt.Errorf("top deals page %d: no %q elements found, potential block or markup change",
				page, s.selectors.TopDeals.Item)
		}
		all = append(all, deals...)
	}
	return all, nil
}

// FetchWishlist loads one game page per identity (a psdeals game
// URL), honoring the cooldown between page loads. Pages that fail to
// load are skipped; the fetch only fails when nothing loads at all.
func (s *Scraper) FetchWishlist(ctx context.Context, identities []string) ([]models.RawDeal, error) {
	var raw []models.RawDeal
	for _, gameURL := range identities {
		doc, err := s.fetchDocument(ctx, gameURL)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.Warn("Skipping unreachable wishlist page", "url", gameURL, "error", err)
			continue
		}
		deal, ok := s.parseGamePage(doc, gameURL)
		if !ok {
			slog.Warn("Skipping unparseable wishlist page", "url", gameURL)
			continue
		}
		raw = append(raw, deal)
	}
	if len(raw) == 0 && len(identities) > 0 {
		return nil, fmt.Errorf("none of %d wishlist pages could be fetched", len(identities))
	}
	return raw, nil
}

var (
	identityPattern = regexp.MustCompile(`^https://psdeals\.net/..-store/game/\d+/.+`)
	gidPattern      = regexp.MustCompile(`/game/(\d+)/`)
)

// ValidateIdentity accepts full psdeals game page URLs, e.g.
// https://psdeals.net/us-store/game/884376/dishonored-2.
func (s *Scraper) ValidateIdentity(candidate string) bool {
	return identityPattern.MatchString(candidate)
}

// ExtractIdentity pulls the numeric game id out of a game page URL.
func (s *Scraper) ExtractIdentity(url string) (string, bool) {
	m := gidPattern.FindStringSubmatch(url)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func (s *Scraper) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", pageURL, err)
	}

	res, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", pageURL, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch %s: status code %d", pageURL, res.StatusCode)
	}

	return goquery.NewDocumentFromReader(res.Body)
}

func (s *Scraper) parseTopDeals(doc *goquery.Document) []models.RawDeal {
	sel := s.selectors.TopDeals
	var deals []models.RawDeal

	doc.Find(sel.Item).Each(func(_ int, item *goquery.Selection) {
		var deal models.RawDeal

		// Some titles carry trailing whitespace in the markup.
		deal.Title = strings.TrimSpace(item.Find(sel.Title).Text())

		if full, ok := util.ParsePrice(item.Find(sel.FullPrice).Text()); ok {
			deal.FullPrice = full
		}

		saleSelection := item.Find(sel.SalePrice)
		if saleSelection.Length() == 0 {
			// No discount element means the deal is PS+ exclusive.
			deal.SalePrice = models.PSPlusPrice
		} else if sale, ok := util.ParsePrice(saleSelection.Text()); ok {
			deal.SalePrice = sale
		}
		// An unparseable sale price stays zero: the game is free.

		if path := strings.TrimSpace(item.Find(sel.URL).Text()); path != "" {
			deal.URL = s.baseURL + path
			if gid, ok := s.ExtractIdentity(deal.URL); ok {
				deal.ExternalID = gid
			}
		}

		deal.CoverImage = parseCoverImage(item.Find(sel.CoverImage))

		deals = append(deals, deal)
	})

	return deals
}

func (s *Scraper) parseGamePage(doc *goquery.Document, gameURL string) (models.RawDeal, bool) {
	sel := s.selectors.GamePage

	gid, ok := s.ExtractIdentity(gameURL)
	if !ok {
		return models.RawDeal{}, false
	}

	deal := models.RawDeal{
		Title:      strings.TrimSpace(doc.Find(sel.Title).Text()),
		URL:        gameURL,
		ExternalID: gid,
		CoverImage: parseCoverImage(doc.Find(sel.CoverImage)),
	}
	if deal.Title == "" {
		return models.RawDeal{}, false
	}

	if full, ok := util.ParsePrice(doc.Find(sel.FullPrice).Text()); ok {
		deal.FullPrice = full
	}
	if sale, ok := util.ParsePrice(doc.Find(sel.SalePrice).Text()); ok {
		deal.SalePrice = sale
	} else {
		// Not on sale right now: track it at full price.
		deal.SalePrice = deal.FullPrice
	}

	return deal, true
}

// parseCoverImage picks the mid-resolution candidate out of the cover
// <source> element's srcset.
func parseCoverImage(sel *goquery.Selection) string {
	srcset, exists := sel.Attr("data-srcset")
	if !exists {
		return ""
	}
	candidates := strings.Split(srcset, ", ")
	if len(candidates) < 2 {
		return ""
	}
	fields := strings.Fields(candidates[1])
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
