package reconcile

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"gamedeals/internal/models"
)

// mockStore is an in-memory DealStore tracking mutation counts.
type mockStore struct {
	rows      map[models.Collection][]models.Deal
	meta      map[models.Collection]time.Time
	inserts   int
	updates   int
	deletes   int
	insertErr error
}

func newMockStore() *mockStore {
	return &mockStore{
		rows: make(map[models.Collection][]models.Deal),
		meta: make(map[models.Collection]time.Time),
	}
}

func (m *mockStore) resetCounts() {
	m.inserts, m.updates, m.deletes = 0, 0, 0
}

func (m *mockStore) EnsureCollection(_ context.Context, c models.Collection) error {
	if _, ok := m.rows[c]; !ok {
		m.rows[c] = nil
	}
	return nil
}

func (m *mockStore) Scan(_ context.Context, c models.Collection) ([]models.Deal, error) {
	out := append([]models.Deal{}, m.rows[c]...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SalePrice.LessThan(out[j].SalePrice)
	})
	return out, nil
}

func (m *mockStore) Find(_ context.Context, c models.Collection, key models.Identity) (*models.Deal, error) {
	for i := range m.rows[c] {
		if matchesKey(m.rows[c][i], key) {
			deal := m.rows[c][i]
			return &deal, nil
		}
	}
	return nil, nil
}

func (m *mockStore) Insert(_ context.Context, c models.Collection, deal models.Deal) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	for _, existing := range m.rows[c] {
		if existing.URL == deal.URL {
			return fmt.Errorf("%w: %s", models.ErrDealExists, deal.Title)
		}
		if existing.ExternalID != nil && deal.ExternalID != nil && *existing.ExternalID == *deal.ExternalID {
			return fmt.Errorf("%w: %s", models.ErrDealExists, deal.Title)
		}
	}
	deal.TitleLength = len(deal.Title)
	m.rows[c] = append(m.rows[c], deal)
	m.inserts++
	return nil
}

func (m *mockStore) UpdatePayload(_ context.Context, c models.Collection, key models.Identity, p models.Payload) error {
	for i := range m.rows[c] {
		if !matchesKey(m.rows[c][i], key) {
			continue
		}
		m.rows[c][i].FullPrice = p.FullPrice
		m.rows[c][i].SalePrice = p.SalePrice
		m.rows[c][i].CoverImage = p.CoverImage
		m.rows[c][i].URL = p.URL
		m.rows[c][i].LastUpdated = p.LastUpdated
		m.updates++
		return nil
	}
	return fmt.Errorf("%w: %s", models.ErrDealNotFound, key.Value)
}

func (m *mockStore) Delete(_ context.Context, c models.Collection, key models.Identity) error {
	for i := range m.rows[c] {
		if matchesKey(m.rows[c][i], key) {
			m.rows[c] = append(m.rows[c][:i], m.rows[c][i+1:]...)
			m.deletes++
			return nil
		}
	}
	return nil
}

func (m *mockStore) LastRefreshed(_ context.Context, c models.Collection) (time.Time, error) {
	return m.meta[c], nil
}

func (m *mockStore) TouchRefreshed(_ context.Context, c models.Collection, t time.Time) error {
	m.meta[c] = t
	return nil
}

func (m *mockStore) InTx(_ context.Context, fn func(tx DealStore) error) error {
	return fn(m)
}

func matchesKey(d models.Deal, key models.Identity) bool {
	switch key.Kind {
	case models.KeyExternalID:
		return d.ExternalID != nil && *d.ExternalID == key.Value
	case models.KeyURL:
		return d.URL == key.Value
	default:
		return d.Title == key.Value
	}
}

// mockPlatform serves canned snapshots. Identities containing "bad"
// fail validation.
type mockPlatform struct {
	top         []models.RawDeal
	topErr      error
	wishlist    []models.RawDeal
	wishlistErr error
	fetchedIDs  []string
}

func (m *mockPlatform) FetchTop(_ context.Context) ([]models.RawDeal, error) {
	return m.top, m.topErr
}

func (m *mockPlatform) FetchWishlist(_ context.Context, identities []string) ([]models.RawDeal, error) {
	m.fetchedIDs = append([]string{}, identities...)
	return m.wishlist, m.wishlistErr
}

func (m *mockPlatform) ValidateIdentity(candidate string) bool {
	return candidate != "" && !strings.Contains(candidate, "bad")
}

func (m *mockPlatform) ExtractIdentity(url string) (string, bool) {
	return url, url != ""
}
