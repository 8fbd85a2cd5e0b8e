// Package menu renders reconciled collections through rofi's dmenu
// mode and relays selections back as store operations.
package menu

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"gamedeals/internal/models"
)

// widthPadding widens the game window past the longest title so the
// price column never clips.
const widthPadding = 4

// DealReader is the slice of the record store the menu consumes.
type DealReader interface {
	Scan(ctx context.Context, c models.Collection) ([]models.Deal, error)
	Find(ctx context.Context, c models.Collection, key models.Identity) (*models.Deal, error)
	Delete(ctx context.Context, c models.Collection, key models.Identity) error
	LongestTitleLength(ctx context.Context, c models.Collection) (int, error)
}

type category struct {
	label      string
	collection models.Collection
	manage     bool
}

var categories = []category{
	{label: "Top PC Deals", collection: models.TopPC},
	{label: "Top Playstation Deals", collection: models.TopPS},
	{label: "PC Wishlist", collection: models.PCWishlist},
	{label: "Playstation Wishlist", collection: models.PSWishlist},
	{label: "Manage Wishlists", manage: true},
}

// Menu is the interactive rofi front end.
type Menu struct {
	store   DealReader
	browser string
}

func New(store DealReader, browser string) *Menu {
	return &Menu{store: store, browser: browser}
}

// Run drives the picker loop until the user dismisses the top-level
// window. Every dismissal walks back exactly one level, mirroring how
// the windows nest.
func (m *Menu) Run(ctx context.Context) error {
	for {
		chosen, ok, err := m.pick(ctx, "", categoryLabels())
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		cat, found := categoryByLabel(chosen)
		if !found {
			continue
		}
		if cat.manage {
			if err := m.manageWishlists(ctx); err != nil {
				return err
			}
			continue
		}
		if err := m.browseCollection(ctx, cat.collection); err != nil {
			return err
		}
	}
}

func (m *Menu) browseCollection(ctx context.Context, c models.Collection) error {
	for {
		title, ok, err := m.pickGame(ctx, c)
		if err != nil || !ok {
			return err
		}

		deal, err := m.store.Find(ctx, c, models.Identity{Kind: models.KeyTitle, Value: title})
		if err != nil {
			return err
		}
		if deal == nil {
			return nil
		}

		confirmed, err := m.confirm(ctx, fmt.Sprintf("Open %s", deal.URL))
		if err != nil {
			return err
		}
		if !confirmed {
			return nil
		}
		m.openURL(deal.URL)
	}
}

func (m *Menu) manageWishlists(ctx context.Context) error {
	wishlists := []string{"PC Wishlist", "Playstation Wishlist"}
	for {
		chosen, ok, err := m.pick(ctx, "", wishlists)
		if err != nil || !ok {
			return err
		}
		c := models.PCWishlist
		if chosen == "Playstation Wishlist" {
			c = models.PSWishlist
		}

		for {
			action, ok, err := m.pick(ctx, "", []string{"Delete Game"})
			if err != nil || !ok {
				return err
			}
			if action != "Delete Game" {
				break
			}
			for {
				title, ok, err := m.pickGame(ctx, c)
				if err != nil || !ok {
					return err
				}
				if err := m.store.Delete(ctx, c, models.Identity{Kind: models.KeyTitle, Value: title}); err != nil {
					return err
				}
				slog.Info("Removed wishlist game", "collection", c, "title", title)
			}
		}
	}
}

// pickGame shows one collection's deals, cheapest first, and returns
// the chosen title.
func (m *Menu) pickGame(ctx context.Context, c models.Collection) (string, bool, error) {
	deals, err := m.store.Scan(ctx, c)
	if err != nil {
		return "", false, err
	}
	longest, err := m.store.LongestTitleLength(ctx, c)
	if err != nil {
		return "", false, err
	}

	lines := make([]string, 0, len(deals))
	for _, d := range deals {
		lines = append(lines, formatLine(d, longest))
	}

	chosen, ok, err := m.pickWide(ctx, "", lines, longest+widthPadding)
	if err != nil || !ok {
		return "", ok, err
	}
	return titleOf(chosen), true, nil
}

func (m *Menu) confirm(ctx context.Context, prompt string) (bool, error) {
	chosen, ok, err := m.pick(ctx, prompt, []string{"Yes", "No"})
	if err != nil {
		return false, err
	}
	return ok && chosen == "Yes", nil
}

// pick opens a rofi dmenu window over the given options. ok is false
// when the user dismissed the window.
func (m *Menu) pick(ctx context.Context, prompt string, options []string) (string, bool, error) {
	return m.runRofi(ctx, options, "-p", prompt, "-lines", strconv.Itoa(len(options)), "-columns", "1")
}

func (m *Menu) pickWide(ctx context.Context, prompt string, options []string, width int) (string, bool, error) {
	return m.runRofi(ctx, options, "-p", prompt,
		"-lines", "12", "-columns", "2", "-width", strconv.Itoa(width))
}

func (m *Menu) runRofi(ctx context.Context, options []string, args ...string) (string, bool, error) {
	cmd := exec.CommandContext(ctx, "rofi", append([]string{"-dmenu"}, args...)...)
	cmd.Stdin = strings.NewReader(strings.Join(options, "\n") + "\n")

	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		// Non-zero exit means the window was dismissed.
		if _, isExit := err.(*exec.ExitError); isExit {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to run rofi: %w", err)
	}
	return strings.TrimRight(out.String(), "\n"), true, nil
}

func (m *Menu) openURL(url string) {
	if err := exec.Command(m.browser, url).Start(); err != nil {
		slog.Error("Failed to launch browser", "browser", m.browser, "url", url, "error", err)
	}
}

// formatLine pads the title to the collection's longest title and
// appends the sale price. PS+-exclusive deals show a marker instead of
// the sentinel amount.
func formatLine(d models.Deal, longest int) string {
	padded := d.Title
	if pad := longest - len(d.Title); pad > 0 {
		padded += strings.Repeat(" ", pad)
	}
	if d.SalePrice.Equal(models.PSPlusPrice) {
		return padded + " $PS+"
	}
	return fmt.Sprintf("%s $%s", padded, d.SalePrice.StringFixed(2))
}

// titleOf recovers the title from a formatted line. Prices always
// follow the last dollar sign, so everything before it is title
// padding.
func titleOf(line string) string {
	if i := strings.LastIndex(line, "$"); i >= 0 {
		line = line[:i]
	}
	return strings.TrimRight(line, " ")
}

func categoryLabels() []string {
	labels := make([]string, len(categories))
	for i, c := range categories {
		labels[i] = c.label
	}
	return labels
}

func categoryByLabel(label string) (category, bool) {
	for _, c := range categories {
		if c.label == label {
			return c, true
		}
	}
	return category{}, false
}
