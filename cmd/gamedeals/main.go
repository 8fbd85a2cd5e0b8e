// gamedeals aggregates discounted game listings from cheapshark.com
// (PC) and psdeals.net (PlayStation) into a local SQLite database and
// serves them through a rofi picker menu. Links open through each
// upstream's own affiliate redirects.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gamedeals/internal/config"
	"gamedeals/internal/menu"
	"gamedeals/internal/models"
	"gamedeals/internal/platform/cheapshark"
	"gamedeals/internal/platform/psdeals"
	"gamedeals/internal/reconcile"
	"gamedeals/internal/storage"
)

// stringList collects a repeatable flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	var (
		addPC  stringList
		addPS  stringList
		delPC  stringList
		delPS  stringList
		silent = flag.Bool("silent", false, "refresh the database without opening the rofi menu")
	)
	flag.Var(&addPC, "pc", "cheapshark.com game id to add to the PC wishlist; find it via https://www.cheapshark.com/api/1.0/games?title=game-name (repeatable)")
	flag.Var(&addPS, "ps", "psdeals.net game url to add to the Playstation wishlist, e.g. https://psdeals.net/us-store/game/884376/dishonored-2 (repeatable)")
	flag.Var(&delPC, "del-pc", "cheapshark.com game id to remove from the PC wishlist (repeatable)")
	flag.Var(&delPS, "del-ps", "psdeals.net game url to remove from the Playstation wishlist (repeatable)")
	browser := flag.String("browser", "", "path of the browser used to open deal links")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *browser != "" {
		cfg.Browser = *browser
	}

	store, err := storage.Open(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to open database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()

	pc := cheapshark.New(cfg.PCUpperPrice)
	ps := psdeals.New(cfg.PSTopPages, cfg.ScrapeCooldown)
	ps.SetSelectors(psdeals.LoadConfig())

	sources := []reconcile.Source{
		{Top: models.TopPC, Wishlist: models.PCWishlist, Platform: pc, Requested: addPC},
		{Top: models.TopPS, Wishlist: models.PSWishlist, Platform: ps, Requested: addPS},
	}

	if err := applyDeletions(ctx, store, delPC, delPS); err != nil {
		slog.Error("Failed to apply wishlist removals", "error", err)
		os.Exit(1)
	}

	engine := reconcile.New(store)
	if err := engine.RunPass(ctx, sources, cfg.RefreshDelay); err != nil {
		slog.Error("Refresh pass failed", "error", err)
		os.Exit(1)
	}

	if *silent {
		return
	}

	if err := menu.New(store, cfg.Browser).Run(ctx); err != nil {
		slog.Error("Menu failed", "error", err)
		os.Exit(1)
	}
}

func applyDeletions(ctx context.Context, store *storage.Store, delPC, delPS []string) error {
	if len(delPC) == 0 && len(delPS) == 0 {
		return nil
	}

	for _, c := range []models.Collection{models.PCWishlist, models.PSWishlist} {
		if err := store.EnsureCollection(ctx, c); err != nil {
			return err
		}
	}

	for _, id := range delPC {
		key := models.Identity{Kind: models.KeyExternalID, Value: id}
		if err := store.Delete(ctx, models.PCWishlist, key); err != nil {
			return fmt.Errorf("remove pc game %s: %w", id, err)
		}
		slog.Info("Removed wishlist game", "collection", models.PCWishlist, "id", id)
	}
	for _, url := range delPS {
		key := models.Identity{Kind: models.KeyURL, Value: url}
		if err := store.Delete(ctx, models.PSWishlist, key); err != nil {
			return fmt.Errorf("remove ps game %s: %w", url, err)
		}
		slog.Info("Removed wishlist game", "collection", models.PSWishlist, "url", url)
	}
	return nil
}
