package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBPath         string
	RefreshDelay   time.Duration
	PCUpperPrice   int
	PSTopPages     int
	ScrapeCooldown time.Duration
	Browser        string
}

func Load() (*Config, error) {
	// A missing .env file is fine; plain environment variables win.
	_ = godotenv.Load()

	cfg := &Config{
		DBPath:         "games.db",
		RefreshDelay:   time.Hour,
		PCUpperPrice:   10,
		PSTopPages:     2,
		ScrapeCooldown: 5 * time.Second,
		Browser:        "/usr/bin/firefox",
	}

	if v := os.Getenv("GAMEDEALS_DB"); v != "" {
		cfg.DBPath = v
	}

	if v := os.Getenv("GAMEDEALS_REFRESH_DELAY"); v != "" {
		delay, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid GAMEDEALS_REFRESH_DELAY %q: %w", v, err)
		}
		cfg.RefreshDelay = delay
	}

	if v := os.Getenv("GAMEDEALS_PC_UPPER_PRICE"); v != "" {
		price, err := strconv.Atoi(v)
		if err != nil || price < 0 {
			return nil, fmt.Errorf("invalid GAMEDEALS_PC_UPPER_PRICE %q", v)
		}
		cfg.PCUpperPrice = price
	}

	if v := os.Getenv("GAMEDEALS_PS_PAGES"); v != "" {
		pages, err := strconv.Atoi(v)
		if err != nil || pages < 1 {
			return nil, fmt.Errorf("invalid GAMEDEALS_PS_PAGES %q", v)
		}
		cfg.PSTopPages = pages
	}

	if v := os.Getenv("GAMEDEALS_SCRAPE_COOLDOWN"); v != "" {
		cooldown, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid GAMEDEALS_SCRAPE_COOLDOWN %q: %w", v, err)
		}
		cfg.ScrapeCooldown = cooldown
	}

	if v := os.Getenv("GAMEDEALS_BROWSER"); v != "" {
		cfg.Browser = v
	}

	return cfg, nil
}
