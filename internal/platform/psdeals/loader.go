package psdeals

import (
	"embed"
	"fmt"
	"log/slog"
	"os"
)

//go:embed selectors.json
var embeddedSelectors embed.FS

// LoadSelectors loads selector configuration from a JSON file on disk.
func LoadSelectors(path string) (SelectorConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SelectorConfig{}, fmt.Errorf("failed to read selector config %s: %w", path, err)
	}
	return LoadSelectorsFromBytes(data)
}

// LoadConfig resolves the selector configuration in order:
// 1. Embedded selectors.json
// 2. External file named by GAMEDEALS_SELECTORS
// 3. Hardcoded defaults
func LoadConfig() SelectorConfig {
	data, err := embeddedSelectors.ReadFile("selectors.json")
	if err == nil {
		sel, parseErr := LoadSelectorsFromBytes(data)
		if parseErr == nil {
			return sel
		}
		slog.Warn("Embedded selectors failed to parse, trying file fallback", "error", parseErr)
	}

	if configPath := os.Getenv("GAMEDEALS_SELECTORS"); configPath != "" {
		if fileSel, err := LoadSelectors(configPath); err == nil {
			slog.Info("Loaded selectors from external file", "path", configPath)
			return fileSel
		} else {
			slog.Warn("Failed to load external selectors, falling back to defaults", "path", configPath, "error", err)
		}
	}

	return DefaultSelectors()
}
