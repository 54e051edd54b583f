package knowledge

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// PriceRange is the plausible ₹/quintal band for one commodity. Scraped
// values outside the band are treated as parse noise and rejected.
type PriceRange struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// defaultRanges covers the common commodities when no catalog file is
// configured. Values are wholesale mandi bands.
var defaultRanges = map[string]PriceRange{
	"tomato": {Min: 300, Max: 8000},
	"wheat":  {Min: 1500, Max: 4000},
	"rice":   {Min: 1200, Max: 4500},
	"onion":  {Min: 400, Max: 6000},
	"potato": {Min: 300, Max: 4000},
}

var fallbackRange = PriceRange{Min: 100, Max: 15000}

type priceCatalog struct {
	Ranges map[string]PriceRange `yaml:"ranges"`
}

// PriceRanges resolves plausibility bands per commodity.
type PriceRanges struct {
	ranges map[string]PriceRange
}

// LoadPriceRanges reads the commodity range catalog, merging it over the
// built-in defaults. A missing file just means defaults apply.
func LoadPriceRanges(path string, logger *slog.Logger) (*PriceRanges, error) {
	merged := make(map[string]PriceRange, len(defaultRanges))
	for k, v := range defaultRanges {
		merged[k] = v
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			logger.Debug("price range catalog not found, using defaults", "path", path)
		case err != nil:
			return nil, fmt.Errorf("read price ranges: %w", err)
		default:
			var catalog priceCatalog
			if err := yaml.Unmarshal(data, &catalog); err != nil {
				return nil, fmt.Errorf("parse price ranges: %w", err)
			}
			for k, v := range catalog.Ranges {
				if v.Min <= 0 || v.Max <= v.Min {
					logger.Warn("ignoring invalid price range", "commodity", k, "min", v.Min, "max", v.Max)
					continue
				}
				merged[strings.ToLower(k)] = v
			}
			logger.Info("loaded price range catalog", "path", path, "commodities", len(catalog.Ranges))
		}
	}

	return &PriceRanges{ranges: merged}, nil
}

// For returns the band for commodity, falling back to a wide generic band
// for anything unlisted.
func (p *PriceRanges) For(commodity string) PriceRange {
	if r, ok := p.ranges[strings.ToLower(strings.TrimSpace(commodity))]; ok {
		return r
	}
	return fallbackRange
}

// Plausible reports whether price falls inside the commodity's band.
func (p *PriceRanges) Plausible(commodity string, price float64) bool {
	r := p.For(commodity)
	return price >= r.Min && price <= r.Max
}
