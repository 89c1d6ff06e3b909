package app

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/rl1809/stockledger/internal/core/domain"
)

// Catalog is the YAML document read by the seed command:
//
//	items:
//	  - id: sku-1
//	    name: Coffee beans
//	    quantity: 100
//	    lowStockThreshold: 10
//	    price: "12.50"
type Catalog struct {
	Items []domain.Item `yaml:"items"`
}

func LoadCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read catalog: %w", err)
	}

	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return Catalog{}, fmt.Errorf("parse catalog %s: %w", path, err)
	}

	seen := make(map[string]bool, len(catalog.Items))
	for i, item := range catalog.Items {
		if err := item.Validate(); err != nil {
			return Catalog{}, fmt.Errorf("catalog item %d: %w", i, err)
		}
		if seen[item.ID] {
			return Catalog{}, fmt.Errorf("catalog item %d: duplicate id %s", i, item.ID)
		}
		seen[item.ID] = true
	}
	return catalog, nil
}

// Seed upserts every catalog item. Items that already exist keep their stock;
// only their descriptive fields change.
func (c *Container) Seed(ctx context.Context, catalog Catalog) error {
	for _, item := range catalog.Items {
		if err := c.Store.UpsertItem(ctx, item); err != nil {
			return fmt.Errorf("seed %s: %w", item.ID, err)
		}
	}
	c.Logger.Info("catalog seeded", zap.Int("items", len(catalog.Items)))
	return nil
}
