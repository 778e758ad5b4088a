package pricing

import (
	"fmt"

	"github.com/cuongbtq/servicefee/internal/config"
)

// NewEngineFromConfig builds the engine the services share. An empty configured
// catalog uses DefaultCatalog.
func NewEngineFromConfig(cfg *config.PricingConfig) (*Engine, error) {
	catalog := DefaultCatalog()
	if len(cfg.Packages) > 0 {
		var err error
		catalog, err = NewCatalog(configItems(cfg.Packages), configItems(cfg.Boosts))
		if err != nil {
			return nil, fmt.Errorf("invalid pricing catalog: %w", err)
		}
	}

	return NewEngine(catalog, TaxConfig{
		Mode:    TaxMode(cfg.TaxMode),
		VATRate: cfg.VATRate,
	})
}

func configItems(items []config.PricingItem) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		out = append(out, Item{ID: it.ID, Name: it.Name, Fee: it.Fee})
	}
	return out
}
