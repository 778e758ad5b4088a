package pricing

import (
	"fmt"
	"sort"
)

// Item is a purchasable package or boost with its fee in whole baht
type Item struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
	Fee  int64  `yaml:"fee" json:"fee"`
}

// Catalog is the set of packages and boosts an employer can buy
type Catalog struct {
	packages map[string]Item
	boosts   map[string]Item
}

// NewCatalog builds a catalog, rejecting duplicate ids and non-positive fees
func NewCatalog(packages, boosts []Item) (*Catalog, error) {
	if len(packages) == 0 {
		return nil, fmt.Errorf("catalog needs at least one package")
	}

	c := &Catalog{
		packages: make(map[string]Item, len(packages)),
		boosts:   make(map[string]Item, len(boosts)),
	}

	for _, p := range packages {
		if err := checkItem(p); err != nil {
			return nil, fmt.Errorf("invalid package: %w", err)
		}
		if _, dup := c.packages[p.ID]; dup {
			return nil, fmt.Errorf("duplicate package id %q", p.ID)
		}
		c.packages[p.ID] = p
	}

	for _, b := range boosts {
		if err := checkItem(b); err != nil {
			return nil, fmt.Errorf("invalid boost: %w", err)
		}
		if _, dup := c.boosts[b.ID]; dup {
			return nil, fmt.Errorf("duplicate boost id %q", b.ID)
		}
		c.boosts[b.ID] = b
	}

	return c, nil
}

// DefaultCatalog is used when the configuration does not list any packages
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultPackages(), DefaultBoosts())
	if err != nil {
		panic(err)
	}
	return c
}

// DefaultPackages lists the base posting packages
func DefaultPackages() []Item {
	return []Item{
		{ID: "basic", Name: "Basic Listing", Fee: 99},
		{ID: "standard", Name: "Standard Listing", Fee: 199},
		{ID: "premium", Name: "Premium Listing", Fee: 399},
	}
}

// DefaultBoosts lists the optional add-ons
func DefaultBoosts() []Item {
	return []Item{
		{ID: "featured", Name: "Featured Placement", Fee: 99},
		{ID: "urgent", Name: "Urgent Hiring Badge", Fee: 49},
		{ID: "highlight", Name: "Highlighted Listing", Fee: 29},
		{ID: "social", Name: "Social Media Boost", Fee: 149},
	}
}

// Package looks up a base package
func (c *Catalog) Package(id string) (Item, bool) {
	item, ok := c.packages[id]
	return item, ok
}

// Boost looks up an add-on
func (c *Catalog) Boost(id string) (Item, bool) {
	item, ok := c.boosts[id]
	return item, ok
}

// Packages returns all packages ordered by id
func (c *Catalog) Packages() []Item {
	return sortedItems(c.packages)
}

// Boosts returns all boosts ordered by id
func (c *Catalog) Boosts() []Item {
	return sortedItems(c.boosts)
}

func checkItem(it Item) error {
	if it.ID == "" {
		return fmt.Errorf("id is required")
	}
	if it.Name == "" {
		return fmt.Errorf("name is required for %q", it.ID)
	}
	if it.Fee <= 0 {
		return fmt.Errorf("fee for %q must be positive", it.ID)
	}
	return nil
}

func sortedItems(m map[string]Item) []Item {
	items := make([]Item, 0, len(m))
	for _, it := range m {
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items
}
