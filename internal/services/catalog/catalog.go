package catalog

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/fastprodman/coinledger/internal/repos/items"
)

// Catalog is the item reference data, loaded once and read-only afterwards.
type Catalog struct {
	byID   map[int64]items.Item
	byName map[string]items.Item
	sorted []items.Item
}

func New(list []items.Item) (*Catalog, error) {
	c := &Catalog{
		byID:   make(map[int64]items.Item, len(list)),
		byName: make(map[string]items.Item, len(list)),
	}

	for _, it := range list {
		if it.Price <= 0 {
			return nil, fmt.Errorf("item %q: price must be positive", it.Name)
		}

		key := normalize(it.Name)
		if _, dup := c.byName[key]; dup {
			return nil, fmt.Errorf("item %q: duplicate name", it.Name)
		}

		if _, dup := c.byID[it.ID]; dup {
			return nil, fmt.Errorf("item %d: duplicate id", it.ID)
		}

		c.byID[it.ID] = it
		c.byName[key] = it
	}

	c.sorted = slices.Clone(list)
	slices.SortStableFunc(c.sorted, func(a, b items.Item) int {
		return cmp.Compare(b.Price, a.Price)
	})

	return c, nil
}

func Load(ctx context.Context, repo items.Items) (*Catalog, error) {
	list, err := repo.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}

	return New(list)
}

func (c *Catalog) Get(id int64) (items.Item, bool) {
	it, ok := c.byID[id]

	return it, ok
}

// FindByName is an exact, case-insensitive match. There is no partial
// matching.
func (c *Catalog) FindByName(name string) (items.Item, bool) {
	it, ok := c.byName[normalize(name)]

	return it, ok
}

// All lists items by price, most expensive first.
func (c *Catalog) All() []items.Item {
	return slices.Clone(c.sorted)
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
