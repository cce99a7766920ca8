package memstore

import (
	"context"
	"slices"

	"github.com/fastprodman/coinledger/internal/repos/items"
)

var _ items.Items = itemsView{}

type itemsView struct{ s *Store }

func (s *Store) Items() items.Items { return itemsView{s} }

func (v itemsView) LoadAll(context.Context) ([]items.Item, error) {
	var out []items.Item

	err := v.s.read("load items", func() error {
		out = slices.Clone(v.s.items)

		return nil
	})

	return out, err
}
