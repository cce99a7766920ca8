package items

import "context"

type Item struct {
	ID    int64
	Name  string
	Price int64
}

// Items is the read-only item catalog source.
type Items interface {
	LoadAll(ctx context.Context) ([]Item, error)
}
