package fetcher

import (
	"context"
	"errors"
)

var ErrEmptyResult = errors.New("scrape returned no data")

// Source is a named page to scrape.
type Source struct {
	ID  string
	URL string
}

// Fields are the three values taken from an index page, passed through as text.
type Fields struct {
	CurrentPrice          string `json:"current_price"`
	PriceChange           string `json:"price_change"`
	PriceChangePercentage string `json:"price_change_percentage"`
}

// Valid reports whether every field carries a value.
func (f Fields) Valid() bool {
	return f.CurrentPrice != "" && f.PriceChange != "" && f.PriceChangePercentage != ""
}

// Result holds the outcome of scraping a single source.
type Result struct {
	Source Source
	Fields Fields
	Err    error
}

func (r Result) OK() bool { return r.Err == nil }

// Fetcher is implemented by anything that can turn a source into Fields.
type Fetcher interface {
	Fetch(ctx context.Context, src Source) (Fields, error)
}

// FetchFunc adapts a plain function to the Fetcher interface.
type FetchFunc func(ctx context.Context, src Source) (Fields, error)

func (f FetchFunc) Fetch(ctx context.Context, src Source) (Fields, error) { return f(ctx, src) }
