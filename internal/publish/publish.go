// Package publish forwards freshly scraped Fields to downstream systems.
package publish

import (
	"context"
	"errors"
	"time"

	"github.com/janiskrasemann/vmarket/internal/fetcher"
)

// Sink receives every successful scrape. Sinks are write-only.
type Sink interface {
	Name() string
	Publish(ctx context.Context, id string, fields fetcher.Fields) error
	Close() error
}

// Update is the JSON payload written by sinks that carry metadata.
type Update struct {
	Source    string    `json:"source"`
	ScrapedAt time.Time `json:"scraped_at"`
	fetcher.Fields
}

// CloseAll closes every sink and joins their errors.
func CloseAll(sinks []Sink) error {
	var errs []error
	for _, s := range sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
