package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("vmarket.internal.fetcher")

var (
	ErrElementNotFound = errors.New("element not found")
	ErrMalformed       = errors.New("malformed price change")
)

const userAgent = "Mozilla/5.0 (compatible; VMarket/1.0)"

// NewHTTPClient returns a resty client suitable for scraping index pages.
func NewHTTPClient(timeout time.Duration) *resty.Client {
	return resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", "text/html,application/xhtml+xml")
}

// IndexPage scrapes moneycontrol style index pages.
type IndexPage struct {
	client *resty.Client
}

func NewIndexPage(client *resty.Client) *IndexPage {
	return &IndexPage{client: client}
}

func (p *IndexPage) Fetch(ctx context.Context, src Source) (Fields, error) {
	ctx, span := tracer.Start(ctx, "IndexPage.Fetch")
	defer span.End()

	span.SetAttributes(
		attribute.String("source", src.ID),
		attribute.String("url", src.URL),
	)

	fields, err := p.fetch(ctx, src)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Fields{}, err
	}
	return fields, nil
}

func (p *IndexPage) fetch(ctx context.Context, src Source) (Fields, error) {
	res, err := p.client.R().
		SetContext(ctx).
		Get(src.URL)
	if err != nil {
		return Fields{}, fmt.Errorf("fetching %s: %w", src.ID, err)
	}
	if res.IsError() {
		return Fields{}, fmt.Errorf("%s returned status %d", src.URL, res.StatusCode())
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return Fields{}, fmt.Errorf("parsing %s: %w", src.ID, err)
	}

	fields, err := Extract(doc)
	if err != nil {
		return Fields{}, fmt.Errorf("extracting %s: %w", src.ID, err)
	}
	return fields, nil
}

// Extract pulls the price block out of a parsed index page.
//
// Expected markup:
//
//	<div class="indimprice">
//	  <span id="sp_val">22,147.90</span>
//	  <div class="pricupdn">-52.30 (-0.23%)</div>
//	</div>
func Extract(doc *goquery.Document) (Fields, error) {
	block := doc.Find("div.indimprice").First()
	if block.Length() == 0 {
		return Fields{}, fmt.Errorf("div.indimprice: %w", ErrElementNotFound)
	}

	price := block.Find("span#sp_val").First()
	if price.Length() == 0 {
		return Fields{}, fmt.Errorf("span#sp_val: %w", ErrElementNotFound)
	}
	change := block.Find("div.pricupdn").First()
	if change.Length() == 0 {
		return Fields{}, fmt.Errorf("div.pricupdn: %w", ErrElementNotFound)
	}

	current := strings.TrimSpace(strings.ReplaceAll(price.Text(), ",", ""))
	if current == "" {
		return Fields{}, fmt.Errorf("span#sp_val is empty: %w", ErrMalformed)
	}

	parts := strings.Fields(change.Text())
	if len(parts) < 2 {
		return Fields{}, fmt.Errorf("%q: %w", strings.TrimSpace(change.Text()), ErrMalformed)
	}

	fields := Fields{
		CurrentPrice:          current,
		PriceChange:           parts[0],
		PriceChangePercentage: strings.Trim(parts[1], "()%"),
	}
	if !fields.Valid() {
		return Fields{}, fmt.Errorf("%q: %w", strings.TrimSpace(change.Text()), ErrMalformed)
	}
	return fields, nil
}
