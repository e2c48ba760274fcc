package renderer

import (
	"strings"
	"testing"
	"time"

	"github.com/janiskrasemann/vmarket/internal/fetcher"
)

func TestRenderFailing(t *testing.T) {
	r, err := Default()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	email, err := r.Render(Notice{
		Kind:      KindFailing,
		Source:    "NIFTY-50",
		URL:       "https://example.com/nifty",
		Failures:  3,
		LastError: "div.indimprice: element not found",
		At:        time.Date(2024, 3, 1, 9, 15, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if email.Subject != "[VMarket] NIFTY-50 is failing" {
		t.Errorf("unexpected subject %q", email.Subject)
	}
	if !strings.Contains(email.Text, "failed 3 times in a row") {
		t.Errorf("expected text to mention the failure count, got:\n%s", email.Text)
	}
	if !strings.Contains(email.Text, "No value has been published") {
		t.Error("expected text to say no value was published")
	}
	if !strings.Contains(email.HTML, "<h1>NIFTY-50 is failing</h1>") {
		t.Errorf("expected markdown heading to be rendered as HTML, got:\n%s", email.HTML)
	}
	if !strings.Contains(email.HTML, "<strong>NIFTY-50</strong>") {
		t.Error("expected bold source name in HTML")
	}
	if !strings.Contains(email.HTML, "#cf222e") {
		t.Error("expected failing colour in HTML")
	}
	if !strings.Contains(email.Text, "Mar 1, 2024 09:15 UTC") {
		t.Error("expected timestamp in text")
	}
}

func TestRenderRecoveredWithFields(t *testing.T) {
	r, err := Default()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	email, err := r.Render(Notice{
		Kind:     KindRecovered,
		Source:   "SENSEX",
		URL:      "https://example.com/sensex",
		Failures: 4,
		Fields:   &fetcher.Fields{CurrentPrice: "73876.82", PriceChange: "+120.15", PriceChangePercentage: "0.16"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if email.Subject != "[VMarket] SENSEX recovered" {
		t.Errorf("unexpected subject %q", email.Subject)
	}
	if !strings.Contains(email.Text, "73876.82 (+120.15, 0.16%)") {
		t.Errorf("expected current value in text, got:\n%s", email.Text)
	}
	if !strings.Contains(email.HTML, "#1a7f37") {
		t.Error("expected recovered colour in HTML")
	}
}

func TestRenderEscapesErrors(t *testing.T) {
	r, err := Default()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	email, err := r.Render(Notice{
		Kind:      KindFailing,
		Source:    "BSE-500",
		Failures:  1,
		LastError: "<script>alert(1)</script>",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if strings.Contains(email.HTML, "<script>") {
		t.Error("expected error text to be escaped in HTML")
	}
}

func TestNewRejectsBadTemplate(t *testing.T) {
	if _, err := New("{{.Broken", defaultHTMLTemplate); err == nil {
		t.Error("expected error for malformed markdown template")
	}
	if _, err := New(defaultMarkdownTemplate, "{{if}}"); err == nil {
		t.Error("expected error for malformed HTML template")
	}
}
