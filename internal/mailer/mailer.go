package mailer

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v3"

	"github.com/janiskrasemann/vmarket/internal/logging"
	"github.com/janiskrasemann/vmarket/internal/renderer"
)

type Mailer struct {
	from   string
	to     []string
	client *resend.Client
}

func New(from string, to []string, apiKey string) *Mailer {
	return &Mailer{
		from:   from,
		to:     to,
		client: resend.NewClient(apiKey),
	}
}

func (m *Mailer) Send(ctx context.Context, email *renderer.RenderedEmail) error {
	params := &resend.SendEmailRequest{
		From:    m.from,
		To:      m.to,
		Subject: email.Subject,
		Html:    email.HTML,
		Text:    email.Text,
	}

	sent, err := m.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("sending email via resend: %w", err)
	}

	logging.Debugf("[mailer] email sent: %s", sent.Id)
	return nil
}
