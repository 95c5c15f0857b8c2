package notify

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mailgun/mailgun-go/v4"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	log "github.com/sirupsen/logrus"
)

// --- Log ---

// LogNotifier writes notifications to the log instead of sending them.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier { return &LogNotifier{} }

func (n *LogNotifier) Send(_ context.Context, to string, kind Kind, data map[string]any) error {
	subject, _, err := render(kind, data)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{"to": to, "kind": kind, "subject": subject}).Info("notification")
	return nil
}

// --- Mailgun ---

// MailgunNotifier sends the rendered text body. A kind mapped to a stored
// Mailgun template is sent through that template instead, with the data map
// as template variables.
type MailgunNotifier struct {
	mg        *mailgun.MailgunImpl
	from      string
	templates map[string]string
}

func NewMailgunNotifier(domain, apiKey, from string, templates map[string]string) *MailgunNotifier {
	return &MailgunNotifier{mg: mailgun.NewMailgun(domain, apiKey), from: from, templates: templates}
}

// templateFor returns the stored template configured for kind, if any.
func (n *MailgunNotifier) templateFor(kind Kind) (string, bool) {
	name, ok := n.templates[string(kind)]
	return name, ok && name != ""
}

func (n *MailgunNotifier) Send(ctx context.Context, to string, kind Kind, data map[string]any) error {
	subject, body, err := render(kind, data)
	if err != nil {
		return err
	}
	message := n.mg.NewMessage(n.from, subject, body)
	if err := message.AddRecipient(to); err != nil {
		return fmt.Errorf("invalid recipient %q: %w", to, err)
	}
	if name, ok := n.templateFor(kind); ok {
		message.SetTemplate(name)
		for k, v := range data {
			if err := message.AddVariable(k, v); err != nil {
				return fmt.Errorf("failed to add template variable %s: %w", k, err)
			}
		}
	}

	_, id, err := n.mg.Send(ctx, message)
	if err != nil {
		return fmt.Errorf("mailgun send failed: %w", err)
	}
	log.WithFields(log.Fields{"to": to, "kind": kind, "message_id": id}).Debug("email queued")
	return nil
}

// --- SendGrid ---

type SendGridNotifier struct {
	client *sendgrid.Client
	from   string
}

func NewSendGridNotifier(apiKey, from string) *SendGridNotifier {
	return &SendGridNotifier{client: sendgrid.NewSendClient(apiKey), from: from}
}

func (n *SendGridNotifier) Send(ctx context.Context, to string, kind Kind, data map[string]any) error {
	subject, body, err := render(kind, data)
	if err != nil {
		return err
	}
	name, _ := data[KeyCandidateName].(string)
	message := mail.NewSingleEmail(mail.NewEmail("Hiring Team", n.from), subject, mail.NewEmail(name, to), body, "")

	response, err := n.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send failed: %w", err)
	}
	if response.StatusCode != http.StatusAccepted {
		return fmt.Errorf("sendgrid send failed, status code: %d", response.StatusCode)
	}
	return nil
}

var (
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = (*MailgunNotifier)(nil)
	_ Notifier = (*SendGridNotifier)(nil)
)
