// Package notify delivers candidate notifications. Delivery is best-effort: the
// pipeline logs failures and carries on.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stagehand/internal/config"
	"stagehand/internal/models"

	log "github.com/sirupsen/logrus"
)

// Kind selects the message template.
type Kind string

const (
	KindAssessmentLink Kind = "assessment_link"
	KindShortlisted    Kind = "shortlisted"
	KindRejected       Kind = "rejected"
)

// Notifier sends one message to one recipient.
type Notifier interface {
	Send(ctx context.Context, to string, kind Kind, data map[string]any) error
}

// Deliver sends a notification with a bounded wait and never returns the failure.
// It reports whether the message went out.
func Deliver(ctx context.Context, n Notifier, timeout time.Duration, to string, kind Kind, data map[string]any, fields log.Fields) bool {
	logger := log.WithFields(fields).WithField("kind", kind)
	if n == nil {
		logger.Debug("no notifier configured, skipping")
		return false
	}
	if to == "" {
		logger.Warn("candidate has no email address, skipping notification")
		return false
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := n.Send(ctx, to, kind, data); err != nil {
		logger.WithError(fmt.Errorf("%w: %v", models.ErrExternalService, err)).Warn("notification failed")
		return false
	}
	logger.Debug("notification sent")
	return true
}

// New builds the configured provider wrapped in a circuit breaker.
// The log provider is returned bare.
func New(cfg config.NotifierConfig) (Notifier, error) {
	var n Notifier
	switch cfg.Provider {
	case "", "log":
		return NewLogNotifier(), nil
	case "mailgun":
		if cfg.Mailgun.Domain == "" || cfg.Mailgun.APIKey == "" || cfg.From == "" {
			return nil, errors.New("invalid Mailgun configuration")
		}
		n = NewMailgunNotifier(cfg.Mailgun.Domain, cfg.Mailgun.APIKey, cfg.From, cfg.Mailgun.Templates)
	case "sendgrid":
		if cfg.SendGrid.APIKey == "" || cfg.From == "" {
			return nil, errors.New("invalid SendGrid configuration")
		}
		n = NewSendGridNotifier(cfg.SendGrid.APIKey, cfg.From)
	default:
		return nil, fmt.Errorf("unknown notifier provider %q", cfg.Provider)
	}
	return NewBreaker(cfg.Provider, n, cfg.Breaker.MaxFailures, cfg.Breaker.OpenTimeout), nil
}
