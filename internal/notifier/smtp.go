package notifier

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wneessen/go-mail"

	"github.com/amishk599/jobalert/internal/model"
)

// Ensure SMTPNotifier implements model.Notifier.
var _ model.Notifier = (*SMTPNotifier)(nil)

// TLS modes accepted by SMTPConfig.TLS.
const (
	TLSMandatory     = "mandatory"
	TLSOpportunistic = "opportunistic"
	TLSNone          = "none"
	TLSImplicit      = "ssl"
)

// SMTPConfig holds mail submission settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	TLS      string
}

// SMTPNotifier mails digests as HTML through an SMTP submission server.
type SMTPNotifier struct {
	cfg    SMTPConfig
	logger *slog.Logger
}

// NewSMTPNotifier returns a notifier that mails each digest to its recipient.
func NewSMTPNotifier(cfg SMTPConfig, logger *slog.Logger) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg, logger: logger}
}

// Send dials the server and submits one message per digest.
func (s *SMTPNotifier) Send(ctx context.Context, d model.Digest) error {
	msg := mail.NewMsg()
	if err := msg.From(s.cfg.From); err != nil {
		return fmt.Errorf("invalid from address %q: %w", s.cfg.From, err)
	}
	if err := msg.To(d.Recipient); err != nil {
		return fmt.Errorf("invalid recipient %q: %w", d.Recipient, err)
	}
	msg.Subject(d.Subject)
	msg.SetBodyString(mail.TypeTextHTML, d.HTML)

	client, err := mail.NewClient(s.cfg.Host, s.clientOptions()...)
	if err != nil {
		return fmt.Errorf("creating smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("sending mail via %s:%d: %w", s.cfg.Host, s.cfg.Port, err)
	}

	s.logger.Debug("mail sent", "recipient", d.Recipient, "subject", d.Subject)
	return nil
}

func (s *SMTPNotifier) clientOptions() []mail.Option {
	opts := []mail.Option{mail.WithPort(s.cfg.Port)}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}
	switch s.cfg.TLS {
	case TLSImplicit:
		opts = append(opts, mail.WithSSL())
	case TLSNone:
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	case TLSOpportunistic:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	default:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}
	return opts
}
