// Package notify sends transactional email. The only message today is the
// post-signup welcome mail; senders are fire-and-forget collaborators whose
// failures must never fail a signup (the service layer logs and moves on).
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/domodwyer/mailyak/v3"

	"github.com/newronx/waitlist/internal/model"
)

// SMTPConfig carries the mail-server settings read from the environment.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string // sender address, e.g. "Newronx <hello@newronx.com>"
}

// Enabled reports whether enough settings are present to actually send.
func (c SMTPConfig) Enabled() bool {
	return c.Host != "" && c.From != ""
}

// Mailer sends mail over SMTP using mailyak.
type Mailer struct {
	cfg    SMTPConfig
	logger *slog.Logger
}

func NewMailer(cfg SMTPConfig, logger *slog.Logger) *Mailer {
	return &Mailer{cfg: cfg, logger: logger}
}

// SendWelcome sends the waitlist welcome mail, including the registrant's
// referral code so they can start sharing straight away.
//
// The ctx parameter is accepted for interface symmetry; mailyak drives a
// blocking SMTP conversation that cannot be cancelled midway.
func (m *Mailer) SendWelcome(_ context.Context, reg *model.Registrant) error {
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	mail := mailyak.New(addr, auth)
	mail.From(m.cfg.From)
	mail.To(reg.Email)
	mail.Subject("You're on the waitlist!")

	name := reg.DisplayName()
	var body strings.Builder
	fmt.Fprintf(&body, "Hi %s,\n\n", name)
	body.WriteString("You're officially on the waitlist — we'll let you know the moment we launch.\n\n")
	fmt.Fprintf(&body, "Your referral code is %s. Share it with friends: every signup it brings in moves you up the list.\n\n", reg.ReferralCode)
	body.WriteString("— The team\n")
	mail.Plain().Set(body.String())

	if err := mail.Send(); err != nil {
		return fmt.Errorf("notify: sending welcome mail to %s: %w", reg.Email, err)
	}

	m.logger.Info("welcome email sent",
		slog.String("registrantID", reg.ID),
	)
	return nil
}

// Nop is a Notifier that does nothing. Used when SMTP is not configured —
// the server runs fine, signups just go unannounced.
type Nop struct{}

func (Nop) SendWelcome(context.Context, *model.Registrant) error {
	return nil
}
