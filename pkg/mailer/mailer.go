// Package mailer sends transactional mail (password resets, order
// deliveries) over SMTP.
package mailer

import (
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/accstore/accstore/config"
)

type Mailer struct {
	cfg config.SmtpConfig
}

func New(cfg config.SmtpConfig) *Mailer {
	return &Mailer{cfg: cfg}
}

// Send delivers a single HTML message. Errors are returned, not retried;
// callers decide whether the mail matters enough to retry.
func (m *Mailer) Send(to, subject, htmlBody string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", htmlBody)

	d := gomail.NewDialer(m.cfg.Host, m.cfg.Port, m.cfg.Username, m.cfg.Password)
	if err := d.DialAndSend(msg); err != nil {
		zap.L().Warn("mail send failed", zap.String("to", to), zap.Error(err))
		return err
	}
	return nil
}
