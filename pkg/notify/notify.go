// Package notify sends the operator email describing a newly captured lead.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"sync"

	"github.com/dukex/followup/pkg/models"
	"gopkg.in/gomail.v2"
)

const DefaultSubject = "New lead captured"

// Sender delivers composed messages. *gomail.Dialer satisfies it.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPConfig holds the SMTP_* settings of the binaries.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       string
}

// Enabled reports whether enough settings are present to send mail.
func (c SMTPConfig) Enabled() bool {
	return c.Host != "" && c.From != "" && c.To != ""
}

var leadTable = template.Must(template.New("lead").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
    <h2>{{.Subject}}</h2>
    <table cellpadding="6" style="border-collapse: collapse;">
        <tr><th align="left">Name</th><td>{{.Lead.Name}}</td></tr>
        <tr><th align="left">Email</th><td>{{.Lead.Email}}</td></tr>
        <tr><th align="left">Phone</th><td>{{.Lead.Phone}}</td></tr>
        <tr><th align="left">Interest</th><td>{{.Lead.Interest}}</td></tr>
        <tr><th align="left">Location</th><td>{{.Lead.Location}}</td></tr>
    </table>
</body>
</html>`))

type Notifier struct {
	sender  Sender
	from    string
	to      string
	subject string
	logger  *slog.Logger
	wg      sync.WaitGroup
}

func New(sender Sender, from, to string, logger *slog.Logger) *Notifier {
	return &Notifier{
		sender:  sender,
		from:    from,
		to:      to,
		subject: DefaultSubject,
		logger:  logger.With("module", "notify"),
	}
}

// NewSMTP builds a Notifier delivering through the configured SMTP server.
func NewSMTP(config SMTPConfig, logger *slog.Logger) (*Notifier, error) {
	if !config.Enabled() {
		return nil, errors.New("smtp host, sender and recipient are required")
	}

	port := config.Port
	if port == 0 {
		port = 587
	}

	dialer := gomail.NewDialer(config.Host, port, config.Username, config.Password)

	return New(dialer, config.From, config.To, logger), nil
}

// Render returns the HTML body for lead. User-supplied fields are escaped.
func (n *Notifier) Render(lead *models.Lead) (string, error) {
	var body bytes.Buffer

	err := leadTable.Execute(&body, struct {
		Subject string
		Lead    *models.Lead
	}{n.subject, lead})
	if err != nil {
		return "", fmt.Errorf("failed to render lead notification: %w", err)
	}

	return body.String(), nil
}

// Send composes and delivers the notification for lead synchronously.
func (n *Notifier) Send(ctx context.Context, lead *models.Lead) error {
	body, err := n.Render(lead)
	if err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", n.to)
	m.SetHeader("Subject", n.subject)
	m.SetBody("text/html", body)

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := n.sender.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send lead notification: %w", err)
	}

	return nil
}

// NotifyNewLead sends the notification in the background. Failures are
// logged and never retried.
func (n *Notifier) NotifyNewLead(ctx context.Context, lead *models.Lead) {
	ctx = context.WithoutCancel(ctx)

	n.wg.Add(1)

	go func() {
		defer n.wg.Done()

		if err := n.Send(ctx, lead); err != nil {
			n.logger.ErrorContext(ctx, "lead notification failed", "lead_id", lead.ID, "error", err)

			return
		}

		n.logger.InfoContext(ctx, "lead notification sent", "lead_id", lead.ID)
	}()
}

// Wait blocks until every background notification has returned.
func (n *Notifier) Wait() {
	n.wg.Wait()
}
