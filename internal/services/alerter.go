package services

import (
	"context"
	"fmt"
	"html"
	"time"

	"appstore-notifications/pkg/logging"

	brevo "github.com/getbrevo/brevo-go/lib"
)

// Alerter notifies operators about notifications that were accepted but
// could not be applied to local state.
type Alerter interface {
	Alert(ctx context.Context, subject, message string) error
}

// LogAlerter writes alerts to the error log.
type LogAlerter struct{}

func (LogAlerter) Alert(_ context.Context, subject, message string) error {
	logging.Errorf("ALERT %s: %s", subject, message)
	return nil
}

// BrevoAlerter 通过 Brevo 发送告警邮件
type BrevoAlerter struct {
	client      *brevo.APIClient
	fromEmail   string
	to          string
	serviceName string
}

// NewBrevoAlerter creates an alerter that emails the operator address.
func NewBrevoAlerter(apiKey, fromEmail, to, serviceName string) *BrevoAlerter {
	cfg := brevo.NewConfiguration()
	cfg.AddDefaultHeader("api-key", apiKey)

	return &BrevoAlerter{
		client:      brevo.NewAPIClient(cfg),
		fromEmail:   fromEmail,
		to:          to,
		serviceName: serviceName,
	}
}

func (a *BrevoAlerter) Alert(ctx context.Context, subject, message string) error {
	fullSubject := fmt.Sprintf("[%s] %s", a.serviceName, subject)
	htmlContent := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>%s</title></head>
<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
	<h2 style="color: #c0392b;">%s</h2>
	<pre style="background-color: #f8f9fa; padding: 15px; border-radius: 6px;">%s</pre>
	<p style="color: #999; font-size: 12px;">%s</p>
</body>
</html>`,
		html.EscapeString(fullSubject), html.EscapeString(subject), html.EscapeString(message),
		time.Now().UTC().Format(time.RFC3339))

	email := brevo.SendSmtpEmail{
		Sender: &brevo.SendSmtpEmailSender{
			Name:  a.serviceName,
			Email: a.fromEmail,
		},
		To: []brevo.SendSmtpEmailTo{
			{Email: a.to},
		},
		Subject:     fullSubject,
		HtmlContent: htmlContent,
		TextContent: subject + "\n\n" + message,
	}

	if _, _, err := a.client.TransactionalEmailsApi.SendTransacEmail(ctx, email); err != nil {
		return fmt.Errorf("failed to send alert email: %w", err)
	}
	return nil
}

// NewAlerter returns a BrevoAlerter when Brevo is configured and a LogAlerter otherwise.
func NewAlerter(apiKey, fromEmail, to, serviceName string) Alerter {
	if apiKey == "" || fromEmail == "" || to == "" {
		logging.Warnf("Brevo alerting not configured, alerts go to the error log")
		return LogAlerter{}
	}
	return NewBrevoAlerter(apiKey, fromEmail, to, serviceName)
}
