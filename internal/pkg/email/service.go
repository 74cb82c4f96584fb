// internal/pkg/email/service.go
package email

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/pasargadprints/ecommerce-backend/internal/config"
	"github.com/sirupsen/logrus"
)

// Service renders and delivers transactional email. Callers treat delivery
// as best-effort: failures are returned for logging, never for rollback.
type Service struct {
	config *config.Config
	logger *logrus.Logger
	send   func(*Message) error // Swappable for tests
}

// NewService creates a new email service
func NewService(cfg *config.Config, logger *logrus.Logger) *Service {
	s := &Service{config: cfg, logger: logger}
	switch cfg.External.Email.Provider {
	case "smtp":
		s.send = s.sendSMTP
	default:
		// No provider configured: log the message instead of sending
		s.send = s.logOnly
	}
	return s
}

func (s *Service) logOnly(msg *Message) error {
	s.logger.WithFields(logrus.Fields{
		"to":      msg.To,
		"subject": msg.Subject,
	}).Info("Email delivery skipped, no provider configured")
	return nil
}

var tmplFuncs = template.FuncMap{
	"cents": func(v int64) float64 { return float64(v) / 100 },
}

var orderConfirmationTmpl = template.Must(template.New("order_confirmation").Funcs(tmplFuncs).Parse(`
<h1>Thanks for your order!</h1>
<p>Your order <strong>{{.OrderNumber}}</strong> has been confirmed.</p>
<table>
{{range .Items}}
  <tr><td>{{.Name}}</td><td>{{.Quantity}} &times; {{printf "%.2f" (cents .Price)}}</td></tr>
{{end}}
</table>
<p>Total: <strong>{{printf "%.2f" (cents .TotalAmount)}} {{.Currency}}</strong></p>
<p>We will email you again when your order ships.</p>
`))

var paymentFailureTmpl = template.Must(template.New("payment_failure").Parse(`
<h1>Payment unsuccessful</h1>
<p>We could not complete your payment{{if .Reason}}: {{.Reason}}{{end}}.</p>
<p>Your cart has been kept, you can retry checkout at any time.</p>
`))

// SendOrderConfirmation sends the post-payment confirmation email
func (s *Service) SendOrderConfirmation(data *OrderConfirmation) error {
	body, err := render(orderConfirmationTmpl, data)
	if err != nil {
		return err
	}
	return s.send(&Message{
		To:      data.To,
		Subject: fmt.Sprintf("Order %s confirmed", data.OrderNumber),
		Body:    body,
	})
}

// SendPaymentFailure notifies a customer that their payment did not go through
func (s *Service) SendPaymentFailure(data *PaymentFailure) error {
	body, err := render(paymentFailureTmpl, data)
	if err != nil {
		return err
	}
	return s.send(&Message{
		To:      data.To,
		Subject: "There was a problem with your payment",
		Body:    body,
	})
}

func render(tmpl *template.Template, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render email template: %w", err)
	}
	return buf.String(), nil
}
