package notification

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// WebhookNotifier POSTs alerts as JSON to a generic HTTP endpoint.
type WebhookNotifier struct {
	url    string
	client *http.Client
	now    func() time.Time
}

// NewWebhookNotifier creates a webhook notifier for url.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{url: url, client: newHTTPClient(), now: time.Now}
}

type webhookPayload struct {
	Level         AlertLevel       `json:"level"`
	Title         string           `json:"title"`
	Message       string           `json:"message"`
	UserID        string           `json:"userId,omitempty"`
	OpportunityID string           `json:"opportunityId,omitempty"`
	Symbol        string           `json:"symbol,omitempty"`
	TaxSavings    *decimal.Decimal `json:"taxSavings,omitempty"`
	Deadline      string           `json:"deadline,omitempty"`
	TS            string           `json:"ts"`
}

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	p := webhookPayload{
		Level:         alert.Level,
		Title:         alert.Title,
		Message:       alert.Message,
		UserID:        alert.UserID,
		OpportunityID: alert.OpportunityID,
		Symbol:        alert.Symbol,
		TS:            w.now().UTC().Format(time.RFC3339Nano),
	}
	if !alert.Savings.IsZero() {
		p.TaxSavings = &alert.Savings
	}
	if alert.Deadline != nil {
		p.Deadline = alert.Deadline.UTC().Format(time.RFC3339)
	}

	if _, err := postJSON(ctx, w.client, "webhook", w.url, p); err != nil {
		return err
	}
	log.Printf("[webhook] sent %s alert for %s: %s", alert.Level, alert.UserID, alert.Title)
	return nil
}
