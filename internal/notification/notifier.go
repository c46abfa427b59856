// Package notification delivers tax-opportunity alerts to external channels
// such as Telegram or a webhook.
package notification

import (
	"context"
	"fmt"
	"log"
	"time"

	"taxsync-pro/internal/markethours"
	"taxsync-pro/internal/model"
	"taxsync-pro/internal/taxcalc"

	"github.com/shopspring/decimal"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent. The opportunity fields are
// empty for alerts not raised by a sync.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
	UserID  string     `json:"userId,omitempty"`

	OpportunityID string          `json:"opportunityId,omitempty"`
	Symbol        string          `json:"symbol,omitempty"`
	Savings       decimal.Decimal `json:"taxSavings"`
	Deadline      *time.Time      `json:"deadline,omitempty"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier is a simple notifier that logs alerts (useful for development).
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

// urgentDays is how close the fiscal year end must be for an alert to be critical.
const urgentDays = 15

// ShouldAlert reports whether opp warrants pushing to the user: high
// priority with a deadline still ahead of now.
func ShouldAlert(opp model.Opportunity, now time.Time) bool {
	return opp.Priority == model.PriorityHigh && opp.Deadline != nil && opp.Deadline.After(now)
}

// OpportunityAlert builds the alert for a harvestable opportunity.
func OpportunityAlert(userID string, opp model.Opportunity, now time.Time) Alert {
	level := AlertWarning
	days := 0
	if opp.Deadline != nil {
		days = markethours.DaysUntil(now, *opp.Deadline)
		if days <= urgentDays {
			level = AlertCritical
		}
	}

	msg := fmt.Sprintf("Sell %s %s to save %s in tax", opp.LossStock.Quantity.String(), opp.LossStock.Symbol,
		taxcalc.FormatINR(opp.TaxSavings))
	if opp.OffsetStock != nil {
		msg += fmt.Sprintf(" against gains in %s", opp.OffsetStock.Symbol)
	}
	if opp.Deadline != nil {
		msg += fmt.Sprintf(". %d days left before %s", days, opp.Deadline.In(markethours.IST).Format("2 Jan 2006"))
	}
	if opp.WashSaleRisk {
		msg += ". Wash-sale risk: recent purchase on record"
	}

	return Alert{
		Level:         level,
		Title:         fmt.Sprintf("Tax harvesting: %s", opp.LossStock.Symbol),
		Message:       msg,
		UserID:        userID,
		OpportunityID: opp.ID,
		Symbol:        opp.LossStock.Symbol,
		Savings:       opp.TaxSavings,
		Deadline:      opp.Deadline,
	}
}
