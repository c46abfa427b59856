package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"taxsync-pro/internal/markethours"
	"taxsync-pro/internal/taxcalc"
)

// TelegramNotifier sends alerts to one chat through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	apiBase  string
	client   *http.Client
}

// NewTelegramNotifier creates a notifier posting to chatID as the bot
// identified by botToken.
func NewTelegramNotifier(botToken, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		apiBase:  "https://api.telegram.org",
		client:   newHTTPClient(),
	}
}

var levelEmoji = map[AlertLevel]string{
	AlertInfo:     "ℹ️",
	AlertWarning:  "⚠️",
	AlertCritical: "🚨",
}

// telegramText renders alert as MarkdownV2.
func telegramText(alert Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s*\n\n%s", levelEmoji[alert.Level], escapeMarkdown(alert.Title), escapeMarkdown(alert.Message))
	if alert.Savings.IsPositive() {
		fmt.Fprintf(&b, "\n\nSavings: *%s*", escapeMarkdown(taxcalc.FormatINR(alert.Savings)))
	}
	if alert.Deadline != nil {
		fmt.Fprintf(&b, "\nAct before: %s", escapeMarkdown(alert.Deadline.In(markethours.IST).Format("2 Jan 2006")))
	}
	return b.String()
}

func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.botToken)
	_, err := postJSON(ctx, t.client, "telegram", url, map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       telegramText(alert),
		"parse_mode": "MarkdownV2",
	})

	// The Bot API explains rejections in {"ok":false,"description":...}.
	var se *StatusError
	if errors.As(err, &se) {
		var reply struct {
			Description string `json:"description"`
		}
		if json.Unmarshal([]byte(se.Body), &reply) == nil && reply.Description != "" {
			se.Body = reply.Description
		}
	}
	if err != nil {
		return err
	}

	log.Printf("[telegram] sent %s alert for %s: %s", alert.Level, alert.UserID, alert.Title)
	return nil
}

var markdownSpecials = "_*[]()~`>#+-=|{}.!\\"

// escapeMarkdown escapes the characters MarkdownV2 reserves.
func escapeMarkdown(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(markdownSpecials, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
