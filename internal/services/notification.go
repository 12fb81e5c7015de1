package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/config"
)

// ErrNotifierDisabled is returned when no Telegram bot is configured.
var ErrNotifierDisabled = errors.New("telegram notifications are not configured")

// Notifier delivers alert messages.
type Notifier interface {
	NotifyAlert(ctx context.Context, result *AlertResult) error
}

// NotificationService sends alert messages to a Telegram chat.
type NotificationService struct {
	bot    *bot.Bot
	chatID int64
	logger *logrus.Logger
}

// NewNotificationService creates the Telegram notifier. Without a bot token or chat ID it
// returns a service whose NotifyAlert reports ErrNotifierDisabled.
func NewNotificationService(cfg config.TelegramConfig, logger *logrus.Logger, opts ...bot.Option) (*NotificationService, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	ns := &NotificationService{chatID: cfg.ChatID, logger: logger}
	if cfg.BotToken == "" || cfg.ChatID == 0 {
		return ns, nil
	}

	// Initialize Telegram bot without a startup round trip
	opts = append([]bot.Option{bot.WithSkipGetMe()}, opts...)
	telegramBot, err := bot.New(cfg.BotToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	ns.bot = telegramBot
	return ns, nil
}

// Enabled reports whether messages can be sent.
func (ns *NotificationService) Enabled() bool {
	return ns != nil && ns.bot != nil
}

// NotifyAlert sends a formatted alert to the configured chat.
func (ns *NotificationService) NotifyAlert(ctx context.Context, result *AlertResult) error {
	if !ns.Enabled() {
		return ErrNotifierDisabled
	}

	_, err := ns.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    ns.chatID,
		Text:      formatAlertMessage(result),
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}

	ns.logger.WithFields(logrus.Fields{
		"coin":   result.CoinID,
		"status": result.Status,
	}).Info("Alert notification sent")
	return nil
}

// formatAlertMessage renders an alert as Telegram HTML.
func formatAlertMessage(result *AlertResult) string {
	var sb strings.Builder

	icon := "⚠️"
	if result.Status == AlertReached {
		icon = "🔔"
	}
	fmt.Fprintf(&sb, "%s <b>%s price alert</b>\n\n", icon, html.EscapeString(strings.ToUpper(result.CoinID)))
	fmt.Fprintf(&sb, "%s\n", html.EscapeString(result.Message))
	fmt.Fprintf(&sb, "Current: <code>%.2f</code> | Target: <code>%.2f</code>\n", result.CurrentPrice, result.TargetPrice)

	if result.RSI != nil {
		fmt.Fprintf(&sb, "RSI: <code>%.1f</code> (%s)\n", *result.RSI, result.RSISignal)
	}
	for _, w := range result.Warnings {
		fmt.Fprintf(&sb, "• %s\n", html.EscapeString(w))
	}
	return sb.String()
}
