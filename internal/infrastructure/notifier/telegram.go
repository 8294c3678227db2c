package notifier

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/vitos/pivot_alert_bot/internal/domain"
	"github.com/vitos/pivot_alert_bot/internal/retry"
)

const (
	maxMessageLength = 4096
	sendAttempts     = 3
	sendBackoffBase  = 2 * time.Second
)

var levelEmoji = map[domain.LevelKind]string{
	domain.LevelS1:    "📉",
	domain.LevelR1:    "🚨",
	domain.LevelPivot: "⚖️",
}

// sender is the slice of the bot API the notifier needs; tests swap in
// a recorder.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram delivers alerts and service messages to a single chat,
// paced and retried. Failures after all retries surface to the caller.
type Telegram struct {
	bot      sender
	chatID   int64
	cooldown time.Duration
	backoff  time.Duration
	logger   *zap.Logger
	pacer    *pacer
}

func NewTelegram(token string, chatID int64, cooldown time.Duration, logger *zap.Logger) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	logger.Info("telegram bot authorized", zap.String("username", bot.Self.UserName))
	return newTelegram(bot, chatID, cooldown, logger), nil
}

func newTelegram(bot sender, chatID int64, cooldown time.Duration, logger *zap.Logger) *Telegram {
	return &Telegram{
		bot:      bot,
		chatID:   chatID,
		cooldown: cooldown,
		backoff:  sendBackoffBase,
		logger:   logger,
		pacer:    newPacer(),
	}
}

// SendMessage delivers raw Markdown text, truncated to the Telegram
// message limit.
func (t *Telegram) SendMessage(ctx context.Context, text string) error {
	if len(text) > maxMessageLength {
		cut := maxMessageLength - 3
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + "..."
	}
	t.pacer.wait()

	err := retry.Do(ctx, sendAttempts, t.backoff, func() error {
		msg := tgbotapi.NewMessage(t.chatID, text)
		msg.ParseMode = tgbotapi.ModeMarkdown
		_, err := t.bot.Send(msg)
		return err
	})
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// SendAlert formats and delivers a level-touch alert.
func (t *Telegram) SendAlert(ctx context.Context, alert *domain.Alert) error {
	return t.SendMessage(ctx, t.formatAlert(alert, time.Now()))
}

func (t *Telegram) formatAlert(alert *domain.Alert, detectedAt time.Time) string {
	emoji := levelEmoji[alert.Kind]
	if emoji == "" {
		emoji = "🔔"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s TOUCHED* %s\n\n", emoji, alert.Kind, emoji)
	fmt.Fprintf(&b, "📈 *%s* (%s)\n", alert.Name, alert.Symbol)

	fmt.Fprintf(&b, "🔢 Touch #%d today", alert.TotalTouches)
	if len(alert.PendingKinds) > 0 {
		tags := make([]string, len(alert.PendingKinds))
		for i, k := range alert.PendingKinds {
			tags[i] = string(k)
		}
		fmt.Fprintf(&b, " [Also: %s]", strings.Join(tags, ", "))
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "💰 Level: ₹%.2f\n", alert.Value)
	fmt.Fprintf(&b, "📊 Price: ₹%.2f\n", alert.Candle.Close)
	fmt.Fprintf(&b, "🕐 Candle: %s | Detected: %s\n",
		alert.Candle.TimeStr, detectedAt.Format("15:04:05"))

	if alert.Kind == domain.LevelS1 || alert.Kind == domain.LevelR1 {
		b.WriteString("\n⭐ Key level: watch for reversal or breakout\n")
	}
	fmt.Fprintf(&b, "\n⏳ Next alert for this stock after %s", t.cooldown)
	return b.String()
}
