package telegram

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"github.com/shopspring/decimal"

	"FinSignal/internal/domain/models"
	"FinSignal/internal/domain/repository"
)

var _ repository.Notifier = (*Notifier)(nil)

type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier posts confirmed signals to a Telegram chat.
type Notifier struct {
	bot    botAPI
	chatID int64
}

// NewNotifier connects to the bot API with token.
func NewNotifier(token string, chatID int64) (*Notifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("error creating bot: %w", err)
	}
	bot.Buffer = 0
	return &Notifier{bot: bot, chatID: chatID}, nil
}

func (n *Notifier) Notify(ctx context.Context, s models.ConfirmedSignal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(n.chatID, FormatMessage(s))
	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// FormatMessage renders a confirmed signal as plain text.
func FormatMessage(s models.ConfirmedSignal) string {
	p := s.Signal
	icon := "🟢"
	if p.Direction == models.Short {
		icon = "🔴"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s\n", icon, p.Symbol, p.Direction)
	fmt.Fprintf(&b, "Tier: %s (score %s)\n", p.Tier, decimal.NewFromFloat(p.QualityScore).StringFixed(1))
	fmt.Fprintf(&b, "Entry: %s\n", formatPrice(p.EntryPrice))
	fmt.Fprintf(&b, "Target: %s (%s%%)\n", formatPrice(p.TargetPrice), decimal.NewFromFloat(p.ProjectionPct).StringFixed(2))
	fmt.Fprintf(&b, "Reference: %s (%s)\n", p.ReferenceTrend, decimal.NewFromFloat(p.ReferenceStrength).StringFixed(2))
	fmt.Fprintf(&b, "Reasons: %s", strings.Join(s.Reasons, ", "))
	return b.String()
}

// formatPrice keeps more decimals for low-priced instruments.
func formatPrice(v float64) string {
	d := decimal.NewFromFloat(v)
	switch {
	case v >= 100:
		return d.StringFixed(2)
	case v >= 1:
		return d.StringFixed(4)
	default:
		return d.StringFixed(8)
	}
}
