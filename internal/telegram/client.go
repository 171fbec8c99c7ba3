// Package telegram provides a client for sending wallet risk alerts via Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/polysleuth/internal/logger"
	"github.com/rewired-gh/polysleuth/internal/models"
)

// maxWalletsPerMessage keeps alerts under Telegram's 4096 character limit.
const maxWalletsPerMessage = 15

// TopFunc returns the highest scoring stored reports for the /top command.
type TopFunc func(ctx context.Context, k int) ([]*models.WalletReport, error)

// Client handles Telegram notifications.
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// ListenForCommands starts a goroutine that polls for Telegram updates and handles bot commands.
// It returns immediately; the goroutine stops when ctx is cancelled.
func (c *Client) ListenForCommands(ctx context.Context, top TopFunc) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil && update.Message.IsCommand() {
					c.handleCommand(ctx, update.Message, top)
				}
			}
		}
	}()
}

func (c *Client) handleCommand(ctx context.Context, msg *tgbotapi.Message, top TopFunc) {
	switch msg.Command() {
	case "ping":
		reply := tgbotapi.NewMessage(msg.Chat.ID, "Pong")
		c.bot.Send(reply) //nolint:errcheck
	case "top":
		if top == nil {
			return
		}
		k := 5
		if n, err := strconv.Atoi(strings.TrimSpace(msg.CommandArguments())); err == nil && n > 0 {
			k = min(n, maxWalletsPerMessage)
		}
		reports, err := top(ctx, k)
		if err != nil {
			logger.Warn("Failed to load top reports for /top: %v", err)
			return
		}
		reply := tgbotapi.NewMessage(msg.Chat.ID, formatMessage("🏆 *Top Wallets*", reports))
		reply.ParseMode = "MarkdownV2"
		c.bot.Send(reply) //nolint:errcheck
	}
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if _, err := c.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// SendError sends a detection run failure notification.
func (c *Client) SendError(runErr error) error {
	text := fmt.Sprintf("⚠️ *Detection error*\n`%s`", escapeMarkdownV2(runErr.Error()))
	return c.sendMarkdownV2(text)
}

// SendRecovery sends a recovery notification after consecutive failures.
func (c *Client) SendRecovery(failureCount int) error {
	text := fmt.Sprintf("✅ *Detection recovered* after %d consecutive failure\\(s\\)", failureCount)
	return c.sendMarkdownV2(text)
}

// Send alerts on every report at or above minRisk and returns how many
// wallets were included. Nothing is sent when no report qualifies.
func (c *Client) Send(reports []*models.WalletReport, minRisk models.RiskLevel) (int, error) {
	flagged := notable(reports, minRisk)
	if len(flagged) == 0 {
		return 0, nil
	}
	if err := c.sendMarkdownV2(formatMessage("🚨 *Suspicious Wallets*", flagged)); err != nil {
		return 0, err
	}
	return len(flagged), nil
}

// notable filters reports at or above minRisk, capped to one message.
func notable(reports []*models.WalletReport, minRisk models.RiskLevel) []*models.WalletReport {
	var out []*models.WalletReport
	for _, r := range reports {
		if r.RiskLevel.AtLeast(minRisk) {
			out = append(out, r)
		}
		if len(out) == maxWalletsPerMessage {
			break
		}
	}
	return out
}

var riskEmoji = map[models.RiskLevel]string{
	models.RiskCritical: "🔴",
	models.RiskHigh:     "🟠",
	models.RiskMedium:   "🟡",
	models.RiskLow:      "🟢",
}

// formatMessage formats wallet reports into a Telegram MarkdownV2 message.
func formatMessage(title string, reports []*models.WalletReport) string {
	var b strings.Builder
	b.WriteString(title + "\n\n")

	if len(reports) == 0 {
		b.WriteString("No wallets to report\\.\n")
		return b.String()
	}

	for i, r := range reports {
		link := fmt.Sprintf("https://polymarket.com/profile/%s", r.Wallet)
		fmt.Fprintf(&b, "%d\\. %s [%s](%s) *%s* %s\n",
			i+1,
			riskEmoji[r.RiskLevel],
			escapeMarkdownV2(models.ShortAddress(r.Wallet)),
			link,
			escapeMarkdownV2(string(r.RiskLevel)),
			escapeMarkdownV2(fmt.Sprintf("%.2f", r.CompositeScore)),
		)
		fmt.Fprintf(&b, "   💵 %s · %d trades · %d markets\n",
			escapeMarkdownV2(formatUSD(r.Volume)), r.TradeCount, r.MarketCount)

		var parts []string
		for _, s := range r.Signals {
			if s.Score > 0 {
				parts = append(parts, fmt.Sprintf("%s %.2f", s.Name, s.Score))
			}
		}
		if len(parts) > 0 {
			fmt.Fprintf(&b, "   🔎 %s\n", escapeMarkdownV2(strings.Join(parts, ", ")))
		}
		b.WriteString("\n")
	}

	return b.String()
}

func formatUSD(v float64) string {
	return "$" + humanize.Comma(int64(math.Round(v)))
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4)
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
