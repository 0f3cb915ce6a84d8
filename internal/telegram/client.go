// Package telegram delivers notifications through the Telegram Bot API and
// serves operator commands from the configured chat.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rewired-gh/signalwatch/internal/dedup"
	"golang.org/x/time/rate"
)

// sender is the part of tgbotapi.BotAPI used for outgoing messages.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Client handles Telegram notifications.
type Client struct {
	bot            *tgbotapi.BotAPI
	out            sender
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
	limiter        *rate.Limiter

	mu          sync.Mutex
	messages    map[int]int // notification id -> telegram message id
	order       []int       // notification ids, oldest first
	maxMessages int
}

// NewClient creates a new Telegram client. maxMessages bounds how many
// notification ids are remembered for in-place edits.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration, ratePerSecond float64, maxMessages int) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	c := newClient(bot, chatIDInt, maxRetries, retryDelayBase, ratePerSecond, maxMessages)
	c.bot = bot
	return c, nil
}

func newClient(out sender, chatID int64, maxRetries int, retryDelayBase time.Duration, ratePerSecond float64, maxMessages int) *Client {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}
	if ratePerSecond <= 0 {
		ratePerSecond = 1
	}
	if maxMessages <= 0 {
		maxMessages = dedup.DefaultCapacity
	}
	return &Client{
		out:            out,
		chatID:         chatID,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
		limiter:        rate.NewLimiter(rate.Limit(ratePerSecond), 1),
		messages:       make(map[int]int),
		maxMessages:    maxMessages,
	}
}

// send makes up to attempts delivery attempts with linear backoff,
// respecting the send rate limit.
func (c *Client) send(ctx context.Context, msg tgbotapi.Chattable, attempts int) (tgbotapi.Message, error) {
	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return tgbotapi.Message{}, err
		}
		sent, err := c.out.Send(msg)
		if err == nil {
			return sent, nil
		}
		lastErr = err
		if isNotModified(err) || i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return tgbotapi.Message{}, ctx.Err()
		case <-time.After(c.retryDelayBase * time.Duration(i+1)):
		}
	}
	if attempts == 1 || isNotModified(lastErr) {
		return tgbotapi.Message{}, lastErr
	}
	return tgbotapi.Message{}, fmt.Errorf("failed after %d retries: %w", attempts, lastErr)
}

// sendMarkdownV2 sends a MarkdownV2 message to the configured chat.
func (c *Client) sendMarkdownV2(ctx context.Context, text string, attempts int) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	return c.send(ctx, msg, attempts)
}

// Notify delivers a notification with a single attempt. The first
// notification for an id sends a new message; later ones with the same id
// edit that message in place.
func (c *Client) Notify(ctx context.Context, title, body string, id int) error {
	text := fmt.Sprintf("🚨 *%s*\n%s", escapeMarkdownV2(title), escapeMarkdownV2(body))

	c.mu.Lock()
	messageID, seen := c.messages[id]
	c.mu.Unlock()

	if seen {
		edit := tgbotapi.NewEditMessageText(c.chatID, messageID, text)
		edit.ParseMode = tgbotapi.ModeMarkdownV2
		_, err := c.send(ctx, edit, 1)
		if err == nil || isNotModified(err) {
			return nil
		}
		// The earlier message may have been deleted; send a new one.
	}

	sent, err := c.sendMarkdownV2(ctx, text, 1)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	c.remember(id, sent.MessageID)
	return nil
}

// remember records the message for id, forgetting the oldest id when full.
func (c *Client) remember(id, messageID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.messages[id]; !ok {
		if len(c.order) >= c.maxMessages {
			delete(c.messages, c.order[0])
			c.order = c.order[1:]
		}
		c.order = append(c.order, id)
	}
	c.messages[id] = messageID
}

// SendError sends a polling error notification.
// Call this only on the first occurrence of a consecutive error sequence.
func (c *Client) SendError(ctx context.Context, cycleErr error) error {
	text := fmt.Sprintf("⚠️ *Polling error*\n`%s`", escapeMarkdownV2(cycleErr.Error()))
	_, err := c.sendMarkdownV2(ctx, text, c.maxRetries)
	return err
}

// SendRecovery sends a recovery notification after consecutive failures.
func (c *Client) SendRecovery(ctx context.Context, failureCount int) error {
	text := fmt.Sprintf("✅ *Polling recovered* after %d consecutive failure\\(s\\)", failureCount)
	_, err := c.sendMarkdownV2(ctx, text, c.maxRetries)
	return err
}

func isNotModified(err error) bool {
	return err != nil && strings.Contains(err.Error(), "message is not modified")
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
