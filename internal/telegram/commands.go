package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rewired-gh/signalwatch/internal/control"
	"github.com/rewired-gh/signalwatch/internal/logger"
	"github.com/rewired-gh/signalwatch/internal/models"
	"github.com/rewired-gh/signalwatch/internal/signalapi"
)

const commandTimeout = 30 * time.Second

// Commands are the operator actions reachable from chat.
type Commands interface {
	Preferences(ctx context.Context) (models.Preferences, error)
	Set(ctx context.Context, key, value string) (models.Preferences, error)
	Latest(ctx context.Context, limit int) ([]models.Signal, error)
	Health(ctx context.Context) (*signalapi.HealthResponse, error)
	TriggerCycle() error
	Status(ctx context.Context) (control.Status, error)
}

const helpText = `Commands:
/settings - show preferences
/set <key> <value> - change a preference (server, dark, notifs, strong_only, min_score)
/latest [n] - latest signals
/health - signal service health
/poll - run a polling cycle now
/status - last cycle and history usage
/ping - liveness check`

// ListenForCommands starts a goroutine that polls for Telegram updates and handles bot commands.
// It returns immediately; the goroutine stops when ctx is cancelled.
func (c *Client) ListenForCommands(ctx context.Context, cmds Commands) {
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
					c.handleCommand(ctx, cmds, update.Message)
				}
			}
		}
	}()
}

func (c *Client) handleCommand(ctx context.Context, cmds Commands, msg *tgbotapi.Message) {
	if msg.Chat == nil || msg.Chat.ID != c.chatID {
		logger.Debug("Ignoring command /%s from chat outside configuration", msg.Command())
		return
	}
	cctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	text := reply(cctx, cmds, msg.Command(), msg.CommandArguments())
	if _, err := c.send(cctx, tgbotapi.NewMessage(msg.Chat.ID, text), c.maxRetries); err != nil {
		logger.Warn("Failed to reply to /%s: %v", msg.Command(), err)
	}
}

// reply computes the plain-text answer to a command.
func reply(ctx context.Context, cmds Commands, command, args string) string {
	fields := strings.Fields(args)

	switch command {
	case "ping":
		return "Pong"

	case "start", "help":
		return helpText

	case "settings":
		prefs, err := cmds.Preferences(ctx)
		if err != nil {
			return "Preferences unavailable, showing defaults:\n" + formatPreferences(prefs)
		}
		return formatPreferences(prefs)

	case "set":
		if len(fields) < 2 {
			return "Usage: /set <key> <value>"
		}
		prefs, err := cmds.Set(ctx, fields[0], strings.Join(fields[1:], " "))
		if err != nil {
			return "Not saved: " + err.Error()
		}
		return "Saved.\n" + formatPreferences(prefs)

	case "latest":
		limit := 10
		if len(fields) > 0 {
			n, err := strconv.Atoi(fields[0])
			if err != nil || n <= 0 {
				return "Usage: /latest [n]"
			}
			limit = n
		}
		signals, err := cmds.Latest(ctx, limit)
		if err != nil {
			return "Fetch failed: " + err.Error()
		}
		return formatSignals(signals)

	case "health":
		h, err := cmds.Health(ctx)
		if err != nil {
			return "Health check failed: " + err.Error()
		}
		return formatHealth(h)

	case "poll":
		switch err := cmds.TriggerCycle(); {
		case err == nil:
			return "Polling cycle started."
		case errors.Is(err, control.ErrCycleRunning):
			return "A polling cycle is already running."
		default:
			return "Cannot start a cycle: " + err.Error()
		}

	case "status":
		st, err := cmds.Status(ctx)
		if err != nil {
			return "Status unavailable: " + err.Error()
		}
		return formatStatus(st)

	default:
		return "Unknown command.\n" + helpText
	}
}

func formatPreferences(p models.Preferences) string {
	return fmt.Sprintf("server: %s\ndark: %t\nnotifs: %t\nstrong_only: %t\nmin_score: %g",
		p.ServerURL, p.DarkMode, p.NotificationsEnabled, p.StrongSignalsOnly, p.MinScore)
}

func formatSignals(signals []models.Signal) string {
	if len(signals) == 0 {
		return "No signals."
	}
	var b strings.Builder
	for i, s := range signals {
		fmt.Fprintf(&b, "%d. %s  score=%s", i+1, s.Label(), s.ScoreText())
		if s.CreatedAt != nil {
			fmt.Fprintf(&b, "  %s", *s.CreatedAt)
		}
		if s.Reasons != nil && *s.Reasons != "" {
			fmt.Fprintf(&b, "\n   %s", *s.Reasons)
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatHealth(h *signalapi.HealthResponse) string {
	lines := []string{fmt.Sprintf("ok: %t", h.OK)}
	if h.App != nil {
		lines = append(lines, "app: "+*h.App)
	}
	if h.IntervalMinutes != nil {
		lines = append(lines, fmt.Sprintf("interval: %d min", *h.IntervalMinutes))
	}
	if h.TopN != nil {
		lines = append(lines, fmt.Sprintf("top_n: %d", *h.TopN))
	}
	if h.Timeframes != nil {
		lines = append(lines, "timeframes: "+*h.Timeframes)
	}
	return strings.Join(lines, "\n")
}

func formatStatus(st control.Status) string {
	var b strings.Builder
	if st.LastCycle == nil {
		b.WriteString("No cycle has run yet.\n")
	} else {
		lc := st.LastCycle
		fmt.Fprintf(&b, "Last cycle: %s (%v)\n", lc.StartedAt.Format("2006-01-02 15:04:05"), lc.Duration.Round(time.Millisecond))
		switch {
		case lc.Skipped:
			b.WriteString("Skipped: notifications disabled\n")
		case lc.Error != "":
			fmt.Fprintf(&b, "Error: %s\n", lc.Error)
		default:
			fmt.Fprintf(&b, "Fetched %d, new %d, notified %d\n", lc.Fetched, lc.New, lc.Notified)
		}
	}
	fmt.Fprintf(&b, "History: %d/%d", st.HistoryLen, st.HistoryCapacity)
	if st.Running {
		b.WriteString("\nA cycle is running now.")
	}
	if !st.NextRun.IsZero() {
		fmt.Fprintf(&b, "\nNext run: %s", st.NextRun.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}
