// Package notify defines the notification sink used by the polling cycle.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/rewired-gh/signalwatch/internal/logger"
	"github.com/rewired-gh/signalwatch/internal/models"
)

// Title is used for every new-signal notification.
const Title = "New signal"

// Sink surfaces a user-visible alert. A later notification with the same id
// replaces the earlier one instead of stacking. Delivery is best-effort.
type Sink interface {
	Notify(ctx context.Context, title, body string, id int) error
}

// FormatSignal renders the notification body for a signal.
func FormatSignal(s models.Signal) string {
	symbol := models.StringValue(s.Symbol)
	if symbol == "" {
		symbol = "?"
	}
	return fmt.Sprintf("%s  %s  score=%s\n%s",
		symbol, models.StringValue(s.Timeframe), s.ScoreText(), models.StringValue(s.Reasons))
}

// LogSink writes notifications to the log. It is the fallback when no
// messaging channel is configured.
type LogSink struct{}

func (LogSink) Notify(_ context.Context, title, body string, id int) error {
	logger.Info("notification %d: %s: %s", id, title, body)
	return nil
}

// Multi delivers to every sink and joins their errors.
type Multi []Sink

func (m Multi) Notify(ctx context.Context, title, body string, id int) error {
	var errs []error
	for _, s := range m {
		if err := s.Notify(ctx, title, body, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
