// Package deliver pushes rendered announcements out at a polite pace.
//
// Sends are sequential and rate-limited. Telegram throttles bots that
// burst, and a batch of queued-up announcements after a long gap is
// exactly when a burst would happen.
package deliver

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/hazyhaar/bullhorn/internal/compose"
	"github.com/hazyhaar/bullhorn/internal/extract"
)

// Messenger is the transport for one rendered payload.
type Messenger interface {
	Send(ctx context.Context, text string) error
}

// Outcome records one delivery attempt.
type Outcome struct {
	Announcement extract.Announcement
	Err          error
	SentAt       time.Time
}

// Delivered reports whether the send went through.
func (o Outcome) Delivered() bool { return o.Err == nil }

// Config tunes delivery pacing.
type Config struct {
	// MessageDelay spaces consecutive sends.
	MessageDelay time.Duration
}

func (c *Config) applyDefaults() {
	if c.MessageDelay <= 0 {
		c.MessageDelay = time.Second
	}
}

// Coordinator sends announcements one by one, in discovery order.
type Coordinator struct {
	cfg     Config
	log     *slog.Logger
	limiter *rate.Limiter
	msgr    Messenger
}

// New creates a Coordinator around a Messenger.
func New(cfg Config, msgr Messenger, log *slog.Logger) *Coordinator {
	cfg.applyDefaults()
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		cfg: cfg,
		log: log,
		// Burst of one: the first send goes immediately, the rest keep
		// MessageDelay apart.
		limiter: rate.NewLimiter(rate.Every(cfg.MessageDelay), 1),
		msgr:    msgr,
	}
}

// Deliver attempts every announcement and reports per-item outcomes. A
// failed send does not stop the batch. Context cancellation does:
// announcements never attempted are absent from the result, which keeps
// them out of the seen-set and schedules them for the next run.
func (c *Coordinator) Deliver(ctx context.Context, anns []extract.Announcement) []Outcome {
	outcomes := make([]Outcome, 0, len(anns))
	for _, ann := range anns {
		if err := c.limiter.Wait(ctx); err != nil {
			c.log.Warn("deliver: batch interrupted",
				"err", err, "remaining", len(anns)-len(outcomes))
			return outcomes
		}
		msg := compose.Render(ann)
		err := c.msgr.Send(ctx, msg.Text)
		if err != nil {
			c.log.Warn("deliver: send failed", "identity", ann.Identity, "title", msg.Title, "err", err)
		} else {
			c.log.Info("deliver: sent", "identity", ann.Identity, "title", msg.Title)
		}
		outcomes = append(outcomes, Outcome{Announcement: ann, Err: err, SentAt: time.Now()})
	}
	return outcomes
}
