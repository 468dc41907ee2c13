// Package notify tells operators and participants about resolutions through
// chat channels. Events outside the configured allow-list are dropped.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/betresolver/internal/domain"
)

// Event types accepted in the allow-list.
const (
	EventWagerResolved   = "wager_resolved"
	EventWagerWashed     = "wager_washed"
	EventJobDeadLettered = "job_dead_lettered"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier fans a notification out to every Sender.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. An empty events list allows everything.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool { return len(n.senders) > 0 }

// Notify sends to every sender if event is allowed.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// WagerResolved announces a terminal wager. It satisfies
// lifecycle.Announcer.
func (n *Notifier) WagerResolved(ctx context.Context, ev domain.ResolutionEvent) error {
	if ev.Status == domain.WagerWashed {
		msg := fmt.Sprintf("Wager %s (%s, event %s) was washed: %s", ev.WagerID, ev.ModeKey, ev.EventID, ev.Reason)
		return n.Notify(ctx, EventWagerWashed, "Wager washed", msg)
	}
	msg := fmt.Sprintf("Wager %s (%s, event %s) resolved: %s", ev.WagerID, ev.ModeKey, ev.EventID, ev.Choice)
	if ev.Reason != "" {
		msg += " (" + ev.Reason + ")"
	}
	return n.Notify(ctx, EventWagerResolved, "Wager resolved", msg)
}

// JobDeadLettered alerts operators to a job that exhausted its retries. It
// matches the queue's dead-letter hook and logs rather than returns errors.
func (n *Notifier) JobDeadLettered(ctx context.Context, job domain.ResolutionJob) {
	msg := fmt.Sprintf("Job %s for wager %s failed after %d attempt(s): %s",
		job.Type, job.WagerID, job.Attempts, job.LastError)
	if err := n.Notify(ctx, EventJobDeadLettered, "Resolution job dead-lettered", msg); err != nil {
		n.logger.WarnContext(ctx, "dead-letter alert not sent", slog.String("error", err.Error()))
	}
}

// dispatch tries every sender; one failure does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
