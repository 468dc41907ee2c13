package source

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/betresolver/internal/domain"
)

// BusSource receives JSON snapshots published on a SignalBus channel.
type BusSource struct {
	bus     domain.SignalBus
	channel string
	logger  *slog.Logger
}

// NewBusSource creates a source subscribed to channel.
func NewBusSource(bus domain.SignalBus, channel string, logger *slog.Logger) *BusSource {
	return &BusSource{
		bus:     bus,
		channel: channel,
		logger:  logger.With(slog.String("component", "bus_source"), slog.String("channel", channel)),
	}
}

func (s *BusSource) Name() string { return "bus" }

// Run subscribes and delivers until ctx is done or the subscription closes.
func (s *BusSource) Run(ctx context.Context, h Handler) error {
	msgs, err := s.bus.Subscribe(ctx, s.channel)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", s.channel, err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("subscription %s closed", s.channel)
			}
			snap, err := decodeSnapshot(msg)
			if err != nil {
				s.logger.WarnContext(ctx, "unparseable snapshot dropped", slog.String("error", err.Error()))
				continue
			}
			_ = dispatch(ctx, s.logger, h, snap)
		}
	}
}
