package notification

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/varoOP/seasondb/internal/domain"
)

// Service fans run events out to every configured channel. A failing channel does not
// keep the others from being notified; the first error is returned.
type Service struct {
	log      zerolog.Logger
	channels map[string]domain.NotificationService
	order    []string
}

// NewService creates the notifier for the configured channels. Without a webhook URL
// every event is only logged.
func NewService(log zerolog.Logger, webhookURL string) *Service {
	s := newService(log)
	if webhookURL != "" {
		s.add("discord", NewDiscordService(log, webhookURL))
	}
	return s
}

func newService(log zerolog.Logger) *Service {
	return &Service{
		log:      log.With().Str("module", "notification").Logger(),
		channels: map[string]domain.NotificationService{},
	}
}

func (s *Service) add(name string, ch domain.NotificationService) {
	if _, ok := s.channels[name]; !ok {
		s.order = append(s.order, name)
	}
	s.channels[name] = ch
}

// SendSuccess sends the run summary.
func (s *Service) SendSuccess(ctx context.Context, stats domain.Statistics) error {
	return s.each("success", func(ch domain.NotificationService) error {
		return ch.SendSuccess(ctx, stats)
	})
}

// SendPeriodFailure reports one failed or aborted period with its reason.
func (s *Service) SendPeriodFailure(ctx context.Context, failure domain.PeriodFailure) error {
	s.log.Debug().Str("period", failure.Period).Str("status", string(failure.Status)).Str("reason", failure.Reason).Msg("period failure event")
	return s.each("period_failure", func(ch domain.NotificationService) error {
		return ch.SendPeriodFailure(ctx, failure)
	})
}

// SendError reports a run that failed before any period was generated.
func (s *Service) SendError(ctx context.Context, err error) error {
	return s.each("error", func(ch domain.NotificationService) error {
		return ch.SendError(ctx, err)
	})
}

func (s *Service) each(event string, send func(domain.NotificationService) error) error {
	if len(s.order) == 0 {
		s.log.Debug().Str("event", event).Msg("no notification channel configured")
		return nil
	}

	var first error
	for _, name := range s.order {
		if err := send(s.channels[name]); err != nil {
			s.log.Warn().Err(err).Str("channel", name).Str("event", event).Msg("notification failed")
			if first == nil {
				first = errors.Wrapf(err, "%s notification via %s", event, name)
			}
		}
	}
	return first
}
