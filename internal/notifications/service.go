package notifications

import (
	"context"
	"log/slog"

	"github.com/eternisai/push-relay/internal/config"
	"github.com/eternisai/push-relay/internal/fcm"
	"github.com/eternisai/push-relay/internal/logger"
	"github.com/eternisai/push-relay/internal/metrics"
)

// TokenSource looks up the active device tokens registered for a user.
type TokenSource interface {
	ActiveTokens(ctx context.Context, userID string) ([]string, error)
}

// Service orchestrates one send request: resolve destinations, build the
// message, hand it to the notifier, aggregate the results.
type Service struct {
	tokens   TokenSource
	notifier fcm.Notifier
	account  fcm.ServiceAccount
	hints    config.DeliveryHints
	logger   *logger.Logger
}

func NewService(
	tokens TokenSource,
	notifier fcm.Notifier,
	account fcm.ServiceAccount,
	hints config.DeliveryHints,
	log *logger.Logger,
) *Service {
	return &Service{
		tokens:   tokens,
		notifier: notifier,
		account:  account,
		hints:    hints,
		logger:   log,
	}
}

// Send runs the whole pipeline for one request. Validation and resolution
// errors are returned before any provider call is made; per-destination
// delivery failures never abort the request and only show up in the summary.
func (s *Service) Send(ctx context.Context, req SendRequest) (*SendResponse, error) {
	log := s.logger.WithContext(ctx).WithComponent("notifications")

	if req.Title == "" || req.Message == "" {
		return nil, ErrMissingTitle
	}

	// Missing credentials short-circuit before destination resolution: the
	// degraded path exists to keep caller flows unblocked while the provider
	// integration is unconfigured, so it must not depend on the store either.
	if s.notifier.Mode() == fcm.ModeSimulation {
		return s.simulate(ctx, req)
	}

	tokens, topic, err := s.resolve(ctx, req)
	if err != nil {
		return nil, err
	}

	log.Info("sending notification",
		slog.String("title", req.Title),
		slog.Int("tokens", len(tokens)),
		slog.String("topic", topic),
		slog.String("mode", s.notifier.Mode()))

	msg := fcm.BuildMessage(req.Title, req.Message, req.Data, s.hints)

	var results []fcm.SendResult
	if topic != "" {
		result, err := s.notifier.SendToTopic(ctx, msg, topic)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	} else {
		results, err = s.notifier.SendToTokens(ctx, msg, tokens)
		if err != nil {
			return nil, err
		}
	}

	successful := 0
	for _, r := range results {
		if r.Success {
			successful++
		}
	}
	failed := len(results) - successful

	log.Info("notification processed",
		slog.Int("successful", successful),
		slog.Int("failed", failed))

	metrics.Requests.WithLabelValues(fcm.ModeProduction).Inc()

	return &SendResponse{
		Success: true,
		Mode:    fcm.ModeProduction,
		Message: "Notification sent via Firebase FCM",
		Results: Summary{
			Successful: successful,
			Failed:     failed,
			Details:    results,
		},
	}, nil
}

// simulate fabricates the degraded response without resolving destinations or
// touching the network. The debug block tells operators which credential is
// missing.
func (s *Service) simulate(ctx context.Context, req SendRequest) (*SendResponse, error) {
	log := s.logger.WithContext(ctx).WithComponent("notifications")
	log.Warn("Firebase credentials not configured, simulating delivery",
		slog.String("title", req.Title))

	msg := fcm.BuildMessage(req.Title, req.Message, req.Data, s.hints)
	results, err := s.notifier.SendToTokens(ctx, msg, req.Tokens)
	if err != nil {
		return nil, err
	}

	successful := 0
	for _, r := range results {
		if r.Success {
			successful++
		}
	}

	metrics.Requests.WithLabelValues(fcm.ModeSimulation).Inc()

	return &SendResponse{
		Success: true,
		Mode:    fcm.ModeSimulation,
		Message: "Simulated notification - Firebase credentials not configured",
		Debug: &CredentialDebug{
			ProjectID:   s.account.ProjectID != "",
			ClientEmail: s.account.ClientEmail != "",
			PrivateKey:  s.account.PrivateKey != "",
		},
		Results: Summary{
			Successful: successful,
			Failed:     len(results) - successful,
		},
	}, nil
}

// resolve determines the destination set. Priority order, first match wins:
// explicit tokens, then the user's active tokens, then the topic. A user with
// zero active tokens falls through to the topic when one was supplied.
func (s *Service) resolve(ctx context.Context, req SendRequest) ([]string, string, error) {
	log := s.logger.WithContext(ctx).WithComponent("notifications")

	switch {
	case len(req.Tokens) > 0:
		log.Debug("using supplied tokens", slog.Int("count", len(req.Tokens)))
		return req.Tokens, "", nil

	case req.UserID != "":
		tokens, err := s.tokens.ActiveTokens(ctx, req.UserID)
		if err != nil {
			return nil, "", err
		}
		log.Debug("resolved tokens from store", slog.Int("count", len(tokens)))
		if len(tokens) == 0 {
			if req.Topic != "" {
				return nil, req.Topic, nil
			}
			return nil, "", ErrNoDestinations
		}
		return tokens, "", nil

	case req.Topic != "":
		return nil, req.Topic, nil

	default:
		return nil, "", ErrNoDestinationSpec
	}
}
