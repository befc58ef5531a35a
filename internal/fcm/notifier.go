package fcm

import (
	"context"
)

// Notifier modes reported in the response envelope.
const (
	ModeProduction = "production"
	ModeSimulation = "simulation"
)

// SendResult is the per-destination outcome reported back to the caller.
type SendResult struct {
	Success      bool   `json:"success"`
	Error        string `json:"error,omitempty"`
	Status       int    `json:"status,omitempty"`
	TokenPreview string `json:"token_preview,omitempty"`
}

// Notifier delivers one built message to its destinations. Two
// implementations exist: the live dispatcher and a simulated one used when the
// service account is not configured. The orchestration above does not branch
// on which it holds.
type Notifier interface {
	// Mode is the string reported in the response ("production" or "simulation").
	Mode() string
	// SendToTokens delivers to each token. The error return is reserved for
	// failures that abort the whole request (the credential exchange);
	// per-token failures are recorded in the results.
	SendToTokens(ctx context.Context, msg *Message, tokens []string) ([]SendResult, error)
	// SendToTopic delivers a single broadcast to a named topic.
	SendToTopic(ctx context.Context, msg *Message, topic string) (SendResult, error)
}

// SimulatedNotifier fakes successful delivery without touching the network.
// Selected when the Firebase service account is not configured so that caller
// flows keep working before the integration is set up. It reports the same
// fabricated counts the free-plan stub always returned.
type SimulatedNotifier struct{}

func (SimulatedNotifier) Mode() string { return ModeSimulation }

func (SimulatedNotifier) SendToTokens(ctx context.Context, msg *Message, tokens []string) ([]SendResult, error) {
	return []SendResult{{Success: true}}, nil
}

func (SimulatedNotifier) SendToTopic(ctx context.Context, msg *Message, topic string) (SendResult, error) {
	return SendResult{Success: true}, nil
}
