package notifications

import (
	"errors"

	"github.com/eternisai/push-relay/internal/fcm"
)

// SendRequest is the JSON body of the send endpoint. Title and Message are
// required; exactly one of Tokens, UserID, or Topic decides the destination,
// checked in that order.
type SendRequest struct {
	UserID  string                 `json:"user_id"`
	Title   string                 `json:"title"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data"`
	Topic   string                 `json:"topic"`
	Tokens  []string               `json:"tokens"`
}

// Summary aggregates the per-destination results of one request.
type Summary struct {
	Successful int              `json:"successful"`
	Failed     int              `json:"failed"`
	Details    []fcm.SendResult `json:"details,omitempty"`
}

// SendResponse is the success envelope. Mode tells the caller whether the
// delivery was real ("production") or faked ("simulation").
type SendResponse struct {
	Success bool             `json:"success"`
	Mode    string           `json:"mode"`
	Message string           `json:"message"`
	Debug   *CredentialDebug `json:"debug,omitempty"`
	Results Summary          `json:"results"`
}

// CredentialDebug reports which service-account values were present. Only
// attached to simulated responses so operators can see what is missing.
type CredentialDebug struct {
	ProjectID   bool `json:"projectId"`
	ClientEmail bool `json:"clientEmail"`
	PrivateKey  bool `json:"privateKey"`
}

var (
	// ErrMissingTitle rejects requests without the two mandatory fields.
	ErrMissingTitle = errors.New("Title and message are required")
	// ErrNoDestinationSpec rejects requests that name no destination at all.
	ErrNoDestinationSpec = errors.New("Provide user_id, tokens, or topic")
	// ErrNoDestinations rejects requests that resolved to zero tokens with no
	// topic to fall back to.
	ErrNoDestinations = errors.New("No destinations to send to")
)
