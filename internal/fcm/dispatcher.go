package fcm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/eternisai/push-relay/internal/logger"
	"github.com/eternisai/push-relay/internal/metrics"
)

// DefaultSendBaseURL is the FCM v1 API host.
const DefaultSendBaseURL = "https://fcm.googleapis.com"

const tokenPreviewLen = 20

// deadTokenMarkers are the response-body substrings FCM uses for tokens that
// no longer exist. Together with 404/410 they trigger deactivation.
var deadTokenMarkers = []string{"UNREGISTERED", "INVALID_REGISTRATION", "NOT_FOUND"}

// TokenDeactivator flips a device token inactive in the backing store.
type TokenDeactivator interface {
	DeactivateToken(ctx context.Context, token string) error
}

// Dispatcher is the live Notifier: it exchanges the service-account credential
// for a bearer token and POSTs the message to FCM's per-project send endpoint.
// Tokens are sent in fixed-size batches; sends within a batch run
// concurrently, batches run sequentially, so the batch size bounds in-flight
// outbound requests.
type Dispatcher struct {
	account     ServiceAccount
	exchanger   *Exchanger
	deactivator TokenDeactivator
	client      *http.Client
	logger      *logger.Logger
	baseURL     string
	batchSize   int
}

func NewDispatcher(
	account ServiceAccount,
	exchanger *Exchanger,
	deactivator TokenDeactivator,
	client *http.Client,
	log *logger.Logger,
	baseURL string,
	batchSize int,
) *Dispatcher {
	if client == nil {
		client = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = DefaultSendBaseURL
	}
	if batchSize <= 0 {
		batchSize = 10
	}
	return &Dispatcher{
		account:     account,
		exchanger:   exchanger,
		deactivator: deactivator,
		client:      client,
		logger:      log,
		baseURL:     baseURL,
		batchSize:   batchSize,
	}
}

func (d *Dispatcher) Mode() string { return ModeProduction }

// SendToTokens delivers the message to every token, batch by batch. An
// exchange failure aborts before any delivery; per-token failures only show
// up in the results.
func (d *Dispatcher) SendToTokens(ctx context.Context, msg *Message, tokens []string) ([]SendResult, error) {
	accessToken, err := d.exchanger.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	log := d.logger.WithContext(ctx).WithComponent("fcm-dispatcher")

	results := make([]SendResult, len(tokens))
	for start := 0; start < len(tokens); start += d.batchSize {
		end := start + d.batchSize
		if end > len(tokens) {
			end = len(tokens)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(idx int, token string) {
				defer wg.Done()
				results[idx] = d.sendToToken(ctx, msg, token, accessToken)
			}(i, tokens[i])
		}
		wg.Wait()

		log.Debug("batch dispatched",
			slog.Int("from", start),
			slog.Int("to", end),
			slog.Int("total", len(tokens)))
	}

	for _, r := range results {
		metrics.Deliveries.WithLabelValues("token", outcome(r.Success)).Inc()
	}

	return results, nil
}

// SendToTopic delivers a single broadcast. Topics are not per-device tokens,
// so there is no deactivation path here.
func (d *Dispatcher) SendToTopic(ctx context.Context, msg *Message, topic string) (SendResult, error) {
	accessToken, err := d.exchanger.AccessToken(ctx)
	if err != nil {
		return SendResult{}, err
	}

	log := d.logger.WithContext(ctx).WithComponent("fcm-dispatcher")
	log.Info("sending to topic", slog.String("topic", topic))

	status, body, err := d.post(ctx, msg.forTopic(topic), accessToken)
	if err != nil {
		metrics.Deliveries.WithLabelValues("topic", "failure").Inc()
		return SendResult{Success: false, Error: err.Error()}, nil
	}

	if status < 200 || status >= 300 {
		log.Error("topic send failed",
			slog.String("topic", topic),
			slog.Int("status", status),
			slog.String("body", body))
		metrics.Deliveries.WithLabelValues("topic", "failure").Inc()
		return SendResult{Success: false, Error: body, Status: status}, nil
	}

	metrics.Deliveries.WithLabelValues("topic", "success").Inc()
	return SendResult{Success: true}, nil
}

func (d *Dispatcher) sendToToken(ctx context.Context, msg *Message, token, accessToken string) SendResult {
	log := d.logger.WithContext(ctx).WithComponent("fcm-dispatcher")
	preview := tokenPreview(token)

	status, body, err := d.post(ctx, msg.forToken(token), accessToken)
	if err != nil {
		log.Error("send failed",
			slog.String("token_preview", preview),
			slog.String("error", err.Error()))
		return SendResult{Success: false, Error: err.Error(), TokenPreview: preview}
	}

	if status >= 200 && status < 300 {
		return SendResult{Success: true}
	}

	log.Error("FCM rejected message",
		slog.String("token_preview", preview),
		slog.Int("status", status),
		slog.String("body", body))

	if tokenIsDead(status, body) {
		// Best effort: a failed update does not change the delivery result,
		// and deactivating an already-inactive token is harmless.
		if err := d.deactivator.DeactivateToken(ctx, token); err != nil {
			log.Warn("failed to deactivate dead token",
				slog.String("token_preview", preview),
				slog.String("error", err.Error()))
		} else {
			metrics.TokenDeactivations.Inc()
			log.Info("token marked inactive", slog.String("token_preview", preview))
		}
	}

	return SendResult{Success: false, Error: body, Status: status, TokenPreview: preview}
}

func (d *Dispatcher) post(ctx context.Context, msg *Message, accessToken string) (int, string, error) {
	payload, err := json.Marshal(sendRequest{Message: msg})
	if err != nil {
		return 0, "", err
	}

	url := fmt.Sprintf("%s/v1/projects/%s/messages:send", d.baseURL, d.account.ProjectID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, "", err
	}

	return resp.StatusCode, string(body), nil
}

func tokenIsDead(status int, body string) bool {
	if status == http.StatusNotFound || status == http.StatusGone {
		return true
	}
	for _, marker := range deadTokenMarkers {
		if strings.Contains(body, marker) {
			return true
		}
	}
	return false
}

func tokenPreview(token string) string {
	if len(token) > tokenPreviewLen {
		return token[:tokenPreviewLen]
	}
	return token
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
