package fcm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/eternisai/push-relay/internal/logger"
	"github.com/eternisai/push-relay/internal/metrics"
	"github.com/golang-jwt/jwt/v4"
)

const (
	// DefaultTokenURL is Google's OAuth2 token endpoint.
	DefaultTokenURL = "https://oauth2.googleapis.com/token"

	messagingScope = "https://www.googleapis.com/auth/firebase.messaging"
	jwtBearerGrant = "urn:ietf:params:oauth:grant-type:jwt-bearer"

	assertionLifetime = time.Hour
	// refreshMargin is how long before expiry a cached token is discarded.
	refreshMargin = time.Minute
)

// ExchangeError is a failed OAuth2 token exchange. It aborts the whole
// request: no delivery is possible without a bearer token.
type ExchangeError struct {
	Status int
	Body   string
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("Failed to get access token: %s", e.Body)
}

// Exchanger signs a time-boxed JWT assertion with the service-account key and
// trades it for a short-lived bearer token. Tokens are cached until shortly
// before expiry; a fresh process still performs exactly one exchange before
// its first delivery.
type Exchanger struct {
	account  ServiceAccount
	tokenURL string
	client   *http.Client
	logger   *logger.Logger
	now      func() time.Time

	mu     sync.Mutex
	token  string
	expiry time.Time
}

func NewExchanger(account ServiceAccount, tokenURL string, client *http.Client, log *logger.Logger) *Exchanger {
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Exchanger{
		account:  account,
		tokenURL: tokenURL,
		client:   client,
		logger:   log,
		now:      time.Now,
	}
}

// AccessToken returns a bearer token valid for at least refreshMargin.
func (e *Exchanger) AccessToken(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.token != "" && e.now().Before(e.expiry.Add(-refreshMargin)) {
		return e.token, nil
	}

	token, expiresIn, err := e.exchange(ctx)
	if err != nil {
		metrics.TokenExchanges.WithLabelValues("failure").Inc()
		return "", err
	}

	metrics.TokenExchanges.WithLabelValues("success").Inc()
	e.token = token
	e.expiry = e.now().Add(time.Duration(expiresIn) * time.Second)
	return token, nil
}

func (e *Exchanger) exchange(ctx context.Context) (string, int, error) {
	log := e.logger.WithContext(ctx).WithComponent("token-exchange")

	assertion, err := e.signAssertion()
	if err != nil {
		return "", 0, fmt.Errorf("failed to sign assertion: %w", err)
	}

	form := url.Values{
		"grant_type": {jwtBearerGrant},
		"assertion":  {assertion},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("token endpoint request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, fmt.Errorf("failed to read token endpoint response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Error("token exchange rejected",
			slog.Int("status", resp.StatusCode),
			slog.String("body", string(body)))
		return "", 0, &ExchangeError{Status: resp.StatusCode, Body: string(body)}
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", 0, fmt.Errorf("failed to decode token endpoint response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", 0, &ExchangeError{Status: resp.StatusCode, Body: string(body)}
	}

	if payload.ExpiresIn <= 0 {
		payload.ExpiresIn = int(assertionLifetime / time.Second)
	}

	log.Info("access token obtained", slog.Int("expires_in", payload.ExpiresIn))
	return payload.AccessToken, payload.ExpiresIn, nil
}

// signAssertion builds the RS256 JWT for the jwt-bearer grant. The claim set
// is the one Google's token endpoint expects for the messaging scope.
func (e *Exchanger) signAssertion() (string, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(e.account.PrivateKey))
	if err != nil {
		return "", fmt.Errorf("failed to parse private key: %w", err)
	}

	now := e.now()
	claims := jwt.MapClaims{
		"iss":   e.account.ClientEmail,
		"scope": messagingScope,
		"aud":   DefaultTokenURL,
		"iat":   now.Unix(),
		"exp":   now.Add(assertionLifetime).Unix(),
	}

	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
}
