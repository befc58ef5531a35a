package pg

import (
	"context"
	"database/sql"
	"fmt"
)

// TokenStore reads and deactivates device tokens in the user_fcm_tokens table.
// Token registration is owned by an external flow; this service only consumes
// tokens and flips is_active off when FCM reports them dead.
type TokenStore struct {
	db *sql.DB
}

func NewTokenStore(db *sql.DB) *TokenStore {
	return &TokenStore{db: db}
}

// ActiveTokens returns the active device tokens registered for a user. An
// empty result is not an error; the caller decides whether zero destinations
// is acceptable.
func (s *TokenStore) ActiveTokens(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT fcm_token FROM user_fcm_tokens WHERE user_id = $1 AND is_active`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch FCM tokens: %w", err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, fmt.Errorf("failed to scan FCM token: %w", err)
		}
		tokens = append(tokens, token)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read FCM tokens: %w", err)
	}

	return tokens, nil
}

// DeactivateToken marks a token inactive by its value. Idempotent: a token
// already inactive (or unknown) is not an error.
func (s *TokenStore) DeactivateToken(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE user_fcm_tokens SET is_active = FALSE, updated_at = NOW() WHERE fcm_token = $1`, token)
	if err != nil {
		return fmt.Errorf("failed to deactivate FCM token: %w", err)
	}
	return nil
}
