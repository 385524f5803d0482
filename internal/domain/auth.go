package domain

import "time"

// AuthClaims is the identity extracted from a validated bearer token
type AuthClaims struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email,omitempty"`
	Role      string    `json:"role,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}
