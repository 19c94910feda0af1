package models

import "time"

// User is the profile returned by the identity exchange.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Picture   string    `json:"picture,omitempty"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// AuthResult is the response of POST /auth/profile.
type AuthResult struct {
	User         User      `json:"user"`
	SessionToken string    `json:"session_token"`
	ExpiresAt    time.Time `json:"expires_at,omitzero"`
}
