package model

import "time"

// RoleUser is the authority granted to every registered user.
const RoleUser = "user"

// User represents a stored user record. Email is the unique natural key.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Roles        []string
	CreatedAt    time.Time
}

// Identity is the authenticated principal attached to a request.
type Identity struct {
	Username    string
	Email       string
	Authorities []string
}

// RegisterRequest represents a user registration request.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest represents a user login request.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the issued bearer token.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// MessageResponse is a plain confirmation body.
type MessageResponse struct {
	Message string `json:"message"`
}

// ProfileResponse is the body of GET /api/user/me.
type ProfileResponse struct {
	Username string `json:"username"`
}
