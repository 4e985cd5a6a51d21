package auth

import (
	"time"

	"github.com/mpk-pharma/kanha/internal/shared"
)

// MsgInvalidCredentials is returned for unknown emails and wrong passwords alike.
const MsgInvalidCredentials = "Invalid credentials"

// User represents a shop account.
type User struct {
	ID           int64     `json:"id"`
	ShopName     string    `json:"shop_name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Principal returns the identity requests act for once the user signed in.
func (u User) Principal() shared.Principal {
	return shared.Principal{UserID: u.ID, Email: u.Email, ShopName: u.ShopName}
}

// LoginRequest is the login payload.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse is returned after a successful login.
type LoginResponse struct {
	Message   string    `json:"message"`
	User      User      `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
