package auth

import "github.com/golang-jwt/jwt/v5"

// Claims is the access token payload issued to dashboard users.
// Refresh and sign-in are handled by the hosted identity provider; this
// service only issues and verifies short-lived access tokens.
type Claims struct {
	jwt.RegisteredClaims

	UserID string `json:"user_id"`
	Role   string `json:"role"`
	Email  string `json:"email,omitempty"`
}
