package auth

import "github.com/golang-jwt/jwt/v5"

type LoginRequest struct {
	Assertion  string `json:"assertion" validate:"required"`
	RememberMe bool   `json:"remember_me"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Claims are carried by access tokens.
type Claims struct {
	IdentityID int64 `json:"identity_id"`
	jwt.RegisteredClaims
}

// ProviderClaims are what the identity provider vouches for in a login
// assertion.
type ProviderClaims struct {
	Email    string `json:"email"`
	Nickname string `json:"nickname"`
	jwt.RegisteredClaims
}
