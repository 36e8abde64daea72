package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims represents the JWT payload for access tokens. SchoolID scopes
// every request to one tenant.
type JWTClaims struct {
	UserID   string   `json:"user_id" validate:"required"`
	SchoolID string   `json:"school_id" validate:"required"`
	Role     UserRole `json:"role" validate:"required"`
	jwt.RegisteredClaims
}
