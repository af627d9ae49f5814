package models

import "github.com/golang-jwt/jwt/v5"

// PassClaims are the claims carried by the bearer token issued on /check
type PassClaims struct {
	Email string `json:"email"`
	ID    int64  `json:"id"`
	jwt.RegisteredClaims
}
