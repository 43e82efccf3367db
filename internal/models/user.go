package models

import "github.com/golang-jwt/jwt/v5"

type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleFarmer Role = "farmer"
)

// Claims are issued by the external auth service; this service only verifies them.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
	Role   Role   `json:"role"`
	jwt.RegisteredClaims
}
