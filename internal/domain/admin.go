package domain

import "time"

// RoleAdmin is the only role admin tokens are issued for
const RoleAdmin = "admin"

// AdminClaims is what a validated admin token asserts
type AdminClaims struct {
	Subject   string    `json:"sub"`
	Role      string    `json:"role"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}
