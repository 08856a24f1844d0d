package models

import (
	"strings"
	"time"
)

type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Username  string    `json:"username"`
	IsActive  bool      `json:"is_active"`
	IsStaff   bool      `json:"is_staff"`
	CreatedAt time.Time `json:"created_at"`
}

// DisplayName returns "FirstName L." format (first name + last initial).
func (u User) DisplayName() string {
	parts := strings.Fields(u.Name)
	if len(parts) <= 1 {
		return u.Name
	}
	lastName := parts[len(parts)-1]
	return parts[0] + " " + string([]rune(lastName)[0]) + "."
}

// RankEligible reports whether the account may appear on leaderboards.
func (u User) RankEligible() bool {
	return u.IsActive && !u.IsStaff
}

type ErrorResponse struct {
	Error string `json:"error"`
}
