package models

import "time"

// User is a chat participant. Identity fields are immutable; IsOnline flips
// on connect/disconnect.
type User struct {
	ID        int       `db:"id" json:"id"`
	Username  string    `db:"username" json:"username"`
	Email     string    `db:"email" json:"email"`
	IsOnline  bool      `db:"is_online" json:"isOnline"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}
