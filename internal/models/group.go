package models

import "time"

// Group is a named multi-user conversation. Membership is fixed at creation;
// the admin is always a member.
type Group struct {
	ID        int       `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	AdminID   int       `db:"admin_id" json:"admin"`
	MemberIDs []int     `db:"-" json:"members"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}
