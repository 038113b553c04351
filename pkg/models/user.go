package models

import "time"

// User is a lead or operator contact, upserted by phone or email on first
// contact from any platform. A User may have many Conversations across
// platforms.
type User struct {
	ID        string    `json:"id"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	FullName  string    `json:"full_name"`
	Company   string    `json:"company,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasIdentity reports whether the user has at least one of the two
// globally-unique identity fields required by the data model.
func (u *User) HasIdentity() bool {
	if u == nil {
		return false
	}
	return u.Phone != "" || u.Email != ""
}
