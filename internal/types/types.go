package types

import (
	"time"
)

// Role is the viewer role for a room connection.
type Role string

const (
	RoleGuest Role = "guest"
	RoleHost  Role = "host"
)

// ParseRole maps a query-string value to a viewer role. Absent or
// unrecognized values resolve to guest.
func ParseRole(s string) Role {
	if s == string(RoleHost) {
		return RoleHost
	}
	return RoleGuest
}

// Message is a submitted wish. CreatedAt is nil between the client
// write and the server acknowledgment.
type Message struct {
	Id        string     `json:"id"`
	RoomCode  string     `json:"room_code"`
	Text      string     `json:"text"`
	Popped    bool       `json:"popped"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// Room is the per-room configuration record, keyed by room code.
type Room struct {
	Id        string    `json:"id"`
	ThemeId   string    `json:"theme_id"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}
