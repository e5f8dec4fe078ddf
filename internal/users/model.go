package users

import (
	"fmt"
	"strings"
	"time"
)

// Role distinguishes customers from support staff.
type Role string

const (
	RoleClient    Role = "client"
	RoleAttendant Role = "attendant"
)

// ParseRole validates a raw role value.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.TrimSpace(raw)) {
	case RoleClient:
		return RoleClient, nil
	case RoleAttendant:
		return RoleAttendant, nil
	default:
		return "", fmt.Errorf("users: unknown role %q", raw)
	}
}

// User is an account able to authenticate against the API.
type User struct {
	ID             string    `gorm:"column:id;primaryKey;size:64" json:"id"`
	Username       string    `gorm:"column:username;size:190;not null;uniqueIndex" json:"username"`
	PasswordHash   string    `gorm:"column:password;not null" json:"-"`
	Role           Role      `gorm:"column:role;size:16;not null;default:client;index" json:"role"`
	ProfilePicture string    `gorm:"column:profile_picture;size:512" json:"profilePicture,omitempty"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

// TableName exposes the table backing user accounts.
func (User) TableName() string {
	return "users"
}

// IsAttendant reports whether the user is support staff.
func (u User) IsAttendant() bool {
	return u.Role == RoleAttendant
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
