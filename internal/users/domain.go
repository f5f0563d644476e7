package users

import "time"

// User represents a user account for management.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RoleChange is one row of role_audit_log.
type RoleChange struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"userId"`
	OldRole   string    `json:"oldRole"`
	NewRole   string    `json:"newRole"`
	ChangedBy int64     `json:"changedBy"`
	Reason    string    `json:"reason,omitempty"`
	ChangedAt time.Time `json:"changedAt"`
}
