package domain

import (
	"time"
)

// MemberRole represents a member's role within a travel group
type MemberRole string

const (
	RoleLeader MemberRole = "leader"
	RoleMember MemberRole = "member"
)

// Group represents a travel group planning a trip together
type Group struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	InviteCode  string    `json:"invite_code"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// GroupMember represents a user's membership in a group
type GroupMember struct {
	GroupID     string     `json:"group_id"`
	UserID      string     `json:"user_id"`
	DisplayName string     `json:"display_name"`
	Role        MemberRole `json:"role"`
	JoinedAt    time.Time  `json:"joined_at"`
}

// GroupDetail represents a group together with its member roster
type GroupDetail struct {
	Group
	Members     []GroupMember `json:"members"`
	MemberCount int           `json:"member_count"`
}

// CreateGroupRequest represents a group creation request
type CreateGroupRequest struct {
	Name        string `json:"name" validate:"required,min=2,max=100"`
	Description string `json:"description,omitempty" validate:"max=500"`
}

// JoinGroupRequest represents a join-by-invite-code request
type JoinGroupRequest struct {
	InviteCode string `json:"invite_code" validate:"required"`
}
