package domain

import (
	"time"
)

// VoteChoice represents a member's position on the current plan
type VoteChoice string

const (
	VoteAgree          VoteChoice = "agree"
	VoteRequestChanges VoteChoice = "request_changes"
)

// IsValid reports whether the choice is one of the accepted values
func (c VoteChoice) IsValid() bool {
	return c == VoteAgree || c == VoteRequestChanges
}

// PlanVote represents one member's current vote on a group's plan.
// There is at most one record per (group, member); re-voting replaces it.
// UserName is the voter's display name as it was when the vote was cast,
// so vote lists render without a roster lookup.
type PlanVote struct {
	ID        string     `json:"id"`
	GroupID   string     `json:"group_id"`
	UserID    string     `json:"user_id"`
	UserName  string     `json:"user_name"`
	Choice    VoteChoice `json:"vote"`
	Comment   string     `json:"comment,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// VoteRequest represents a vote submission request
type VoteRequest struct {
	Vote    VoteChoice `json:"vote" validate:"required,oneof=agree request_changes"`
	Comment string     `json:"comment,omitempty" validate:"max=500"`
}

// VoteResponse represents the response after a successful vote
type VoteResponse struct {
	Vote    PlanVote       `json:"vote"`
	Status  ApprovalStatus `json:"status"`
	Message string         `json:"message"`
}

// UnlockResponse represents the response after a leader unlocks the plan
type UnlockResponse struct {
	Status  ApprovalStatus `json:"status"`
	Message string         `json:"message"`
}
