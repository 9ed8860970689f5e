package domain

import (
	"sort"
	"time"
)

// ApprovalState represents the plan's lifecycle state
type ApprovalState string

const (
	StateEditable ApprovalState = "editable"
	StateFixed    ApprovalState = "fixed"
)

// ApprovalStatus represents the aggregate approval state of a group's plan.
// It is derived entirely from the vote set and the member count; the lock
// state is never stored separately.
type ApprovalStatus struct {
	GroupID               string        `json:"group_id"`
	State                 ApprovalState `json:"state"`
	IsFixed               bool          `json:"is_fixed"`
	TotalMembers          int           `json:"total_members"`
	AgreedCount           int           `json:"agreed_count"`
	ChangesRequestedCount int           `json:"changes_requested_count"`
	PendingCount          int           `json:"pending_count"`
	ApprovalPercentage    float64       `json:"approval_percentage"`
	Votes                 []PlanVote    `json:"votes"`
	LastUpdate            time.Time     `json:"last_update"`
}

// ApprovalStatusResponse represents the status endpoint payload, the shared
// aggregate plus the caller's own vote
type ApprovalStatusResponse struct {
	ApprovalStatus
	UserHasVoted bool      `json:"user_has_voted"`
	UserVote     *PlanVote `json:"user_vote,omitempty"`
}

// AggregateApproval computes the approval status for a group from its raw
// vote records and member count. The function is deterministic and performs
// no I/O.
//
// Duplicate records for the same user should not occur (the store upserts),
// but if they do, only the record with the latest UpdatedAt counts; on equal
// timestamps the later slice position wins. The plan is fixed exactly when
// every member has voted agree and the group is non-empty: an empty group is
// never fixed.
func AggregateApproval(groupID string, votes []PlanVote, totalMembers int) ApprovalStatus {
	latest := make(map[string]PlanVote, len(votes))
	for _, v := range votes {
		prev, ok := latest[v.UserID]
		if !ok || !v.UpdatedAt.Before(prev.UpdatedAt) {
			latest[v.UserID] = v
		}
	}

	deduped := make([]PlanVote, 0, len(latest))
	for _, v := range latest {
		deduped = append(deduped, v)
	}
	sort.Slice(deduped, func(i, j int) bool {
		if !deduped[i].UpdatedAt.Equal(deduped[j].UpdatedAt) {
			return deduped[i].UpdatedAt.Before(deduped[j].UpdatedAt)
		}
		return deduped[i].UserID < deduped[j].UserID
	})

	status := ApprovalStatus{
		GroupID:      groupID,
		TotalMembers: totalMembers,
		Votes:        deduped,
	}
	for _, v := range deduped {
		switch v.Choice {
		case VoteAgree:
			status.AgreedCount++
		case VoteRequestChanges:
			status.ChangesRequestedCount++
		}
		if v.UpdatedAt.After(status.LastUpdate) {
			status.LastUpdate = v.UpdatedAt
		}
	}

	status.PendingCount = totalMembers - len(deduped)
	if status.PendingCount < 0 {
		status.PendingCount = 0
	}
	if totalMembers > 0 {
		status.ApprovalPercentage = float64(status.AgreedCount) / float64(totalMembers) * 100
	}

	status.IsFixed = totalMembers > 0 && status.AgreedCount == totalMembers
	status.State = StateEditable
	if status.IsFixed {
		status.State = StateFixed
	}
	return status
}
