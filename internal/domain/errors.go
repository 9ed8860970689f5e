package domain

import "errors"

// Sentinel errors returned by the service and repository layers. Handlers map
// these onto the HTTP error envelope; everything else is treated as internal.
var (
	ErrGroupNotFound     = errors.New("group not found")
	ErrNotMember         = errors.New("user is not a member of this group")
	ErrNotLeader         = errors.New("only the group leader can perform this action")
	ErrPlanLocked        = errors.New("plan is locked")
	ErrInvalidInviteCode = errors.New("invite code is invalid")

	// ErrPersistence marks a failed read or write against the backing
	// store. Repositories wrap it around the driver error so handlers can
	// report store trouble distinctly from programming errors.
	ErrPersistence = errors.New("persistence failure")
)
