package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"gotrip-be/internal/domain"
	"gotrip-be/pkg/database"
)

type GroupRepository struct {
	db *database.PostgresDB
}

func NewGroupRepository(db *database.PostgresDB) *GroupRepository {
	return &GroupRepository{db: db}
}

// CreateGroup creates a group and its leader membership in one transaction
func (r *GroupRepository) CreateGroup(ctx context.Context, group *domain.Group, leader *domain.GroupMember) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w: %w", domain.ErrPersistence, err)
	}
	defer tx.Rollback(ctx)

	groupQuery := `
		INSERT INTO groups (id, name, description, invite_code, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`

	err = tx.QueryRow(ctx, groupQuery,
		group.ID,
		group.Name,
		group.Description,
		group.InviteCode,
		group.CreatedBy,
	).Scan(&group.CreatedAt, &group.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create group: %w: %w", domain.ErrPersistence, err)
	}

	memberQuery := `
		INSERT INTO group_members (group_id, user_id, display_name, role)
		VALUES ($1, $2, $3, $4)
		RETURNING joined_at
	`

	err = tx.QueryRow(ctx, memberQuery,
		leader.GroupID,
		leader.UserID,
		leader.DisplayName,
		leader.Role,
	).Scan(&leader.JoinedAt)
	if err != nil {
		return fmt.Errorf("failed to create leader membership: %w: %w", domain.ErrPersistence, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit group creation: %w: %w", domain.ErrPersistence, err)
	}

	return nil
}

// GetGroup gets a group by ID
func (r *GroupRepository) GetGroup(ctx context.Context, id string) (*domain.Group, error) {
	var group domain.Group
	query := `
		SELECT id, name, description, invite_code, created_by, created_at, updated_at
		FROM groups
		WHERE id = $1
	`

	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&group.ID,
		&group.Name,
		&group.Description,
		&group.InviteCode,
		&group.CreatedBy,
		&group.CreatedAt,
		&group.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w: %w", domain.ErrPersistence, err)
	}

	return &group, nil
}

// GetGroupByInviteCode gets a group by its invite code
func (r *GroupRepository) GetGroupByInviteCode(ctx context.Context, code string) (*domain.Group, error) {
	var group domain.Group
	query := `
		SELECT id, name, description, invite_code, created_by, created_at, updated_at
		FROM groups
		WHERE invite_code = $1
	`

	err := r.db.Pool.QueryRow(ctx, query, code).Scan(
		&group.ID,
		&group.Name,
		&group.Description,
		&group.InviteCode,
		&group.CreatedBy,
		&group.CreatedAt,
		&group.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group by invite code: %w: %w", domain.ErrPersistence, err)
	}

	return &group, nil
}

// AddMember adds a user to a group
func (r *GroupRepository) AddMember(ctx context.Context, member *domain.GroupMember) error {
	query := `
		INSERT INTO group_members (group_id, user_id, display_name, role)
		VALUES ($1, $2, $3, $4)
		RETURNING joined_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		member.GroupID,
		member.UserID,
		member.DisplayName,
		member.Role,
	).Scan(&member.JoinedAt)

	if err != nil {
		return fmt.Errorf("failed to add member: %w: %w", domain.ErrPersistence, err)
	}

	return nil
}

// GetMember gets a membership record for a user in a group
func (r *GroupRepository) GetMember(ctx context.Context, groupID, userID string) (*domain.GroupMember, error) {
	var member domain.GroupMember
	query := `
		SELECT group_id, user_id, display_name, role, joined_at
		FROM group_members
		WHERE group_id = $1 AND user_id = $2
	`

	err := r.db.Pool.QueryRow(ctx, query, groupID, userID).Scan(
		&member.GroupID,
		&member.UserID,
		&member.DisplayName,
		&member.Role,
		&member.JoinedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w: %w", domain.ErrPersistence, err)
	}

	return &member, nil
}

// ListMembers gets the member roster of a group, leader first
func (r *GroupRepository) ListMembers(ctx context.Context, groupID string) ([]domain.GroupMember, error) {
	query := `
		SELECT group_id, user_id, display_name, role, joined_at
		FROM group_members
		WHERE group_id = $1
		ORDER BY CASE WHEN role = 'leader' THEN 0 ELSE 1 END, joined_at ASC
	`

	rows, err := r.db.Pool.Query(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w: %w", domain.ErrPersistence, err)
	}
	defer rows.Close()

	var members []domain.GroupMember
	for rows.Next() {
		var member domain.GroupMember
		err := rows.Scan(
			&member.GroupID,
			&member.UserID,
			&member.DisplayName,
			&member.Role,
			&member.JoinedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w: %w", domain.ErrPersistence, err)
		}
		members = append(members, member)
	}

	return members, nil
}

// CountMembers returns the number of members in a group
func (r *GroupRepository) CountMembers(ctx context.Context, groupID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM group_members WHERE group_id = $1`

	err := r.db.Pool.QueryRow(ctx, query, groupID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count members: %w: %w", domain.ErrPersistence, err)
	}

	return count, nil
}
