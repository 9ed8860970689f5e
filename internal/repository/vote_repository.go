package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"gotrip-be/internal/domain"
	"gotrip-be/pkg/database"
)

type VoteRepository struct {
	db *database.PostgresDB
}

func NewVoteRepository(db *database.PostgresDB) *VoteRepository {
	return &VoteRepository{db: db}
}

// UpsertVote inserts the member's vote or replaces their previous one. The
// unique constraint on (group_id, user_id) guarantees one row per member; a
// replaced vote keeps its original id and created_at but refreshes the
// voter's display name.
func (r *VoteRepository) UpsertVote(ctx context.Context, vote *domain.PlanVote) error {
	query := `
		INSERT INTO plan_votes (id, group_id, user_id, user_name, choice, comment)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (group_id, user_id)
		DO UPDATE SET user_name = EXCLUDED.user_name,
		              choice = EXCLUDED.choice,
		              comment = EXCLUDED.comment,
		              updated_at = NOW()
		RETURNING id, group_id, user_id, user_name, choice, comment, created_at, updated_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		vote.ID,
		vote.GroupID,
		vote.UserID,
		vote.UserName,
		vote.Choice,
		vote.Comment,
	).Scan(
		&vote.ID,
		&vote.GroupID,
		&vote.UserID,
		&vote.UserName,
		&vote.Choice,
		&vote.Comment,
		&vote.CreatedAt,
		&vote.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to upsert vote: %w: %w", domain.ErrPersistence, err)
	}

	return nil
}

// GetVote gets a member's current vote for a group
func (r *VoteRepository) GetVote(ctx context.Context, groupID, userID string) (*domain.PlanVote, error) {
	var vote domain.PlanVote
	query := `
		SELECT id, group_id, user_id, user_name, choice, comment, created_at, updated_at
		FROM plan_votes
		WHERE group_id = $1 AND user_id = $2
	`

	err := r.db.Pool.QueryRow(ctx, query, groupID, userID).Scan(
		&vote.ID,
		&vote.GroupID,
		&vote.UserID,
		&vote.UserName,
		&vote.Choice,
		&vote.Comment,
		&vote.CreatedAt,
		&vote.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vote: %w: %w", domain.ErrPersistence, err)
	}

	return &vote, nil
}

// ListVotes gets all current votes for a group
func (r *VoteRepository) ListVotes(ctx context.Context, groupID string) ([]domain.PlanVote, error) {
	query := `
		SELECT id, group_id, user_id, user_name, choice, comment, created_at, updated_at
		FROM plan_votes
		WHERE group_id = $1
		ORDER BY updated_at ASC, user_id ASC
	`

	rows, err := r.db.Pool.Query(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list votes: %w: %w", domain.ErrPersistence, err)
	}
	defer rows.Close()

	var votes []domain.PlanVote
	for rows.Next() {
		var vote domain.PlanVote
		err := rows.Scan(
			&vote.ID,
			&vote.GroupID,
			&vote.UserID,
			&vote.UserName,
			&vote.Choice,
			&vote.Comment,
			&vote.CreatedAt,
			&vote.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vote: %w: %w", domain.ErrPersistence, err)
		}
		votes = append(votes, vote)
	}

	return votes, nil
}

// ClearVotes removes every vote for a group, returning the plan to editable
func (r *VoteRepository) ClearVotes(ctx context.Context, groupID string) error {
	query := `DELETE FROM plan_votes WHERE group_id = $1`

	_, err := r.db.Pool.Exec(ctx, query, groupID)
	if err != nil {
		return fmt.Errorf("failed to clear votes: %w: %w", domain.ErrPersistence, err)
	}

	return nil
}
