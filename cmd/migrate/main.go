package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	// Get database URL
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is not set")
	}

	// Get command
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run main.go [drop|up|seed]")
		os.Exit(1)
	}

	command := os.Args[1]

	// Connect to database
	ctx := context.Background()
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close(ctx)

	switch command {
	case "drop":
		if err := dropTables(ctx, conn); err != nil {
			log.Fatalf("Failed to drop tables: %v", err)
		}
		fmt.Println("✅ All tables dropped successfully")

	case "up":
		if err := createTables(ctx, conn); err != nil {
			log.Fatalf("Failed to create tables: %v", err)
		}
		fmt.Println("✅ All tables created successfully")

	case "seed":
		if err := seedData(ctx, conn); err != nil {
			log.Fatalf("Failed to seed data: %v", err)
		}
		fmt.Println("✅ Data seeded successfully")

	default:
		fmt.Printf("Unknown command: %s\n", command)
		fmt.Println("Usage: go run main.go [drop|up|seed]")
		os.Exit(1)
	}
}

func dropTables(ctx context.Context, conn *pgx.Conn) error {
	queries := []string{
		`DROP TABLE IF EXISTS plan_votes CASCADE`,
		`DROP TABLE IF EXISTS group_members CASCADE`,
		`DROP TABLE IF EXISTS groups CASCADE`,
	}

	for _, query := range queries {
		if _, err := conn.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
		fmt.Printf("  Dropped: %s\n", query)
	}

	return nil
}

func createTables(ctx context.Context, conn *pgx.Conn) error {
	queries := []string{
		// Create groups table
		`CREATE TABLE IF NOT EXISTS groups (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			name VARCHAR(100) NOT NULL,
			description TEXT,
			invite_code VARCHAR(20) UNIQUE NOT NULL,
			created_by VARCHAR(255) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		// Create group members table, one row per member per group
		`CREATE TABLE IF NOT EXISTS group_members (
			group_id UUID NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
			user_id VARCHAR(255) NOT NULL,
			display_name VARCHAR(255),
			role VARCHAR(20) NOT NULL DEFAULT 'member',
			joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (group_id, user_id)
		)`,

		// Create plan votes table. The unique constraint on
		// (group_id, user_id) backs the upsert, so a member can never
		// hold two votes in the same group.
		`CREATE TABLE IF NOT EXISTS plan_votes (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			group_id UUID NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
			user_id VARCHAR(255) NOT NULL,
			user_name VARCHAR(255) NOT NULL DEFAULT '',
			choice VARCHAR(20) NOT NULL,
			comment TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (group_id, user_id)
		)`,

		// Create indexes
		`CREATE INDEX IF NOT EXISTS idx_plan_votes_group_id ON plan_votes(group_id)`,
		`CREATE INDEX IF NOT EXISTS idx_plan_votes_updated_at ON plan_votes(group_id, updated_at)`,
		`CREATE INDEX IF NOT EXISTS idx_group_members_user_id ON group_members(user_id)`,
	}

	for _, query := range queries {
		if _, err := conn.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w\nQuery: %s", err, query)
		}
		fmt.Printf("  Created: %s\n", getTableName(query))
	}

	return nil
}

func seedData(ctx context.Context, conn *pgx.Conn) error {
	// Insert a demo group with a stable invite code
	groupQuery := `
		INSERT INTO groups (id, name, description, invite_code, created_by) VALUES
		('00000000-0000-0000-0000-000000000001', 'ทริปเชียงใหม่', 'Long weekend in Chiang Mai', 'TRIP-5EEDC0DE', 'user-somchai')
		ON CONFLICT (invite_code) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			updated_at = NOW()
	`

	if _, err := conn.Exec(ctx, groupQuery); err != nil {
		return fmt.Errorf("failed to seed group: %w", err)
	}

	fmt.Println("  Seeded demo group (invite code TRIP-5EEDC0DE)")

	memberQuery := `
		INSERT INTO group_members (group_id, user_id, display_name, role) VALUES
		('00000000-0000-0000-0000-000000000001', 'user-somchai', 'สมชาย', 'leader'),
		('00000000-0000-0000-0000-000000000001', 'user-nid', 'นิด', 'member'),
		('00000000-0000-0000-0000-000000000001', 'user-lek', 'เล็ก', 'member')
		ON CONFLICT (group_id, user_id) DO NOTHING
	`

	if _, err := conn.Exec(ctx, memberQuery); err != nil {
		return fmt.Errorf("failed to seed members: %w", err)
	}

	fmt.Println("  Seeded 3 members")

	// Two of three members agree, so the seeded plan stays editable
	voteQuery := `
		INSERT INTO plan_votes (group_id, user_id, user_name, choice, comment) VALUES
		('00000000-0000-0000-0000-000000000001', 'user-somchai', 'สมชาย', 'agree', ''),
		('00000000-0000-0000-0000-000000000001', 'user-nid', 'นิด', 'agree', 'วันที่โอเคเลย')
		ON CONFLICT (group_id, user_id) DO UPDATE SET
			user_name = EXCLUDED.user_name,
			choice = EXCLUDED.choice,
			comment = EXCLUDED.comment,
			updated_at = NOW()
	`

	if _, err := conn.Exec(ctx, voteQuery); err != nil {
		return fmt.Errorf("failed to seed votes: %w", err)
	}

	fmt.Println("  Seeded 2 votes")

	return nil
}

func getTableName(query string) string {
	if len(query) > 50 {
		return query[:50] + "..."
	}
	return query
}
