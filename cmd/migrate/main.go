package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"

	"coopvote/internal/domain"
	"coopvote/internal/repository"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is not set")
	}

	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./cmd/migrate [drop|up|seed|reset]")
		os.Exit(1)
	}

	command := os.Args[1]

	ctx := context.Background()
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close(ctx)

	switch command {
	case "drop":
		if err := execAll(ctx, conn, repository.DropSchema); err != nil {
			log.Fatalf("Failed to drop tables: %v", err)
		}
		fmt.Println("All tables dropped successfully")

	case "up":
		if err := execAll(ctx, conn, repository.Schema); err != nil {
			log.Fatalf("Failed to create tables: %v", err)
		}
		fmt.Println("All tables created successfully")

	case "seed":
		if err := seedData(ctx, conn); err != nil {
			log.Fatalf("Failed to seed data: %v", err)
		}
		fmt.Println("Data seeded successfully")

	case "reset":
		if err := execAll(ctx, conn, repository.DropSchema); err != nil {
			log.Fatalf("Failed to drop tables: %v", err)
		}
		if err := execAll(ctx, conn, repository.Schema); err != nil {
			log.Fatalf("Failed to create tables: %v", err)
		}
		fmt.Println("Schema reset successfully")

	default:
		fmt.Printf("Unknown command: %s\n", command)
		os.Exit(1)
	}
}

func execAll(ctx context.Context, conn *pgx.Conn, statements []string) error {
	for _, stmt := range statements {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", firstLine(stmt), err)
		}
		log.Printf("Executed: %s", firstLine(stmt))
	}
	return nil
}

func firstLine(stmt string) string {
	if i := strings.IndexByte(stmt, '\n'); i >= 0 {
		return strings.TrimSpace(stmt[:i])
	}
	return strings.TrimSpace(stmt)
}

// seedData inserts a handful of agendas covering the pre-voting states
func seedData(ctx context.Context, conn *pgx.Conn) error {
	seeds := []struct {
		title       string
		description string
		category    domain.AgendaCategory
		status      domain.AgendaStatus
	}{
		{"Approve annual budget", "Budget proposal for the next fiscal year", domain.CategoryFinancial, domain.StatusOpen},
		{"Elect audit committee", "Three seats on the audit committee", domain.CategoryElections, domain.StatusOpen},
		{"Amend bylaws article 12", "Allow remote participation in assemblies", domain.CategoryStatutory, domain.StatusDraft},
		{"Solar panels for the warehouse", "Capital project proposal", domain.CategoryProjects, domain.StatusOpen},
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	for _, s := range seeds {
		_, err := tx.Exec(ctx, `
			INSERT INTO agendas (id, title, description, category, status, result, is_active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7, $7)`,
			uuid.New().String(), s.title, s.description, string(s.category), string(s.status),
			string(domain.ResultUnvoted), now)
		if err != nil {
			return fmt.Errorf("failed to seed agenda %q: %w", s.title, err)
		}
	}

	return tx.Commit(ctx)
}
