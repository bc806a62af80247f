// Command migrate manages the relational schema behind the statistics
// endpoint.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"safety-app/internal/domain"
)

var createQueries = []string{
	`CREATE TABLE IF NOT EXISTS user_activities (
		id BIGSERIAL PRIMARY KEY,
		user_id VARCHAR(128) NOT NULL,
		action VARCHAR(64) NOT NULL,
		data JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_user_activities_user_created ON user_activities(user_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_user_activities_action ON user_activities(action)`,
}

var dropQueries = []string{
	`DROP TABLE IF EXISTS user_activities CASCADE`,
}

func main() {
	// Load environment variables
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var databaseURL string

	root := &cobra.Command{
		Use:          "migrate",
		Short:        "Manage the user_activities schema",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")

	withConn := func(fn func(ctx context.Context, conn *pgx.Conn) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			if databaseURL == "" {
				return fmt.Errorf("DATABASE_URL environment variable is not set")
			}
			ctx := cmd.Context()
			conn, err := pgx.Connect(ctx, databaseURL)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer conn.Close(context.Background())
			return fn(ctx, conn)
		}
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Create the activity table and its indexes",
		Args:  cobra.NoArgs,
		RunE: withConn(func(ctx context.Context, conn *pgx.Conn) error {
			if err := execAll(ctx, conn, createQueries, "Created"); err != nil {
				return err
			}
			fmt.Println("✅ All tables created successfully")
			return nil
		}),
	}

	drop := &cobra.Command{
		Use:   "drop",
		Short: "Drop the activity table",
		Args:  cobra.NoArgs,
		RunE: withConn(func(ctx context.Context, conn *pgx.Conn) error {
			if err := execAll(ctx, conn, dropQueries, "Dropped"); err != nil {
				return err
			}
			fmt.Println("✅ All tables dropped successfully")
			return nil
		}),
	}

	var seedUser string
	seed := &cobra.Command{
		Use:   "seed",
		Short: "Insert a week of demo activities for one user",
		Args:  cobra.NoArgs,
		RunE: withConn(func(ctx context.Context, conn *pgx.Conn) error {
			n, err := seedActivities(ctx, conn, demoActivities(seedUser, time.Now().UTC()))
			if err != nil {
				return err
			}
			fmt.Printf("✅ Seeded %d activities for %s\n", n, seedUser)
			return nil
		}),
	}
	seed.Flags().StringVar(&seedUser, "user", "demo", "user the demo activities belong to")

	root.AddCommand(up, drop, seed)
	return root
}

func execAll(ctx context.Context, conn *pgx.Conn, queries []string, verb string) error {
	for _, query := range queries {
		if _, err := conn.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w\nQuery: %s", err, query)
		}
		fmt.Printf("  %s: %s\n", verb, summarize(query))
	}
	return nil
}

func seedActivities(ctx context.Context, conn *pgx.Conn, activities []domain.Activity) (int, error) {
	batch := &pgx.Batch{}
	for _, a := range activities {
		data, err := json.Marshal(a.Data)
		if err != nil {
			return 0, fmt.Errorf("encode activity data: %w", err)
		}
		batch.Queue(
			`INSERT INTO user_activities (user_id, action, data, created_at) VALUES ($1, $2, $3, $4)`,
			a.UserID, a.Action, string(data), a.CreatedAt,
		)
	}

	if err := conn.SendBatch(ctx, batch).Close(); err != nil {
		return 0, fmt.Errorf("failed to seed activities: %w", err)
	}
	return len(activities), nil
}

// demoActivities is one video and one quiz a day over the last week,
// with scores climbing so the trends have something to show
func demoActivities(userID string, now time.Time) []domain.Activity {
	videos := []string{"video1", "video2"}
	quizzes := []string{"quiz1", "quiz2"}

	var out []domain.Activity
	for day := 6; day >= 0; day-- {
		at := now.AddDate(0, 0, -day).Truncate(time.Hour)
		i := 6 - day

		out = append(out,
			domain.Activity{
				UserID:    userID,
				Action:    domain.ActionPageView,
				Data:      map[string]any{"path": "/"},
				CreatedAt: at,
			},
			domain.Activity{
				UserID:    userID,
				Action:    domain.ActionVideoComplete,
				Data:      map[string]any{"videoId": videos[i%len(videos)], "watchTime": 180 + 20*i},
				CreatedAt: at.Add(5 * time.Minute),
			},
			domain.Activity{
				UserID:    userID,
				Action:    domain.ActionQuizComplete,
				Data:      map[string]any{"quizId": quizzes[i%len(quizzes)], "score": 60 + 6*i},
				CreatedAt: at.Add(15 * time.Minute),
			},
		)
	}
	return out
}

func summarize(query string) string {
	if len(query) > 50 {
		return query[:50] + "..."
	}
	return query
}
