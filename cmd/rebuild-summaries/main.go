// CLI tool to rebuild daily_summaries from intake_entries, for repairing
// rows after manual data fixes or an import.
// Usage: go run ./cmd/rebuild-summaries [--user-id N] [--start YYYY-MM-DD] [--end YYYY-MM-DD]
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const dateLayout = "2006-01-02"

type rebuildScope struct {
	UserID int
	Start  string
	End    string
}

// args validates the scope and returns it as named query arguments. Zero
// values mean "all users" and "no bound".
func (s rebuildScope) args() (pgx.NamedArgs, error) {
	args := pgx.NamedArgs{"userID": nil, "start": nil, "end": nil}
	if s.UserID < 0 {
		return nil, errors.New("user-id must be positive")
	}
	if s.UserID > 0 {
		args["userID"] = s.UserID
	}
	var start, end time.Time
	var err error
	if s.Start != "" {
		if start, err = time.Parse(dateLayout, s.Start); err != nil {
			return nil, fmt.Errorf("invalid start: %w", err)
		}
		args["start"] = s.Start
	}
	if s.End != "" {
		if end, err = time.Parse(dateLayout, s.End); err != nil {
			return nil, fmt.Errorf("invalid end: %w", err)
		}
		args["end"] = s.End
	}
	if s.Start != "" && s.End != "" && end.Before(start) {
		return nil, errors.New("end must not be before start")
	}
	return args, nil
}

const scopeFilter = `(@userID::int IS NULL OR user_id = @userID::int)
	AND (@start::date IS NULL OR date >= @start::date)
	AND (@end::date IS NULL OR date <= @end::date)`

func main() {
	var scope rebuildScope
	cmd := &cobra.Command{
		Use:           "rebuild-summaries",
		Short:         "Recompute daily summaries from intake entries",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rebuild(cmd.Context(), scope)
		},
	}
	cmd.Flags().IntVar(&scope.UserID, "user-id", 0, "limit to one user (default all)")
	cmd.Flags().StringVar(&scope.Start, "start", "", "first date to rebuild (YYYY-MM-DD)")
	cmd.Flags().StringVar(&scope.End, "end", "", "last date to rebuild (YYYY-MM-DD)")

	if err := cmd.Execute(); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func rebuild(ctx context.Context, scope rebuildScope) error {
	args, err := scope.args()
	if err != nil {
		return err
	}

	_ = godotenv.Load()
	dbURL := os.Getenv("DB_URL")
	if dbURL == "" {
		return errors.New("DB_URL is not set")
	}
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer conn.Close(ctx)

	var deleted, inserted int64
	err = pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, "DELETE FROM daily_summaries WHERE "+scopeFilter, args)
		if err != nil {
			return fmt.Errorf("delete summaries: %w", err)
		}
		deleted = tag.RowsAffected()

		tag, err = tx.Exec(ctx,
			`INSERT INTO daily_summaries (user_id, date, calories, protein_g, carbs_g, fat_g, entry_count, updated_at)
			 SELECT user_id, date, SUM(calories), SUM(protein_g), SUM(carbs_g), SUM(fat_g), COUNT(*), now()
			 FROM intake_entries
			 WHERE `+scopeFilter+`
			 GROUP BY user_id, date`, args)
		if err != nil {
			return fmt.Errorf("insert summaries: %w", err)
		}
		inserted = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return err
	}

	color.Green("Rebuilt daily summaries.")
	fmt.Printf("  removed:  %d\n", deleted)
	fmt.Printf("  written:  %d\n", inserted)
	fmt.Println("Cached reports expire on their own TTL.")
	return nil
}
