// CLI tool to run pending database migrations from db/.
// Checks the migrations table to skip already-applied files.
// Wraps each migration + record insert in a single transaction.
// Usage: go run ./cmd/migrate [--dir db] [--dry-run] | status
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	migrationsDir string
	dryRun        bool
)

var migrationPrefix = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}-\d{3}-`)

func main() {
	rootCmd := &cobra.Command{
		Use:           "migrate",
		Short:         "Apply pending SQL migrations",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runUp,
	}
	rootCmd.PersistentFlags().StringVar(&migrationsDir, "dir", "db", "directory containing *.sql migrations")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "list pending migrations without applying them")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		RunE:  runStatus,
	})

	if err := rootCmd.Execute(); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

// connect loads .env when present and opens a connection to DB_URL.
func connect(ctx context.Context) (*pgx.Conn, error) {
	_ = godotenv.Load()
	dbURL := os.Getenv("DB_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DB_URL is not set")
	}
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return conn, nil
}

// migrationFiles returns the sorted base names of *.sql files in dir.
func migrationFiles(dir string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no migration files found in %s", dir)
	}
	names := make([]string, len(paths))
	for i, p := range paths {
		names[i] = filepath.Base(p)
	}
	sort.Strings(names)
	return names, nil
}

// undefinedTable is the SQLSTATE for a relation that does not exist.
const undefinedTable = "42P01"

// isUndefinedTable reports whether err means the queried table is missing.
func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == undefinedTable
}

// appliedMigrations reads the migrations table. A missing table means nothing
// has been applied yet; any other error is returned.
func appliedMigrations(ctx context.Context, conn *pgx.Conn) (map[string]bool, error) {
	applied := make(map[string]bool)
	rows, err := conn.Query(ctx, "SELECT migration FROM migrations")
	if err == nil {
		var names []string
		names, err = pgx.CollectRows(rows, pgx.RowTo[string])
		for _, n := range names {
			applied[n] = true
		}
	}
	if err != nil {
		if isUndefinedTable(err) {
			return map[string]bool{}, nil
		}
		return nil, fmt.Errorf("read applied migrations: %w", err)
	}
	return applied, nil
}

// pendingMigrations returns files not yet applied, preserving order.
func pendingMigrations(files []string, applied map[string]bool) []string {
	var pending []string
	for _, f := range files {
		if !applied[f] {
			pending = append(pending, f)
		}
	}
	return pending
}

// descriptionFromFilename strips the YYYY-MM-DD-NNN- prefix and .sql suffix.
func descriptionFromFilename(filename string) string {
	name := strings.TrimSuffix(filename, ".sql")
	name = migrationPrefix.ReplaceAllString(name, "")
	return strings.ReplaceAll(name, "-", " ")
}

func applyMigration(ctx context.Context, conn *pgx.Conn, filename string) error {
	content, err := os.ReadFile(filepath.Join(migrationsDir, filename))
	if err != nil {
		return fmt.Errorf("read %s: %w", filename, err)
	}
	return pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, string(content)); err != nil {
			return fmt.Errorf("run %s: %w", filename, err)
		}
		if _, err := tx.Exec(ctx,
			"INSERT INTO migrations (migration, description) VALUES ($1, $2)",
			filename, descriptionFromFilename(filename)); err != nil {
			return fmt.Errorf("record %s: %w", filename, err)
		}
		return nil
	})
}

func runUp(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	files, err := migrationFiles(migrationsDir)
	if err != nil {
		return err
	}
	conn, err := connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	applied, err := appliedMigrations(ctx, conn)
	if err != nil {
		return err
	}
	pending := pendingMigrations(files, applied)
	if len(pending) == 0 {
		fmt.Println("No pending migrations.")
		return nil
	}

	for _, f := range pending {
		if dryRun {
			color.Yellow("  pending: %s", f)
			continue
		}
		if err := applyMigration(ctx, conn, f); err != nil {
			return err
		}
		color.Green("  applied: %s", f)
	}

	if dryRun {
		fmt.Printf("\n%d migration(s) pending.\n", len(pending))
	} else {
		fmt.Printf("\n%d migration(s) applied.\n", len(pending))
	}
	return nil
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	files, err := migrationFiles(migrationsDir)
	if err != nil {
		return err
	}
	conn, err := connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	applied, err := appliedMigrations(ctx, conn)
	if err != nil {
		return err
	}
	for _, f := range files {
		if applied[f] {
			color.Green("  applied: %s", f)
		} else {
			color.Yellow("  pending: %s", f)
		}
	}
	return nil
}
