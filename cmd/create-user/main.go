// CLI tool to create a user with a bcrypt-hashed password, an empty body
// profile and a starting nutrition goal.
// Usage: go run ./cmd/create-user [--username u --email e --password p]
// Missing values are prompted for interactively.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"os"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

type newUser struct {
	Username      string
	Email         string
	Password      string
	CalorieTarget int
}

// defaultCalorieTarget seeds the first goal; users replace it via the API.
const defaultCalorieTarget = 2000

func main() {
	var u newUser
	cmd := &cobra.Command{
		Use:           "create-user",
		Short:         "Create a user with a starting nutrition goal",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := promptMissing(&u); err != nil {
				return err
			}
			if err := u.validate(); err != nil {
				return err
			}
			return createUser(cmd.Context(), u)
		},
	}
	cmd.Flags().StringVar(&u.Username, "username", "", "login name")
	cmd.Flags().StringVar(&u.Email, "email", "", "email address")
	cmd.Flags().StringVar(&u.Password, "password", "", "password (prompted when omitted)")
	cmd.Flags().IntVar(&u.CalorieTarget, "calories", defaultCalorieTarget, "initial daily calorie target")

	if err := cmd.Execute(); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

// promptMissing asks for any field not supplied as a flag.
func promptMissing(u *newUser) error {
	if u.Username == "" {
		if err := survey.AskOne(&survey.Input{Message: "Username:"}, &u.Username, survey.WithValidator(survey.Required)); err != nil {
			return err
		}
	}
	if u.Email == "" {
		if err := survey.AskOne(&survey.Input{Message: "Email:"}, &u.Email, survey.WithValidator(survey.Required)); err != nil {
			return err
		}
	}
	if u.Password == "" {
		if err := survey.AskOne(&survey.Password{Message: "Password:"}, &u.Password, survey.WithValidator(survey.MinLength(8))); err != nil {
			return err
		}
	}
	return nil
}

func (u newUser) validate() error {
	if u.Username == "" {
		return errors.New("username is required")
	}
	if _, err := mail.ParseAddress(u.Email); err != nil {
		return fmt.Errorf("invalid email: %w", err)
	}
	if len(u.Password) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	if u.CalorieTarget <= 0 {
		return errors.New("calories must be positive")
	}
	return nil
}

// macroTargets splits calories 30/40/30 into protein/carbs/fat grams.
func macroTargets(calories int) (protein, carbs, fat int) {
	c := float64(calories)
	return int(c * 0.30 / 4), int(c * 0.40 / 4), int(c * 0.30 / 9)
}

func createUser(ctx context.Context, u newUser) error {
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

	hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	authToken := uuid.New().String()
	protein, carbs, fat := macroTargets(u.CalorieTarget)

	var userID int
	err = pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx,
			`INSERT INTO users (username, email, password, auth_token)
			 VALUES ($1, $2, $3, $4) RETURNING id`,
			u.Username, u.Email, string(hash), authToken,
		).Scan(&userID); err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		if _, err := tx.Exec(ctx, "INSERT INTO user_profiles (user_id) VALUES ($1)", userID); err != nil {
			return fmt.Errorf("create profile: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO nutrition_goals (user_id, calorie_target, protein_target_g, carbs_target_g, fat_target_g, effective_from)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			userID, u.CalorieTarget, protein, carbs, fat, time.Now().UTC().Format("2006-01-02")); err != nil {
			return fmt.Errorf("create goal: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	color.Green("\nUser created successfully!")
	fmt.Printf("  ID:         %d\n", userID)
	fmt.Printf("  Username:   %s\n", u.Username)
	fmt.Printf("  Auth Token: %s\n", authToken)
	return nil
}
