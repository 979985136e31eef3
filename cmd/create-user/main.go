// CLI tool to create a user with a bcrypt-hashed password, empty body stats
// and the default reminder rules.
// Usage: go run ./cmd/create-user
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

const defaultStepTarget = 10000

// defaultReminders mirrors what the API shows a user with no saved rules:
// meal alerts and the workout alert on, hydration and sleep off.
var defaultReminders = []struct {
	kind     string
	enabled  bool
	hour     int
	interval int
}{
	{"meal_early", true, 6, 0},
	{"meal_breakfast", true, 8, 0},
	{"meal_midmorning", true, 10, 0},
	{"meal_lunch", true, 13, 0},
	{"meal_evening", true, 17, 0},
	{"meal_postworkout", true, 19, 0},
	{"meal_dinner", true, 20, 0},
	{"meal_bed", true, 22, 0},
	{"workout", true, 18, 0},
	{"hydration", false, 0, 60},
	{"sleep", false, 23, 0},
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Error loading .env file: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	conn, err := pgx.Connect(ctx, os.Getenv("DB_URL"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close(ctx)

	reader := bufio.NewReader(os.Stdin)
	username := prompt(reader, "Username")
	email := prompt(reader, "Email")
	password := prompt(reader, "Password")
	stepTarget, err := parseStepTarget(prompt(reader, fmt.Sprintf("Daily step target [%d]", defaultStepTarget)))
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error hashing password: %v\n", err)
		os.Exit(1)
	}
	authToken := uuid.New().String()

	userID, err := createUser(ctx, conn, username, email, string(hash), authToken, stepTarget)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating user: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nUser created successfully!\n")
	fmt.Printf("  ID:          %d\n", userID)
	fmt.Printf("  Username:    %s\n", username)
	fmt.Printf("  Step target: %d\n", stepTarget)
	fmt.Printf("  Auth Token:  %s\n", authToken)
}

func prompt(r *bufio.Reader, label string) string {
	fmt.Printf("%s: ", label)
	line, _ := r.ReadString('\n')
	return strings.TrimSpace(line)
}

// parseStepTarget accepts a blank answer as the default.
func parseStepTarget(s string) (int, error) {
	if s == "" {
		return defaultStepTarget, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 || n > 100000 {
		return 0, fmt.Errorf("step target must be a whole number between 1 and 100000")
	}
	return n, nil
}

// createUser inserts the user, their settings row and reminder rules in one
// transaction.
func createUser(ctx context.Context, conn *pgx.Conn, username, email, hash, token string, stepTarget int) (int, error) {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var userID int
	err = tx.QueryRow(ctx,
		`INSERT INTO users (username, email, password, auth_token)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		username, email, hash, token,
	).Scan(&userID)
	if err != nil {
		return 0, fmt.Errorf("insert user: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO user_settings (user_id, step_target) VALUES ($1, $2)`, userID, stepTarget); err != nil {
		return 0, fmt.Errorf("insert settings: %w", err)
	}

	batch := &pgx.Batch{}
	for _, r := range defaultReminders {
		batch.Queue(
			`INSERT INTO reminder_rules (user_id, kind, enabled, hour, minute, interval_minutes)
			 VALUES ($1, $2, $3, $4, 0, $5)`,
			userID, r.kind, r.enabled, r.hour, r.interval)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return 0, fmt.Errorf("insert reminder rules: %w", err)
	}

	return userID, tx.Commit(ctx)
}
