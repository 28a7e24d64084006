// Seed adds 1,000 tasks to the database. Run from project root: go run ./scripts/seed
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"taskboard/internal/config"
	"taskboard/internal/database"
)

func main() {
	config.LoadEnvFile(".env")

	ctx := context.Background()
	db, err := database.Connect(ctx)
	if err != nil || db == nil {
		fmt.Fprintln(os.Stderr, "Database connection failed:", err)
		os.Exit(1)
	}

	if err := database.MigrateOrCreateSchema(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Schema failed:", err)
		os.Exit(1)
	}

	const total = 1_000
	const batchSize = 200
	start := time.Now()

	for batch := 0; batch < total/batchSize; batch++ {
		args := make([]interface{}, 0, batchSize*2)
		placeholders := make([]string, 0, batchSize)
		for i := 0; i < batchSize; i++ {
			n := batch*batchSize + i + 1
			placeholders = append(placeholders, fmt.Sprintf("($%d,$%d)", 2*i+1, 2*i+2))
			args = append(args, fmt.Sprintf("Task %d", n), n%3 == 0)
		}
		q := `INSERT INTO tasks (title, completed) VALUES ` + strings.Join(placeholders, ",")
		if _, err := db.ExecContext(ctx, q, args...); err != nil {
			fmt.Fprintln(os.Stderr, "Insert failed:", err)
			os.Exit(1)
		}
		fmt.Printf("\rInserted %d / %d", (batch+1)*batchSize, total)
	}

	// Completed tasks need completed_at to satisfy the completion invariant.
	if _, err := db.ExecContext(ctx,
		`UPDATE tasks SET completed_at = CURRENT_TIMESTAMP WHERE completed AND completed_at IS NULL`); err != nil {
		fmt.Fprintln(os.Stderr, "\nBackfill failed:", err)
		os.Exit(1)
	}

	fmt.Printf("\nDone in %s\n", time.Since(start).Round(time.Millisecond))
}
