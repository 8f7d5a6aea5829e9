package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"veobatch/internal/adapter/repo"
	"veobatch/internal/infra"
	"veobatch/internal/infra/credentials"
)

func main() {
	_ = godotenv.Load()

	var (
		keyFlag    string
		deleteFlag bool
	)
	flag.StringVar(&keyFlag, "key", "", "Gemini API key to store (falls back to GEMINI_API_KEY)")
	flag.BoolVar(&deleteFlag, "delete", false, "Remove the stored Gemini API key")
	flag.Parse()

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	key := strings.TrimSpace(keyFlag)
	if key == "" {
		key = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	}
	if key == "" && !deleteFlag {
		fmt.Fprintln(os.Stderr, "GEMINI API key is required via -key or environment")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create pool: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "geminikey").Logger()
	runner := infra.NewSQLRunner(pool, logger)
	if err := repo.NewJobJournal(runner).EnsureSchema(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to ensure schema: %v\n", err)
		os.Exit(1)
	}
	store := credentials.NewStore(runner)

	if deleteFlag {
		if err := store.DeleteGeminiAPIKey(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "failed to delete gemini api key: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("GEMINI API key removed")
		return
	}

	props := map[string]any{"stored_at": time.Now().UTC().Format(time.RFC3339)}
	if err := store.SetGeminiAPIKey(ctx, key, props); err != nil {
		fmt.Fprintf(os.Stderr, "failed to persist gemini api key: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("GEMINI API key stored successfully")
}
