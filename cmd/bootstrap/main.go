// Package main 初始化数据库 schema
package main

import (
	"database/sql"
	"fmt"
	"log"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"ppt-gen-api/internal/config"
)

const deckJobsSchema = `
CREATE TABLE IF NOT EXISTS deck_jobs (
    id            TEXT PRIMARY KEY,
    status        TEXT NOT NULL DEFAULT 'pending',
    input_params  JSONB,
    output_result JSONB,
    error_message TEXT,
    llm_provider  TEXT,
    page_count    INTEGER,
    used_fallback BOOLEAN NOT NULL DEFAULT FALSE,
    duration_ms   INTEGER,
    retry_count   INTEGER NOT NULL DEFAULT 0,
    progress      INTEGER NOT NULL DEFAULT 0,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    started_at    TIMESTAMPTZ,
    completed_at  TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_deck_jobs_status ON deck_jobs (status);
CREATE INDEX IF NOT EXISTS idx_deck_jobs_created_at ON deck_jobs (created_at DESC);
`

func main() {
	_ = godotenv.Load()

	fmt.Println("Starting schema bootstrap...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	pg := cfg.Database.Postgres
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		pg.Host, pg.Port, pg.User, pg.Password, pg.Database, pg.SSLMode,
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		log.Fatalf("failed to ping database: %v", err)
	}

	if _, err := db.Exec(deckJobsSchema); err != nil {
		log.Fatalf("failed to apply deck_jobs schema: %v", err)
	}

	fmt.Println("Bootstrap completed successfully.")
}
