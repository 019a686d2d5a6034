package db

import (
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const (
	maxConnectRetries = 5
	connectRetryDelay = 5 * time.Second
)

// Connect initializes the database connection and runs migrations. A failed
// connect is retried a bounded number of times with a fixed delay before
// giving up.
func Connect(dsn string) (*sqlx.DB, error) {
	var db *sqlx.DB
	var err error
	for attempt := 0; ; attempt++ {
		db, err = sqlx.Connect("postgres", dsn)
		if err == nil {
			break
		}
		if attempt >= maxConnectRetries {
			return nil, fmt.Errorf("connect db: %w", err)
		}
		log.Printf("database connection failed, retrying (%d/%d): %v", attempt+1, maxConnectRetries, err)
		time.Sleep(connectRetryDelay)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(10 * time.Second)

	if err := runMigrations(db); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
            id BIGSERIAL PRIMARY KEY,
            phone_number TEXT NOT NULL UNIQUE,
            name TEXT NOT NULL,
            password_hash TEXT NOT NULL,
            about TEXT,
            profile_picture TEXT,
            is_active BOOLEAN NOT NULL DEFAULT FALSE,
            last_seen_at TIMESTAMPTZ,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	`CREATE TABLE IF NOT EXISTS chats (
            id TEXT PRIMARY KEY,
            is_group BOOLEAN NOT NULL DEFAULT FALSE,
            title TEXT,
            description TEXT,
            created_by BIGINT NOT NULL REFERENCES users(id),
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            properties JSONB NOT NULL DEFAULT '{}'::jsonb
        );`,
	`CREATE TABLE IF NOT EXISTS chat_members (
            chat_id TEXT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
            user_id BIGINT NOT NULL REFERENCES users(id),
            role INT NOT NULL DEFAULT 0,
            PRIMARY KEY (chat_id, user_id)
        );`,
	`CREATE TABLE IF NOT EXISTS messages (
            id BIGSERIAL PRIMARY KEY,
            chat_id TEXT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
            sender_user_id BIGINT NOT NULL REFERENCES users(id),
            message_type TEXT NOT NULL DEFAULT 'text',
            body TEXT,
            media_id TEXT,
            quoted_message_id BIGINT REFERENCES messages(id) ON DELETE SET NULL,
            edit_of BIGINT REFERENCES messages(id) ON DELETE SET NULL,
            ephemeral_expires_at TIMESTAMPTZ,
            seq BIGINT NOT NULL,
            metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            server_received_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            UNIQUE (chat_id, seq)
        );`,
	`CREATE TABLE IF NOT EXISTS message_receipts (
            message_id BIGINT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
            recipient_user_id BIGINT NOT NULL REFERENCES users(id),
            delivered_at TIMESTAMPTZ,
            read_at TIMESTAMPTZ,
            PRIMARY KEY (message_id, recipient_user_id)
        );`,
	`CREATE INDEX IF NOT EXISTS idx_messages_chat_created ON messages (chat_id, created_at);`,
	`CREATE INDEX IF NOT EXISTS idx_receipts_pending ON message_receipts (recipient_user_id) WHERE delivered_at IS NULL;`,
}

func runMigrations(db *sqlx.DB) error {
	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	log.Println("database migrations applied")
	return nil
}
