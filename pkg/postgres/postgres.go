package postgres

import (
	"context"
	"fmt"

	"github.com/ds124wfegd/tourbooker/config"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	_ "github.com/lib/pq"
)

func NewPostgresDB(ctx context.Context, cfg *config.DatabaseConfig) (*sqlx.DB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	db, err := sqlx.ConnectContext(ctx, "postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	logrus.WithField("host", cfg.Host).Info("Successfully connected to PostgreSQL")
	return db, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS guides (
		id TEXT PRIMARY KEY,
		user_id TEXT UNIQUE NOT NULL,
		name VARCHAR(255) NOT NULL,
		languages TEXT[] NOT NULL DEFAULT '{}',
		rating DOUBLE PRECISION NOT NULL DEFAULT 0,
		bio TEXT NOT NULL DEFAULT '',
		expertise TEXT[] NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS attractions (
		id TEXT PRIMARY KEY,
		guide_id TEXT NOT NULL REFERENCES guides(id),
		name VARCHAR(255) NOT NULL,
		location TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		duration TEXT NOT NULL DEFAULT '',
		price DOUBLE PRECISION NOT NULL DEFAULT 0,
		rating DOUBLE PRECISION NOT NULL DEFAULT 0,
		tags TEXT[] NOT NULL DEFAULT '{}',
		image TEXT NOT NULL DEFAULT '',
		availability TEXT[] NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS guide_availability (
		guide_id TEXT NOT NULL REFERENCES guides(id),
		date DATE NOT NULL,
		total_slots INTEGER NOT NULL CHECK (total_slots >= 0),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (guide_id, date)
	)`,

	`CREATE TABLE IF NOT EXISTS bookings (
		id TEXT PRIMARY KEY,
		attraction_id TEXT NOT NULL REFERENCES attractions(id),
		guide_id TEXT NOT NULL REFERENCES guides(id),
		customer_id TEXT NOT NULL,
		customer_name VARCHAR(255) NOT NULL,
		email VARCHAR(255) NOT NULL,
		date DATE NOT NULL,
		party_size INTEGER NOT NULL CHECK (party_size > 0),
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS itineraries (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		traveler_name VARCHAR(255) NOT NULL DEFAULT '',
		title VARCHAR(255) NOT NULL,
		start_date DATE NULL,
		end_date DATE NULL,
		items JSONB NOT NULL DEFAULT '[]',
		attraction_ids TEXT[] NOT NULL DEFAULT '{}',
		notes TEXT NOT NULL DEFAULT '',
		source VARCHAR(20) NOT NULL DEFAULT 'manual',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	// Indexes
	`CREATE INDEX IF NOT EXISTS idx_bookings_slot_status ON bookings(guide_id, date, status)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_customer_id ON bookings(customer_id)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_status_date ON bookings(status, date)`,
	`CREATE INDEX IF NOT EXISTS idx_itineraries_user_id ON itineraries(user_id)`,
}

func RunMigrations(ctx context.Context, db *sqlx.DB) error {
	for _, migration := range migrations {
		if _, err := db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}

	logrus.Info("Database migrations completed successfully")
	return nil
}
