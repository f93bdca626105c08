package store

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied in order by Migrate. Statements are idempotent so the
// migrate command can run on every deploy.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            UUID PRIMARY KEY,
		email         TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		full_name     TEXT NOT NULL,
		role          TEXT NOT NULL CHECK (role IN ('patient', 'doctor')),
		created_at    TIMESTAMPTZ NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS patients (
		id         UUID PRIMARY KEY,
		user_id    UUID NOT NULL UNIQUE REFERENCES users(id),
		created_at TIMESTAMPTZ NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS doctors (
		id         UUID PRIMARY KEY,
		user_id    UUID NOT NULL UNIQUE REFERENCES users(id),
		specialty  TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS appointments (
		id           UUID PRIMARY KEY,
		patient_id   UUID NOT NULL REFERENCES patients(id),
		doctor_id    UUID NOT NULL REFERENCES doctors(id),
		scheduled_at TIMESTAMPTZ NOT NULL,
		modality     TEXT NOT NULL CHECK (modality IN ('IN_PERSON', 'ONLINE', 'VIDEO_CALL')),
		status       TEXT NOT NULL CHECK (status IN ('PENDING', 'APPROVED', 'REJECTED', 'COMPLETED', 'CANCELED')),
		notes        TEXT,
		created_at   TIMESTAMPTZ NOT NULL,
		updated_at   TIMESTAMPTZ NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_appointments_patient ON appointments (patient_id, scheduled_at)`,
	`CREATE INDEX IF NOT EXISTS idx_appointments_doctor ON appointments (doctor_id, scheduled_at)`,
	`CREATE INDEX IF NOT EXISTS idx_appointments_status_scheduled ON appointments (status, scheduled_at)`,

	`CREATE TABLE IF NOT EXISTS conversations (
		id         UUID PRIMARY KEY,
		patient_id UUID NOT NULL REFERENCES patients(id),
		doctor_id  UUID NOT NULL REFERENCES doctors(id),
		created_at TIMESTAMPTZ NOT NULL,
		UNIQUE (patient_id, doctor_id)
	)`,

	`CREATE TABLE IF NOT EXISTS messages (
		id              UUID PRIMARY KEY,
		conversation_id UUID NOT NULL REFERENCES conversations(id),
		sender_id       UUID NOT NULL,
		content         TEXT NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages (conversation_id, created_at)`,
}

// Migrate creates the schema if it does not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement: %w", err)
		}
	}
	return nil
}
