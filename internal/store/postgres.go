package store

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

// uniqueViolation is the Postgres error code for breaking a unique constraint.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// NewPostgresStores builds the full repository set on one connection pool.
func NewPostgresStores(db *sql.DB) *Stores {
	return &Stores{
		Users:         &pgUserRepo{db: db},
		Participants:  &pgParticipantRepo{db: db},
		Appointments:  &pgAppointmentRepo{db: db},
		Conversations: &pgConversationRepo{db: db},
	}
}
