package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type pgConversationRepo struct {
	db *sql.DB
}

func (r *pgConversationRepo) EnsurePair(ctx context.Context, patientID, doctorID uuid.UUID) (*Conversation, bool, error) {
	// Insert-or-fetch against the (patient_id, doctor_id) unique index. When
	// the row already exists DO NOTHING returns no row and we read the winner.
	const insert = `
		INSERT INTO conversations (id, patient_id, doctor_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (patient_id, doctor_id) DO NOTHING
		RETURNING id, patient_id, doctor_id, created_at`

	var c Conversation
	err := r.db.QueryRowContext(ctx, insert, uuid.New(), patientID, doctorID, time.Now().UTC()).
		Scan(&c.ID, &c.PatientID, &c.DoctorID, &c.CreatedAt)
	if err == nil {
		return &c, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("insert conversation: %w", err)
	}

	const fetch = `
		SELECT id, patient_id, doctor_id, created_at
		FROM conversations
		WHERE patient_id = $1 AND doctor_id = $2`

	err = r.db.QueryRowContext(ctx, fetch, patientID, doctorID).
		Scan(&c.ID, &c.PatientID, &c.DoctorID, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		// Lost the insert race yet the winner's row is not visible; the
		// caller may retry.
		return nil, false, ErrConflict
	}
	if err != nil {
		return nil, false, fmt.Errorf("fetch conversation: %w", err)
	}
	return &c, false, nil
}

func (r *pgConversationRepo) GetByID(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	const q = `SELECT id, patient_id, doctor_id, created_at FROM conversations WHERE id = $1`

	var c Conversation
	err := r.db.QueryRowContext(ctx, q, id).Scan(&c.ID, &c.PatientID, &c.DoctorID, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return &c, nil
}

func (r *pgConversationRepo) ListByParticipant(ctx context.Context, participantID uuid.UUID) ([]*Conversation, error) {
	const q = `
		SELECT id, patient_id, doctor_id, created_at
		FROM conversations
		WHERE patient_id = $1 OR doctor_id = $1
		ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, q, participantID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []*Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.PatientID, &c.DoctorID, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (r *pgConversationRepo) AppendMessage(ctx context.Context, m *Message) error {
	const q = `
		INSERT INTO messages (id, conversation_id, sender_id, content, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.CreatedAt = time.Now().UTC()

	if _, err := r.db.ExecContext(ctx, q, m.ID, m.ConversationID, m.SenderID, m.Content, m.CreatedAt); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *pgConversationRepo) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]*Message, error) {
	const q = `
		SELECT id, conversation_id, sender_id, content, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, q, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}
