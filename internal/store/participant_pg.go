package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type pgParticipantRepo struct {
	db *sql.DB
}

func (r *pgParticipantRepo) Resolve(ctx context.Context, userID uuid.UUID, kind Role) (*Participant, error) {
	switch kind {
	case RolePatient:
		const q = `
			SELECT p.id, p.user_id, u.full_name, u.email
			FROM patients p JOIN users u ON u.id = p.user_id
			WHERE p.user_id = $1`
		return r.scanOne(ctx, q, RolePatient, userID)
	case RoleDoctor:
		const q = `
			SELECT d.id, d.user_id, u.full_name, u.email, d.specialty
			FROM doctors d JOIN users u ON u.id = d.user_id
			WHERE d.user_id = $1`
		return r.scanOneDoctor(ctx, q, userID)
	default:
		return nil, fmt.Errorf("resolve participant: unknown kind %q", kind)
	}
}

func (r *pgParticipantRepo) GetPatient(ctx context.Context, id uuid.UUID) (*Participant, error) {
	const q = `
		SELECT p.id, p.user_id, u.full_name, u.email
		FROM patients p JOIN users u ON u.id = p.user_id
		WHERE p.id = $1`
	return r.scanOne(ctx, q, RolePatient, id)
}

func (r *pgParticipantRepo) GetDoctor(ctx context.Context, id uuid.UUID) (*Participant, error) {
	const q = `
		SELECT d.id, d.user_id, u.full_name, u.email, d.specialty
		FROM doctors d JOIN users u ON u.id = d.user_id
		WHERE d.id = $1`
	return r.scanOneDoctor(ctx, q, id)
}

func (r *pgParticipantRepo) ListDoctors(ctx context.Context) ([]*Participant, error) {
	const q = `
		SELECT d.id, d.user_id, u.full_name, u.email, d.specialty
		FROM doctors d JOIN users u ON u.id = d.user_id
		ORDER BY u.full_name`

	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	defer rows.Close()

	var out []*Participant
	for rows.Next() {
		p := Participant{Kind: RoleDoctor}
		if err := rows.Scan(&p.ID, &p.UserID, &p.FullName, &p.Email, &p.Specialty); err != nil {
			return nil, fmt.Errorf("scan doctor: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (r *pgParticipantRepo) CreatePatient(ctx context.Context, userID uuid.UUID) (*Participant, error) {
	const q = `INSERT INTO patients (id, user_id, created_at) VALUES ($1, $2, $3)`

	id := uuid.New()
	if _, err := r.db.ExecContext(ctx, q, id, userID, time.Now().UTC()); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("insert patient: %w", err)
	}
	return r.GetPatient(ctx, id)
}

func (r *pgParticipantRepo) CreateDoctor(ctx context.Context, userID uuid.UUID, specialty string) (*Participant, error) {
	const q = `INSERT INTO doctors (id, user_id, specialty, created_at) VALUES ($1, $2, $3, $4)`

	id := uuid.New()
	if _, err := r.db.ExecContext(ctx, q, id, userID, specialty, time.Now().UTC()); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("insert doctor: %w", err)
	}
	return r.GetDoctor(ctx, id)
}

func (r *pgParticipantRepo) scanOne(ctx context.Context, q string, kind Role, arg any) (*Participant, error) {
	p := Participant{Kind: kind}
	err := r.db.QueryRowContext(ctx, q, arg).Scan(&p.ID, &p.UserID, &p.FullName, &p.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get participant: %w", err)
	}
	return &p, nil
}

func (r *pgParticipantRepo) scanOneDoctor(ctx context.Context, q string, arg any) (*Participant, error) {
	p := Participant{Kind: RoleDoctor}
	err := r.db.QueryRowContext(ctx, q, arg).Scan(&p.ID, &p.UserID, &p.FullName, &p.Email, &p.Specialty)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get doctor: %w", err)
	}
	return &p, nil
}
