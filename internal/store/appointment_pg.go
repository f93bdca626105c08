package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type pgAppointmentRepo struct {
	db *sql.DB
}

const appointmentColumns = `id, patient_id, doctor_id, scheduled_at, modality, status, notes, created_at, updated_at`

func scanAppointment(row interface{ Scan(...any) error }) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID, &a.PatientID, &a.DoctorID,
		&a.ScheduledAt, &a.Modality, &a.Status, &a.Notes,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *pgAppointmentRepo) Create(ctx context.Context, a *Appointment) error {
	const q = `
		INSERT INTO appointments (id, patient_id, doctor_id, scheduled_at, modality, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, q,
		a.ID, a.PatientID, a.DoctorID,
		a.ScheduledAt, a.Modality, a.Status, a.Notes, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *pgAppointmentRepo) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	q := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`

	a, err := scanAppointment(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return a, nil
}

func (r *pgAppointmentRepo) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Appointment, error) {
	q := `SELECT ` + appointmentColumns + ` FROM appointments WHERE patient_id = $1 ORDER BY scheduled_at`
	return r.list(ctx, q, patientID)
}

func (r *pgAppointmentRepo) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Appointment, error) {
	q := `SELECT ` + appointmentColumns + ` FROM appointments WHERE doctor_id = $1 ORDER BY scheduled_at`
	return r.list(ctx, q, doctorID)
}

func (r *pgAppointmentRepo) UpdateStatus(ctx context.Context, id uuid.UUID, expected AppointmentStatus, upd StatusUpdate) (*Appointment, error) {
	// The WHERE clause pins the status the caller observed; when a concurrent
	// transition got there first the update matches nothing.
	const q = `
		UPDATE appointments
		SET status = $1,
		    scheduled_at = COALESCE($2, scheduled_at),
		    modality = COALESCE($3, modality),
		    updated_at = $4
		WHERE id = $5 AND status = $6
		RETURNING ` + appointmentColumns

	var schedArg any
	if upd.ScheduledAt != nil {
		schedArg = upd.ScheduledAt.UTC()
	}
	var modArg any
	if upd.Modality != nil {
		modArg = string(*upd.Modality)
	}

	a, err := scanAppointment(r.db.QueryRowContext(ctx, q,
		upd.Status, schedArg, modArg, time.Now().UTC(), id, expected,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("update appointment status: %w", err)
	}
	return a, nil
}

func (r *pgAppointmentRepo) HasCompletedBetween(ctx context.Context, patientID, doctorID uuid.UUID) (bool, error) {
	const q = `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE patient_id = $1 AND doctor_id = $2 AND status = $3
		)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, q, patientID, doctorID, StatusCompleted).Scan(&exists); err != nil {
		return false, fmt.Errorf("completed-between check: %w", err)
	}
	return exists, nil
}

func (r *pgAppointmentRepo) ListApprovedBetween(ctx context.Context, from, to time.Time) ([]*Appointment, error) {
	q := `SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE status = $1 AND scheduled_at >= $2 AND scheduled_at < $3
		ORDER BY scheduled_at`

	rows, err := r.db.QueryContext(ctx, q, StatusApproved, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("list approved: %w", err)
	}
	return collectAppointments(rows)
}

func (r *pgAppointmentRepo) list(ctx context.Context, q string, arg any) ([]*Appointment, error) {
	rows, err := r.db.QueryContext(ctx, q, arg)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return collectAppointments(rows)
}

func collectAppointments(rows *sql.Rows) ([]*Appointment, error) {
	defer rows.Close()

	var out []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
