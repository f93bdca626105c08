package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/telecarehq/telecare_backend/config"
	"github.com/telecarehq/telecare_backend/internal/store"
	"github.com/telecarehq/telecare_backend/pkg/email"
)

// ---------------------------------------------------------------------------
// DTOs
// ---------------------------------------------------------------------------

type EventKind string

const (
	KindBooking      EventKind = "BOOKING"
	KindConfirmation EventKind = "CONFIRMATION"
	KindReminder     EventKind = "REMINDER"
	KindCancellation EventKind = "CANCELLATION"
	KindReschedule   EventKind = "RESCHEDULE"
)

// Event is the ephemeral payload handed to the dispatcher after a lifecycle
// transition commits. It is never persisted.
type Event struct {
	Kind        EventKind
	Appointment store.Appointment

	PatientName  string
	PatientEmail string
	DoctorName   string
	DoctorEmail  string

	// PrevScheduledAt is set for RESCHEDULE events only.
	PrevScheduledAt *time.Time
}

// Transport delivers a rendered message. *email.Client satisfies it.
type Transport interface {
	Send(ctx context.Context, m email.Message) error
}

// RetryPolicy bounds delivery attempts. The wait before attempt n+1 is
// n*BaseDelay (linear, not exponential).
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

func PolicyFromConfig(cfg config.NotificationsConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   time.Duration(cfg.BaseDelaySeconds) * time.Second,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	return p
}

// ---------------------------------------------------------------------------
// Interface
// ---------------------------------------------------------------------------

type Service interface {
	// Dispatch renders the event's template and attempts delivery with the
	// configured retry budget. The caller's state change has already
	// committed; a delivery failure is reported, never propagated back into
	// the transition.
	Dispatch(ctx context.Context, ev Event) error
}

// ---------------------------------------------------------------------------
// Implementation
// ---------------------------------------------------------------------------

type dispatcher struct {
	transport Transport
	policy    RetryPolicy
	logger    *slog.Logger

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func New(transport Transport, policy RetryPolicy, logger *slog.Logger) Service {
	return &dispatcher{
		transport: transport,
		policy:    policy.withDefaults(),
		logger:    logger,
		sleep:     sleepCtx,
	}
}

func (d *dispatcher) Dispatch(ctx context.Context, ev Event) error {
	tpl, ok := templates[ev.Kind]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKind, ev.Kind)
	}

	vars := ev.variables()
	subject := render(tpl.subject, vars)
	body := render(tpl.body, vars)

	var lastErr error
	for _, to := range ev.recipients() {
		if err := d.deliver(ctx, ev, to, subject, body); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// deliver runs the bounded retry loop for a single recipient.
func (d *dispatcher) deliver(ctx context.Context, ev Event, to, subject, body string) error {
	msg := email.Message{
		To:       []string{to},
		Subject:  subject,
		TextBody: body,
	}

	var lastErr error
	for attempt := 1; attempt <= d.policy.MaxAttempts; attempt++ {
		lastErr = d.transport.Send(ctx, msg)
		if lastErr == nil {
			if attempt > 1 {
				d.logger.Info("notification delivered after retry",
					"kind", ev.Kind,
					"appointment_id", ev.Appointment.ID,
					"attempt", attempt,
				)
			}
			return nil
		}

		d.logger.Warn("notification delivery attempt failed",
			"kind", ev.Kind,
			"appointment_id", ev.Appointment.ID,
			"attempt", attempt,
			"error", lastErr,
		)

		if attempt < d.policy.MaxAttempts {
			if err := d.sleep(ctx, time.Duration(attempt)*d.policy.BaseDelay); err != nil {
				lastErr = err
				break
			}
		}
	}

	dErr := &DeliveryError{
		Kind:     ev.Kind,
		To:       to,
		Attempts: d.policy.MaxAttempts,
		Err:      lastErr,
	}
	d.logger.Error("notification delivery abandoned",
		"kind", ev.Kind,
		"appointment_id", ev.Appointment.ID,
		"to", to,
		"error", dErr,
	)
	return dErr
}

// recipients applies the addressing rule: the patient always hears about the
// event; the doctor gets a copy only for changes they did not initiate.
func (ev Event) recipients() []string {
	out := []string{ev.PatientEmail}
	switch ev.Kind {
	case KindBooking, KindCancellation, KindReschedule:
		if ev.DoctorEmail != "" {
			out = append(out, ev.DoctorEmail)
		}
	}
	return out
}

func (ev Event) variables() map[string]string {
	when := ev.Appointment.ScheduledAt.UTC()
	vars := map[string]string{
		"patientName":     ev.PatientName,
		"doctorName":      ev.DoctorName,
		"appointmentDate": when.Format("2006-01-02"),
		"appointmentTime": when.Format("15:04 MST"),
		"appointmentType": string(ev.Appointment.Modality),
	}
	if ev.PrevScheduledAt != nil {
		prev := ev.PrevScheduledAt.UTC()
		vars["oldAppointmentDate"] = prev.Format("2006-01-02")
		vars["oldAppointmentTime"] = prev.Format("15:04 MST")
	}
	return vars
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
