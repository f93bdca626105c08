package app

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/telecarehq/telecare_backend/config"
	"github.com/telecarehq/telecare_backend/internal/service/notification"
	"github.com/telecarehq/telecare_backend/internal/store"
)

// WorkerModule registers the reminder scheduler and NATS event workers.
var WorkerModule = fx.Module("workers",
	fx.Invoke(RegisterWorkers),
)

type WorkerParams struct {
	fx.In

	Lc         fx.Lifecycle
	NC         *nats.Conn
	Rdb        *redis.Client
	Stores     *store.Stores
	Dispatcher notification.Service
	Cfg        *config.Config
}

func RegisterWorkers(p WorkerParams) {
	stop := make(chan struct{})

	p.Lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go runReminderWorker(p, stop)
			startMessageWorker(p.NC, p.Stores)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			close(stop)
			// NATS drain handled by ProvideNatsClient
			return nil
		},
	})
}

// ---------------------------------------------------------------------------
// reminder_worker
// ---------------------------------------------------------------------------

// runReminderWorker periodically scans for APPROVED appointments inside the
// reminder window and dispatches a REMINDER for each, deduplicated across
// instances with a Redis SETNX key per appointment.
func runReminderWorker(p WorkerParams, stop <-chan struct{}) {
	interval := time.Duration(p.Cfg.Notifications.ReminderIntervalMin) * time.Minute
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	window := time.Duration(p.Cfg.Notifications.ReminderWindowHours) * time.Hour
	if window <= 0 {
		window = 24 * time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			remindUpcoming(p.Rdb, p.Stores, p.Dispatcher, window)
		}
	}
}

// reminderStore is the slice of the Redis client the reminder sweep needs.
type reminderStore interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

func remindUpcoming(rdb reminderStore, stores *store.Stores, dispatcher notification.Service, window time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	now := time.Now().UTC()
	appts, err := stores.Appointments.ListApprovedBetween(ctx, now, now.Add(window))
	if err != nil {
		slog.Error("reminder_worker: list upcoming failed", "err", err)
		return
	}

	for _, appt := range appts {
		// One reminder per appointment, cluster-wide.
		key := "reminder:" + appt.ID.String()
		set, err := rdb.SetNX(ctx, key, "1", window+time.Hour).Result()
		if err != nil {
			slog.Warn("reminder_worker: dedupe check failed", "appointment_id", appt.ID, "err", err)
			continue
		}
		if !set {
			continue
		}

		patient, err := stores.Participants.GetPatient(ctx, appt.PatientID)
		if err != nil {
			slog.Warn("reminder_worker: resolve patient failed", "appointment_id", appt.ID, "err", err)
			releaseReminderClaim(ctx, rdb, key, appt.ID)
			continue
		}
		doctor, err := stores.Participants.GetDoctor(ctx, appt.DoctorID)
		if err != nil {
			slog.Warn("reminder_worker: resolve doctor failed", "appointment_id", appt.ID, "err", err)
			releaseReminderClaim(ctx, rdb, key, appt.ID)
			continue
		}

		// Delivery failures are logged by the dispatcher; releasing the
		// claim lets the next sweep try again instead of dropping the
		// reminder for good.
		err = dispatcher.Dispatch(ctx, notification.Event{
			Kind:         notification.KindReminder,
			Appointment:  *appt,
			PatientName:  patient.FullName,
			PatientEmail: patient.Email,
			DoctorName:   doctor.FullName,
			DoctorEmail:  doctor.Email,
		})
		if err != nil {
			releaseReminderClaim(ctx, rdb, key, appt.ID)
		}
	}
}

func releaseReminderClaim(ctx context.Context, rdb reminderStore, key string, apptID uuid.UUID) {
	if err := rdb.Del(ctx, key).Err(); err != nil {
		slog.Warn("reminder_worker: release claim failed", "appointment_id", apptID, "err", err)
	}
}

// ---------------------------------------------------------------------------
// message_worker
// ---------------------------------------------------------------------------

func startMessageWorker(nc *nats.Conn, stores *store.Stores) {
	_, err := nc.Subscribe("telecare.message.new.*", func(msg *nats.Msg) {
		parts := strings.Split(msg.Subject, ".")
		if len(parts) < 4 {
			return
		}
		convID, err := uuid.Parse(parts[3])
		if err != nil {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		conv, err := stores.Conversations.GetByID(ctx, convID)
		if err != nil {
			slog.Warn("message_worker: conversation not found", "id", convID, "err", err)
			return
		}

		slog.Info("new message",
			"conversation_id", conv.ID,
			"message_id", strings.TrimSpace(string(msg.Data)),
		)
	})
	if err != nil {
		slog.Error("message_worker: subscribe failed", "err", err)
	}
}
