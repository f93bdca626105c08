package conversation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/telecarehq/telecare_backend/internal/store"
	"github.com/telecarehq/telecare_backend/internal/store/storetest"
)

type fixture struct {
	svc     Service
	stores  *store.Stores
	patient Caller
	doctor  Caller
}

func newTestFixture(t *testing.T) *fixture {
	t.Helper()

	stores := storetest.New()
	ctx := context.Background()

	pu := &store.User{Email: "jamie@example.com", FullName: "Jamie Rivera", Role: store.RolePatient, PasswordHash: "x"}
	if err := stores.Users.Create(ctx, pu); err != nil {
		t.Fatalf("create patient user: %v", err)
	}
	patient, err := stores.Participants.CreatePatient(ctx, pu.ID)
	if err != nil {
		t.Fatalf("create patient: %v", err)
	}

	du := &store.User{Email: "chen@example.com", FullName: "Chen", Role: store.RoleDoctor, PasswordHash: "x"}
	if err := stores.Users.Create(ctx, du); err != nil {
		t.Fatalf("create doctor user: %v", err)
	}
	doctor, err := stores.Participants.CreateDoctor(ctx, du.ID, "cardiology")
	if err != nil {
		t.Fatalf("create doctor: %v", err)
	}

	return &fixture{
		svc:     New(stores.Conversations, stores.Appointments, nil, slog.New(slog.DiscardHandler)),
		stores:  stores,
		patient: Caller{UserID: pu.ID, ParticipantID: patient.ID, Role: store.RolePatient},
		doctor:  Caller{UserID: du.ID, ParticipantID: doctor.ID, Role: store.RoleDoctor},
	}
}

func (f *fixture) completeAppointment(t *testing.T) {
	t.Helper()
	err := f.stores.Appointments.Create(context.Background(), &store.Appointment{
		PatientID:   f.patient.ParticipantID,
		DoctorID:    f.doctor.ParticipantID,
		ScheduledAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		Modality:    store.ModalityInPerson,
		Status:      store.StatusCompleted,
	})
	if err != nil {
		t.Fatalf("seed completed appointment: %v", err)
	}
}

func (f *fixture) unlock(t *testing.T) *store.Conversation {
	t.Helper()
	if err := f.svc.Unlock(context.Background(), f.patient.ParticipantID, f.doctor.ParticipantID); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	convs, err := f.svc.List(context.Background(), f.patient)
	if err != nil || len(convs) != 1 {
		t.Fatalf("List() = %v convs, err %v, want exactly 1", len(convs), err)
	}
	return convs[0]
}

func TestUnlockIdempotent(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()

	if err := f.svc.Unlock(ctx, f.patient.ParticipantID, f.doctor.ParticipantID); err != nil {
		t.Fatalf("first Unlock() error = %v", err)
	}
	if err := f.svc.Unlock(ctx, f.patient.ParticipantID, f.doctor.ParticipantID); err != nil {
		t.Fatalf("second Unlock() error = %v", err)
	}

	convs, err := f.svc.List(ctx, f.patient)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(convs) != 1 {
		t.Errorf("got %d conversations, want 1", len(convs))
	}
}

func TestUnlockConcurrent(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f.svc.Unlock(ctx, f.patient.ParticipantID, f.doctor.ParticipantID); err != nil {
				t.Errorf("Unlock() error = %v", err)
			}
		}()
	}
	wg.Wait()

	convs, err := f.svc.List(ctx, f.patient)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(convs) != 1 {
		t.Errorf("got %d conversations, want exactly 1", len(convs))
	}
}

func TestEnsureRequiresCompletedAppointment(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Ensure(ctx, f.patient, f.doctor.ParticipantID); !errors.Is(err, ErrNotUnlocked) {
		t.Fatalf("Ensure() error = %v, want ErrNotUnlocked", err)
	}

	f.completeAppointment(t)

	conv, err := f.svc.Ensure(ctx, f.patient, f.doctor.ParticipantID)
	if err != nil {
		t.Fatalf("Ensure() after completion error = %v", err)
	}

	// Doctor-initiated ensure resolves to the same pair.
	conv2, err := f.svc.Ensure(ctx, f.doctor, f.patient.ParticipantID)
	if err != nil {
		t.Fatalf("Ensure() as doctor error = %v", err)
	}
	if conv.ID != conv2.ID {
		t.Errorf("conversation ids differ: %s vs %s", conv.ID, conv2.ID)
	}
}

func TestPostAndListMessages(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()
	conv := f.unlock(t)

	first, err := f.svc.PostMessage(ctx, f.patient, conv.ID, "  Hello doctor  ")
	if err != nil {
		t.Fatalf("PostMessage() error = %v", err)
	}
	if first.Content != "Hello doctor" {
		t.Errorf("content = %q, want trimmed %q", first.Content, "Hello doctor")
	}
	if first.SenderID != f.patient.UserID {
		t.Errorf("sender = %s, want patient user %s", first.SenderID, f.patient.UserID)
	}

	if _, err := f.svc.PostMessage(ctx, f.doctor, conv.ID, "Hello Jamie"); err != nil {
		t.Fatalf("PostMessage() as doctor error = %v", err)
	}

	msgs, err := f.svc.ListMessages(ctx, f.doctor, conv.ID)
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	// Oldest first.
	if msgs[0].Content != "Hello doctor" || msgs[1].Content != "Hello Jamie" {
		t.Errorf("order = %q, %q", msgs[0].Content, msgs[1].Content)
	}
}

func TestPostMessageRejectsEmptyContent(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()
	conv := f.unlock(t)

	for _, content := range []string{"", "   ", "\n\t "} {
		if _, err := f.svc.PostMessage(ctx, f.patient, conv.ID, content); !errors.Is(err, ErrEmptyContent) {
			t.Errorf("PostMessage(%q) error = %v, want ErrEmptyContent", content, err)
		}
	}

	msgs, err := f.svc.ListMessages(ctx, f.patient, conv.ID)
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("got %d messages, want 0", len(msgs))
	}
}

func TestConversationAccessControl(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()
	conv := f.unlock(t)

	stranger := Caller{UserID: uuid.New(), ParticipantID: uuid.New(), Role: store.RolePatient}

	if _, err := f.svc.ListMessages(ctx, stranger, conv.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("ListMessages() stranger error = %v, want ErrForbidden", err)
	}
	if _, err := f.svc.PostMessage(ctx, stranger, conv.ID, "hi"); !errors.Is(err, ErrForbidden) {
		t.Errorf("PostMessage() stranger error = %v, want ErrForbidden", err)
	}
	if _, err := f.svc.ListMessages(ctx, f.patient, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("ListMessages() unknown id error = %v, want ErrNotFound", err)
	}
}

// The channel stays open even if a later appointment between the pair is
// canceled.
func TestConversationPersistsAfterCancellation(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()

	f.completeAppointment(t)
	conv, err := f.svc.Ensure(ctx, f.patient, f.doctor.ParticipantID)
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}

	err = f.stores.Appointments.Create(ctx, &store.Appointment{
		PatientID:   f.patient.ParticipantID,
		DoctorID:    f.doctor.ParticipantID,
		ScheduledAt: time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC),
		Modality:    store.ModalityOnline,
		Status:      store.StatusCanceled,
	})
	if err != nil {
		t.Fatalf("seed canceled appointment: %v", err)
	}

	if _, err := f.svc.PostMessage(ctx, f.patient, conv.ID, "still here"); err != nil {
		t.Errorf("PostMessage() after cancellation error = %v", err)
	}
}
