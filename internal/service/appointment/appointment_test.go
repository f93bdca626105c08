package appointment

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/telecarehq/telecare_backend/internal/service/notification"
	"github.com/telecarehq/telecare_backend/internal/store"
	"github.com/telecarehq/telecare_backend/internal/store/storetest"
)

type captureDispatcher struct {
	ch chan notification.Event
}

func (d *captureDispatcher) Dispatch(_ context.Context, ev notification.Event) error {
	d.ch <- ev
	return nil
}

type failingDispatcher struct {
	ch chan notification.Event
}

func (d *failingDispatcher) Dispatch(_ context.Context, ev notification.Event) error {
	d.ch <- ev
	return &notification.DeliveryError{Kind: ev.Kind, Attempts: 3, Err: errors.New("smtp down")}
}

type fakeGate struct {
	mu    sync.Mutex
	pairs [][2]uuid.UUID
}

func (g *fakeGate) Unlock(_ context.Context, patientID, doctorID uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pairs = append(g.pairs, [2]uuid.UUID{patientID, doctorID})
	return nil
}

type fixture struct {
	svc     Service
	stores  *store.Stores
	gate    *fakeGate
	events  chan notification.Event
	patient Actor
	doctor  Actor
}

func newFixture(t *testing.T, dispatcher notification.Service, events chan notification.Event) *fixture {
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

	gate := &fakeGate{}
	svc := New(stores.Appointments, stores.Participants, dispatcher, gate, nil, slog.New(slog.DiscardHandler), time.Second)

	return &fixture{
		svc:     svc,
		stores:  stores,
		gate:    gate,
		events:  events,
		patient: Actor{ParticipantID: patient.ID, Role: store.RolePatient},
		doctor:  Actor{ParticipantID: doctor.ID, Role: store.RoleDoctor},
	}
}

func newTestFixture(t *testing.T) *fixture {
	events := make(chan notification.Event, 16)
	return newFixture(t, &captureDispatcher{ch: events}, events)
}

func (f *fixture) waitEvent(t *testing.T) notification.Event {
	t.Helper()
	select {
	case ev := <-f.events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification event")
		return notification.Event{}
	}
}

func (f *fixture) book(t *testing.T) *store.Appointment {
	t.Helper()
	appt, err := f.svc.Book(context.Background(), f.patient, BookRequest{
		DoctorID:    f.doctor.ParticipantID,
		ScheduledAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		Modality:    store.ModalityInPerson,
	})
	if err != nil {
		t.Fatalf("Book() error = %v", err)
	}
	return appt
}

func TestBook(t *testing.T) {
	f := newTestFixture(t)

	appt := f.book(t)
	if appt.Status != store.StatusPending {
		t.Errorf("status = %s, want PENDING", appt.Status)
	}

	ev := f.waitEvent(t)
	if ev.Kind != notification.KindBooking {
		t.Errorf("event kind = %s, want BOOKING", ev.Kind)
	}
	if ev.PatientEmail != "jamie@example.com" || ev.DoctorEmail != "chen@example.com" {
		t.Errorf("event recipients = %q / %q", ev.PatientEmail, ev.DoctorEmail)
	}
}

func TestBookValidation(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Book(ctx, f.doctor, BookRequest{DoctorID: f.doctor.ParticipantID, ScheduledAt: time.Now(), Modality: store.ModalityOnline}); !errors.Is(err, ErrForbidden) {
		t.Errorf("Book() as doctor error = %v, want ErrForbidden", err)
	}
	if _, err := f.svc.Book(ctx, f.patient, BookRequest{DoctorID: f.doctor.ParticipantID, ScheduledAt: time.Now(), Modality: "CARRIER_PIGEON"}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Book() bad modality error = %v, want ErrInvalidArgument", err)
	}
	if _, err := f.svc.Book(ctx, f.patient, BookRequest{DoctorID: uuid.New(), ScheduledAt: time.Now(), Modality: store.ModalityOnline}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Book() unknown doctor error = %v, want ErrNotFound", err)
	}
}

// Happy path: book, approve, complete, conversation unlocked exactly once.
func TestLifecycleHappyPath(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()

	appt := f.book(t)
	f.waitEvent(t) // BOOKING

	approved, err := f.svc.Transition(ctx, f.doctor, appt.ID, TransitionRequest{Target: store.StatusApproved})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != store.StatusApproved {
		t.Errorf("status = %s, want APPROVED", approved.Status)
	}
	if ev := f.waitEvent(t); ev.Kind != notification.KindConfirmation {
		t.Errorf("approve event kind = %s, want CONFIRMATION", ev.Kind)
	}

	completed, err := f.svc.Transition(ctx, f.doctor, appt.ID, TransitionRequest{Target: store.StatusCompleted})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.Status != store.StatusCompleted {
		t.Errorf("status = %s, want COMPLETED", completed.Status)
	}
	f.waitEvent(t)

	if len(f.gate.pairs) != 1 {
		t.Fatalf("gate unlocked %d times, want 1", len(f.gate.pairs))
	}
	if got := f.gate.pairs[0]; got[0] != f.patient.ParticipantID || got[1] != f.doctor.ParticipantID {
		t.Errorf("gate unlocked for %v, want (%s, %s)", got, f.patient.ParticipantID, f.doctor.ParticipantID)
	}
}

func TestTransitionDenied(t *testing.T) {
	tests := []struct {
		name    string
		from    store.AppointmentStatus
		actor   string // "patient" | "doctor"
		target  store.AppointmentStatus
		wantErr error
	}{
		{"patient cannot approve", store.StatusPending, "patient", store.StatusApproved, ErrInvalidTransition},
		{"doctor cannot complete pending", store.StatusPending, "doctor", store.StatusCompleted, ErrInvalidTransition},
		{"doctor cannot cancel", store.StatusPending, "doctor", store.StatusCanceled, ErrInvalidTransition},
		{"rejected is terminal", store.StatusRejected, "doctor", store.StatusApproved, ErrInvalidTransition},
		{"completed is terminal", store.StatusCompleted, "patient", store.StatusCanceled, ErrInvalidTransition},
		{"canceled is terminal", store.StatusCanceled, "doctor", store.StatusApproved, ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTestFixture(t)
			ctx := context.Background()

			appt := f.book(t)
			f.waitEvent(t)
			if tt.from != store.StatusPending {
				if _, err := f.stores.Appointments.UpdateStatus(ctx, appt.ID, store.StatusPending, store.StatusUpdate{Status: tt.from}); err != nil {
					t.Fatalf("seed status: %v", err)
				}
			}

			actor := f.patient
			if tt.actor == "doctor" {
				actor = f.doctor
			}
			_, err := f.svc.Transition(ctx, actor, appt.ID, TransitionRequest{Target: tt.target})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Transition() error = %v, want %v", err, tt.wantErr)
			}

			after, err := f.stores.Appointments.GetByID(ctx, appt.ID)
			if err != nil {
				t.Fatalf("reload: %v", err)
			}
			if after.Status != tt.from {
				t.Errorf("status changed to %s, want unchanged %s", after.Status, tt.from)
			}
		})
	}
}

func TestTransitionForbiddenForOutsider(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()

	appt := f.book(t)
	f.waitEvent(t)

	stranger := Actor{ParticipantID: uuid.New(), Role: store.RoleDoctor}
	if _, err := f.svc.Transition(ctx, stranger, appt.ID, TransitionRequest{Target: store.StatusApproved}); !errors.Is(err, ErrForbidden) {
		t.Errorf("Transition() error = %v, want ErrForbidden", err)
	}

	if _, err := f.svc.Transition(ctx, f.doctor, uuid.New(), TransitionRequest{Target: store.StatusApproved}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Transition() unknown id error = %v, want ErrNotFound", err)
	}
}

func TestReschedule(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()

	appt := f.book(t)
	f.waitEvent(t)
	if _, err := f.svc.Transition(ctx, f.doctor, appt.ID, TransitionRequest{Target: store.StatusApproved}); err != nil {
		t.Fatalf("approve: %v", err)
	}
	f.waitEvent(t)

	newTime := time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)
	newModality := store.ModalityVideoCall
	updated, err := f.svc.Transition(ctx, f.doctor, appt.ID, TransitionRequest{
		Target:      store.StatusPending,
		ScheduledAt: &newTime,
		Modality:    &newModality,
	})
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if updated.Status != store.StatusPending {
		t.Errorf("status = %s, want PENDING", updated.Status)
	}
	if !updated.ScheduledAt.Equal(newTime) || updated.Modality != store.ModalityVideoCall {
		t.Errorf("updated to %s %s, want %s VIDEO_CALL", updated.ScheduledAt, updated.Modality, newTime)
	}

	ev := f.waitEvent(t)
	if ev.Kind != notification.KindReschedule {
		t.Fatalf("event kind = %s, want RESCHEDULE", ev.Kind)
	}
	if ev.PrevScheduledAt == nil || !ev.PrevScheduledAt.Equal(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("event PrevScheduledAt = %v, want original time", ev.PrevScheduledAt)
	}
}

func TestRescheduleValidation(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()

	appt := f.book(t)
	f.waitEvent(t)
	if _, err := f.svc.Transition(ctx, f.doctor, appt.ID, TransitionRequest{Target: store.StatusApproved}); err != nil {
		t.Fatalf("approve: %v", err)
	}
	f.waitEvent(t)

	// Missing new time.
	if _, err := f.svc.Transition(ctx, f.doctor, appt.ID, TransitionRequest{Target: store.StatusPending}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("reschedule without time error = %v, want ErrInvalidArgument", err)
	}

	// Payload on a non-reschedule transition.
	later := time.Now().Add(time.Hour)
	if _, err := f.svc.Transition(ctx, f.doctor, appt.ID, TransitionRequest{Target: store.StatusCompleted, ScheduledAt: &later}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("complete with payload error = %v, want ErrInvalidArgument", err)
	}
}

// racingRepo makes a competing transition commit between the service's read
// and its conditional write.
type racingRepo struct {
	store.AppointmentRepository
	once    sync.Once
	compete func()
}

func (r *racingRepo) UpdateStatus(ctx context.Context, id uuid.UUID, expected store.AppointmentStatus, upd store.StatusUpdate) (*store.Appointment, error) {
	r.once.Do(r.compete)
	return r.AppointmentRepository.UpdateStatus(ctx, id, expected, upd)
}

func TestTransitionLostRace(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()

	appt := f.book(t)
	f.waitEvent(t)

	racing := &racingRepo{
		AppointmentRepository: f.stores.Appointments,
		compete: func() {
			if _, err := f.stores.Appointments.UpdateStatus(ctx, appt.ID, store.StatusPending, store.StatusUpdate{Status: store.StatusRejected}); err != nil {
				t.Errorf("competing update: %v", err)
			}
		},
	}
	svc := New(racing, f.stores.Participants, &captureDispatcher{ch: f.events}, f.gate, nil, slog.New(slog.DiscardHandler), time.Second)

	_, err := svc.Transition(ctx, f.doctor, appt.ID, TransitionRequest{Target: store.StatusApproved})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("Transition() error = %v, want ErrConflict", err)
	}

	after, err := f.stores.Appointments.GetByID(ctx, appt.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if after.Status != store.StatusRejected {
		t.Errorf("final status = %s, want the winner's REJECTED", after.Status)
	}
}

func TestConcurrentTransitionsSingleWinner(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()

	appt := f.book(t)
	f.waitEvent(t)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	targets := []TransitionRequest{
		{Target: store.StatusApproved},
		{Target: store.StatusRejected},
	}
	for i := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.Transition(ctx, f.doctor, appt.ID, targets[i])
		}()
	}
	wg.Wait()

	var wins int
	for _, err := range errs {
		if err == nil {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("got %d successful transitions, want exactly 1 (errs: %v)", wins, errs)
	}

	after, err := f.stores.Appointments.GetByID(ctx, appt.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if after.Status != store.StatusApproved && after.Status != store.StatusRejected {
		t.Errorf("final status = %s, want one of the two targets", after.Status)
	}
}

// A transport outage must never roll back the committed transition.
func TestTransitionSurvivesDeliveryFailure(t *testing.T) {
	events := make(chan notification.Event, 16)
	f := newFixture(t, &failingDispatcher{ch: events}, events)
	ctx := context.Background()

	appt := f.book(t)
	f.waitEvent(t)

	updated, err := f.svc.Transition(ctx, f.doctor, appt.ID, TransitionRequest{Target: store.StatusApproved})
	if err != nil {
		t.Fatalf("Transition() error = %v", err)
	}
	if updated.Status != store.StatusApproved {
		t.Errorf("status = %s, want APPROVED", updated.Status)
	}
	f.waitEvent(t)

	after, err := f.stores.Appointments.GetByID(ctx, appt.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if after.Status != store.StatusApproved {
		t.Errorf("persisted status = %s, want APPROVED", after.Status)
	}
}

func TestListScopedToActor(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()

	f.book(t)
	f.waitEvent(t)

	forPatient, err := f.svc.List(ctx, f.patient)
	if err != nil {
		t.Fatalf("List() patient error = %v", err)
	}
	forDoctor, err := f.svc.List(ctx, f.doctor)
	if err != nil {
		t.Fatalf("List() doctor error = %v", err)
	}
	if len(forPatient) != 1 || len(forDoctor) != 1 {
		t.Errorf("list lengths = %d, %d, want 1 and 1", len(forPatient), len(forDoctor))
	}

	other := Actor{ParticipantID: uuid.New(), Role: store.RolePatient}
	forOther, err := f.svc.List(ctx, other)
	if err != nil {
		t.Fatalf("List() other error = %v", err)
	}
	if len(forOther) != 0 {
		t.Errorf("stranger sees %d appointments, want 0", len(forOther))
	}
}
