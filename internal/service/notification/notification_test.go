package notification

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/telecarehq/telecare_backend/internal/store"
	"github.com/telecarehq/telecare_backend/pkg/email"
)

type fakeTransport struct {
	failures int // fail this many sends before succeeding
	calls    int
	sent     []email.Message
}

func (f *fakeTransport) Send(_ context.Context, m email.Message) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("smtp: connection refused")
	}
	f.sent = append(f.sent, m)
	return nil
}

func newDispatcher(tr Transport) *dispatcher {
	d := New(tr, RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second}, slog.New(slog.DiscardHandler)).(*dispatcher)
	d.sleep = func(context.Context, time.Duration) error { return nil }
	return d
}

func testEvent(kind EventKind) Event {
	return Event{
		Kind: kind,
		Appointment: store.Appointment{
			ID:          uuid.New(),
			ScheduledAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
			Modality:    store.ModalityInPerson,
			Status:      store.StatusPending,
		},
		PatientName:  "Jamie Rivera",
		PatientEmail: "jamie@example.com",
		DoctorName:   "Chen",
		DoctorEmail:  "chen@example.com",
	}
}

func TestRender(t *testing.T) {
	tests := []struct {
		name string
		in   string
		vars map[string]string
		want string
	}{
		{
			name: "substitutes all tokens",
			in:   "Hi {{patientName}}, see Dr. {{doctorName}}",
			vars: map[string]string{"patientName": "Jamie", "doctorName": "Chen"},
			want: "Hi Jamie, see Dr. Chen",
		},
		{
			name: "unresolved token left verbatim",
			in:   "On {{appointmentDate}} at {{appointmentTime}}",
			vars: map[string]string{"appointmentDate": "2025-03-01"},
			want: "On 2025-03-01 at {{appointmentTime}}",
		},
		{
			name: "repeated token",
			in:   "{{patientName}} and {{patientName}}",
			vars: map[string]string{"patientName": "Jamie"},
			want: "Jamie and Jamie",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := render(tt.in, tt.vars); got != tt.want {
				t.Errorf("render() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDispatchRecipients(t *testing.T) {
	tests := []struct {
		kind    EventKind
		wantTos []string
	}{
		{KindBooking, []string{"jamie@example.com", "chen@example.com"}},
		{KindCancellation, []string{"jamie@example.com", "chen@example.com"}},
		{KindReschedule, []string{"jamie@example.com", "chen@example.com"}},
		{KindConfirmation, []string{"jamie@example.com"}},
		{KindReminder, []string{"jamie@example.com"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			tr := &fakeTransport{}
			d := newDispatcher(tr)

			ev := testEvent(tt.kind)
			if tt.kind == KindReschedule {
				prev := time.Date(2025, 2, 20, 9, 0, 0, 0, time.UTC)
				ev.PrevScheduledAt = &prev
			}

			if err := d.Dispatch(context.Background(), ev); err != nil {
				t.Fatalf("Dispatch() error = %v", err)
			}
			if len(tr.sent) != len(tt.wantTos) {
				t.Fatalf("sent %d messages, want %d", len(tr.sent), len(tt.wantTos))
			}
			for i, want := range tt.wantTos {
				if got := tr.sent[i].To[0]; got != want {
					t.Errorf("message %d To = %q, want %q", i, got, want)
				}
			}
		})
	}
}

func TestDispatchRescheduleBody(t *testing.T) {
	tr := &fakeTransport{}
	d := newDispatcher(tr)

	ev := testEvent(KindReschedule)
	prev := time.Date(2025, 2, 20, 9, 0, 0, 0, time.UTC)
	ev.PrevScheduledAt = &prev

	if err := d.Dispatch(context.Background(), ev); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	body := tr.sent[0].TextBody
	for _, want := range []string{"2025-02-20", "2025-03-01", "IN_PERSON"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
	if strings.Contains(body, "{{") {
		t.Errorf("body has unresolved placeholders:\n%s", body)
	}
}

func TestDispatchRetriesThenSucceeds(t *testing.T) {
	tr := &fakeTransport{failures: 2}
	d := newDispatcher(tr)

	if err := d.Dispatch(context.Background(), testEvent(KindReminder)); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if tr.calls != 3 {
		t.Errorf("transport calls = %d, want 3", tr.calls)
	}
}

func TestDispatchExhaustsRetries(t *testing.T) {
	tr := &fakeTransport{failures: 100}
	d := newDispatcher(tr)

	var slept []time.Duration
	d.sleep = func(_ context.Context, dur time.Duration) error {
		slept = append(slept, dur)
		return nil
	}

	err := d.Dispatch(context.Background(), testEvent(KindReminder))

	var dErr *DeliveryError
	if !errors.As(err, &dErr) {
		t.Fatalf("Dispatch() error = %v, want *DeliveryError", err)
	}
	if dErr.Attempts != 3 || tr.calls != 3 {
		t.Errorf("attempts = %d, calls = %d, want 3 and 3", dErr.Attempts, tr.calls)
	}
	if dErr.Unwrap() == nil {
		t.Error("DeliveryError should carry the last transport error")
	}

	// Linear backoff: 1x then 2x the base delay.
	want := []time.Duration{time.Second, 2 * time.Second}
	if len(slept) != len(want) {
		t.Fatalf("slept %v, want %v", slept, want)
	}
	for i := range want {
		if slept[i] != want[i] {
			t.Errorf("sleep %d = %v, want %v", i, slept[i], want[i])
		}
	}
}

func TestDispatchUnknownKind(t *testing.T) {
	d := newDispatcher(&fakeTransport{})

	err := d.Dispatch(context.Background(), testEvent(EventKind("PIGEON")))
	if !errors.Is(err, ErrUnknownKind) {
		t.Errorf("Dispatch() error = %v, want ErrUnknownKind", err)
	}
}
