package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Inaralmeida/smilink-sub001/internal/metrics"
	redisclient "github.com/Inaralmeida/smilink-sub001/internal/redis"
)

var clinicLoc = time.FixedZone("BRT", -3*60*60)

type fixture struct {
	svc          *Service
	repo         *MemoryRepository
	mr           *miniredis.Miniredis
	professional Professional
	patient      Patient
	now          time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	f := &fixture{
		repo:         NewMemoryRepository(),
		mr:           mr,
		professional: Professional{ID: uuid.New(), Name: "Dra. Helena Costa"},
		patient:      Patient{ID: uuid.New(), Name: "João Silva"},
		now:          time.Date(2026, 10, 15, 9, 0, 0, 0, clinicLoc),
	}
	f.repo.AddProfessional(f.professional)
	f.repo.AddPatient(f.patient)

	f.svc = NewService(f.repo, redisclient.NewRedisLocker(client, time.Second), nil,
		WithLocation(clinicLoc),
		WithClock(func() time.Time { return f.now }),
		WithMetrics(metrics.New(prometheus.NewRegistry())),
	)
	return f
}

func (f *fixture) create(t *testing.T, date, clock, procedure string) *Appointment {
	t.Helper()
	appt, err := f.svc.CreateAppointment(context.Background(), CreateInput{
		ProfessionalID: f.professional.ID,
		PatientID:      f.patient.ID,
		Date:           date,
		Time:           clock,
		Procedure:      procedure,
	})
	require.NoError(t, err)
	return appt
}

func TestCreateAppliesCatalogDuration(t *testing.T) {
	f := newFixture(t)

	appt := f.create(t, "2026-10-20", "14:00", "Tratamento de Canal")

	assert.Equal(t, 90, appt.DurationMinutes)
	assert.Equal(t, StatusScheduled, appt.Status)
	assert.Equal(t, "Dra. Helena Costa", appt.ProfessionalName)
	assert.Equal(t, "João Silva", appt.PatientName)

	events := f.repo.Events()
	require.Len(t, events, 1)
	assert.Equal(t, EventAppointmentCreated, events[0].EventType)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(events[0].Payload, &payload))
	assert.Equal(t, "Tratamento de Canal", payload["procedure"])
}

func TestCreateHonoursDurationOverride(t *testing.T) {
	f := newFixture(t)

	appt, err := f.svc.CreateAppointment(context.Background(), CreateInput{
		ProfessionalID:  f.professional.ID,
		PatientID:       f.patient.ID,
		Date:            "2026-10-20",
		Time:            "08:00",
		DurationMinutes: 120,
		Procedure:       "Tratamento de Canal",
	})
	require.NoError(t, err)
	assert.Equal(t, 120, appt.DurationMinutes)
}

func TestCreateValidatesInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	base := CreateInput{
		ProfessionalID: f.professional.ID,
		PatientID:      f.patient.ID,
		Date:           "2026-10-20",
		Time:           "08:00",
		Procedure:      "Limpeza",
	}

	tests := []struct {
		name   string
		mutate func(in *CreateInput)
		want   error
	}{
		{"unknown procedure", func(in *CreateInput) { in.Procedure = "Botox" }, ErrUnknownProcedure},
		{"negative duration", func(in *CreateInput) { in.DurationMinutes = -15 }, ErrInvalidDuration},
		{"bad date", func(in *CreateInput) { in.Date = "20/10/2026" }, ErrInvalidSchedule},
		{"unknown professional", func(in *CreateInput) { in.ProfessionalID = uuid.New() }, ErrProfessionalNotFound},
		{"unknown patient", func(in *CreateInput) { in.PatientID = uuid.New() }, ErrPatientNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base
			tt.mutate(&in)
			_, err := f.svc.CreateAppointment(ctx, in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCreateRejectsOverlap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, "2026-10-20", "09:00", "Tratamento de Canal") // 09:00-10:30

	_, err := f.svc.CreateAppointment(ctx, CreateInput{
		ProfessionalID: f.professional.ID,
		PatientID:      f.patient.ID,
		Date:           "2026-10-20",
		Time:           "10:00",
		Procedure:      "Limpeza",
	})
	assert.ErrorIs(t, err, ErrSlotConflict)

	// back to back is fine
	f.create(t, "2026-10-20", "10:30", "Limpeza")
}

func TestCreateSeesAppointmentFromPreviousDay(t *testing.T) {
	f := newFixture(t)
	f.create(t, "2026-10-20", "23:30", "Tratamento de Canal") // ends 01:00 next day

	_, err := f.svc.CreateAppointment(context.Background(), CreateInput{
		ProfessionalID: f.professional.ID,
		PatientID:      f.patient.ID,
		Date:           "2026-10-21",
		Time:           "00:30",
		Procedure:      "Limpeza",
	})
	assert.ErrorIs(t, err, ErrSlotConflict)
}

func TestCreateSeesLongAppointmentStartedTheDayBefore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.CreateAppointment(ctx, CreateInput{
		ProfessionalID:  f.professional.ID,
		PatientID:       f.patient.ID,
		Date:            "2026-10-20",
		Time:            "10:00",
		Procedure:       "Implante",
		DurationMinutes: MaxDurationMinutes, // until 10:00 next day
	})
	require.NoError(t, err)

	_, err = f.svc.CreateAppointment(ctx, CreateInput{
		ProfessionalID: f.professional.ID,
		PatientID:      f.patient.ID,
		Date:           "2026-10-21",
		Time:           "09:00",
		Procedure:      "Limpeza",
	})
	assert.ErrorIs(t, err, ErrSlotConflict)

	f.create(t, "2026-10-21", "10:00", "Limpeza")
}

func TestDurationIsCapped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, minutes := range []int{3 * 24 * 60, MaxDurationMinutes + 1, 1 << 30} {
		_, err := f.svc.CreateAppointment(ctx, CreateInput{
			ProfessionalID:  f.professional.ID,
			PatientID:       f.patient.ID,
			Date:            "2026-10-20",
			Time:            "10:00",
			Procedure:       "Implante",
			DurationMinutes: minutes,
		})
		assert.ErrorIs(t, err, ErrInvalidDuration, "duration %d", minutes)
	}

	appt := f.create(t, "2026-10-20", "10:00", "Limpeza")
	tooLong := MaxDurationMinutes + 1
	_, err := f.svc.UpdateAppointment(ctx, appt.ID, UpdateInput{DurationMinutes: &tooLong})
	assert.ErrorIs(t, err, ErrInvalidDuration)

	_, err = f.svc.RescheduleAppointment(ctx, appt.ID,
		RescheduleInput{Date: "2026-10-22", Time: "10:00", DurationMinutes: tooLong}, ActorStaff)
	assert.ErrorIs(t, err, ErrInvalidDuration)

	_, err = f.svc.RescheduleAppointment(ctx, appt.ID,
		RescheduleInput{Date: "2026-10-22", Time: "10:00", DurationMinutes: MaxDurationMinutes}, ActorStaff)
	require.NoError(t, err)
}

func TestCancelledAppointmentFreesTheSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.create(t, "2026-10-20", "09:00", "Limpeza")

	_, err := f.svc.CancelAppointment(ctx, appt.ID, ActorStaff)
	require.NoError(t, err)

	f.create(t, "2026-10-20", "09:00", "Limpeza")
}

func TestCreateRefusedWhileAgendaLocked(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.mr.Set("lock:agenda:"+f.professional.ID.String(), "other-request"))

	_, err := f.svc.CreateAppointment(context.Background(), CreateInput{
		ProfessionalID: f.professional.ID,
		PatientID:      f.patient.ID,
		Date:           "2026-10-20",
		Time:           "09:00",
		Procedure:      "Limpeza",
	})
	assert.ErrorIs(t, err, ErrSlotBeingBooked)
}

func TestLifecycleHappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.create(t, "2026-10-15", "10:00", "Restauração")

	started, err := f.svc.BeginAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, started.Status)

	finished, err := f.svc.FinishAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFinished, finished.Status)

	types := make([]string, 0)
	for _, ev := range f.repo.Events() {
		types = append(types, ev.EventType)
	}
	assert.Equal(t, []string{EventAppointmentCreated, EventAppointmentStarted, EventAppointmentFinished}, types)
}

func TestTerminalAppointmentsRejectEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	finished := f.create(t, "2026-10-15", "10:00", "Limpeza")
	_, err := f.svc.BeginAppointment(ctx, finished.ID)
	require.NoError(t, err)
	_, err = f.svc.FinishAppointment(ctx, finished.ID)
	require.NoError(t, err)

	cancelled := f.create(t, "2026-10-30", "10:00", "Limpeza")
	_, err = f.svc.CancelAppointment(ctx, cancelled.ID, ActorPatient)
	require.NoError(t, err)

	for _, id := range []uuid.UUID{finished.ID, cancelled.ID} {
		_, err = f.svc.BeginAppointment(ctx, id)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		_, err = f.svc.FinishAppointment(ctx, id)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		_, err = f.svc.CancelAppointment(ctx, id, ActorStaff)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		_, err = f.svc.RescheduleAppointment(ctx, id, RescheduleInput{Date: "2026-11-02", Time: "10:00"}, ActorStaff)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		notes := "x"
		_, err = f.svc.UpdateAppointment(ctx, id, UpdateInput{Notes: &notes})
		assert.ErrorIs(t, err, ErrInvalidTransition)
	}
}

func TestTransitionsOnMissingAppointment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := uuid.New()

	_, err := f.svc.BeginAppointment(ctx, id)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
	_, err = f.svc.FinishAppointment(ctx, id)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
	_, err = f.svc.CancelAppointment(ctx, id, ActorPatient)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
	_, err = f.svc.RescheduleAppointment(ctx, id, RescheduleInput{Date: "2026-11-02", Time: "10:00"}, ActorPatient)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestPatientCancelInsideLeadTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.create(t, "2026-10-20", "14:00", "Limpeza")
	start := time.Date(2026, 10, 20, 14, 0, 0, 0, clinicLoc)

	f.now = start.Add(-(23*time.Hour + 59*time.Minute))
	_, err := f.svc.CancelAppointment(ctx, appt.ID, ActorPatient)
	require.ErrorIs(t, err, ErrLeadTimeViolation)
	var leadErr *LeadTimeError
	require.True(t, errors.As(err, &leadErr))
	assert.Equal(t, 23, leadErr.Hours)
	assert.Equal(t, 59, leadErr.Minutes)

	_, err = f.svc.RescheduleAppointment(ctx, appt.ID, RescheduleInput{Date: "2026-10-22", Time: "14:00"}, ActorPatient)
	assert.ErrorIs(t, err, ErrLeadTimeViolation)

	got, err := f.svc.GetAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, got.Status)
	assert.Equal(t, "2026-10-20", got.Date)
}

func TestPatientCancelOutsideLeadTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.create(t, "2026-10-20", "14:00", "Limpeza")
	f.now = time.Date(2026, 10, 20, 14, 0, 0, 0, clinicLoc).Add(-25 * time.Hour)

	cancelled, err := f.svc.CancelAppointment(ctx, appt.ID, ActorPatient)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
}

func TestStaffBypassesLeadTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.create(t, "2026-10-15", "10:00", "Limpeza")

	moved, err := f.svc.RescheduleAppointment(ctx, appt.ID, RescheduleInput{Date: "2026-10-15", Time: "11:00"}, ActorStaff)
	require.NoError(t, err)
	assert.Equal(t, "11:00", moved.Time)

	cancelled, err := f.svc.CancelAppointment(ctx, appt.ID, ActorStaff)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
}

func TestReschedulePreservesStatusAndChecksOverlap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.create(t, "2026-10-20", "09:00", "Limpeza")
	other := f.create(t, "2026-10-22", "09:00", "Implante") // 09:00-11:00

	_, err := f.svc.RescheduleAppointment(ctx, appt.ID, RescheduleInput{Date: "2026-10-22", Time: "10:00"}, ActorPatient)
	assert.ErrorIs(t, err, ErrSlotConflict)

	moved, err := f.svc.RescheduleAppointment(ctx, appt.ID,
		RescheduleInput{Date: "2026-10-22", Time: "11:00", DurationMinutes: 60}, ActorPatient)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, moved.Status)
	assert.Equal(t, "2026-10-22", moved.Date)
	assert.Equal(t, 60, moved.DurationMinutes)

	// overlapping its own previous interval is not a conflict
	_, err = f.svc.RescheduleAppointment(ctx, other.ID, RescheduleInput{Date: "2026-10-22", Time: "08:30"}, ActorPatient)
	require.NoError(t, err)
}

func TestUpdateKeepsDurationWhenProcedureChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.create(t, "2026-10-20", "09:00", "Limpeza")

	proc := "Tratamento de Canal"
	notes := "paciente com sensibilidade"
	updated, err := f.svc.UpdateAppointment(ctx, appt.ID, UpdateInput{Procedure: &proc, Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, proc, updated.Procedure)
	assert.Equal(t, 45, updated.DurationMinutes)
	assert.Equal(t, notes, updated.Notes)

	bad := 0
	_, err = f.svc.UpdateAppointment(ctx, appt.ID, UpdateInput{DurationMinutes: &bad})
	assert.ErrorIs(t, err, ErrInvalidDuration)
}

func TestActionsSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	soon := f.create(t, "2026-10-15", "18:00", "Limpeza")
	later := f.create(t, "2026-10-25", "18:00", "Limpeza")

	summary, err := f.svc.Actions(ctx, soon.ID, ActorPatient)
	require.NoError(t, err)
	assert.Equal(t, []Action{ActionBegin}, summary.Allowed)
	assert.False(t, summary.CanReschedule)
	require.NotNil(t, summary.LeadTime)
	assert.Equal(t, 9, summary.LeadTime.Hours)

	summary, err = f.svc.Actions(ctx, soon.ID, ActorStaff)
	require.NoError(t, err)
	assert.Equal(t, []Action{ActionBegin, ActionCancel}, summary.Allowed)
	assert.True(t, summary.CanReschedule)
	assert.Nil(t, summary.LeadTime)

	summary, err = f.svc.Actions(ctx, later.ID, ActorPatient)
	require.NoError(t, err)
	assert.Equal(t, []Action{ActionBegin, ActionCancel}, summary.Allowed)
	assert.True(t, summary.CanReschedule)
}

func TestCalendarProjection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	kept := f.create(t, "2026-10-20", "09:00", "Limpeza")
	dropped := f.create(t, "2026-10-20", "11:00", "Limpeza")
	_, err := f.svc.CancelAppointment(ctx, dropped.ID, ActorStaff)
	require.NoError(t, err)

	events, err := f.svc.Calendar(ctx, Filter{From: "2026-10-20", To: "2026-10-20"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, kept.ID, events[0].ID)
	assert.Equal(t, f.svc.ProfessionalColor(f.professional.ID), events[0].Color)

	f.svc.ResetColors()
	assert.Equal(t, events[0].Color, f.svc.ProfessionalColor(f.professional.ID))
}

func TestServiceDraftFromSlotUsesClinicZone(t *testing.T) {
	f := newFixture(t)
	d := f.svc.DraftFromSlot(time.Date(2026, 10, 20, 2, 30, 0, 0, time.UTC))
	assert.Equal(t, "2026-10-19", d.Date)
	assert.Equal(t, "23:30", d.Time)
}

// staleRepository serves the appointment as it was before a concurrent
// cancel, the way a read racing another request would see it.
type staleRepository struct {
	*MemoryRepository
	snapshot Appointment
}

func (r *staleRepository) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	if id != r.snapshot.ID {
		return nil, ErrAppointmentNotFound
	}
	a := r.snapshot
	return &a, nil
}

func TestEditAfterConcurrentCancelIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.create(t, "2026-10-20", "09:00", "Limpeza")

	_, err := f.repo.UpdateAppointmentStatus(ctx, appt.ID, StatusScheduled, StatusCancelled)
	require.NoError(t, err)

	_, err = f.repo.UpdateAppointment(ctx, *appt)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)

	client := redis.NewClient(&redis.Options{Addr: f.mr.Addr()})
	t.Cleanup(func() { client.Close() })
	svc := NewService(&staleRepository{MemoryRepository: f.repo, snapshot: *appt},
		redisclient.NewRedisLocker(client, time.Second), nil,
		WithLocation(clinicLoc),
		WithClock(func() time.Time { return f.now }),
	)

	notes := "retorno"
	_, err = svc.UpdateAppointment(ctx, appt.ID, UpdateInput{Notes: &notes})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.RescheduleAppointment(ctx, appt.ID, RescheduleInput{Date: "2026-10-22", Time: "09:00"}, ActorStaff)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	stored, err := f.repo.GetAppointmentByID(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, stored.Status)
	assert.Equal(t, "2026-10-20", stored.Date)
	assert.Empty(t, stored.Notes)
}
