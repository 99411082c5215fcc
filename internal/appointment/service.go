package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Inaralmeida/smilink-sub001/internal/metrics"
	redisclient "github.com/Inaralmeida/smilink-sub001/internal/redis"
)

const (
	EventAppointmentCreated     = "APPOINTMENT_CREATED"
	EventAppointmentUpdated     = "APPOINTMENT_UPDATED"
	EventAppointmentStarted     = "APPOINTMENT_STARTED"
	EventAppointmentFinished    = "APPOINTMENT_FINISHED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
)

var (
	ErrSlotConflict    = errors.New("professional already has an appointment in this interval")
	ErrSlotBeingBooked = errors.New("professional agenda is being changed, please retry")
	ErrInvalidSchedule = errors.New("invalid appointment date or time")
	ErrInvalidDuration = errors.New("duration must be between 1 and 1440 minutes")
)

var agendaTracer = otel.Tracer("clinic.internal.appointment")

var actionEvents = map[Action]string{
	ActionBegin:  EventAppointmentStarted,
	ActionFinish: EventAppointmentFinished,
	ActionCancel: EventAppointmentCancelled,
}

type Service struct {
	repo    Repository
	locker  redisclient.Locker
	colors  *ColorCache
	loc     *time.Location
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Service)

// WithLocation sets the clinic time zone that stored dates and times are
// interpreted in.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.loc = loc }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(repo Repository, locker redisclient.Locker, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		repo:   repo,
		locker: locker,
		colors: NewColorCache(),
		loc:    time.Local,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Location() *time.Location {
	return s.loc
}

// CreateAppointment books a new appointment in status scheduled. Display
// names are resolved from the directories, and a zero duration takes the
// procedure's catalog default.
func (s *Service) CreateAppointment(ctx context.Context, in CreateInput) (appt *Appointment, err error) {
	ctx, span := agendaTracer.Start(ctx, "appointment.create")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(
		attribute.String("clinic.professional_id", in.ProfessionalID.String()),
		attribute.String("clinic.patient_id", in.PatientID.String()),
	)

	defaultMinutes, err := DefaultDuration(in.Procedure)
	if err != nil {
		return nil, err
	}
	duration := in.DurationMinutes
	if duration == 0 {
		duration = defaultMinutes
	}
	if duration < 0 || duration > MaxDurationMinutes {
		return nil, ErrInvalidDuration
	}

	start, err := ParseSchedule(in.Date, in.Time, s.loc)
	if err != nil {
		return nil, err
	}
	end := start.Add(time.Duration(duration) * time.Minute)

	professional, err := s.repo.GetProfessionalByID(ctx, in.ProfessionalID)
	if err != nil {
		if errors.Is(err, ErrProfessionalNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load professional: %w", err)
	}
	patient, err := s.repo.GetPatientByID(ctx, in.PatientID)
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	var created *Appointment
	err = s.withAgendaLock(ctx, in.ProfessionalID, func(lockCtx context.Context) error {
		if err := s.checkConflict(lockCtx, in.ProfessionalID, uuid.Nil, start, end); err != nil {
			return err
		}

		a, err := s.repo.CreateAppointment(lockCtx, Appointment{
			ID:               uuid.New(),
			ProfessionalID:   professional.ID,
			ProfessionalName: professional.Name,
			PatientID:        patient.ID,
			PatientName:      patient.Name,
			Date:             start.Format(DateLayout),
			Time:             start.Format(TimeLayout),
			DurationMinutes:  duration,
			Procedure:        in.Procedure,
			Notes:            in.Notes,
			Status:           StatusScheduled,
		})
		if err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}
		created = a

		s.logEvent(lockCtx, a.ID, EventAppointmentCreated, map[string]any{
			"professional_id":  a.ProfessionalID.String(),
			"patient_id":       a.PatientID.String(),
			"date":             a.Date,
			"time":             a.Time,
			"duration_minutes": a.DurationMinutes,
			"procedure":        a.Procedure,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

// GetAppointment retrieves an appointment by ID
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

func (s *Service) ListAppointments(ctx context.Context, filter Filter) ([]Appointment, error) {
	appts, err := s.repo.ListAppointments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appts, nil
}

// UpdateAppointment edits procedure, duration or notes of a non-terminal
// appointment. Changing the procedure of a stored appointment keeps its
// duration unless one is given.
func (s *Service) UpdateAppointment(ctx context.Context, id uuid.UUID, in UpdateInput) (appt *Appointment, err error) {
	ctx, span := agendaTracer.Start(ctx, "appointment.update")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("clinic.appointment_id", id.String()))

	cur, err := s.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if IsTerminal(cur.Status) {
		return nil, fmt.Errorf("%w: appointment is %s", ErrInvalidTransition, cur.Status)
	}

	next := *cur
	if in.Procedure != nil {
		if _, err := DefaultDuration(*in.Procedure); err != nil {
			return nil, err
		}
		next.Procedure = *in.Procedure
	}
	if in.DurationMinutes != nil {
		if *in.DurationMinutes <= 0 || *in.DurationMinutes > MaxDurationMinutes {
			return nil, ErrInvalidDuration
		}
		next.DurationMinutes = *in.DurationMinutes
	}
	if in.Notes != nil {
		next.Notes = *in.Notes
	}

	return s.save(ctx, *cur, next, EventAppointmentUpdated)
}

// BeginAppointment starts treatment of a scheduled appointment.
func (s *Service) BeginAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, ActionBegin, ActorStaff)
}

// FinishAppointment completes an appointment in progress.
func (s *Service) FinishAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, ActionFinish, ActorStaff)
}

// CancelAppointment marks an appointment cancelled. Patients must do so at
// least LeadTime before it starts.
func (s *Service) CancelAppointment(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	return s.transition(ctx, id, ActionCancel, actor)
}

// RescheduleAppointment moves a non-terminal appointment to a new date and
// time, keeping its status. It is held to the same lead-time rule as a
// patient cancellation.
func (s *Service) RescheduleAppointment(ctx context.Context, id uuid.UUID, in RescheduleInput, actor Actor) (appt *Appointment, err error) {
	ctx, span := agendaTracer.Start(ctx, "appointment.reschedule")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(
		attribute.String("clinic.appointment_id", id.String()),
		attribute.String("clinic.actor", string(actor)),
	)

	defer func() { s.metrics.ObserveTransition("reschedule", resultLabel(err)) }()

	cur, err := s.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if IsTerminal(cur.Status) {
		return nil, fmt.Errorf("%w: appointment is %s", ErrInvalidTransition, cur.Status)
	}
	if actor != ActorStaff {
		start, err := cur.Start(s.loc)
		if err != nil {
			return nil, err
		}
		if err := CheckLeadTime(start, s.now()); err != nil {
			return nil, err
		}
	}

	start, err := ParseSchedule(in.Date, in.Time, s.loc)
	if err != nil {
		return nil, err
	}
	if in.DurationMinutes < 0 || in.DurationMinutes > MaxDurationMinutes {
		return nil, ErrInvalidDuration
	}

	next := *cur
	next.Date = start.Format(DateLayout)
	next.Time = start.Format(TimeLayout)
	if in.DurationMinutes > 0 {
		next.DurationMinutes = in.DurationMinutes
	}

	return s.save(ctx, *cur, next, EventAppointmentRescheduled)
}

// ActionSummary describes what an actor may do with an appointment right now.
type ActionSummary struct {
	Status        Status         `json:"status"`
	Allowed       []Action       `json:"allowed"`
	CanReschedule bool           `json:"can_reschedule"`
	LeadTime      *LeadTimeError `json:"lead_time,omitempty"`
}

func (s *Service) Actions(ctx context.Context, id uuid.UUID, actor Actor) (*ActionSummary, error) {
	appt, err := s.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}

	summary := &ActionSummary{Status: appt.Status}
	start, err := appt.Start(s.loc)
	if err != nil {
		return nil, err
	}
	var leadErr *LeadTimeError
	if err := CheckLeadTime(start, s.now()); err != nil {
		errors.As(err, &leadErr)
	}

	for _, action := range AllowedActions(appt.Status) {
		if leadErr != nil && RequiresLeadTime(appt.Status, action, actor) {
			continue
		}
		summary.Allowed = append(summary.Allowed, action)
	}
	if !IsTerminal(appt.Status) {
		summary.CanReschedule = actor == ActorStaff || leadErr == nil
	}
	if actor != ActorStaff && !IsTerminal(appt.Status) {
		summary.LeadTime = leadErr
	}
	return summary, nil
}

// Calendar projects the non-cancelled appointments matching filter.
func (s *Service) Calendar(ctx context.Context, filter Filter) ([]CalendarEvent, error) {
	filter.IncludeCancelled = false
	appts, err := s.ListAppointments(ctx, filter)
	if err != nil {
		return nil, err
	}
	return Project(appts, s.colors, s.loc)
}

// ProfessionalColor is the calendar color currently assigned to id.
func (s *Service) ProfessionalColor(id uuid.UUID) string {
	return s.colors.Obtain(id.String())
}

// ResetColors clears the professional color assignments.
func (s *Service) ResetColors() {
	s.colors.Reset()
}

// DraftFromSlot maps a selected calendar slot to a new draft in clinic time.
func (s *Service) DraftFromSlot(start time.Time) Draft {
	return DraftFromSlot(start.In(s.loc))
}

func (s *Service) ListProfessionals(ctx context.Context) ([]Professional, error) {
	out, err := s.repo.ListProfessionals(ctx)
	if err != nil {
		return nil, fmt.Errorf("list professionals: %w", err)
	}
	return out, nil
}

func (s *Service) ListPatients(ctx context.Context) ([]Patient, error) {
	out, err := s.repo.ListPatients(ctx)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	return out, nil
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, action Action, actor Actor) (appt *Appointment, err error) {
	ctx, span := agendaTracer.Start(ctx, "appointment."+string(action))
	defer func() {
		endSpan(span, err)
		s.metrics.ObserveTransition(string(action), resultLabel(err))
	}()
	span.SetAttributes(
		attribute.String("clinic.appointment_id", id.String()),
		attribute.String("clinic.actor", string(actor)),
	)

	cur, err := s.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}

	next, err := Next(cur.Status, action)
	if err != nil {
		return nil, err
	}

	if RequiresLeadTime(cur.Status, action, actor) {
		start, err := cur.Start(s.loc)
		if err != nil {
			return nil, err
		}
		if err := CheckLeadTime(start, s.now()); err != nil {
			return nil, err
		}
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, id, cur.Status, next)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// the row left cur.Status between the read and the write
			return nil, fmt.Errorf("%w: %s changed concurrently", ErrInvalidTransition, id)
		}
		return nil, fmt.Errorf("update appointment status: %w", err)
	}

	s.logEvent(ctx, id, actionEvents[action], map[string]any{
		"from":  string(cur.Status),
		"to":    string(next),
		"actor": string(actor),
	})

	return updated, nil
}

// save writes next under the professional's agenda lock after checking it
// does not overlap another appointment.
func (s *Service) save(ctx context.Context, cur, next Appointment, eventType string) (*Appointment, error) {
	start, err := next.Start(s.loc)
	if err != nil {
		return nil, err
	}
	end := start.Add(time.Duration(next.DurationMinutes) * time.Minute)

	var saved *Appointment
	err = s.withAgendaLock(ctx, next.ProfessionalID, func(lockCtx context.Context) error {
		if err := s.checkConflict(lockCtx, next.ProfessionalID, next.ID, start, end); err != nil {
			return err
		}
		a, err := s.repo.UpdateAppointment(lockCtx, next)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				// finished or cancelled between the read and the write
				return fmt.Errorf("%w: %s changed concurrently", ErrInvalidTransition, next.ID)
			}
			return fmt.Errorf("update appointment: %w", err)
		}
		saved = a

		s.logEvent(lockCtx, a.ID, eventType, map[string]any{
			"previous": map[string]any{
				"date":             cur.Date,
				"time":             cur.Time,
				"duration_minutes": cur.DurationMinutes,
				"procedure":        cur.Procedure,
			},
			"date":             a.Date,
			"time":             a.Time,
			"duration_minutes": a.DurationMinutes,
			"procedure":        a.Procedure,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *Service) withAgendaLock(ctx context.Context, professionalID uuid.UUID, fn func(ctx context.Context) error) error {
	err := s.locker.WithLock(ctx, "agenda:"+professionalID.String(), fn)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrSlotBeingBooked
	}
	return err
}

// checkConflict fails when [start, end) overlaps another live appointment of
// the professional. The read starts MaxDurationMinutes before start, the
// earliest an overlapping appointment can begin.
func (s *Service) checkConflict(ctx context.Context, professionalID, excludeID uuid.UUID, start, end time.Time) error {
	existing, err := s.repo.ListAppointments(ctx, Filter{
		ProfessionalID: &professionalID,
		From:           start.Add(-MaxDurationMinutes * time.Minute).Format(DateLayout),
		To:             end.Format(DateLayout),
	})
	if err != nil {
		return fmt.Errorf("check agenda conflicts: %w", err)
	}

	for _, other := range existing {
		if other.ID == excludeID || other.Status == StatusCancelled {
			continue
		}
		otherStart, err := other.Start(s.loc)
		if err != nil {
			s.logger.Warn("skipping appointment with unparsable schedule",
				zap.String("appointment_id", other.ID.String()), zap.Error(err))
			continue
		}
		otherEnd := otherStart.Add(time.Duration(other.DurationMinutes) * time.Minute)
		if start.Before(otherEnd) && otherStart.Before(end) {
			return fmt.Errorf("%w: %s %s", ErrSlotConflict, other.Date, other.Time)
		}
	}
	return nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("failed to marshal event payload", zap.String("event_type", eventType), zap.Error(err))
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Error("failed to insert event log",
			zap.String("event_type", eventType),
			zap.String("appointment_id", appointmentID.String()),
			zap.Error(err))
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrAppointmentNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrLeadTimeViolation):
		return "lead_time"
	case errors.Is(err, ErrSlotConflict), errors.Is(err, ErrSlotBeingBooked):
		return "conflict"
	default:
		return "error"
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
