package appointment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in_progress"
	StatusFinished   Status = "finished"
	StatusCancelled  Status = "cancelled"
)

type Action string

const (
	ActionBegin  Action = "begin"
	ActionFinish Action = "finish"
	ActionCancel Action = "cancel"
)

// Actor is who triggered an action. Only patient-initiated cancel and
// reschedule are held to the lead-time rule.
type Actor string

const (
	ActorPatient Actor = "patient"
	ActorStaff   Actor = "staff"
)

type Professional struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Appointment struct {
	ID               uuid.UUID
	ProfessionalID   uuid.UUID
	ProfessionalName string
	PatientID        uuid.UUID
	PatientName      string
	Date             string // YYYY-MM-DD
	Time             string // HH:MM
	DurationMinutes  int
	Procedure        string
	Notes            string
	Status           Status
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Start combines Date and Time as a wall clock instant in loc.
func (a Appointment) Start(loc *time.Location) (time.Time, error) {
	return ParseSchedule(a.Date, a.Time, loc)
}

// End is Start plus the stored duration.
func (a Appointment) End(loc *time.Location) (time.Time, error) {
	start, err := a.Start(loc)
	if err != nil {
		return time.Time{}, err
	}
	return start.Add(time.Duration(a.DurationMinutes) * time.Minute), nil
}

// ParseSchedule parses a YYYY-MM-DD date and HH:MM time in loc.
func ParseSchedule(date, clock string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(DateLayout+" "+TimeLayout, date+" "+clock, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q %q", ErrInvalidSchedule, date, clock)
	}
	return t, nil
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// Filter narrows appointment listings. Zero values mean "any". From and To
// are inclusive YYYY-MM-DD bounds.
type Filter struct {
	ProfessionalID   *uuid.UUID
	PatientID        *uuid.UUID
	From             string
	To               string
	IncludeCancelled bool
}

type CreateInput struct {
	ProfessionalID  uuid.UUID
	PatientID       uuid.UUID
	Date            string
	Time            string
	DurationMinutes int // 0 means the catalog default for Procedure
	Procedure       string
	Notes           string
}

type UpdateInput struct {
	Procedure       *string
	DurationMinutes *int
	Notes           *string
}

type RescheduleInput struct {
	Date            string
	Time            string
	DurationMinutes int // 0 keeps the current duration
}
