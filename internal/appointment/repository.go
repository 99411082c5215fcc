package appointment

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound      = errors.New("patient not found")
	ErrProfessionalNotFound = errors.New("professional not found")
	ErrAppointmentNotFound  = errors.New("appointment not found")
)

// Repository contains all persistence needed by the service. Updates only
// touch appointments that are still open.
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	ListPatients(ctx context.Context) ([]Patient, error)
	GetProfessionalByID(ctx context.Context, id uuid.UUID) (*Professional, error)
	ListProfessionals(ctx context.Context) ([]Professional, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointments(ctx context.Context, filter Filter) ([]Appointment, error)

	CreateAppointment(ctx context.Context, a Appointment) (*Appointment, error)
	// UpdateAppointment rewrites schedule, procedure and notes. Finished and
	// cancelled rows are left alone and reported as ErrAppointmentNotFound.
	UpdateAppointment(ctx context.Context, a Appointment) (*Appointment, error)
	// UpdateAppointmentStatus moves id from one status to another and
	// returns ErrAppointmentNotFound when no row is in status from.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
