package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/Inaralmeida/smilink-sub001/internal/appointment"
	"github.com/Inaralmeida/smilink-sub001/internal/intake"
)

type CreateAppointmentRequest struct {
	ProfessionalID  string `json:"professional_id" validate:"required,uuid"`
	PatientID       string `json:"patient_id" validate:"required,uuid"`
	Date            string `json:"date" validate:"required,datetime=2006-01-02"`
	Time            string `json:"time" validate:"required,datetime=15:04"`
	DurationMinutes int    `json:"duration_minutes" validate:"gte=0,lte=1440"`
	Procedure       string `json:"procedure" validate:"required"`
	Notes           string `json:"notes"`
}

type UpdateAppointmentRequest struct {
	Procedure       *string `json:"procedure" validate:"omitempty,min=1"`
	DurationMinutes *int    `json:"duration_minutes" validate:"omitempty,gt=0,lte=1440"`
	Notes           *string `json:"notes"`
}

type RescheduleRequest struct {
	Date            string `json:"date" validate:"required,datetime=2006-01-02"`
	Time            string `json:"time" validate:"required,datetime=15:04"`
	DurationMinutes int    `json:"duration_minutes" validate:"gte=0,lte=1440"`
}

type DraftRequest struct {
	Start         string `json:"start" validate:"required_without=AppointmentID"`
	AppointmentID string `json:"appointment_id" validate:"omitempty,uuid"`
	Procedure     string `json:"procedure"`
}

type AddressLookupRequest struct {
	FormID     string `json:"form_id" validate:"required,max=128"`
	PostalCode string `json:"postal_code" validate:"required"`
}

type AutoFillRequest struct {
	FormID string        `json:"form_id" validate:"required,max=128"`
	Record intake.Record `json:"record"`
}

type AutoFillResponse struct {
	Record   intake.Record     `json:"record"`
	Failures map[string]string `json:"failures,omitempty"`
}

type ValidatedRecordResponse struct {
	Record intake.Record `json:"record"`
}

type AppointmentResponse struct {
	ID               uuid.UUID  `json:"id"`
	ProfessionalID   uuid.UUID  `json:"professional_id"`
	ProfessionalName string     `json:"professional_name"`
	PatientID        uuid.UUID  `json:"patient_id"`
	PatientName      string     `json:"patient_name"`
	Date             string     `json:"date"`
	Time             string     `json:"time"`
	DurationMinutes  int        `json:"duration_minutes"`
	Procedure        string     `json:"procedure"`
	Notes            string     `json:"notes"`
	Status           string     `json:"status"`
	StatusLabel      string     `json:"status_label"`
	StatusColor      string     `json:"status_color"`
	Start            *time.Time `json:"start,omitempty"`
	End              *time.Time `json:"end,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func toAppointmentResponse(a *appointment.Appointment, loc *time.Location) AppointmentResponse {
	info := appointment.StatusInfo(a.Status)
	resp := AppointmentResponse{
		ID:               a.ID,
		ProfessionalID:   a.ProfessionalID,
		ProfessionalName: a.ProfessionalName,
		PatientID:        a.PatientID,
		PatientName:      a.PatientName,
		Date:             a.Date,
		Time:             a.Time,
		DurationMinutes:  a.DurationMinutes,
		Procedure:        a.Procedure,
		Notes:            a.Notes,
		Status:           string(a.Status),
		StatusLabel:      info.Label,
		StatusColor:      info.Color,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
	if start, err := a.Start(loc); err == nil {
		end := start.Add(time.Duration(a.DurationMinutes) * time.Minute)
		resp.Start = &start
		resp.End = &end
	}
	return resp
}

type ProfessionalResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Specialty *string   `json:"specialty,omitempty"`
	Color     string    `json:"color"`
}

type PatientResponse struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email *string   `json:"email,omitempty"`
}

type ErrorResponse struct {
	Error    string                     `json:"error"`
	Details  string                     `json:"details,omitempty"`
	Fields   map[string]string          `json:"fields,omitempty"`
	LeadTime *appointment.LeadTimeError `json:"lead_time,omitempty"`
}
