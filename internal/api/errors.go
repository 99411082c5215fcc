package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/Inaralmeida/smilink-sub001/internal/address"
	"github.com/Inaralmeida/smilink-sub001/internal/appointment"
	"github.com/Inaralmeida/smilink-sub001/internal/intake"
)

var errNotConfigured = errors.New("not configured")

// handleServiceError maps service failures to HTTP responses. Anything not
// recognised is logged and reported as a 500 without details.
func handleServiceError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	var leadErr *appointment.LeadTimeError
	var validationErr *intake.ValidationError

	switch {
	case errors.As(err, &leadErr):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:    "lead_time_violation",
			Details:  err.Error(),
			LeadTime: leadErr,
		})
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:  "validation_failed",
			Fields: validationErr.Fields,
		})

	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, appointment.ErrProfessionalNotFound):
		writeError(w, http.StatusNotFound, "professional_not_found", err.Error())
	case errors.Is(err, address.ErrLookupNotFound):
		writeError(w, http.StatusNotFound, "postal_code_not_found", err.Error())

	case errors.Is(err, appointment.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, appointment.ErrSlotConflict):
		writeError(w, http.StatusConflict, "slot_conflict", err.Error())
	case errors.Is(err, appointment.ErrSlotBeingBooked):
		writeError(w, http.StatusConflict, "slot_being_booked", err.Error())
	case errors.Is(err, intake.ErrLookupInFlight):
		writeError(w, http.StatusConflict, "lookup_in_flight", err.Error())
	case errors.Is(err, intake.ErrDuplicatePatient):
		writeError(w, http.StatusConflict, "duplicate_patient", err.Error())

	case errors.Is(err, appointment.ErrUnknownProcedure),
		errors.Is(err, appointment.ErrInvalidSchedule),
		errors.Is(err, appointment.ErrInvalidDuration):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())

	case errors.Is(err, address.ErrLookupTransport):
		logger.Warn("address lookup unavailable", zap.Error(err), zap.String("request_id", GetRequestID(r.Context())))
		writeError(w, http.StatusBadGateway, "lookup_unavailable", intake.MsgLookupFailed)

	default:
		logger.Error("request failed",
			zap.Error(err),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", GetRequestID(r.Context())),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "")
	}
}
